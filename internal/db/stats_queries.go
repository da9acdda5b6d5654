package db

import (
	"context"
	"fmt"
)

// TopicStats is the per-topic lifecycle breakdown.
type TopicStats struct {
	Topic           string           `json:"topic"`
	Statuses        map[string]int64 `json:"statuses"`
	Representatives int64            `json:"representatives"`
	AverageScore    float64          `json:"average_score"`
}

type Stats struct {
	Topics    []TopicStats     `json:"topics"`
	Vectors   int64            `json:"vectors"`
	Relations map[string]int64 `json:"relations"`
}

func (p *Pool) QueryStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Topics:    make([]TopicStats, 0, 4),
		Relations: make(map[string]int64),
	}

	const statusQuery = `
SELECT i.topic, i.status, COUNT(*)::BIGINT
FROM techwatch.items i
GROUP BY i.topic, i.status
ORDER BY i.topic, i.status
`
	rows, err := p.Query(ctx, statusQuery)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	byTopic := make(map[string]int)
	for rows.Next() {
		var (
			topic  string
			status string
			count  int64
		)
		if err := rows.Scan(&topic, &status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		idx, ok := byTopic[topic]
		if !ok {
			stats.Topics = append(stats.Topics, TopicStats{Topic: topic, Statuses: make(map[string]int64)})
			idx = len(stats.Topics) - 1
			byTopic[topic] = idx
		}
		stats.Topics[idx].Statuses[status] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	rows.Close()

	const repQuery = `
SELECT i.topic, COUNT(*)::BIGINT, COALESCE(AVG(i.score), 0)::DOUBLE PRECISION
FROM techwatch.items i
WHERE i.embedding_ref IS NOT NULL
GROUP BY i.topic
`
	rows, err = p.Query(ctx, repQuery)
	if err != nil {
		return nil, fmt.Errorf("query representatives: %w", err)
	}
	for rows.Next() {
		var (
			topic string
			count int64
			avg   float64
		)
		if err := rows.Scan(&topic, &count, &avg); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan representatives: %w", err)
		}
		if idx, ok := byTopic[topic]; ok {
			stats.Topics[idx].Representatives = count
			stats.Topics[idx].AverageScore = avg
		}
	}
	rows.Close()

	if err := p.QueryRow(ctx, `SELECT COUNT(*)::BIGINT FROM techwatch.item_vectors`).Scan(&stats.Vectors); err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}

	rows, err = p.Query(ctx, `SELECT relation, COUNT(*)::BIGINT FROM techwatch.dedup_events GROUP BY relation`)
	if err != nil {
		return nil, fmt.Errorf("query relation counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			relation string
			count    int64
		)
		if err := rows.Scan(&relation, &count); err != nil {
			return nil, fmt.Errorf("scan relation count: %w", err)
		}
		stats.Relations[relation] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relation counts: %w", err)
	}
	return stats, nil
}
