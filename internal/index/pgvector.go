package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"horse.fit/techwatch/internal/db"
	"horse.fit/techwatch/internal/globaltime"
)

const (
	DefaultSearchEF      = 64
	DefaultIterativeScan = "relaxed_order"
)

type PGVectorOptions struct {
	Dimensions int
	SearchEF   int
	// IterativeScan is pgvector's hnsw.iterative_scan (off, relaxed_order or
	// strict_order). With it on, the HNSW scan keeps going until the topic
	// filter has let topK rows through instead of stopping at ef_search
	// candidates. Requires pgvector 0.8.
	IterativeScan string
}

// PGVector stores vectors in techwatch.item_vectors and searches them with the
// HNSW cosine index.
type PGVector struct {
	pool *db.Pool
	opts PGVectorOptions
}

func NewPGVector(pool *db.Pool, opts PGVectorOptions) *PGVector {
	if opts.Dimensions <= 0 {
		opts.Dimensions = db.VectorDimensions
	}
	if opts.SearchEF <= 0 {
		opts.SearchEF = DefaultSearchEF
	}
	opts.IterativeScan = strings.ToLower(strings.TrimSpace(opts.IterativeScan))
	if opts.IterativeScan == "" {
		opts.IterativeScan = DefaultIterativeScan
	}
	return &PGVector{pool: pool, opts: opts}
}

func (p *PGVector) Upsert(ctx context.Context, ref string, vector []float64, payload Payload) error {
	literal, err := ToVectorLiteral(vector, p.opts.Dimensions)
	if err != nil {
		return fmt.Errorf("upsert vector ref=%s: %w", ref, err)
	}

	const q = `
INSERT INTO techwatch.item_vectors (ref, item_id, topic, embedding, created_at)
VALUES ($1::uuid, $2, $3, $4::vector, $5)
ON CONFLICT (ref) DO UPDATE
SET item_id = EXCLUDED.item_id,
	topic = EXCLUDED.topic,
	embedding = EXCLUDED.embedding
`
	if _, err := p.pool.Exec(ctx, q, ref, payload.ItemID, payload.Topic, literal, globaltime.UTC()); err != nil {
		return fmt.Errorf("%w: upsert vector ref=%s: %v", ErrUnavailable, ref, err)
	}
	return nil
}

func (p *PGVector) Query(ctx context.Context, vector []float64, topic string, topK int, minScore float64) ([]Match, error) {
	literal, err := ToVectorLiteral(vector, p.opts.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	if topK <= 0 {
		topK = 1
	}

	tx, err := p.pool.BeginTx(ctx, db.ReadOnly())
	if err != nil {
		return nil, fmt.Errorf("%w: begin query tx: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range searchSettings(p.opts) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, stmt, err)
		}
	}

	const q = `
SELECT
	v.ref::text,
	v.item_id,
	v.topic,
	(1 - (v.embedding <=> $1::vector))::DOUBLE PRECISION AS cosine
FROM techwatch.item_vectors v
WHERE v.topic = $2
ORDER BY v.embedding <=> $1::vector ASC
LIMIT $3
`
	rows, err := tx.Query(ctx, q, literal, topic, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: query vectors: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	matches := make([]Match, 0, topK)
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Ref, &m.Payload.ItemID, &m.Payload.Topic, &m.Score); err != nil {
			return nil, fmt.Errorf("%w: scan vector match: %v", ErrUnavailable, err)
		}
		if m.Score < minScore {
			continue
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate vector matches: %v", ErrUnavailable, err)
	}
	// relaxed_order may return rows slightly out of distance order.
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// searchSettings returns the SET LOCAL statements for one search transaction.
func searchSettings(opts PGVectorOptions) []string {
	stmts := []string{fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", opts.SearchEF)}
	switch opts.IterativeScan {
	case "relaxed_order", "strict_order":
		stmts = append(stmts, "SET LOCAL hnsw.iterative_scan = "+opts.IterativeScan)
	}
	return stmts
}

func (p *PGVector) Delete(ctx context.Context, refs []string) error {
	if len(refs) == 0 {
		return nil
	}

	tx, err := p.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin delete tx: %v", ErrUnavailable, err)
	}
	for _, ref := range refs {
		if _, err := tx.Exec(ctx, `DELETE FROM techwatch.item_vectors WHERE ref = $1::uuid`, ref); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%w: delete vector ref=%s: %v", ErrUnavailable, ref, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("%w: commit delete tx: %v", ErrUnavailable, err)
	}
	return nil
}

var _ Index = (*PGVector)(nil)
var _ Index = (*Memory)(nil)
