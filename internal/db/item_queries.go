package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"horse.fit/techwatch/internal/dedup"
	"horse.fit/techwatch/internal/globaltime"
	"horse.fit/techwatch/internal/ledger"
)

var ErrItemNotFound = errors.New("item not found")

const itemColumns = `
	i.item_id,
	i.topic,
	i.title,
	i.content_text,
	i.source_type,
	i.source_url,
	i.score,
	i.cluster_count,
	i.status,
	i.embedding_ref::text,
	i.summary,
	i.evaluation_failed,
	i.superseded_by,
	i.fetched_at,
	i.evaluated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (ledger.Item, error) {
	var (
		item       ledger.Item
		sourceType string
		status     string
	)
	err := row.Scan(
		&item.ID,
		&item.Topic,
		&item.Title,
		&item.ContentText,
		&sourceType,
		&item.SourceURL,
		&item.Score,
		&item.ClusterCount,
		&status,
		&item.EmbeddingRef,
		&item.Summary,
		&item.EvaluationFailed,
		&item.SupersededBy,
		&item.FetchedAt,
		&item.EvaluatedAt,
	)
	if err != nil {
		return ledger.Item{}, err
	}
	item.Authority = dedup.ParseAuthority(sourceType)
	item.Status = ledger.Status(status)
	return item, nil
}

// SelectPending returns up to limit items of topic that are ready and have no
// vector, oldest fetched first. ignored_old and processed items never qualify.
func (p *Pool) SelectPending(ctx context.Context, topic string, limit int) ([]ledger.Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `
SELECT` + itemColumns + `
FROM techwatch.items i
WHERE i.status = 'ready'
  AND i.embedding_ref IS NULL
  AND i.topic = $1
ORDER BY i.fetched_at ASC, i.item_id ASC
LIMIT $2
`
	rows, err := p.Query(ctx, q, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending items topic=%s: %w", topic, err)
	}
	defer rows.Close()

	items := make([]ledger.Item, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending items: %w", err)
	}
	return items, nil
}

func (p *Pool) GetItem(ctx context.Context, itemID int64) (ledger.Item, error) {
	q := `
SELECT` + itemColumns + `
FROM techwatch.items i
WHERE i.item_id = $1
`
	item, err := scanItem(p.QueryRow(ctx, q, itemID))
	if err != nil {
		if IsNoRows(err) {
			return ledger.Item{}, fmt.Errorf("%w: item_id=%d", ErrItemNotFound, itemID)
		}
		return ledger.Item{}, fmt.Errorf("get item item_id=%d: %w", itemID, err)
	}
	return item, nil
}

// CommitTransition applies every mutation of t and its audit event in one
// transaction. The incoming item is claimed with SKIP LOCKED so concurrent
// workers never apply the same item twice.
func (p *Pool) CommitTransition(ctx context.Context, t ledger.Transition) error {
	return p.WithTx(ctx, "transition", func(tx Tx) error {
		now := globaltime.UTC()

		claimed, err := claimPendingItemTx(ctx, tx, t.Item.ItemID)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("%w: item_id=%d", ledger.ErrAlreadyProcessed, t.Item.ItemID)
		}

		if t.Representative != nil {
			if err := lockItemTx(ctx, tx, t.Representative.ItemID); err != nil {
				return err
			}
			if err := applyMutationTx(ctx, tx, *t.Representative, now); err != nil {
				return err
			}
		}
		if err := applyMutationTx(ctx, tx, t.Item, now); err != nil {
			return err
		}
		return insertDedupEventTx(ctx, tx, t.Event, now)
	})
}

func claimPendingItemTx(ctx context.Context, tx Tx, itemID int64) (bool, error) {
	const q = `
SELECT i.item_id
FROM techwatch.items i
WHERE i.item_id = $1
  AND i.status = 'ready'
  AND i.embedding_ref IS NULL
FOR UPDATE SKIP LOCKED
`
	var id int64
	if err := tx.QueryRow(ctx, q, itemID).Scan(&id); err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("claim pending item item_id=%d: %w", itemID, err)
	}
	return true, nil
}

func lockItemTx(ctx context.Context, tx Tx, itemID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT item_id FROM techwatch.items WHERE item_id = $1 FOR UPDATE`, itemID).Scan(&id)
	if err != nil {
		if IsNoRows(err) {
			return fmt.Errorf("%w: representative item_id=%d vanished", ledger.ErrStale, itemID)
		}
		return fmt.Errorf("lock item item_id=%d: %w", itemID, err)
	}
	return nil
}

func applyMutationTx(ctx context.Context, tx Tx, m ledger.Mutation, now time.Time) error {
	q, args := buildMutationSQL(m, now)
	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("apply mutation item_id=%d: %w", m.ItemID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: guard failed for item_id=%d", ledger.ErrStale, m.ItemID)
	}
	return nil
}

// buildMutationSQL renders m as one guarded UPDATE. Score arithmetic clamps to
// the ledger range inside the statement.
func buildMutationSQL(m ledger.Mutation, now time.Time) (string, []any) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sets := make([]string, 0, 10)
	if m.Status != nil {
		sets = append(sets, "status = "+arg(string(*m.Status)))
	}
	if m.ScoreSet != nil || m.ScoreDelta != 0 {
		expr := "score"
		if m.ScoreSet != nil {
			expr = arg(*m.ScoreSet) + "::DOUBLE PRECISION"
		}
		if m.ScoreDelta != 0 {
			expr = expr + " + " + arg(m.ScoreDelta) + "::DOUBLE PRECISION"
		}
		sets = append(sets, fmt.Sprintf("score = LEAST(GREATEST(%s, %g), %g)", expr, ledger.MinScore, ledger.MaxScore))
	}
	if m.ClusterSet != nil || m.ClusterDelta != 0 {
		expr := "cluster_count"
		if m.ClusterSet != nil {
			expr = arg(*m.ClusterSet) + "::INTEGER"
		}
		if m.ClusterDelta != 0 {
			expr = expr + " + " + arg(m.ClusterDelta) + "::INTEGER"
		}
		sets = append(sets, "cluster_count = "+expr)
	}
	switch {
	case m.SetRef != nil:
		sets = append(sets, "embedding_ref = "+arg(*m.SetRef)+"::uuid")
	case m.ClearRef:
		sets = append(sets, "embedding_ref = NULL")
	}
	if m.Summary != nil {
		sets = append(sets, "summary = "+arg(*m.Summary))
	}
	if m.EvaluationFailed != nil {
		sets = append(sets, "evaluation_failed = "+arg(*m.EvaluationFailed))
	}
	if m.SupersededBy != nil {
		sets = append(sets, "superseded_by = "+arg(*m.SupersededBy))
	}
	if m.MarkEvaluated {
		sets = append(sets, "evaluated_at = "+arg(now))
	}
	sets = append(sets, "updated_at = "+arg(now))

	where := []string{
		"item_id = " + arg(m.ItemID),
		"status = " + arg(string(m.Guard.Status)),
	}
	if m.Guard.Ref == nil {
		where = append(where, "embedding_ref IS NULL")
	} else {
		where = append(where, "embedding_ref = "+arg(*m.Guard.Ref)+"::uuid")
	}
	if m.Guard.ClusterCount != nil {
		where = append(where, "cluster_count = "+arg(*m.Guard.ClusterCount))
	}

	q := "UPDATE techwatch.items SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	return q, args
}

func insertDedupEventTx(ctx context.Context, tx Tx, event ledger.Event, now time.Time) error {
	const q = `
INSERT INTO techwatch.dedup_events (
	item_id,
	relation,
	representative_id,
	previous_ref,
	new_ref,
	similarity,
	score_before,
	score_after,
	used_fallback,
	created_at
)
VALUES ($1, $2, $3, $4::uuid, $5::uuid, $6, $7, $8, $9, $10)
ON CONFLICT (item_id) DO UPDATE
SET relation = EXCLUDED.relation,
	representative_id = EXCLUDED.representative_id,
	previous_ref = EXCLUDED.previous_ref,
	new_ref = EXCLUDED.new_ref,
	similarity = EXCLUDED.similarity,
	score_before = EXCLUDED.score_before,
	score_after = EXCLUDED.score_after,
	used_fallback = EXCLUDED.used_fallback,
	created_at = EXCLUDED.created_at
`
	_, err := tx.Exec(
		ctx,
		q,
		event.ItemID,
		string(event.Relation),
		event.RepresentativeID,
		event.PreviousRef,
		event.NewRef,
		event.Similarity,
		event.ScoreBefore,
		event.ScoreAfter,
		event.UsedFallback,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert dedup_event item_id=%d: %w", event.ItemID, err)
	}
	return nil
}
