package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"horse.fit/techwatch/internal/globaltime"
	"horse.fit/techwatch/internal/ledger"
)

// LiveRefs returns the embedding refs currently held by the given items.
// Items without a ref, and unknown ids, are absent from the result.
func (p *Pool) LiveRefs(ctx context.Context, itemIDs []int64) (map[int64]string, error) {
	refs := make(map[int64]string, len(itemIDs))
	if len(itemIDs) == 0 {
		return refs, nil
	}

	const q = `
SELECT item_id, embedding_ref::text
FROM techwatch.items
WHERE item_id = ANY($1::bigint[])
  AND embedding_ref IS NOT NULL
`
	rows, err := p.Query(ctx, q, int64ArrayLiteral(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("load embedding refs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			itemID int64
			ref    string
		)
		if err := rows.Scan(&itemID, &ref); err != nil {
			return nil, fmt.Errorf("scan embedding ref: %w", err)
		}
		refs[itemID] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding refs: %w", err)
	}
	return refs, nil
}

// int64ArrayLiteral renders ids as a Postgres array literal, e.g. {1,2,3}.
func int64ArrayLiteral(ids []int64) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteByte('}')
	return b.String()
}

// ResetItems returns items to ready with no ref and a baseline score, and drops
// their dedup events so the next run treats them as unseen.
func (p *Pool) ResetItems(ctx context.Context, itemIDs []int64, baseline float64) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}

	const resetQuery = `
UPDATE techwatch.items
SET status = 'ready',
	embedding_ref = NULL,
	score = $2,
	cluster_count = 1,
	summary = '',
	evaluation_failed = FALSE,
	superseded_by = NULL,
	evaluated_at = NULL,
	updated_at = $3
WHERE item_id = ANY($1::bigint[])
`
	ids := int64ArrayLiteral(itemIDs)
	var reset int64
	err := p.WithTx(ctx, "reset", func(tx Tx) error {
		tag, err := tx.Exec(ctx, resetQuery, ids, ledger.Clamp(baseline), globaltime.UTC())
		if err != nil {
			return fmt.Errorf("reset items: %w", err)
		}
		reset = tag.RowsAffected()
		if _, err := tx.Exec(ctx, `DELETE FROM techwatch.dedup_events WHERE item_id = ANY($1::bigint[])`, ids); err != nil {
			return fmt.Errorf("delete dedup events: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// ExpireStale moves items that never reached the engine and were fetched
// before cutoff to ignored_old.
func (p *Pool) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
UPDATE techwatch.items
SET status = 'ignored_old',
	updated_at = $2
WHERE status IN ('new', 'ready')
  AND embedding_ref IS NULL
  AND fetched_at < $1
`
	tag, err := p.Exec(ctx, q, cutoff.UTC(), globaltime.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale items: %w", err)
	}
	return tag.RowsAffected(), nil
}
