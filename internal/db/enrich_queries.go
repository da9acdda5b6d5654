package db

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/techwatch/internal/globaltime"
	"horse.fit/techwatch/internal/ledger"
)

// Promotion is what enrichment records on an item before it becomes ready.
type Promotion struct {
	Priority int
	Keywords []string
}

// PromoteNew moves up to limit new items, oldest fetched first, to ready and
// stores the priority and keywords rank computes for each. Rows locked by a
// concurrent enrichment are skipped.
func (p *Pool) PromoteNew(ctx context.Context, limit int, rank func(ledger.Item) Promotion) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	selectQuery := `
SELECT` + itemColumns + `
FROM techwatch.items i
WHERE i.status = 'new'
ORDER BY i.fetched_at ASC, i.item_id ASC
LIMIT $1
FOR UPDATE SKIP LOCKED
`
	const promoteQuery = `
UPDATE techwatch.items
SET status = 'ready',
	priority = $2,
	keywords = $3,
	updated_at = $4
WHERE item_id = $1
  AND status = 'new'
`
	promoted := 0
	err := p.WithTx(ctx, "enrich", func(tx Tx) error {
		rows, err := tx.Query(ctx, selectQuery, limit)
		if err != nil {
			return fmt.Errorf("select new items: %w", err)
		}
		items := make([]ledger.Item, 0, limit)
		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan new item: %w", err)
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate new items: %w", err)
		}
		rows.Close()

		now := globaltime.UTC()
		for _, item := range items {
			promotion := rank(item)
			tag, err := tx.Exec(ctx, promoteQuery, item.ID, promotion.Priority, strings.Join(promotion.Keywords, ","), now)
			if err != nil {
				return fmt.Errorf("promote item item_id=%d: %w", item.ID, err)
			}
			promoted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return promoted, nil
}
