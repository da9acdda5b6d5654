package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"horse.fit/techwatch/internal/globaltime"
	"horse.fit/techwatch/internal/ledger"
)

type NewItem struct {
	Topic       string
	Title       string
	ContentText string
	SourceType  string
	SourceURL   *string
	FetchedAt   *time.Time
	Status      ledger.Status
}

// InsertItems stores new items. Items whose (topic, source_url) already exists
// are skipped.
func (p *Pool) InsertItems(ctx context.Context, items []NewItem) (int, error) {
	const q = `
INSERT INTO techwatch.items (
	topic,
	title,
	content_text,
	source_type,
	source_url,
	status,
	fetched_at,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT DO NOTHING
`
	inserted := 0
	err := p.WithTx(ctx, "ingest", func(tx Tx) error {
		now := globaltime.UTC()
		for _, item := range items {
			status := item.Status
			if status == "" {
				status = ledger.StatusReady
			}
			if status != ledger.StatusNew && status != ledger.StatusReady {
				return fmt.Errorf("ingest status must be new or ready, got %q", status)
			}
			fetchedAt := now
			if item.FetchedAt != nil && !item.FetchedAt.IsZero() {
				fetchedAt = item.FetchedAt.UTC()
			}
			sourceType := strings.ToLower(strings.TrimSpace(item.SourceType))
			if sourceType == "" {
				sourceType = "community"
			}

			tag, err := tx.Exec(
				ctx,
				q,
				strings.ToLower(strings.TrimSpace(item.Topic)),
				strings.TrimSpace(item.Title),
				strings.TrimSpace(item.ContentText),
				sourceType,
				item.SourceURL,
				string(status),
				fetchedAt,
				now,
			)
			if err != nil {
				return fmt.Errorf("insert item title=%q: %w", item.Title, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
