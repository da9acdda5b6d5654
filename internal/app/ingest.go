package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/techwatch/internal/cli"
	"horse.fit/techwatch/internal/db"
	"horse.fit/techwatch/internal/ledger"
	payloadschema "horse.fit/techwatch/schema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "", "Path to a JSON array of items, or - for stdin")
	timeout := fs.Duration("timeout", 60*time.Second, "Ingest timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		return 2
	}

	items, err := readItems(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	s, err := connect(envLoader, *timeout, "ingest")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer s.Close()

	rows, err := toNewItems(items, s.cfg.TopicList())
	if err != nil {
		s.logger.Error().Err(err).Msg("ingest payload rejected")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	inserted, err := s.pool.InsertItems(ctx, rows)
	if err != nil {
		s.logger.Error().Err(err).Msg("ingest failed")
		return 1
	}

	s.logger.Info().
		Int("received", len(rows)).
		Int("inserted", inserted).
		Msg("ingest complete")
	fmt.Printf("ingest received=%d inserted=%d\n", len(rows), inserted)
	return 0
}

func readItems(path string) ([]payloadschema.Item, error) {
	var r io.Reader
	if strings.TrimSpace(path) == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	return payloadschema.DecodeItems(r)
}

func toNewItems(items []payloadschema.Item, topics []string) ([]db.NewItem, error) {
	known := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		known[topic] = struct{}{}
	}

	rows := make([]db.NewItem, 0, len(items))
	for i, item := range items {
		topic := strings.ToLower(strings.TrimSpace(item.Topic))
		if _, ok := known[topic]; !ok {
			return nil, fmt.Errorf("item %d: topic %q is not configured", i, item.Topic)
		}
		fetchedAt, err := item.FetchedTime()
		if err != nil {
			return nil, fmt.Errorf("item %d: fetched_at: %w", i, err)
		}
		rows = append(rows, db.NewItem{
			Topic:       topic,
			Title:       item.Title,
			ContentText: item.ContentText,
			SourceType:  item.SourceType,
			SourceURL:   item.SourceURL,
			FetchedAt:   fetchedAt,
			Status:      ledger.Status(strings.TrimSpace(item.Status)),
		})
	}
	return rows, nil
}
