package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/techwatch/internal/cli"
	"horse.fit/techwatch/internal/enrich"
)

func runEnrich(args []string) int {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 0, "Max new items to promote (default: ENRICH_LIMIT)")
	timeout := fs.Duration("timeout", 60*time.Second, "Enrich timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit < 0 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 0")
		return 2
	}

	s, err := connect(envLoader, *timeout, "enrich")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer s.Close()

	maxItems := *limit
	if maxItems == 0 {
		maxItems = s.cfg.EnrichLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	promoted, err := s.pool.PromoteNew(ctx, maxItems, enrich.Promote)
	if err != nil {
		s.logger.Error().Err(err).Msg("enrich failed")
		return 1
	}

	s.logger.Info().
		Int("limit", maxItems).
		Int("promoted", promoted).
		Msg("enrich complete")
	fmt.Printf("enrich promoted=%d\n", promoted)
	return 0
}
