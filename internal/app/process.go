package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/techwatch/internal/cli"
	"horse.fit/techwatch/internal/globaltime"
)

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	topic := fs.String("topic", "", "Process a single configured topic (default: all topics)")
	limit := fs.Int("limit", 0, "Max pending items per topic (default: MAX_ITEMS_PER_TOPIC)")
	timeout := fs.Duration("timeout", 30*time.Minute, "Overall run timeout")
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

	s, err := connect(envLoader, 10*time.Second, "process")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer s.Close()

	topics, err := resolveTopics(s.cfg, *topic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	maxItems := *limit
	if maxItems == 0 {
		maxItems = s.cfg.MaxItemsPerTopic
	}

	eng, err := buildEngine(s)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build engine")
		return 1
	}

	ctx, cancel := signalContext(*timeout)
	defer cancel()

	started := globaltime.Now()
	results, err := eng.ProcessTopics(ctx, topics, maxItems)
	for _, result := range results {
		fmt.Printf(
			"process topic=%s selected=%d processed=%d novel=%d echoes=%d upgrades=%d corrections=%d skipped=%d errored=%d\n",
			result.Topic,
			result.Selected,
			result.Processed,
			result.Novel,
			result.Echoes,
			result.Upgrades,
			result.Corrections,
			result.Skipped,
			result.Errored,
		)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("process run failed")
		return 1
	}

	s.logger.Info().
		Int("topics", len(results)).
		Dur("elapsed", globaltime.Since(started)).
		Msg("process run complete")
	return 0
}

func runForget(args []string) int {
	fs := flag.NewFlagSet("forget", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	rawIDs := fs.String("ids", "", "Comma-separated item ids to reset")
	timeout := fs.Duration("timeout", 60*time.Second, "Forget timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ids, err := parseItemIDs(*rawIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	s, err := connect(envLoader, *timeout, "forget")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer s.Close()

	eng, err := buildEngine(s)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build engine")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := eng.Forget(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Ints64("item_ids", ids).Msg("forget failed")
		return 1
	}

	s.logger.Info().
		Int("requested", result.Requested).
		Int("vectors_deleted", result.VectorsDeleted).
		Int64("reset", result.Reset).
		Msg("forget complete")
	fmt.Printf("forget requested=%d vectors_deleted=%d reset=%d\n", result.Requested, result.VectorsDeleted, result.Reset)
	return 0
}

func runExpire(args []string) int {
	fs := flag.NewFlagSet("expire", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	retentionDays := fs.Int("retention-days", 0, "Age in days after which pending items expire (default: RETENTION_DAYS)")
	timeout := fs.Duration("timeout", 60*time.Second, "Expire timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *retentionDays < 0 {
		fmt.Fprintln(os.Stderr, "--retention-days must be >= 0")
		return 2
	}

	s, err := connect(envLoader, *timeout, "expire")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer s.Close()

	days := *retentionDays
	if days == 0 {
		days = s.cfg.RetentionDays
	}
	cutoff := globaltime.UTC().AddDate(0, 0, -days)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	expired, err := s.pool.ExpireStale(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("expire failed")
		return 1
	}

	s.logger.Info().
		Int("retention_days", days).
		Time("cutoff", cutoff).
		Int64("expired", expired).
		Msg("expire complete")
	fmt.Printf("expire cutoff=%s expired=%d\n", cutoff.Format(time.RFC3339), expired)
	return 0
}
