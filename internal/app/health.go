package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/techwatch/internal/cli"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Health check timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	s, err := connect(envLoader, *timeout, "health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("database ping failed")
		return 1
	}

	if _, err := buildEmbedder(s.cfg); err != nil {
		s.logger.Error().Err(err).Msg("embedding configuration is invalid")
		return 1
	}

	s.logger.Info().
		Str("environment", s.cfg.Environment).
		Strs("topics", s.cfg.TopicList()).
		Msg("health check passed")
	fmt.Println("ok")
	return 0
}
