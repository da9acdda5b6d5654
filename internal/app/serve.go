package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/techwatch/internal/cli"
	"horse.fit/techwatch/internal/httpapi"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Bind host")
	port := fs.Int("port", 8090, "Bind port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 10*time.Minute, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 15*time.Second, "Graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	s, err := connect(envLoader, 10*time.Second, "serve")
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

	ctx, cancel := signalContext(0)
	defer cancel()

	server := httpapi.NewServer(eng, s.pool, s.logger.With().Str("component", "httpapi").Logger(), httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		Topics:          s.cfg.TopicList(),
		MaxItems:        s.cfg.MaxItemsPerTopic,
	})

	if err := server.Start(ctx); err != nil {
		s.logger.Error().Err(err).Msg("server failed")
		return 1
	}
	return 0
}
