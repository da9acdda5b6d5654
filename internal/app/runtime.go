package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/techwatch/internal/cli"
	"horse.fit/techwatch/internal/config"
	"horse.fit/techwatch/internal/db"
	"horse.fit/techwatch/internal/dedup"
	"horse.fit/techwatch/internal/embedding"
	"horse.fit/techwatch/internal/engine"
	"horse.fit/techwatch/internal/index"
	"horse.fit/techwatch/internal/logging"
	"horse.fit/techwatch/internal/scorer"
)

type session struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

func (s *session) Close() {
	if s != nil && s.pool != nil {
		_ = s.pool.Close()
	}
}

// connect loads env and config, builds the logger and opens the pool. The
// connect timeout only bounds the database handshake and migrations.
func connect(envLoader *cli.EnvLoader, connectTimeout time.Duration, command string) (*session, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("failed to connect to database")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &session{cfg: cfg, logger: logger, pool: pool}, nil
}

func buildEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	var embedder embedding.Embedder
	switch strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider)) {
	case "hash":
		embedder = embedding.NewHashEmbedder(cfg.EmbeddingDimensions)
	case "http", "":
		embedder = embedding.NewHTTPEmbedder(embedding.HTTPOptions{
			Endpoint:       cfg.EmbeddingEndpoint,
			Model:          cfg.EmbeddingModel,
			Dimensions:     cfg.EmbeddingDimensions,
			RequestTimeout: cfg.EmbeddingTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}

	if embedder.Dimensions() != db.VectorDimensions {
		return nil, fmt.Errorf("embedding dimensions %d do not match the vector column (%d)", embedder.Dimensions(), db.VectorDimensions)
	}
	return embedder, nil
}

func buildScorer(cfg *config.Config, logger zerolog.Logger) (scorer.Scorer, error) {
	registry := scorer.NewDefaultRegistry(cfg.ScorerProvider, scorer.ProviderOptions{
		Endpoint: cfg.ScorerEndpoint,
		Model:    cfg.ScorerModel,
		APIKey:   cfg.ScorerAPIKey,
		Timeout:  cfg.ScorerTimeout,
	})
	provider, err := registry.Provider("")
	if err != nil {
		return nil, err
	}
	return scorer.NewService(provider, logger.With().Str("component", "scorer").Logger(), scorer.ServiceOptions{
		MaxRetries: cfg.ScorerMaxRetries,
		Timeout:    cfg.ScorerTimeout,
		Rubrics:    scorer.NewRubricStore(cfg.RubricDir),
	}), nil
}

func buildEngine(s *session) (*engine.Engine, error) {
	embedder, err := buildEmbedder(s.cfg)
	if err != nil {
		return nil, err
	}
	sc, err := buildScorer(s.cfg, s.logger)
	if err != nil {
		return nil, err
	}
	idx := index.NewPGVector(s.pool, index.PGVectorOptions{
		Dimensions:    db.VectorDimensions,
		SearchEF:      s.cfg.IndexSearchEF,
		IterativeScan: s.cfg.IndexIterativeScan,
	})

	return engine.New(
		s.pool,
		embedder,
		idx,
		dedup.NewClassifier(s.cfg.CorrectionTermList()...),
		sc,
		s.logger.With().Str("component", "engine").Logger(),
		engine.Options{
			Threshold:     s.cfg.SimilarityThreshold,
			Candidates:    s.cfg.SimilarityCandidates,
			EmbedTimeout:  s.cfg.EmbeddingTimeout,
			IndexTimeout:  s.cfg.IndexTimeout,
			FallbackScore: s.cfg.ScorerFallbackScore,
			MaxAttempts:   s.cfg.EngineMaxAttempts,
			Workers:       s.cfg.EngineWorkers,
			ResetBaseline: s.cfg.ResetBaselineScore,
		},
	)
}

// signalContext is cancelled on SIGINT/SIGTERM or when timeout elapses.
func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func parseItemIDs(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item id %q", trimmed)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one item id is required")
	}
	return ids, nil
}

// resolveTopics returns the configured topics, or the single requested topic
// when it is one of them.
func resolveTopics(cfg *config.Config, requested string) ([]string, error) {
	configured := cfg.TopicList()
	topic := strings.ToLower(strings.TrimSpace(requested))
	if topic == "" {
		return configured, nil
	}
	for _, candidate := range configured {
		if candidate == topic {
			return []string{topic}, nil
		}
	}
	return nil, fmt.Errorf("topic %q is not configured (TOPICS=%s)", topic, strings.Join(configured, ","))
}
