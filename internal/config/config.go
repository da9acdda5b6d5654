package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"8"`

	Topics           string `envconfig:"TOPICS" default:"ai,django,plone"`
	MaxItemsPerTopic int    `envconfig:"MAX_ITEMS_PER_TOPIC" default:"200"`

	EmbeddingProvider   string        `envconfig:"EMBEDDING_PROVIDER" default:"http"`
	EmbeddingEndpoint   string        `envconfig:"EMBEDDING_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"all-MiniLM-L6-v2"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"384"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`

	SimilarityThreshold  float64       `envconfig:"SIMILARITY_THRESHOLD" default:"0.85"`
	SimilarityCandidates int           `envconfig:"SIMILARITY_CANDIDATES" default:"5"`
	IndexSearchEF        int           `envconfig:"INDEX_SEARCH_EF" default:"64"`
	IndexIterativeScan   string        `envconfig:"INDEX_ITERATIVE_SCAN" default:"relaxed_order"`
	IndexTimeout         time.Duration `envconfig:"INDEX_TIMEOUT" default:"10s"`

	CorrectionTerms string `envconfig:"CORRECTION_TERMS" default:""`

	ScorerProvider      string        `envconfig:"SCORER_PROVIDER" default:"openai"`
	ScorerEndpoint      string        `envconfig:"SCORER_ENDPOINT" default:"http://127.0.0.1:11434/v1"`
	ScorerModel         string        `envconfig:"SCORER_MODEL" default:"llama3.1"`
	ScorerAPIKey        string        `envconfig:"SCORER_API_KEY" default:""`
	ScorerTimeout       time.Duration `envconfig:"SCORER_TIMEOUT" default:"45s"`
	ScorerMaxRetries    int           `envconfig:"SCORER_MAX_RETRIES" default:"2"`
	ScorerFallbackScore float64       `envconfig:"SCORER_FALLBACK_SCORE" default:"5.0"`
	RubricDir           string        `envconfig:"RUBRIC_DIR" default:"skills"`

	EngineWorkers     int `envconfig:"ENGINE_WORKERS" default:"3"`
	EngineMaxAttempts int `envconfig:"ENGINE_MAX_ATTEMPTS" default:"3"`

	ResetBaselineScore float64 `envconfig:"RESET_BASELINE_SCORE" default:"0"`
	RetentionDays      int     `envconfig:"RETENTION_DAYS" default:"7"`
	EnrichLimit        int     `envconfig:"ENRICH_LIMIT" default:"500"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if len(c.TopicList()) == 0 {
		return fmt.Errorf("TOPICS must name at least one topic")
	}
	if c.MaxItemsPerTopic < 1 {
		return fmt.Errorf("MAX_ITEMS_PER_TOPIC must be >= 1")
	}
	switch strings.ToLower(strings.TrimSpace(c.EmbeddingProvider)) {
	case "http", "hash":
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be http or hash, got %q", c.EmbeddingProvider)
	}
	switch strings.ToLower(strings.TrimSpace(c.ScorerProvider)) {
	case "openai", "ollama", "none":
	default:
		return fmt.Errorf("SCORER_PROVIDER must be openai, ollama or none, got %q", c.ScorerProvider)
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be >= 1")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 || math.IsNaN(c.SimilarityThreshold) {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	switch strings.ToLower(strings.TrimSpace(c.IndexIterativeScan)) {
	case "off", "relaxed_order", "strict_order":
	default:
		return fmt.Errorf("INDEX_ITERATIVE_SCAN must be off, relaxed_order or strict_order, got %q", c.IndexIterativeScan)
	}
	if c.SimilarityCandidates < 1 {
		return fmt.Errorf("SIMILARITY_CANDIDATES must be >= 1")
	}
	if c.EmbeddingTimeout <= 0 || c.IndexTimeout <= 0 || c.ScorerTimeout <= 0 {
		return fmt.Errorf("EMBEDDING_TIMEOUT, INDEX_TIMEOUT and SCORER_TIMEOUT must be positive")
	}
	if c.ScorerMaxRetries < 0 {
		return fmt.Errorf("SCORER_MAX_RETRIES must be >= 0")
	}
	if !inScoreRange(c.ScorerFallbackScore) {
		return fmt.Errorf("SCORER_FALLBACK_SCORE must be within [0, 10]")
	}
	if !inScoreRange(c.ResetBaselineScore) {
		return fmt.Errorf("RESET_BASELINE_SCORE must be within [0, 10]")
	}
	if c.EngineWorkers < 1 {
		return fmt.Errorf("ENGINE_WORKERS must be >= 1")
	}
	if c.EngineMaxAttempts < 1 {
		return fmt.Errorf("ENGINE_MAX_ATTEMPTS must be >= 1")
	}
	if c.EnrichLimit < 1 {
		return fmt.Errorf("ENRICH_LIMIT must be >= 1")
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be >= 1")
	}
	return nil
}

// TopicList returns the configured topics lowercased, trimmed and deduplicated.
func (c *Config) TopicList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.Topics, true)
}

func (c *Config) CorrectionTermList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CorrectionTerms, true)
}

func splitList(raw string, lower bool) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if lower {
			value = strings.ToLower(value)
		}
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	return values
}

func inScoreRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 10
}
