package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:          "local",
		LogLevel:             "info",
		DatabaseURL:          "postgres://localhost/techwatch",
		DBMinConns:           1,
		DBMaxConns:           8,
		Topics:               "ai,django,plone",
		MaxItemsPerTopic:     200,
		EmbeddingProvider:    "http",
		EmbeddingDimensions:  384,
		EmbeddingTimeout:     30 * time.Second,
		ScorerProvider:       "openai",
		SimilarityThreshold:  0.85,
		SimilarityCandidates: 5,
		IndexIterativeScan:   "relaxed_order",
		IndexTimeout:         10 * time.Second,
		ScorerTimeout:        45 * time.Second,
		ScorerMaxRetries:     2,
		ScorerFallbackScore:  5,
		EngineWorkers:        3,
		EngineMaxAttempts:    3,
		RetentionDays:        7,
		EnrichLimit:          500,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"SIMILARITY_THRESHOLD":  func(c *Config) { c.SimilarityThreshold = 1.5 },
		"SCORER_FALLBACK_SCORE": func(c *Config) { c.ScorerFallbackScore = 11 },
		"TOPICS":                func(c *Config) { c.Topics = " , " },
		"EMBEDDING_PROVIDER":    func(c *Config) { c.EmbeddingProvider = "qdrant" },
		"DB_MIN_CONNS":          func(c *Config) { c.DBMinConns = 9 },
		"SCORER_PROVIDER":       func(c *Config) { c.ScorerProvider = "gemini" },
		"ENGINE_WORKERS":        func(c *Config) { c.EngineWorkers = 0 },
		"INDEX_ITERATIVE_SCAN":  func(c *Config) { c.IndexIterativeScan = "always" },
		"ENRICH_LIMIT":          func(c *Config) { c.EnrichLimit = 0 },
	}

	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("%s: expected error to mention variable, got %v", name, err)
		}
	}
}

func TestTopicListNormalizes(t *testing.T) {
	t.Parallel()

	cfg := Config{Topics: " AI, django ,ai,, Plone "}
	want := []string{"ai", "django", "plone"}
	if got := cfg.TopicList(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected topics: got %v want %v", got, want)
	}
}
