// Package engine runs the dedup pipeline: embed, search, classify, score and
// commit, one item at a time per topic.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/techwatch/internal/db"
	"horse.fit/techwatch/internal/dedup"
	"horse.fit/techwatch/internal/embedding"
	"horse.fit/techwatch/internal/index"
	"horse.fit/techwatch/internal/ledger"
	"horse.fit/techwatch/internal/scorer"
)

const (
	DefaultEmbedTimeout  = 30 * time.Second
	DefaultIndexTimeout  = 10 * time.Second
	DefaultFallbackScore = 5.0
	DefaultMaxAttempts   = 3
	DefaultWorkers       = 3
)

// Store is the item store the engine reads pending work from and commits
// transitions to. *db.Pool implements it.
type Store interface {
	SelectPending(ctx context.Context, topic string, limit int) ([]ledger.Item, error)
	GetItem(ctx context.Context, itemID int64) (ledger.Item, error)
	CommitTransition(ctx context.Context, t ledger.Transition) error
	LiveRefs(ctx context.Context, itemIDs []int64) (map[int64]string, error)
	ResetItems(ctx context.Context, itemIDs []int64, baseline float64) (int64, error)
}

type Options struct {
	Threshold     float64
	Candidates    int
	EmbedTimeout  time.Duration
	IndexTimeout  time.Duration
	FallbackScore float64
	MaxAttempts   int
	Workers       int
	ResetBaseline float64
}

type BatchResult struct {
	Topic       string `json:"topic"`
	Selected    int    `json:"selected"`
	Processed   int    `json:"processed"`
	Novel       int    `json:"novel"`
	Echoes      int    `json:"echoes"`
	Upgrades    int    `json:"upgrades"`
	Corrections int    `json:"corrections"`
	Skipped     int    `json:"skipped"`
	Errored     int    `json:"errored"`
}

type ForgetResult struct {
	Requested      int   `json:"requested"`
	VectorsDeleted int   `json:"vectors_deleted"`
	Reset          int64 `json:"reset"`
}

type Engine struct {
	store      Store
	embedder   embedding.Embedder
	index      index.Index
	classifier *dedup.Classifier
	scorer     scorer.Scorer
	logger     zerolog.Logger
	opts       Options
	newRef     func() string

	// adminMu lets batches run concurrently while Forget runs alone.
	adminMu sync.RWMutex
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(store Store, embedder embedding.Embedder, idx index.Index, classifier *dedup.Classifier, sc scorer.Scorer, logger zerolog.Logger, opts Options) (*Engine, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("engine store is required")
	case embedder == nil:
		return nil, fmt.Errorf("engine embedder is required")
	case idx == nil:
		return nil, fmt.Errorf("engine index is required")
	case sc == nil:
		return nil, fmt.Errorf("engine scorer is required")
	}
	if classifier == nil {
		classifier = dedup.NewClassifier()
	}
	if err := ledger.CheckScore(opts.FallbackScore); err != nil {
		return nil, fmt.Errorf("fallback score: %w", err)
	}
	if err := ledger.CheckScore(opts.ResetBaseline); err != nil {
		return nil, fmt.Errorf("reset baseline: %w", err)
	}

	return &Engine{
		store:      store,
		embedder:   embedder,
		index:      idx,
		classifier: classifier,
		scorer:     sc,
		logger:     logger,
		opts:       normalizeOptions(opts),
		newRef:     uuid.NewString,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

func normalizeOptions(opts Options) Options {
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = index.DefaultMinScore
	}
	if opts.Candidates <= 0 {
		opts.Candidates = index.DefaultCandidates
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	if opts.IndexTimeout <= 0 {
		opts.IndexTimeout = DefaultIndexTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return opts
}

// ProcessBatch selects up to maxItems pending items of topic, oldest first,
// and runs each through the pipeline. Per-item failures are counted and never
// abort the batch. Cancellation stops between items and returns the partial
// counts with the context error.
func (e *Engine) ProcessBatch(ctx context.Context, topic string, maxItems int) (BatchResult, error) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	result := BatchResult{Topic: topic}
	if topic == "" {
		return result, fmt.Errorf("topic is required")
	}
	if maxItems <= 0 {
		return result, nil
	}

	e.adminMu.RLock()
	defer e.adminMu.RUnlock()
	unlock := e.lockTopic(topic)
	defer unlock()

	items, err := e.store.SelectPending(ctx, topic, maxItems)
	if err != nil {
		return result, fmt.Errorf("select pending items for %s: %w", topic, err)
	}
	result.Selected = len(items)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		kind, err := e.processItem(ctx, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Skipped++
				return result, ctxErr
			}
			e.tallyFailure(&result, item, err)
			continue
		}

		result.Processed++
		switch kind {
		case dedup.KindNovel:
			result.Novel++
		case dedup.KindTrendEcho:
			result.Echoes++
		case dedup.KindAuthorityUpgrade:
			result.Upgrades++
		case dedup.KindCorrection:
			result.Corrections++
		}
	}

	return result, nil
}

// ProcessTopics runs ProcessBatch for every topic with at most Workers topics
// in flight. Results keep the order of topics.
func (e *Engine) ProcessTopics(ctx context.Context, topics []string, maxItems int) ([]BatchResult, error) {
	results := make([]BatchResult, len(topics))

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, topic := range topics {
		g.Go(func() error {
			result, err := e.ProcessBatch(ctx, topic, maxItems)
			results[i] = result
			return err
		})
	}
	return results, g.Wait()
}

// Forget deletes the live vectors of itemIDs and returns the items to ready
// with the baseline score. Vectors are deleted first; when that fails no row
// is touched.
func (e *Engine) Forget(ctx context.Context, itemIDs []int64) (ForgetResult, error) {
	ids := uniqueIDs(itemIDs)
	result := ForgetResult{Requested: len(ids)}
	if len(ids) == 0 {
		return result, nil
	}

	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	refs, err := e.store.LiveRefs(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("load live refs: %w", err)
	}
	if len(refs) > 0 {
		toDelete := make([]string, 0, len(refs))
		for _, ref := range refs {
			toDelete = append(toDelete, ref)
		}
		sort.Strings(toDelete)

		deleteCtx, cancel := context.WithTimeout(ctx, e.opts.IndexTimeout)
		err := e.index.Delete(deleteCtx, toDelete)
		cancel()
		if err != nil {
			return result, fmt.Errorf("delete vectors: %w", err)
		}
		result.VectorsDeleted = len(toDelete)
	}

	reset, err := e.store.ResetItems(ctx, ids, e.opts.ResetBaseline)
	if err != nil {
		return result, fmt.Errorf("reset items: %w", err)
	}
	result.Reset = reset

	e.logger.Info().
		Int("requested", result.Requested).
		Int("vectors_deleted", result.VectorsDeleted).
		Int64("reset", result.Reset).
		Msg("items forgotten")
	return result, nil
}

func (e *Engine) lockTopic(topic string) func() {
	e.locksMu.Lock()
	mu, ok := e.locks[topic]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[topic] = mu
	}
	e.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (e *Engine) tallyFailure(result *BatchResult, item ledger.Item, err error) {
	level := zerolog.WarnLevel
	switch {
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		result.Skipped++
		level = zerolog.DebugLevel
	case isTransient(err):
		result.Skipped++
	default:
		result.Errored++
		level = zerolog.ErrorLevel
	}
	e.logger.WithLevel(level).
		Err(err).
		Int64("item_id", item.ID).
		Str("topic", item.Topic).
		Msg("item not processed")
}

func isTransient(err error) bool {
	return errors.Is(err, embedding.ErrUnavailable) ||
		errors.Is(err, index.ErrUnavailable) ||
		errors.Is(err, ledger.ErrStale) ||
		errors.Is(err, context.DeadlineExceeded)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var _ Store = (*db.Pool)(nil)
