package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"horse.fit/techwatch/internal/db"
	"horse.fit/techwatch/internal/embedding"
	"horse.fit/techwatch/internal/globaltime"
	"horse.fit/techwatch/internal/index"
	"horse.fit/techwatch/internal/ledger"
	"horse.fit/techwatch/internal/scorer"
)

// memStore mirrors the SQL store: commits are all-or-nothing and run the same
// guarded mutations through ledger.Apply.
type memStore struct {
	mu           sync.Mutex
	items        map[int64]*ledger.Item
	events       map[int64]ledger.Event
	commits      int
	commitErr    error
	ackErr       error
	beforeCommit func(s *memStore)
}

func newMemStore() *memStore {
	return &memStore{
		items:  make(map[int64]*ledger.Item),
		events: make(map[int64]ledger.Event),
	}
}

func (s *memStore) put(item ledger.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := item
	s.items[item.ID] = &copied
}

func (s *memStore) get(id int64) ledger.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.items[id]
}

func (s *memStore) SelectPending(_ context.Context, topic string, limit int) ([]ledger.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []ledger.Item
	for _, item := range s.items {
		if item.Topic == topic && item.Status == ledger.StatusReady && item.EmbeddingRef == nil {
			pending = append(pending, *item)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].FetchedAt.Equal(pending[j].FetchedAt) {
			return pending[i].FetchedAt.Before(pending[j].FetchedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *memStore) GetItem(_ context.Context, itemID int64) (ledger.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return ledger.Item{}, fmt.Errorf("%w: item_id=%d", db.ErrItemNotFound, itemID)
	}
	return *item, nil
}

func (s *memStore) CommitTransition(_ context.Context, t ledger.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commits++
	if hook := s.beforeCommit; hook != nil {
		s.beforeCommit = nil
		hook(s)
	}
	if s.commitErr != nil {
		return s.commitErr
	}

	current, ok := s.items[t.Item.ItemID]
	if !ok || current.Status != ledger.StatusReady || current.EmbeddingRef != nil {
		return fmt.Errorf("%w: item_id=%d", ledger.ErrAlreadyProcessed, t.Item.ItemID)
	}

	now := globaltime.UTC()
	staged := map[int64]ledger.Item{}
	if t.Representative != nil {
		rep, ok := s.items[t.Representative.ItemID]
		if !ok {
			return fmt.Errorf("%w: representative vanished", ledger.ErrStale)
		}
		next := *rep
		if err := ledger.Apply(&next, *t.Representative, now); err != nil {
			return err
		}
		staged[next.ID] = next
	}
	next := *current
	if err := ledger.Apply(&next, t.Item, now); err != nil {
		return err
	}
	staged[next.ID] = next

	for id, item := range staged {
		copied := item
		s.items[id] = &copied
	}
	s.events[t.Event.ItemID] = t.Event
	// ackErr models a commit that was applied but whose reply never arrived.
	return s.ackErr
}

func (s *memStore) LiveRefs(_ context.Context, itemIDs []int64) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := map[int64]string{}
	for _, id := range itemIDs {
		if item, ok := s.items[id]; ok && item.EmbeddingRef != nil {
			refs[id] = *item.EmbeddingRef
		}
	}
	return refs, nil
}

func (s *memStore) ResetItems(_ context.Context, itemIDs []int64, baseline float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reset int64
	for _, id := range itemIDs {
		if item, ok := s.items[id]; ok {
			ledger.Reset(item, baseline)
			delete(s.events, id)
			reset++
		}
	}
	return reset, nil
}

// stubEmbedder returns fixed vectors keyed by item content. err fails every
// call, hang blocks until the call's context is done, and dims overrides the
// advertised width.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	calls   int
	err     error
	hang    bool
	dims    int
}

func (e *stubEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims > 0 {
		return e.dims
	}
	return 4
}

func (e *stubEmbedder) Model() string { return "stub" }

func (e *stubEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *stubEmbedder) Embed(ctx context.Context, _, _, content string) ([]float64, error) {
	e.mu.Lock()
	e.calls++
	hang, err := e.hang, e.err
	e.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	vector, ok := e.vectors[content]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", content)
	}
	return append([]float64(nil), vector...), nil
}

type stubScorer struct {
	mu     sync.Mutex
	result scorer.Result
	calls  int
}

func (s *stubScorer) Evaluate(context.Context, scorer.Request) scorer.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result
}

func (s *stubScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// flakyIndex fails on demand in front of an exact in-memory index.
type flakyIndex struct {
	*index.Memory
	queryErr  error
	upsertErr error
	deleteErr error
}

func (f *flakyIndex) Query(ctx context.Context, vector []float64, topic string, topK int, minScore float64) ([]index.Match, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.Memory.Query(ctx, vector, topic, topK, minScore)
}

func (f *flakyIndex) Upsert(ctx context.Context, ref string, vector []float64, payload index.Payload) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.Memory.Upsert(ctx, ref, vector, payload)
}

func (f *flakyIndex) Delete(ctx context.Context, refs []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Memory.Delete(ctx, refs)
}

var errIndexDown = fmt.Errorf("%w: connection refused", index.ErrUnavailable)

var errEmbedderDown = fmt.Errorf("%w: status 502", embedding.ErrUnavailable)

var errUnexpected = errors.New("unexpected")

var baseFetchedAt = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
