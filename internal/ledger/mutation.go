package ledger

import (
	"fmt"
	"time"
)

// Guard is the state a row must still be in for a mutation to apply.
type Guard struct {
	Status Status
	// Ref is the expected embedding_ref; nil expects no ref.
	Ref *string
	// ClusterCount, when set, pins the snapshot the mutation was computed from.
	ClusterCount *int
}

// Mutation is the change applied to one item row. Score and cluster changes are
// either absolute (Set) or relative (Delta); deltas clamp per mutation.
type Mutation struct {
	ItemID           int64
	Guard            Guard
	Status           *Status
	ScoreSet         *float64
	ScoreDelta       float64
	ClusterSet       *int
	ClusterDelta     int
	SetRef           *string
	ClearRef         bool
	Summary          *string
	EvaluationFailed *bool
	SupersededBy     *int64
	MarkEvaluated    bool
}

// Matches reports whether item still satisfies the guard.
func (g Guard) Matches(item Item) bool {
	if item.Status != g.Status {
		return false
	}
	switch {
	case g.Ref == nil && item.EmbeddingRef != nil:
		return false
	case g.Ref != nil && (item.EmbeddingRef == nil || *item.EmbeddingRef != *g.Ref):
		return false
	}
	if g.ClusterCount != nil && item.ClusterCount != *g.ClusterCount {
		return false
	}
	return true
}

// Apply performs m on item in memory with the same semantics as the SQL store.
func Apply(item *Item, m Mutation, now time.Time) error {
	if item == nil || item.ID != m.ItemID {
		return fmt.Errorf("%w: mutation for item %d applied to another row", ErrInvariant, m.ItemID)
	}
	if !m.Guard.Matches(*item) {
		return fmt.Errorf("%w: item %d", ErrStale, m.ItemID)
	}
	if m.Status != nil && *m.Status != item.Status && !CanTransition(item.Status, *m.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, item.Status, *m.Status)
	}

	next := *item
	if m.Status != nil {
		next.Status = *m.Status
	}
	if m.ScoreSet != nil {
		next.Score = Clamp(*m.ScoreSet)
	}
	if m.ScoreDelta != 0 {
		next.Score = Clamp(next.Score + m.ScoreDelta)
	}
	if m.ClusterSet != nil {
		next.ClusterCount = *m.ClusterSet
	}
	next.ClusterCount += m.ClusterDelta
	if m.ClearRef {
		next.EmbeddingRef = nil
	}
	if m.SetRef != nil {
		ref := *m.SetRef
		next.EmbeddingRef = &ref
	}
	if m.Summary != nil {
		next.Summary = *m.Summary
	}
	if m.EvaluationFailed != nil {
		next.EvaluationFailed = *m.EvaluationFailed
	}
	if m.SupersededBy != nil {
		id := *m.SupersededBy
		next.SupersededBy = &id
	}
	if m.MarkEvaluated {
		evaluatedAt := now.UTC()
		next.EvaluatedAt = &evaluatedAt
	}
	if err := CheckScore(next.Score); err != nil {
		return err
	}
	if next.ClusterCount < 1 {
		return fmt.Errorf("%w: cluster_count %d", ErrInvariant, next.ClusterCount)
	}

	*item = next
	return nil
}

// Reset returns an item to the selectable state used by administrative resets.
func Reset(item *Item, baseline float64) {
	item.Status = StatusReady
	item.EmbeddingRef = nil
	item.Score = Clamp(baseline)
	item.ClusterCount = 1
	item.Summary = ""
	item.EvaluationFailed = false
	item.SupersededBy = nil
	item.EvaluatedAt = nil
}
