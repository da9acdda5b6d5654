// Package ledger owns the item lifecycle and the score bookkeeping applied for
// each dedup decision.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"horse.fit/techwatch/internal/dedup"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusReady      Status = "ready"
	StatusEvaluated  Status = "evaluated"
	StatusDuplicate  Status = "duplicate"
	StatusIgnoredOld Status = "ignored_old"
)

const (
	MinScore          = 0.0
	MaxScore          = 10.0
	EchoBoost         = 1.0
	CorrectionPenalty = 5.0
)

var (
	// ErrStale means a guard no longer holds: the row changed after it was read.
	ErrStale = errors.New("ledger: item state changed concurrently")
	// ErrAlreadyProcessed means the incoming item left the pending state, or is
	// being committed by another worker.
	ErrAlreadyProcessed = errors.New("ledger: item already processed")
	// ErrInvariant marks values that must never reach the ledger.
	ErrInvariant       = errors.New("ledger: invariant violated")
	ErrScoreOutOfRange = fmt.Errorf("%w: score out of range", ErrInvariant)
	ErrInvalidState    = fmt.Errorf("%w: invalid state transition", ErrInvariant)
)

var allowedTransitions = map[Status][]Status{
	StatusNew:       {StatusReady, StatusIgnoredOld},
	StatusReady:     {StatusEvaluated, StatusDuplicate, StatusIgnoredOld},
	StatusEvaluated: {StatusDuplicate},
}

// CanTransition reports whether the lifecycle allows moving from one status to
// another. Administrative resets bypass it.
func CanTransition(from, to Status) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Item is one row of the item store.
type Item struct {
	ID               int64
	Topic            string
	Title            string
	ContentText      string
	Authority        dedup.Authority
	SourceURL        *string
	Score            float64
	ClusterCount     int
	Status           Status
	EmbeddingRef     *string
	Summary          string
	EvaluationFailed bool
	SupersededBy     *int64
	FetchedAt        time.Time
	EvaluatedAt      *time.Time
}

// Live reports whether the item currently owns the index vector ref.
func (i Item) Live(ref string) bool {
	return i.Status == StatusEvaluated && i.EmbeddingRef != nil && *i.EmbeddingRef == ref
}

// Clamp bounds a score to [MinScore, MaxScore].
func Clamp(score float64) float64 {
	return math.Min(math.Max(score, MinScore), MaxScore)
}

// CheckScore rejects stored or assessed scores outside the ledger range.
func CheckScore(score float64) error {
	if math.IsNaN(score) || score < MinScore || score > MaxScore {
		return fmt.Errorf("%w: %v", ErrScoreOutOfRange, score)
	}
	return nil
}
