package ledger

import (
	"fmt"
	"strings"

	"horse.fit/techwatch/internal/dedup"
)

// Assessment is the score and summary given to an item that becomes a
// representative on its own merit.
type Assessment struct {
	Score    float64
	Summary  string
	Fallback bool
}

// Event is the audit record written with every committed transition.
type Event struct {
	ItemID           int64
	Relation         dedup.Kind
	RepresentativeID *int64
	PreviousRef      *string
	NewRef           *string
	Similarity       *float64
	ScoreBefore      *float64
	ScoreAfter       *float64
	UsedFallback     bool
}

// Transition is every mutation one incoming item causes. It is committed as a
// single unit.
type Transition struct {
	Relation       dedup.Relation
	Item           Mutation
	Representative *Mutation
	Event          Event
	// ReleasedRef is the representative's vector ref that stops being live.
	ReleasedRef *string
}

// PlanInput is the snapshot a transition is computed from.
type PlanInput struct {
	Relation       dedup.Relation
	Item           Item
	Representative *Item
	Similarity     float64
	NewRef         string
	Assessment     *Assessment
}

// Plan computes the transition for one classified item. It never reads or
// writes storage.
func Plan(in PlanInput) (Transition, error) {
	if in.Relation == nil {
		return Transition{}, fmt.Errorf("%w: relation is nil", ErrInvariant)
	}
	if in.Item.Status != StatusReady || in.Item.EmbeddingRef != nil {
		return Transition{}, fmt.Errorf("%w: item %d is %s and not pending", ErrInvalidState, in.Item.ID, in.Item.Status)
	}
	if dedup.NeedsVector(in.Relation) && strings.TrimSpace(in.NewRef) == "" {
		return Transition{}, fmt.Errorf("%w: %s requires a new vector ref", ErrInvariant, dedup.KindOf(in.Relation))
	}
	if dedup.NeedsEvaluation(in.Relation) {
		if in.Assessment == nil {
			return Transition{}, fmt.Errorf("%w: %s requires an assessment", ErrInvariant, dedup.KindOf(in.Relation))
		}
		if err := CheckScore(in.Assessment.Score); err != nil {
			return Transition{}, err
		}
	}

	switch rel := in.Relation.(type) {
	case dedup.Novel:
		return planNovel(in), nil
	case dedup.TrendEcho:
		rep, err := checkRepresentative(in, rel.RepresentativeID)
		if err != nil {
			return Transition{}, err
		}
		return planTrendEcho(in, rep), nil
	case dedup.AuthorityUpgrade:
		rep, err := checkRepresentative(in, rel.PreviousID)
		if err != nil {
			return Transition{}, err
		}
		return planAuthorityUpgrade(in, rep), nil
	case dedup.Correction:
		rep, err := checkRepresentative(in, rel.CorrectedID)
		if err != nil {
			return Transition{}, err
		}
		return planCorrection(in, rep), nil
	default:
		return Transition{}, fmt.Errorf("%w: unsupported relation %T", ErrInvariant, in.Relation)
	}
}

func checkRepresentative(in PlanInput, wantID int64) (Item, error) {
	rep := in.Representative
	if rep == nil {
		return Item{}, fmt.Errorf("%w: %s without representative", ErrInvariant, dedup.KindOf(in.Relation))
	}
	if rep.ID != wantID || rep.ID == in.Item.ID {
		return Item{}, fmt.Errorf("%w: representative %d does not match relation target %d", ErrInvariant, rep.ID, wantID)
	}
	if rep.Status != StatusEvaluated || rep.EmbeddingRef == nil {
		return Item{}, fmt.Errorf("%w: representative %d is not live", ErrStale, rep.ID)
	}
	if err := CheckScore(rep.Score); err != nil {
		return Item{}, fmt.Errorf("representative %d: %w", rep.ID, err)
	}
	if rep.ClusterCount < 1 {
		return Item{}, fmt.Errorf("%w: representative %d cluster_count %d", ErrInvariant, rep.ID, rep.ClusterCount)
	}
	return *rep, nil
}

func pendingGuard() Guard {
	return Guard{Status: StatusReady}
}

func liveGuard(rep Item) Guard {
	ref := *rep.EmbeddingRef
	return Guard{Status: StatusEvaluated, Ref: &ref}
}

func becomeRepresentative(item Item, ref string, score float64, cluster int, summary string, failed bool) Mutation {
	return Mutation{
		ItemID:           item.ID,
		Guard:            pendingGuard(),
		Status:           statusPtr(StatusEvaluated),
		ScoreSet:         floatPtr(Clamp(score)),
		ClusterSet:       intPtr(cluster),
		SetRef:           stringPtr(ref),
		Summary:          stringPtr(summary),
		EvaluationFailed: boolPtr(failed),
		MarkEvaluated:    true,
	}
}

func planNovel(in PlanInput) Transition {
	return Transition{
		Relation: in.Relation,
		Item:     becomeRepresentative(in.Item, in.NewRef, in.Assessment.Score, 1, in.Assessment.Summary, in.Assessment.Fallback),
		Event: Event{
			ItemID:       in.Item.ID,
			Relation:     dedup.KindNovel,
			NewRef:       stringPtr(in.NewRef),
			UsedFallback: in.Assessment.Fallback,
		},
	}
}

func planTrendEcho(in PlanInput, rep Item) Transition {
	repMutation := Mutation{
		ItemID:       rep.ID,
		Guard:        liveGuard(rep),
		ScoreDelta:   EchoBoost,
		ClusterDelta: 1,
	}
	return Transition{
		Relation: in.Relation,
		Item: Mutation{
			ItemID:       in.Item.ID,
			Guard:        pendingGuard(),
			Status:       statusPtr(StatusDuplicate),
			SupersededBy: int64Ptr(rep.ID),
		},
		Representative: &repMutation,
		Event:          repEvent(in, rep, dedup.KindTrendEcho, Clamp(rep.Score+EchoBoost), nil, false),
	}
}

func planAuthorityUpgrade(in PlanInput, rep Item) Transition {
	cluster := rep.ClusterCount
	guard := liveGuard(rep)
	guard.ClusterCount = &cluster
	repMutation := Mutation{
		ItemID:       rep.ID,
		Guard:        guard,
		Status:       statusPtr(StatusDuplicate),
		ClearRef:     true,
		SupersededBy: int64Ptr(in.Item.ID),
	}
	return Transition{
		Relation:       in.Relation,
		Item:           becomeRepresentative(in.Item, in.NewRef, rep.Score+EchoBoost, rep.ClusterCount+1, rep.Summary, rep.EvaluationFailed),
		Representative: &repMutation,
		Event:          repEvent(in, rep, dedup.KindAuthorityUpgrade, rep.Score, stringPtr(in.NewRef), false),
		ReleasedRef:    stringPtr(*rep.EmbeddingRef),
	}
}

func planCorrection(in PlanInput, rep Item) Transition {
	repMutation := Mutation{
		ItemID:       rep.ID,
		Guard:        liveGuard(rep),
		ScoreDelta:   -CorrectionPenalty,
		ClearRef:     true,
		SupersededBy: int64Ptr(in.Item.ID),
	}
	return Transition{
		Relation:       in.Relation,
		Item:           becomeRepresentative(in.Item, in.NewRef, in.Assessment.Score, 1, in.Assessment.Summary, in.Assessment.Fallback),
		Representative: &repMutation,
		Event:          repEvent(in, rep, dedup.KindCorrection, Clamp(rep.Score-CorrectionPenalty), stringPtr(in.NewRef), in.Assessment.Fallback),
		ReleasedRef:    stringPtr(*rep.EmbeddingRef),
	}
}

func repEvent(in PlanInput, rep Item, kind dedup.Kind, scoreAfter float64, newRef *string, fallback bool) Event {
	return Event{
		ItemID:           in.Item.ID,
		Relation:         kind,
		RepresentativeID: int64Ptr(rep.ID),
		PreviousRef:      stringPtr(*rep.EmbeddingRef),
		NewRef:           newRef,
		Similarity:       floatPtr(in.Similarity),
		ScoreBefore:      floatPtr(rep.Score),
		ScoreAfter:       floatPtr(scoreAfter),
		UsedFallback:     fallback,
	}
}

func statusPtr(v Status) *Status  { return &v }
func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func int64Ptr(v int64) *int64     { return &v }
func stringPtr(v string) *string  { return &v }
func boolPtr(v bool) *bool        { return &v }
