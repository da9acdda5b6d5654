package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"horse.fit/techwatch/internal/dedup"
)

var testNow = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func pending(id int64) Item {
	return Item{ID: id, Topic: "ai", Status: StatusReady, ClusterCount: 1}
}

func representative(id int64, ref string, score float64, cluster int) Item {
	r := ref
	return Item{ID: id, Topic: "ai", Status: StatusEvaluated, EmbeddingRef: &r, Score: score, ClusterCount: cluster, Summary: "rep summary"}
}

func mustPlan(t *testing.T, in PlanInput) Transition {
	t.Helper()
	tr, err := Plan(in)
	if err != nil {
		t.Fatalf("plan %s: %v", dedup.KindOf(in.Relation), err)
	}
	return tr
}

func mustApply(t *testing.T, items map[int64]*Item, tr Transition) {
	t.Helper()
	if err := Apply(items[tr.Item.ItemID], tr.Item, testNow); err != nil {
		t.Fatalf("apply item mutation: %v", err)
	}
	if tr.Representative != nil {
		if err := Apply(items[tr.Representative.ItemID], *tr.Representative, testNow); err != nil {
			t.Fatalf("apply representative mutation: %v", err)
		}
	}
}

func TestEchoConservation(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		score   float64
		cluster int
		echoes  int
	}{
		{score: 3, cluster: 1, echoes: 4},
		{score: 8.5, cluster: 2, echoes: 5},
		{score: 10, cluster: 7, echoes: 1},
	} {
		rep := representative(1, "ref-1", tc.score, tc.cluster)
		items := map[int64]*Item{1: &rep}
		for n := 0; n < tc.echoes; n++ {
			echo := pending(int64(100 + n))
			items[echo.ID] = &echo
			tr := mustPlan(t, PlanInput{
				Relation:       dedup.TrendEcho{RepresentativeID: 1},
				Item:           echo,
				Representative: &rep,
				Similarity:     0.9,
			})
			mustApply(t, items, tr)
			if echo.Status != StatusDuplicate || echo.EmbeddingRef != nil {
				t.Fatalf("expected echo to become duplicate without ref, got %+v", echo)
			}
		}

		wantScore := math.Min(tc.score+float64(tc.echoes), 10)
		if rep.Score != wantScore || rep.ClusterCount != tc.cluster+tc.echoes {
			t.Fatalf("after %d echoes: score=%v cluster=%d, want score=%v cluster=%d",
				tc.echoes, rep.Score, rep.ClusterCount, wantScore, tc.cluster+tc.echoes)
		}
	}
}

func TestCorrectionPenalizesAndTransfersRepresentative(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ before, after float64 }{{6, 1}, {3.5, 0}, {10, 5}} {
		rep := representative(1, "old-ref", tc.before, 1)
		fix := pending(2)
		items := map[int64]*Item{1: &rep, 2: &fix}

		tr := mustPlan(t, PlanInput{
			Relation:       dedup.Correction{NewID: 2, CorrectedID: 1},
			Item:           fix,
			Representative: &rep,
			NewRef:         "new-ref",
			Assessment:     &Assessment{Score: 7, Summary: "corrected figures"},
		})
		if tr.ReleasedRef == nil || *tr.ReleasedRef != "old-ref" {
			t.Fatalf("expected old ref to be released, got %v", tr.ReleasedRef)
		}
		mustApply(t, items, tr)

		if rep.Score != tc.after {
			t.Fatalf("expected corrected score %v, got %v", tc.after, rep.Score)
		}
		if rep.Status != StatusEvaluated || rep.EmbeddingRef != nil || rep.SupersededBy == nil || *rep.SupersededBy != 2 {
			t.Fatalf("unexpected corrected representative: %+v", rep)
		}
		if !fix.Live("new-ref") || fix.Score != 7 || fix.ClusterCount != 1 || fix.Summary != "corrected figures" {
			t.Fatalf("unexpected new representative: %+v", fix)
		}
	}
}

func TestAuthorityUpgradeInheritsCluster(t *testing.T) {
	t.Parallel()

	rep := representative(1, "community-ref", 8, 2)
	official := pending(2)
	official.Authority = dedup.AuthorityOfficial
	items := map[int64]*Item{1: &rep, 2: &official}

	tr := mustPlan(t, PlanInput{
		Relation:       dedup.AuthorityUpgrade{NewID: 2, PreviousID: 1},
		Item:           official,
		Representative: &rep,
		NewRef:         "official-ref",
	})
	mustApply(t, items, tr)

	if official.Score != 9 || official.ClusterCount != 3 || !official.Live("official-ref") {
		t.Fatalf("unexpected upgraded item: %+v", official)
	}
	if official.Summary != "rep summary" {
		t.Fatalf("expected summary to be inherited, got %q", official.Summary)
	}
	if rep.Status != StatusDuplicate || rep.EmbeddingRef != nil {
		t.Fatalf("expected previous representative to be duplicate without ref, got %+v", rep)
	}
}

func TestAuthorityUpgradeIsStaleAfterInterveningEcho(t *testing.T) {
	t.Parallel()

	rep := representative(1, "ref", 4, 1)
	snapshot := rep
	tr := mustPlan(t, PlanInput{
		Relation:       dedup.AuthorityUpgrade{NewID: 2, PreviousID: 1},
		Item:           pending(2),
		Representative: &snapshot,
		NewRef:         "new",
	})

	rep.Score = 5
	rep.ClusterCount = 2
	if err := Apply(&rep, *tr.Representative, testNow); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestApplyRejectsReprocessing(t *testing.T) {
	t.Parallel()

	item := pending(5)
	tr := mustPlan(t, PlanInput{
		Relation:   dedup.Novel{},
		Item:       item,
		NewRef:     "ref-5",
		Assessment: &Assessment{Score: 6, Summary: "ok"},
	})
	if err := Apply(&item, tr.Item, testNow); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := Apply(&item, tr.Item, testNow); !errors.Is(err, ErrStale) {
		t.Fatalf("expected second apply to be stale, got %v", err)
	}
	if _, err := Plan(PlanInput{Relation: dedup.Novel{}, Item: item, NewRef: "x", Assessment: &Assessment{Score: 1}}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected plan on evaluated item to fail, got %v", err)
	}
}

func TestPlanRejectsCorruptedScores(t *testing.T) {
	t.Parallel()

	rep := representative(1, "ref", 11, 1)
	_, err := Plan(PlanInput{Relation: dedup.TrendEcho{RepresentativeID: 1}, Item: pending(2), Representative: &rep})
	if !errors.Is(err, ErrScoreOutOfRange) || !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected out of range invariant error, got %v", err)
	}

	_, err = Plan(PlanInput{Relation: dedup.Novel{}, Item: pending(3), NewRef: "r", Assessment: &Assessment{Score: math.NaN()}})
	if !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("expected NaN assessment to be rejected, got %v", err)
	}
}

func TestPlanRejectsMismatchedRepresentative(t *testing.T) {
	t.Parallel()

	rep := representative(1, "ref", 5, 1)
	_, err := Plan(PlanInput{Relation: dedup.TrendEcho{RepresentativeID: 9}, Item: pending(2), Representative: &rep})
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	if !CanTransition(StatusReady, StatusEvaluated) || !CanTransition(StatusEvaluated, StatusDuplicate) {
		t.Fatalf("expected core transitions to be allowed")
	}
	if CanTransition(StatusDuplicate, StatusEvaluated) || CanTransition(StatusIgnoredOld, StatusReady) {
		t.Fatalf("expected terminal statuses to be final")
	}
}

func TestResetRestoresPendingState(t *testing.T) {
	t.Parallel()

	item := representative(1, "ref", 9, 4)
	Reset(&item, 0)
	if item.Status != StatusReady || item.EmbeddingRef != nil || item.Score != 0 || item.ClusterCount != 1 || item.Summary != "" {
		t.Fatalf("unexpected reset item: %+v", item)
	}
}
