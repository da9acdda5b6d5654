package db

import (
	"strings"
	"testing"
	"time"

	"gorm.io/gorm/logger"

	"horse.fit/techwatch/internal/ledger"
)

func TestBuildMutationSQLEchoIncrementsAtomically(t *testing.T) {
	t.Parallel()

	ref := "7d9c3a52-7a36-4f5f-9d6c-0b1f3b3a4e10"
	q, args := buildMutationSQL(ledger.Mutation{
		ItemID:       42,
		Guard:        ledger.Guard{Status: ledger.StatusEvaluated, Ref: &ref},
		ScoreDelta:   1,
		ClusterDelta: 1,
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	for _, fragment := range []string{
		"score = LEAST(GREATEST(score + $1::DOUBLE PRECISION, 0), 10)",
		"cluster_count = cluster_count + $2::INTEGER",
		"updated_at = $3",
		"WHERE item_id = $4 AND status = $5 AND embedding_ref = $6::uuid",
	} {
		if !strings.Contains(q, fragment) {
			t.Fatalf("expected %q in query:\n%s", fragment, q)
		}
	}
	if strings.Contains(q, "status = $") && strings.Index(q, "status = $") < strings.Index(q, "WHERE") {
		t.Fatalf("echo must not change the representative status:\n%s", q)
	}
	if len(args) != 6 || args[3] != int64(42) || args[4] != "evaluated" || args[5] != ref {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildMutationSQLNewRepresentative(t *testing.T) {
	t.Parallel()

	status := ledger.StatusEvaluated
	score := 7.5
	cluster := 1
	ref := "0b4f7f2e-0000-4000-8000-000000000001"
	summary := "short summary"
	failed := false
	q, args := buildMutationSQL(ledger.Mutation{
		ItemID:           7,
		Guard:            ledger.Guard{Status: ledger.StatusReady},
		Status:           &status,
		ScoreSet:         &score,
		ClusterSet:       &cluster,
		SetRef:           &ref,
		Summary:          &summary,
		EvaluationFailed: &failed,
		MarkEvaluated:    true,
	}, time.Now())

	for _, fragment := range []string{
		"status = $1",
		"score = LEAST(GREATEST($2::DOUBLE PRECISION, 0), 10)",
		"cluster_count = $3::INTEGER",
		"embedding_ref = $4::uuid",
		"embedding_ref IS NULL",
	} {
		if !strings.Contains(q, fragment) {
			t.Fatalf("expected %q in query:\n%s", fragment, q)
		}
	}
	if args[0] != "evaluated" || args[1] != 7.5 || args[3] != ref {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildMutationSQLUpgradeGuardsClusterSnapshot(t *testing.T) {
	t.Parallel()

	ref := "ref"
	cluster := 2
	duplicate := ledger.StatusDuplicate
	superseded := int64(9)
	q, _ := buildMutationSQL(ledger.Mutation{
		ItemID:       3,
		Guard:        ledger.Guard{Status: ledger.StatusEvaluated, Ref: &ref, ClusterCount: &cluster},
		Status:       &duplicate,
		ClearRef:     true,
		SupersededBy: &superseded,
	}, time.Now())

	if !strings.Contains(q, "embedding_ref = NULL") || !strings.Contains(q, "AND cluster_count = $") {
		t.Fatalf("unexpected upgrade query:\n%s", q)
	}
}

func TestResolveGormLogLevel(t *testing.T) {
	t.Parallel()

	if resolveGormLogLevel("debug", "production") != logger.Info {
		t.Fatalf("expected debug to map to gorm info")
	}
	if resolveGormLogLevel("bogus", "production") != logger.Error {
		t.Fatalf("expected unknown level outside local to map to error")
	}
	if resolveGormLogLevel("bogus", "local") != logger.Warn {
		t.Fatalf("expected unknown level in local to map to warn")
	}
}

func TestInt64ArrayLiteral(t *testing.T) {
	t.Parallel()

	if got := int64ArrayLiteral([]int64{3, 10, 42}); got != "{3,10,42}" {
		t.Fatalf("unexpected literal %q", got)
	}
	if got := int64ArrayLiteral([]int64{7}); got != "{7}" {
		t.Fatalf("unexpected literal %q", got)
	}
}
