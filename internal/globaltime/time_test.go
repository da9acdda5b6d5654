package globaltime

import (
	"testing"
	"time"
)

func TestMockTimeAdvanceAndReset(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	SetMockTime(base)
	defer ResetTime()

	if got := UTC(); !got.Equal(base) {
		t.Fatalf("expected frozen time %s, got %s", base, got)
	}

	Advance(90 * time.Second)
	if got := Since(base); got != 90*time.Second {
		t.Fatalf("expected 90s since base, got %s", got)
	}

	ResetTime()
	if got := UTC(); got.Equal(base.Add(90 * time.Second)) {
		t.Fatalf("expected real clock after reset, got frozen value %s", got)
	}
}
