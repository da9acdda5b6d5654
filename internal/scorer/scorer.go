// Package scorer asks a language model for an item's relevance score and a
// short summary.
package scorer

import (
	"context"
	"strings"
)

// FallbackSummary is stored when no assessment could be obtained.
const FallbackSummary = "Automatic evaluation failed for this item."

// Request is one item to evaluate.
type Request struct {
	Topic      string
	Title      string
	Content    string
	SourceType string
	SourceURL  string
}

// Result is either a success carrying a score and summary, or a failure
// carrying the reason. Callers pick the fallback branch through Resolve.
type Result struct {
	ok      bool
	score   float64
	summary string
	reason  string
}

func Success(score float64, summary string) Result {
	return Result{ok: true, score: score, summary: strings.TrimSpace(summary)}
}

func Failure(reason string) Result {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown failure"
	}
	return Result{reason: reason}
}

func (r Result) OK() bool { return r.ok }

// Reason is empty for successful results.
func (r Result) Reason() string { return r.reason }

// Resolve returns the assessed score and summary, or the fallback score and
// FallbackSummary when the evaluation failed.
func (r Result) Resolve(fallback float64) (score float64, summary string, usedFallback bool) {
	if !r.ok {
		return fallback, FallbackSummary, true
	}
	return r.score, r.summary, false
}

// Scorer evaluates items. Implementations report failures through the Result
// and never panic on provider errors.
type Scorer interface {
	Evaluate(ctx context.Context, req Request) Result
}

// Prompt is a system/user message pair sent to a provider.
type Prompt struct {
	System string
	User   string
}

// Provider is one model backend able to answer a prompt with raw text.
type Provider interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
	Name() string
	ModelName() string
}
