package scorer

import (
	"context"
	"errors"
)

// ErrDisabled is returned by DisabledProvider for every prompt.
var ErrDisabled = errors.New("scoring is disabled")

// DisabledProvider never answers, so every item takes the fallback branch.
// It is registered as "none" for offline runs.
type DisabledProvider struct{}

func (DisabledProvider) Name() string      { return "none" }
func (DisabledProvider) ModelName() string { return "" }

func (DisabledProvider) Complete(context.Context, Prompt) (string, error) {
	return "", ErrDisabled
}
