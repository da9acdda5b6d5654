// Package embedding turns (topic, title, content) into fixed-size vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

const DefaultDimensions = 384

var (
	// ErrUnavailable wraps transport and service failures. Callers retry later.
	ErrUnavailable = errors.New("embedding service unavailable")
	// ErrInvalidVector wraps vectors that must never be stored.
	ErrInvalidVector = errors.New("invalid embedding vector")
)

type Embedder interface {
	Embed(ctx context.Context, topic, title, content string) ([]float64, error)
	Dimensions() int
	Model() string
}

// Input is the text embedded for an item.
func Input(topic, title, content string) string {
	return strings.TrimSpace(topic) + "\n" + strings.TrimSpace(title) + "\n" + strings.TrimSpace(content)
}

// Validate checks dimension and finiteness.
func Validate(vector []float64, dimensions int) error {
	if len(vector) != dimensions {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidVector, dimensions, len(vector))
	}
	for i, value := range vector {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidVector, i)
		}
	}
	return nil
}
