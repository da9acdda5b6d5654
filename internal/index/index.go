// Package index is the topic-partitioned nearest-neighbour store that maps
// vector refs to story representatives.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultMinScore   = 0.85
	DefaultCandidates = 5
)

// ErrUnavailable wraps every index failure. Callers treat it as transient.
var ErrUnavailable = errors.New("similarity index unavailable")

type Payload struct {
	ItemID int64
	Topic  string
}

type Match struct {
	Ref     string
	Score   float64
	Payload Payload
}

type Index interface {
	Upsert(ctx context.Context, ref string, vector []float64, payload Payload) error
	// Query returns at most topK matches from topic with cosine similarity
	// >= minScore, best first.
	Query(ctx context.Context, vector []float64, topic string, topK int, minScore float64) ([]Match, error)
	Delete(ctx context.Context, refs []string) error
}

// ToVectorLiteral renders a pgvector text literal after checking dimensions.
func ToVectorLiteral(values []float64, dimensions int) (string, error) {
	if len(values) != dimensions {
		return "", fmt.Errorf("expected %d dimensions, got %d", dimensions, len(values))
	}

	var builder strings.Builder
	builder.Grow(len(values) * 8)
	builder.WriteByte('[')
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return "", fmt.Errorf("vector has non-finite value at index %d", i)
		}
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
