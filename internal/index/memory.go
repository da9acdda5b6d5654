package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

type memoryEntry struct {
	vector  []float64
	norm    float64
	payload Payload
}

// Memory is an exact in-process index.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Upsert(ctx context.Context, ref string, vector []float64, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ref == "" {
		return fmt.Errorf("upsert: ref is required")
	}
	norm := vectorNorm(vector)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return fmt.Errorf("upsert %s: vector norm must be finite and non-zero", ref)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[ref] = memoryEntry{
		vector:  append([]float64(nil), vector...),
		norm:    norm,
		payload: payload,
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, vector []float64, topic string, topK int, minScore float64) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if topK <= 0 {
		topK = 1
	}
	norm := vectorNorm(vector)
	if norm == 0 {
		return nil, nil
	}

	m.mu.RLock()
	matches := make([]Match, 0, topK)
	for ref, entry := range m.entries {
		if entry.payload.Topic != topic || len(entry.vector) != len(vector) {
			continue
		}
		var dot float64
		for i := range vector {
			dot += vector[i] * entry.vector[i]
		}
		score := dot / (norm * entry.norm)
		if score < minScore {
			continue
		}
		matches = append(matches, Match{Ref: ref, Score: score, Payload: entry.payload})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Ref < matches[j].Ref
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *Memory) Delete(ctx context.Context, refs []string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range refs {
		delete(m.entries, ref)
	}
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Has(ref string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[ref]
	return ok
}

// Payload returns the payload stored under ref.
func (m *Memory) Payload(ref string) (Payload, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[ref]
	return entry.payload, ok
}

func vectorNorm(v []float64) float64 {
	var sum float64
	for _, value := range v {
		sum += value * value
	}
	return math.Sqrt(sum)
}
