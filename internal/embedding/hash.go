package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder based on feature
// hashing. Texts sharing most tokens land close in cosine space, which is
// enough for offline runs and tests.
type HashEmbedder struct {
	dimensions int
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) Dimensions() int { return h.dimensions }
func (h *HashEmbedder) Model() string   { return "feature-hash" }

func (h *HashEmbedder) Embed(ctx context.Context, topic, title, content string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float64, h.dimensions)
	tokens := strings.FieldsFunc(strings.ToLower(Input(topic, title, content)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, token := range tokens {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(token))
		sum := hasher.Sum64()
		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1.0
		}
		vector[sum%uint64(h.dimensions)] += sign
	}

	var norm float64
	for _, value := range vector {
		norm += value * value
	}
	if norm == 0 {
		vector[0] = 1
		return vector, nil
	}
	norm = math.Sqrt(norm)
	for i := range vector {
		vector[i] /= norm
	}
	return vector, nil
}
