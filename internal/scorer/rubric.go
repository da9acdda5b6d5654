package scorer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// RubricStore loads per-topic evaluation rubrics from <dir>/<TOPIC>_EVALUATION.md.
// A missing file is not an error; the prompt falls back to generic guidance.
type RubricStore struct {
	dir   string
	mu    sync.Mutex
	cache map[string]string
}

func NewRubricStore(dir string) *RubricStore {
	return &RubricStore{
		dir:   strings.TrimSpace(dir),
		cache: make(map[string]string),
	}
}

func RubricFileName(topic string) string {
	return strings.ToUpper(strings.TrimSpace(topic)) + "_EVALUATION.md"
}

func (s *RubricStore) Load(topic string) (string, error) {
	if s == nil || s.dir == "" {
		return "", nil
	}
	key := strings.ToLower(strings.TrimSpace(topic))
	if key == "" {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rubric, ok := s.cache[key]; ok {
		return rubric, nil
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, RubricFileName(key)))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.cache[key] = ""
		return "", nil
	case err != nil:
		return "", fmt.Errorf("read rubric for %s: %w", key, err)
	}

	rubric := strings.TrimSpace(string(raw))
	s.cache[key] = rubric
	return rubric, nil
}
