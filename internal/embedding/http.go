package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultEndpoint       = "http://127.0.0.1:8844/embed"
	DefaultModel          = "all-MiniLM-L6-v2"
	DefaultMaxLength      = 256
	DefaultRequestTimeout = 30 * time.Second
)

type HTTPOptions struct {
	Endpoint       string
	Model          string
	Dimensions     int
	MaxLength      int
	RequestTimeout time.Duration
	Client         *http.Client
}

// HTTPEmbedder calls an embedding service that speaks either the /embed
// texts format or the OpenAI /v1/embeddings format.
type HTTPEmbedder struct {
	opts HTTPOptions
}

type embedRequest struct {
	Model     string   `json:"model,omitempty"`
	Texts     []string `json:"texts,omitempty"`
	Input     []string `json:"input,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func NewHTTPEmbedder(opts HTTPOptions) *HTTPEmbedder {
	return &HTTPEmbedder{opts: normalizeHTTPOptions(opts)}
}

func normalizeHTTPOptions(opts HTTPOptions) HTTPOptions {
	normalized := opts
	normalized.Endpoint = normalizeEndpoint(normalized.Endpoint)
	if strings.TrimSpace(normalized.Model) == "" {
		normalized.Model = DefaultModel
	}
	if normalized.Dimensions <= 0 {
		normalized.Dimensions = DefaultDimensions
	}
	if normalized.MaxLength <= 0 {
		normalized.MaxLength = DefaultMaxLength
	}
	if normalized.RequestTimeout <= 0 {
		normalized.RequestTimeout = DefaultRequestTimeout
	}
	if normalized.Client == nil {
		normalized.Client = http.DefaultClient
	}
	return normalized
}

func (e *HTTPEmbedder) Dimensions() int { return e.opts.Dimensions }
func (e *HTTPEmbedder) Model() string   { return e.opts.Model }

func (e *HTTPEmbedder) Embed(ctx context.Context, topic, title, content string) ([]float64, error) {
	vectors, err := e.request(ctx, []string{Input(topic, title, content)})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedding response count mismatch: requested=1 returned=%d", ErrUnavailable, len(vectors))
	}
	if err := Validate(vectors[0], e.opts.Dimensions); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *HTTPEmbedder) request(ctx context.Context, texts []string) ([][]float64, error) {
	payload := embedRequest{
		Texts:     texts,
		MaxLength: e.opts.MaxLength,
	}
	if isOpenAIEndpoint(e.opts.Endpoint) {
		payload = embedRequest{
			Model: e.opts.Model,
			Input: texts,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, e.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read embedding response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: embedding service status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode embedding response: %v", ErrUnavailable, err)
	}

	vectors := parsed.Embeddings
	if len(vectors) == 0 && len(parsed.Data) > 0 {
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		vectors = make([][]float64, 0, len(parsed.Data))
		for _, row := range parsed.Data {
			vectors = append(vectors, row.Embedding)
		}
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: embedding response missing vectors", ErrUnavailable)
	}
	return vectors, nil
}

func isOpenAIEndpoint(endpoint string) bool {
	parsed, err := url.Parse(endpoint)
	return err == nil && strings.HasSuffix(parsed.Path, "/v1/embeddings")
}

func normalizeEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultEndpoint
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/embed"
	}
	return parsed.String()
}
