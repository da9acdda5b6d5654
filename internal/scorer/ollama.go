package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// OllamaProvider calls Ollama's native /api/generate endpoint in JSON mode.
type OllamaProvider struct {
	generateURL string
	model       string
	client      *http.Client
}

func NewOllamaProvider(opts ProviderOptions) *OllamaProvider {
	return &OllamaProvider{
		generateURL: ollamaGenerateURL(opts.Endpoint),
		model:       modelOrDefault(opts.Model),
		client:      &http.Client{Timeout: timeoutOrDefault(opts.Timeout)},
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) ModelName() string {
	if p == nil {
		return ""
	}
	return p.model
}

func (p *OllamaProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if p == nil {
		return "", fmt.Errorf("ollama provider is nil")
	}

	body, err := json.Marshal(generateRequest{
		Model:  p.model,
		System: strings.TrimSpace(prompt.System),
		Prompt: prompt.User,
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.generateURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send ollama request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ollama response: %w", err)
	}

	var parsed generateResponse
	decodeErr := json.Unmarshal(respBody, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && strings.TrimSpace(parsed.Error) != "" {
			return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(parsed.Error))
		}
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode ollama response: %w", decodeErr)
	}

	content := strings.TrimSpace(parsed.Response)
	if content == "" {
		return "", fmt.Errorf("ollama response was empty")
	}
	return content, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// ollamaGenerateURL accepts the base URL in any of the forms operators tend to
// configure (host only, /api or the OpenAI-compatible /v1).
func ollamaGenerateURL(raw string) string {
	parsed, err := url.Parse(normalizeEndpoint(raw))
	if err != nil {
		return "http://127.0.0.1:11434/api/generate"
	}
	path := strings.TrimRight(parsed.Path, "/")
	for _, suffix := range []string{"/api/generate", "/chat/completions", "/v1", "/api"} {
		path = strings.TrimSuffix(path, suffix)
	}
	parsed.Path = path + "/api/generate"
	return parsed.String()
}
