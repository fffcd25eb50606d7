package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
)

// Provider configuration
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderLocal     = "local"

	// Default models
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"

	// Content sent to remote providers is truncated to this many bytes
	MaxPromptContentBytes = 24_000

	// Retry configuration
	MaxAPIRetries     = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

const systemPrompt = "You are a coding assistant specializing in concise code summaries. " +
	"Respond with only the textual summary, minimal fluff, no suggestions or code blocks."

// buildPrompt renders the per-file user prompt
func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the purpose and content of this file in 2-3 sentences.\n\n")
	fmt.Fprintf(&b, "File: %s\n", req.Path)
	if req.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", req.Context)
	}
	content := req.Content
	if len(content) > MaxPromptContentBytes {
		content = content[:MaxPromptContentBytes]
	}
	fmt.Fprintf(&b, "\nContent:\n%s\n", content)
	return b.String()
}

// OpenAIProvider implements Summarizer using the OpenAI chat completions API
type OpenAIProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	cache      *Cache
}

// NewOpenAIProvider creates a new OpenAI summarizer
func NewOpenAIProvider(apiKey string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	return &OpenAIProvider{
		apiKey: apiKey,
		model:  DefaultOpenAIModel,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		cache: cache,
	}, nil
}

func (o *OpenAIProvider) Summarize(ctx context.Context, req Request) (*Summary, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Content)
	if o.cache != nil {
		if s, ok := o.cache.Get(hash); ok {
			return s, nil
		}
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	config := DefaultRetryConfig()
	text, err := retryWithBackoff(ctx, config, func() (string, error) {
		return o.callAPI(ctx, req, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, config.MaxRetries, err)
	}

	summary := &Summary{
		Text:     strings.TrimSpace(text),
		Provider: ProviderOpenAI,
		Model:    model,
		Hash:     hash,
	}
	if o.cache != nil {
		o.cache.Set(hash, summary)
	}
	return summary, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, req Request, model string) (string, error) {
	reqBody := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(req)},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return apiResp.Choices[0].Message.Content, nil
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// AnthropicProvider implements Summarizer using the Anthropic messages API
type AnthropicProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	cache      *Cache
}

// NewAnthropicProvider creates a new Anthropic summarizer
func NewAnthropicProvider(apiKey string, cache *Cache) (*AnthropicProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvAnthropicAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvAnthropicAPIKey)
	}

	return &AnthropicProvider{
		apiKey: apiKey,
		model:  DefaultAnthropicModel,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		cache: cache,
	}, nil
}

func (a *AnthropicProvider) Summarize(ctx context.Context, req Request) (*Summary, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Content)
	if a.cache != nil {
		if s, ok := a.cache.Get(hash); ok {
			return s, nil
		}
	}

	model := req.Model
	if model == "" {
		model = a.model
	}

	config := DefaultRetryConfig()
	text, err := retryWithBackoff(ctx, config, func() (string, error) {
		return a.callAPI(ctx, req, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, config.MaxRetries, err)
	}

	summary := &Summary{
		Text:     strings.TrimSpace(text),
		Provider: ProviderAnthropic,
		Model:    model,
		Hash:     hash,
	}
	if a.cache != nil {
		a.cache.Set(hash, summary)
	}
	return summary, nil
}

func (a *AnthropicProvider) callAPI(ctx context.Context, req Request, model string) (string, error) {
	reqBody := map[string]interface{}{
		"model":      model,
		"max_tokens": 1024,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": buildPrompt(req)},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var b strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text content returned")
	}
	return b.String(), nil
}

func (a *AnthropicProvider) Provider() string {
	return ProviderAnthropic
}

func (a *AnthropicProvider) Model() string {
	return a.model
}

func (a *AnthropicProvider) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic offline summaries. Used for tests and
// for running the server without API keys.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates a new local summarizer
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: "local-heuristic",
		cache: cache,
	}, nil
}

func (l *LocalProvider) Summarize(ctx context.Context, req Request) (*Summary, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Content)
	if l.cache != nil {
		if s, ok := l.cache.Get(hash); ok {
			return s, nil
		}
	}

	lines := strings.Count(req.Content, "\n") + 1
	ext := strings.TrimPrefix(path.Ext(req.Path), ".")
	if ext == "" {
		ext = "text"
	}

	summary := &Summary{
		Text:     fmt.Sprintf("%s file %s with %d lines (hash %s).", ext, req.Path, lines, hash[:8]),
		Provider: ProviderLocal,
		Model:    l.model,
		Hash:     hash,
	}
	if l.cache != nil {
		l.cache.Set(hash, summary)
	}
	return summary, nil
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
