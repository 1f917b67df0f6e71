// Package llm talks to a local language model behind an OpenAI-compatible
// /v1/chat/completions endpoint (Ollama, llama.cpp server, vLLM).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intel-pipeline/internal/resilience"
)

// Config holds LLM endpoint settings.
type Config struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Model       string `yaml:"model" mapstructure:"model"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GenerateParams are per-call generation settings. Low temperature keeps
// profile generation deterministic-leaning.
type GenerateParams struct {
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// DefaultParams returns the generation defaults for profile fields.
func DefaultParams() GenerateParams {
	return GenerateParams{MaxTokens: 320, Temperature: 0.1}
}

// Client generates completions from a chat model.
type Client interface {
	Chat(ctx context.Context, system, user string, params GenerateParams) (string, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	cfg  Config
	http *http.Client
}

// NewHTTPClient creates an LLM client. BaseURL defaults to a local Ollama
// server; the timeout is generous because local inference is slow.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 180
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Chat sends one system+user exchange and returns the assistant text.
func (c *HTTPClient) Chat(ctx context.Context, system, user string, params GenerateParams) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "llm: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "llm: request"), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := eris.Errorf("llm: status %d: %s", resp.StatusCode, string(msg))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", err
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", eris.Wrap(err, "llm: decode response")
	}
	if len(parsed.Choices) == 0 {
		return "", eris.New("llm: response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
