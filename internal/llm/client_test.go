package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-pipeline/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(Config{BaseURL: srv.URL, Model: "test-model"})
}

func TestChat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "you are helpful", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "describe the company", req.Messages[1].Content)
		assert.InDelta(t, 0.1, req.Temperature, 1e-9)
		assert.Equal(t, 320, req.MaxTokens)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "a fine company"}},
			},
		})
	})

	got, err := client.Chat(context.Background(), "you are helpful", "describe the company", DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "a fine company", got)
}

func TestChat_APIKeyHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}},
		})
	})
	client.cfg.APIKey = "secret"

	_, err := client.Chat(context.Background(), "s", "u", DefaultParams())
	require.NoError(t, err)
}

func TestChat_ServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})

	_, err := client.Chat(context.Background(), "s", "u", DefaultParams())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestChat_ClientErrorNotTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown model", http.StatusNotFound)
	})

	_, err := client.Chat(context.Background(), "s", "u", DefaultParams())
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "status 404")
}

func TestChat_NoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := client.Chat(context.Background(), "s", "u", DefaultParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestChat_ConnectionFailureIsTransient(t *testing.T) {
	client := NewHTTPClient(Config{BaseURL: "http://127.0.0.1:1", Model: "m", TimeoutSecs: 1})
	_, err := client.Chat(context.Background(), "s", "u", DefaultParams())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
