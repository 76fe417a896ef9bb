package llmclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/llmutil"
)

// -- Test Setup Helpers --

// setupOpenAIClient points an OpenAICompatibleClient at a mock HTTP server.
func setupOpenAIClient(t *testing.T, handler http.HandlerFunc) (*OpenAICompatibleClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	loggerCore, observedLogs := observer.New(zap.InfoLevel)
	cfg := getValidLLMConfig()
	cfg.Endpoint = server.URL

	client, err := NewOpenAICompatibleClient(cfg, zap.New(loggerCore))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, observedLogs
}

const okResponse = `{
	"choices": [{"message": {"role": "assistant", "content": "{\"action\":[{\"done\":{}}]}"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestNewOpenAICompatibleClient(t *testing.T) {
	logger := setupTestLogger(t)

	t.Run("groq default endpoint", func(t *testing.T) {
		client, err := NewOpenAICompatibleClient(getValidLLMConfig(), logger)
		require.NoError(t, err)
		assert.Equal(t, GroqEndpoint, client.endpoint)
	})

	t.Run("openai default endpoint", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.Provider = config.ProviderOpenAI
		client, err := NewOpenAICompatibleClient(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, OpenAIEndpoint, client.endpoint)
	})

	t.Run("api key is trimmed and required", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.APIKey = "  \n"
		_, err := NewOpenAICompatibleClient(cfg, logger)
		assert.ErrorContains(t, err, "API key is required")

		cfg.APIKey = " key \n"
		client, err := NewOpenAICompatibleClient(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, "key", client.apiKey)
	})

	t.Run("model required", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.Model = ""
		_, err := NewOpenAICompatibleClient(cfg, logger)
		assert.Error(t, err)
	})
}

func TestOpenAICompatibleClient_ChatCompletion_Success(t *testing.T) {
	client, logs := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var payload chatRequestPayload
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "test-model", payload.Model)
		require.Len(t, payload.Messages, 2)
		assert.Equal(t, "system", payload.Messages[0].Role)
		assert.Equal(t, "user", payload.Messages[1].Role)
		assert.Equal(t, "what next?", payload.Messages[1].Content)
		assert.InDelta(t, 0.6, payload.Temperature, 1e-6)
		assert.Equal(t, 256, payload.MaxTokens)

		_, _ = w.Write([]byte(okResponse))
	})

	out, err := client.ChatCompletion(context.Background(), "what next?")
	require.NoError(t, err)
	assert.Equal(t, `{"action":[{"done":{}}]}`, out)

	entries := logs.FilterMessage("LLM generation complete").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 15, entries[0].ContextMap()["total_tokens"])
}

func TestOpenAICompatibleClient_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(okResponse))
	})

	out, err := client.ChatCompletion(context.Background(), "p")
	require.NoError(t, err)
	assert.Contains(t, out, "done")
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAICompatibleClient_PermanentErrorReturnsFallback(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	})

	out, err := client.ChatCompletion(context.Background(), "p")

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "permanent errors are not retried")

	var transportErr *schemas.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, "groq", transportErr.Provider)
	assert.Equal(t, http.StatusUnauthorized, transportErr.StatusCode)

	decision, parseErr := llmutil.ParseDecision(out)
	require.NoError(t, parseErr, "fallback text must parse as a decision")
	require.Len(t, decision.Actions, 1)
	assert.Equal(t, schemas.ActionDone, decision.Actions[0].Name)
	assert.Equal(t, false, decision.Actions[0].Params["success"])
	assert.Contains(t, decision.Actions[0].Params["text"], "API error: 401")
}

func TestOpenAICompatibleClient_MalformedAndEmptyResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", "<html>", "failed to decode response payload"},
		{"no choices", `{"choices":[]}`, "no choices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.ChatCompletion(context.Background(), "p")
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestOpenAICompatibleClient_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.ChatCompletion(ctx, "p")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "cancellation must not be retried")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewLimiter(t *testing.T) {
	assert.Equal(t, float64(30)/60, float64(newLimiter(30).Limit()))
	assert.True(t, newLimiter(0).Limit() > 1e300, "zero means unlimited")
}

func TestIsTransientStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, isTransientStatus(code), "%d", code)
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		assert.False(t, isTransientStatus(code), "%d", code)
	}
}
