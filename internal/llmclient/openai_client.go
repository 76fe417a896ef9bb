// internal/llmclient/openai_client.go
package llmclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// Default chat-completions endpoints for OpenAI-compatible providers.
const (
	GroqEndpoint   = "https://api.groq.com/openai/v1/chat/completions"
	OpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
)

// OpenAICompatibleClient implements schemas.LLMClient for any provider that speaks
// the OpenAI chat-completions protocol (Groq, OpenAI, local gateways).
type OpenAICompatibleClient struct {
	provider   config.LLMProvider
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	config     config.LLMModelConfig
}

// -- Chat Completions Request/Response Structures (Internal to this file) --
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	TopP        float32       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponsePayload struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// apiStatusError is a non-200 response from the provider.
type apiStatusError struct {
	StatusCode int
	Body       string
}

func (e *apiStatusError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Body)
}

// NewOpenAICompatibleClient initializes the client.
func NewOpenAICompatibleClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAICompatibleClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		switch cfg.Provider {
		case config.ProviderOpenAI:
			endpoint = OpenAIEndpoint
		default:
			endpoint = GroqEndpoint
		}
	}

	return &OpenAICompatibleClient{
		provider: cfg.Provider,
		apiKey:   apiKey,
		endpoint: endpoint,
		config:   cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		limiter: newLimiter(cfg.RequestsPerMinute),
		logger:  logger.Named("llm_client." + string(cfg.Provider)),
	}, nil
}

// newLimiter paces requests to rpm per minute. Zero or negative means unlimited.
func newLimiter(rpm float64) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rpm/60), 1)
}

// ChatCompletion sends prompt as the user message and returns the model's reply.
// On failure it returns FallbackDecision text together with a *schemas.TransportError.
func (c *OpenAICompatibleClient) ChatCompletion(ctx context.Context, prompt string) (string, error) {
	content, err := c.generate(ctx, prompt)
	if err != nil {
		transportErr := &schemas.TransportError{Provider: string(c.provider), Err: err}
		var statusErr *apiStatusError
		if errors.As(err, &statusErr) {
			transportErr.StatusCode = statusErr.StatusCode
		}
		c.logger.Error("Chat completion failed.", zap.Error(err))
		return FallbackDecision(err.Error()), transportErr
	}
	return content, nil
}

func (c *OpenAICompatibleClient) generate(ctx context.Context, prompt string) (string, error) {
	payload := chatRequestPayload{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: prompt},
		},
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
		MaxTokens:   c.config.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := newBackOff(c.config.MaxRetryElapsed)
	var responseContent string

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait: %w", err))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload chatResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(responsePayload.Choices) == 0 {
			return backoff.Permanent(errors.New("API returned no choices"))
		}

		c.logger.Info("LLM generation complete",
			zap.String("model", c.config.Model),
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.Usage.PromptTokens),
			zap.Int("completion_tokens", responsePayload.Usage.CompletionTokens),
			zap.Int("total_tokens", responsePayload.Usage.TotalTokens),
		)

		responseContent = responsePayload.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

func (c *OpenAICompatibleClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Warn("LLM API returned error status", zap.Int("status", statusCode), zap.String("response", truncate(string(body), 500)))
	err := &apiStatusError{StatusCode: statusCode, Body: truncate(string(body), 500)}
	if isTransientStatus(statusCode) {
		return err
	}
	return backoff.Permanent(err)
}

// Close releases idle connections.
func (c *OpenAICompatibleClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func newBackOff(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 2 * time.Minute
	}
	b.MaxInterval = 30 * time.Second
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ schemas.LLMClient = (*OpenAICompatibleClient)(nil)
