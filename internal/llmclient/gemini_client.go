// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// DefaultGeminiModel is used when the configuration names no model.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient implements schemas.LLMClient on the Google GenAI SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
	config  config.LLMModelConfig
}

// NewGeminiClient initializes the SDK client. No request is made until the first completion.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		limiter: newLimiter(cfg.RequestsPerMinute),
		logger:  logger.Named("llm_client.gemini"),
		config:  cfg,
	}, nil
}

// ChatCompletion sends prompt as a single user turn and returns the model's text.
// On failure it returns FallbackDecision text together with a *schemas.TransportError.
func (c *GeminiClient) ChatCompletion(ctx context.Context, prompt string) (string, error) {
	content, err := c.generate(ctx, prompt)
	if err != nil {
		c.logger.Error("Gemini generation failed.", zap.Error(err))
		return FallbackDecision(err.Error()), &schemas.TransportError{Provider: string(config.ProviderGemini), Err: err}
	}
	return content, nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(c.config.Temperature),
		ResponseMIMEType:  "application/json",
	}
	if c.config.TopP > 0 {
		genConfig.TopP = genai.Ptr(c.config.TopP)
	}
	if c.config.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(c.config.MaxTokens)
	}

	b := newBackOff(c.config.MaxRetryElapsed)
	var responseContent string

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait: %w", err))
		}

		callCtx := ctx
		if c.config.APITimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.config.APITimeout)
			defer cancel()
		}

		startTime := time.Now()
		resp, err := c.client.Models.GenerateContent(callCtx, c.model, genai.Text(prompt), genConfig)
		duration := time.Since(startTime)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Gemini request failed, retrying...", zap.Error(err))
			return err
		}

		if len(resp.Candidates) == 0 {
			return backoff.Permanent(errors.New("gemini API returned no candidates"))
		}
		text := resp.Text()
		if text == "" {
			reason := resp.Candidates[0].FinishReason
			if reason == genai.FinishReasonSafety || reason == genai.FinishReasonBlocklist {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", reason))
			}
			return fmt.Errorf("gemini API returned empty content (Reason: %s)", reason)
		}

		fields := []zap.Field{zap.String("model", c.model), zap.Duration("duration", duration)}
		if usage := resp.UsageMetadata; usage != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", usage.PromptTokenCount),
				zap.Int32("completion_tokens", usage.CandidatesTokenCount),
				zap.Int32("total_tokens", usage.TotalTokenCount))
		}
		c.logger.Info("LLM generation complete (Gemini)", fields...)

		responseContent = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (c *GeminiClient) Close() error { return nil }

var _ schemas.LLMClient = (*GeminiClient)(nil)
