// -- internal/llmclient/factory.go --
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// NewClient is a factory function that creates an LLMClient based on the configuration.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	// Using constants defined in config package to avoid magic strings.
	switch cfg.Provider {
	case config.ProviderGroq, config.ProviderOpenAI:
		return NewOpenAICompatibleClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderGroq, config.ProviderOpenAI, config.ProviderGemini)
	}
}
