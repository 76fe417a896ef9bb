// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/browser"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/llmclient"
	"github.com/xkilldash9x/pilot-cli/internal/vision"
)

// EnvironmentFactory creates a fresh, uninitialized environment for one task.
type EnvironmentFactory func(cfg config.BrowserConfig, logger *zap.Logger) schemas.Environment

// NewBrowserEnvironment is the production EnvironmentFactory: one browser per task.
func NewBrowserEnvironment(cfg config.BrowserConfig, logger *zap.Logger) schemas.Environment {
	return browser.NewSession(cfg, logger)
}

// InitializeLLMClient creates the decision-maker client for the configured provider.
func InitializeLLMClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	client, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return client, nil
}

// InitializeVision creates the vision processor, or returns nil when vision is disabled.
func InitializeVision(agentCfg config.AgentConfig, cfg config.VisionConfig, logger *zap.Logger) (schemas.VisionProcessor, error) {
	if !agentCfg.UseVision {
		return nil, nil
	}
	processor, err := vision.NewHTTPProcessor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vision processor: %w", err)
	}
	logger.Info("Vision enabled.", zap.String("endpoint", cfg.Endpoint))
	return processor, nil
}
