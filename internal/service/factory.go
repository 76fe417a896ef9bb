// File: internal/service/factory.go
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ComponentFactory builds the shared services for a process.
// It is an interface so commands can be tested without real providers.
type ComponentFactory interface {
	Create(ctx context.Context, app *AppContext) (*Components, error)
}

type concreteFactory struct {
	newEnvironment EnvironmentFactory
}

// NewComponentFactory returns the production factory. A nil newEnvironment selects
// NewBrowserEnvironment.
func NewComponentFactory(newEnvironment EnvironmentFactory) ComponentFactory {
	return &concreteFactory{newEnvironment: newEnvironment}
}

// Create validates the configuration and initializes the LLM client and, when enabled,
// the vision processor. Partially created components are released on failure.
func (f *concreteFactory) Create(ctx context.Context, app *AppContext) (components *Components, err error) {
	if app == nil || app.Config == nil || app.Logger == nil {
		return nil, errors.New("application context requires a config and a logger")
	}
	logger := app.Logger
	cfg := app.Config

	agentCfg := cfg.Agent()
	if err := agentCfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent configuration invalid: %w", err)
	}

	components = NewComponents(app, nil, nil, f.newEnvironment)
	defer func() {
		if err != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(err))
			components.Shutdown()
			components = nil
		}
	}()

	components.LLM, err = InitializeLLMClient(ctx, cfg.LLM(), logger)
	if err != nil {
		return components, err
	}
	logger.Debug("LLM client initialized.",
		zap.String("provider", string(cfg.LLM().Provider)),
		zap.String("model", cfg.LLM().Model))

	components.Vision, err = InitializeVision(cfg.Agent(), cfg.Vision(), logger)
	if err != nil {
		return components, err
	}

	logger.Debug("All components initialized successfully.")
	return components, nil
}
