// File: internal/service/components.go
package service

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/agent"
)

// Components holds the long-lived services shared by every task of a process.
// Environments are not shared: each task gets its own from NewOrchestrator.
type Components struct {
	LLM    schemas.LLMClient
	Vision schemas.VisionProcessor // Nil when vision is disabled.

	app            *AppContext
	newEnvironment EnvironmentFactory

	mu       sync.Mutex
	shutdown bool
}

// NewComponents assembles Components from already initialized services.
// A nil newEnvironment selects NewBrowserEnvironment.
func NewComponents(app *AppContext, llm schemas.LLMClient, vision schemas.VisionProcessor, newEnvironment EnvironmentFactory) *Components {
	if newEnvironment == nil {
		newEnvironment = NewBrowserEnvironment
	}
	return &Components{LLM: llm, Vision: vision, app: app, newEnvironment: newEnvironment}
}

// NewOrchestrator prepares a run of task against a fresh environment. The orchestrator
// owns that environment and closes it when the run ends.
func (c *Components) NewOrchestrator(task string) (*agent.Orchestrator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return nil, errors.New("components have been shut down")
	}

	cfg := c.app.Config
	env := c.newEnvironment(cfg.Browser(), c.app.Logger)
	orch, err := agent.New(task, cfg.Agent(), agent.Dependencies{
		Environment: env,
		LLM:         c.LLM,
		Vision:      c.Vision,
	}, c.app.Logger.Named("agent"))
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return orch, nil
}

// Shutdown releases the shared services. It is safe to call more than once.
func (c *Components) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return
	}
	c.shutdown = true

	logger := c.app.Logger
	logger.Debug("Beginning components shutdown sequence.")
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error while closing LLM client.", zap.Error(err))
		} else {
			logger.Debug("LLM client closed.")
		}
	}
	logger.Debug("All components shut down.")
}
