// internal/agent/dispatcher.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// DefaultScrollAmount is used when a scroll action omits its amount.
const DefaultScrollAmount = 300

// actionHandler executes one action. A returned error becomes the result's Error.
type actionHandler func(ctx context.Context, env schemas.Environment, params actionParams) (ActionResult, error)

// Dispatcher owns the action registry and executes actions against an environment.
// The registry is built once at construction and covers the whole vocabulary.
type Dispatcher struct {
	logger         *zap.Logger
	handlers       map[schemas.ActionName]actionHandler
	settleInterval time.Duration
}

// NewDispatcher creates a Dispatcher that waits settleInterval between actions of a batch.
func NewDispatcher(logger *zap.Logger, settleInterval time.Duration) *Dispatcher {
	d := &Dispatcher{
		logger:         logger.Named("dispatcher"),
		handlers:       make(map[schemas.ActionName]actionHandler, len(schemas.ActionNames)),
		settleInterval: settleInterval,
	}
	d.registerHandlers()

	for _, name := range schemas.ActionNames {
		if _, ok := d.handlers[name]; !ok {
			panic(fmt.Sprintf("dispatcher: no handler registered for action %q", name))
		}
	}
	return d
}

func (d *Dispatcher) registerHandlers() {
	d.handlers[schemas.ActionNavigate] = d.handleNavigate
	d.handlers[schemas.ActionClickElement] = d.handleClickElement
	d.handlers[schemas.ActionInputText] = d.handleInputText
	d.handlers[schemas.ActionGoBack] = d.handleGoBack
	d.handlers[schemas.ActionGoForward] = d.handleGoForward
	d.handlers[schemas.ActionScroll] = d.handleScroll
	d.handlers[schemas.ActionSwitchTab] = d.handleSwitchTab
	d.handlers[schemas.ActionOpenTab] = d.handleOpenTab
	d.handlers[schemas.ActionCloseTab] = d.handleCloseTab
	d.handlers[schemas.ActionExtractContent] = d.handleExtractContent
	d.handlers[schemas.ActionCopyText] = d.handleCopyText
	d.handlers[schemas.ActionPasteText] = d.handlePasteText
	d.handlers[schemas.ActionDone] = d.handleDone
}

// DispatchOne executes a single action. It never panics and never returns an error:
// unknown actions, bad parameters and handler faults all come back as a result with
// Error set.
func (d *Dispatcher) DispatchOne(ctx context.Context, action schemas.Action, env schemas.Environment) (result ActionResult) {
	if action.Name == "" {
		return ActionResult{Error: "Invalid action: missing action name", ErrorCode: ErrCodeInvalidParameters}
	}

	handler, ok := d.handlers[action.Name]
	if !ok {
		d.logger.Warn("Unknown action requested.", zap.String("action", string(action.Name)))
		return ActionResult{Action: action.Name, Error: "Unknown action: " + string(action.Name), ErrorCode: ErrCodeUnknownAction}
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Action handler panicked.", zap.String("action", string(action.Name)), zap.Any("panic", r))
			result = ActionResult{
				Action:    action.Name,
				Error:     fmt.Sprintf("%s: handler panicked: %v", action.Name, r),
				ErrorCode: ErrCodeExecutorPanic,
			}
		}
	}()

	d.logger.Debug("Dispatching action.", zap.String("action", string(action.Name)), zap.Any("params", action.Params))
	result, err := handler(ctx, env, actionParams(action.Params))
	result.Action = action.Name
	if err != nil {
		code := ClassifyActionError(err)
		d.logger.Warn("Action failed.", zap.String("action", string(action.Name)), zap.String("error_code", string(code)), zap.Error(err))
		return ActionResult{
			Action:    action.Name,
			Error:     fmt.Sprintf("%s: %v", action.Name, err),
			ErrorCode: code,
		}
	}
	return result
}

// DispatchBatch executes batch strictly in order and stops after the first result
// that carries an error or terminates the task. The returned slice therefore never
// exceeds len(batch). Handlers and settle waits run to completion even if ctx is
// cancelled mid-batch; cancellation is observed between steps by the caller.
func (d *Dispatcher) DispatchBatch(ctx context.Context, batch []schemas.Action, env schemas.Environment) []ActionResult {
	actCtx := context.WithoutCancel(ctx)
	results := make([]ActionResult, 0, len(batch))

	for i, action := range batch {
		result := d.DispatchOne(actCtx, action, env)
		results = append(results, result)

		if result.Failed() || result.IsDone {
			if i < len(batch)-1 {
				d.logger.Debug("Batch short-circuited.",
					zap.Int("executed", i+1),
					zap.Int("skipped", len(batch)-i-1),
					zap.Bool("done", result.IsDone))
			}
			break
		}
		if i < len(batch)-1 {
			d.settle(actCtx, env)
		}
	}
	return results
}

// settle gives the environment time to reach a stable state between actions.
// Environments that can detect quiescence end the wait early.
func (d *Dispatcher) settle(ctx context.Context, env schemas.Environment) {
	if d.settleInterval <= 0 {
		return
	}
	if stabilizer, ok := env.(schemas.Stabilizer); ok {
		err := stabilizer.WaitStable(ctx, d.settleInterval)
		if err == nil {
			return
		}
		d.logger.Debug("Stability wait failed, falling back to fixed delay.", zap.Error(err))
	}
	timer := time.NewTimer(d.settleInterval)
	defer timer.Stop()
	<-timer.C
}

// -- Action Handlers --

func (d *Dispatcher) handleNavigate(ctx context.Context, env schemas.Environment, p actionParams) (ActionResult, error) {
	url, err := p.requireString("url")
	if err != nil {
		return ActionResult{}, err
	}
	if strings.TrimSpace(url) == "" {
		return ActionResult{}, invalidParams("parameter 'url' must not be empty")
	}
	if err := env.NavigateTo(ctx, url); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Message: "Navigated to " + url}, nil
}

func (d *Dispatcher) handleClickElement(ctx context.Context, env schemas.Environment, p actionParams) (ActionResult, error) {
	index, err := p.requireInt("index")
	if err != nil {
		return ActionResult{}, err
	}
	if err := env.ClickElementByIndex(ctx, index); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Message: fmt.Sprintf("Clicked element [%d]", index)}, nil
}

func (d *Dispatcher) handleInputText(ctx context.Context, env schemas.Environment, p actionParams) (ActionResult, error) {
	index, err := p.requireInt("index")
	if err != nil {
		return ActionResult{}, err
	}
	text, err := p.requireString("text")
	if err != nil {
		return ActionResult{}, err
	}
	if err := env.InputText(ctx, index, text); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Message: fmt.Sprintf("Input text into element [%d]", index)}, nil
}

func (d *Dispatcher) handleGoBack(ctx context.Context, env schemas.Environment, _ actionParams) (ActionResult, error) {
	if err := env.GoBack(ctx); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Message: "Navigated back"}, nil
}

func (d *Dispatcher) handleGoForward(ctx context.Context, env schemas.Environment, _ actionParams) (ActionResult, error) {
	if err := env.GoForward(ctx); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Message: "Navigated forward"}, nil
}

func (d *Dispatcher) handleScroll(ctx context.Context, env schemas.Environment, p actionParams) (ActionResult, error) {
	direction, err := p.requireString("direction")
	if err != nil {
		return ActionResult{}, err
	}
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != "up" && direction != "down" {
		return ActionResult{}, invalidParams("parameter 'direction' must be 'up' or 'down', got %q", direction)
	}
	amount, err := p.optionalInt("amount", DefaultScrollAmount)
	if err != nil {
		return ActionResult{}, err
	}
	if amount <= 0 {
		return ActionResult{}, invalidParams("parameter 'amount' must be positive, got %d", amount)
	}
	if err := env.Scroll(ctx, direction, amount); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Message: fmt.Sprintf("Scrolled %s by %dpx", direction, amount)}, nil
}

func (d *Dispatcher) handleSwitchTab(ctx context.Context, env schemas.Environment, p actionParams) (ActionResult, error) {
	pageID, err := p.requireInt("page_id")
	if err != nil {
		return ActionResult{}, err
	}
	if err := env.SwitchTab(ctx, pageID); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Message: fmt.Sprintf("Switched to tab %d", pageID)}, nil
}

func (d *Dispatcher) handleOpenTab(ctx context.Context, env schemas.Environment, p actionParams) (ActionResult, error) {
	url, err := p.optionalString("url", "")
	if err != nil {
		return ActionResult{}, err
	}
	if err := env.OpenTab(ctx, url); err != nil {
		return ActionResult{}, err
	}
	if url == "" {
		return ActionResult{Message: "Opened new tab"}, nil
	}
	return ActionResult{Message: "Opened new tab with " + url}, nil
}

func (d *Dispatcher) handleCloseTab(ctx context.Context, env schemas.Environment, _ actionParams) (ActionResult, error) {
	if err := env.CloseTab(ctx); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Message: "Closed tab"}, nil
}

func (d *Dispatcher) handleExtractContent(ctx context.Context, env schemas.Environment, p actionParams) (ActionResult, error) {
	selector, err := p.optionalString("selector", "")
	if err != nil {
		return ActionResult{}, err
	}
	goal, err := p.optionalString("goal", "")
	if err != nil {
		return ActionResult{}, err
	}
	content, err := env.ExtractContent(ctx, selector)
	if err != nil {
		return ActionResult{}, err
	}
	msg := "Extracted page content"
	if goal != "" {
		msg += " for goal: " + goal
	}
	return ActionResult{Message: msg, ExtractedContent: content}, nil
}

func (d *Dispatcher) handleCopyText(ctx context.Context, env schemas.Environment, p actionParams) (ActionResult, error) {
	text, err := p.requireString("text")
	if err != nil {
		return ActionResult{}, err
	}
	clipboard, ok := env.(schemas.Clipboard)
	if !ok {
		return ActionResult{}, fmt.Errorf("clipboard: %w", schemas.ErrUnsupported)
	}
	if err := clipboard.SetClipboard(ctx, text); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Message: "Copied text to clipboard"}, nil
}

func (d *Dispatcher) handlePasteText(ctx context.Context, env schemas.Environment, p actionParams) (ActionResult, error) {
	index, err := p.requireInt("index")
	if err != nil {
		return ActionResult{}, err
	}
	clipboard, ok := env.(schemas.Clipboard)
	if !ok {
		return ActionResult{}, fmt.Errorf("clipboard: %w", schemas.ErrUnsupported)
	}
	text, err := clipboard.ClipboardText(ctx)
	if err != nil {
		return ActionResult{}, err
	}
	if err := env.InputText(ctx, index, text); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Message: fmt.Sprintf("Pasted clipboard into element [%d]", index)}, nil
}

func (d *Dispatcher) handleDone(_ context.Context, _ schemas.Environment, p actionParams) (ActionResult, error) {
	text, err := p.optionalString("text", "")
	if err != nil {
		return ActionResult{}, err
	}
	success, err := p.optionalBool("success", true)
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{IsDone: true, Success: &success, ExtractedContent: text, Message: text}, nil
}
