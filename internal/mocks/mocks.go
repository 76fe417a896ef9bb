// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Agent() config.AgentConfig {
	args := m.Called()
	return args.Get(0).(config.AgentConfig)
}

func (m *MockConfig) LLM() config.LLMModelConfig {
	args := m.Called()
	return args.Get(0).(config.LLMModelConfig)
}

func (m *MockConfig) Vision() config.VisionConfig {
	args := m.Called()
	return args.Get(0).(config.VisionConfig)
}

// --- Setters ---

func (m *MockConfig) SetLoggerLevel(level string) { m.Called(level) }
func (m *MockConfig) SetBrowserHeadless(b bool) { m.Called(b) }
func (m *MockConfig) SetBrowserDebug(b bool) { m.Called(b) }
func (m *MockConfig) SetAgentMaxSteps(n int) { m.Called(n) }
func (m *MockConfig) SetAgentUseVision(b bool) { m.Called(b) }
func (m *MockConfig) SetLLMModel(model string) { m.Called(model) }

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// ChatCompletion provides a mock function for LLM calls.
func (m *MockLLMClient) ChatCompletion(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Vision Processor Mock --

// MockVisionProcessor mocks the schemas.VisionProcessor interface.
type MockVisionProcessor struct {
	mock.Mock
}

func (m *MockVisionProcessor) Process(ctx context.Context, screenshot string, snapshot *schemas.Snapshot) (*schemas.VisionAnnotations, error) {
	args := m.Called(ctx, screenshot, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.VisionAnnotations), args.Error(1)
}

// -- Environment Mocks --

// MockEnvironment implements the schemas.Environment interface for testing.
// It deliberately implements none of the optional capability interfaces.
type MockEnvironment struct {
	mock.Mock
}

func NewMockEnvironment() *MockEnvironment {
	return &MockEnvironment{}
}

func (m *MockEnvironment) Initialize(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockEnvironment) GetState(ctx context.Context) (*schemas.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Snapshot), args.Error(1)
}
func (m *MockEnvironment) NavigateTo(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
func (m *MockEnvironment) ClickElementByIndex(ctx context.Context, index int) error {
	return m.Called(ctx, index).Error(0)
}
func (m *MockEnvironment) InputText(ctx context.Context, index int, text string) error {
	return m.Called(ctx, index, text).Error(0)
}
func (m *MockEnvironment) GoBack(ctx context.Context) error    { return m.Called(ctx).Error(0) }
func (m *MockEnvironment) GoForward(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockEnvironment) Scroll(ctx context.Context, direction string, amount int) error {
	return m.Called(ctx, direction, amount).Error(0)
}
func (m *MockEnvironment) SwitchTab(ctx context.Context, pageID int) error {
	return m.Called(ctx, pageID).Error(0)
}
func (m *MockEnvironment) OpenTab(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
func (m *MockEnvironment) CloseTab(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockEnvironment) ExtractContent(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}
func (m *MockEnvironment) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// MockCapableEnvironment is a MockEnvironment that also implements
// schemas.Stabilizer and schemas.Clipboard.
type MockCapableEnvironment struct {
	MockEnvironment
}

func NewMockCapableEnvironment() *MockCapableEnvironment {
	return &MockCapableEnvironment{}
}

func (m *MockCapableEnvironment) WaitStable(ctx context.Context, maxWait time.Duration) error {
	return m.Called(ctx, maxWait).Error(0)
}
func (m *MockCapableEnvironment) SetClipboard(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}
func (m *MockCapableEnvironment) ClipboardText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

var (
	_ schemas.Environment     = (*MockEnvironment)(nil)
	_ schemas.Environment     = (*MockCapableEnvironment)(nil)
	_ schemas.Stabilizer      = (*MockCapableEnvironment)(nil)
	_ schemas.Clipboard       = (*MockCapableEnvironment)(nil)
	_ schemas.LLMClient       = (*MockLLMClient)(nil)
	_ schemas.VisionProcessor = (*MockVisionProcessor)(nil)
)
