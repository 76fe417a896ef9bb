package schemas

import (
	"context"
	"time"
)

// -- Environment Interfaces --

// Environment is the externally controlled, stateful surface the agent acts on.
// One Environment is owned by exactly one run at a time; implementations are not
// required to be safe for concurrent use.
//
//go:generate mockery --name Environment --output ../../internal/mocks --outpkg mocks
type Environment interface {
	// Initialize prepares the environment (launches the browser, opens the first tab).
	Initialize(ctx context.Context) error
	// GetState captures an observation of the current page.
	GetState(ctx context.Context) (*Snapshot, error)
	NavigateTo(ctx context.Context, url string) error                    // Loads url in the active tab.
	ClickElementByIndex(ctx context.Context, index int) error            // Clicks an element from the latest snapshot.
	InputText(ctx context.Context, index int, text string) error         // Types text into an element from the latest snapshot.
	GoBack(ctx context.Context) error                                    // Moves one entry back in history.
	GoForward(ctx context.Context) error                                 // Moves one entry forward in history.
	Scroll(ctx context.Context, direction string, amount int) error      // Scrolls the page by amount pixels.
	SwitchTab(ctx context.Context, pageID int) error                     // Activates the tab with the given page id.
	OpenTab(ctx context.Context, url string) error                       // Opens a new tab, optionally loading url.
	CloseTab(ctx context.Context) error                                  // Closes the active tab.
	ExtractContent(ctx context.Context, selector string) (string, error) // Returns readable text for selector (whole page when empty).
	// Close releases every resource held by the environment. It must be safe to call more than once.
	Close(ctx context.Context) error
}

// Stabilizer is implemented by environments that can detect when the page has settled.
type Stabilizer interface {
	// WaitStable blocks until the page is quiet or maxWait elapses.
	WaitStable(ctx context.Context, maxWait time.Duration) error
}

// Clipboard is implemented by environments that support copy and paste.
type Clipboard interface {
	SetClipboard(ctx context.Context, text string) error
	ClipboardText(ctx context.Context) (string, error)
}

// -- Vision Interface --

// VisionProcessor annotates a screenshot with object detections and OCR text regions.
//
//go:generate mockery --name VisionProcessor --output ../../internal/mocks --outpkg mocks
type VisionProcessor interface {
	// Process analyzes a base64 encoded screenshot taken from snapshot.
	Process(ctx context.Context, screenshot string, snapshot *Snapshot) (*VisionAnnotations, error)
}

// -- LLM Client Interface --

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
//
//go:generate mockery --name LLMClient --output ../../internal/mocks --outpkg mocks
type LLMClient interface {
	// ChatCompletion sends prompt and returns the model's raw text.
	// On transport failure implementations still return text that parses as a
	// terminal failed decision, together with a non-nil error describing the failure.
	ChatCompletion(ctx context.Context, prompt string) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
