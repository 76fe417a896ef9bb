// internal/browser/session.go
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

const (
	defaultNavigationTimeout = 60 * time.Second
	defaultActionTimeout     = 20 * time.Second
	defaultMaxElementText    = 100
	maxPageText              = 8000

	stablePollInterval = 100 * time.Millisecond
	stableQuietPeriod  = 500 * time.Millisecond
)

// tab is one page target. ctx is nil until the target is first used.
type tab struct {
	pageID   int
	targetID target.ID
	ctx      context.Context
	cancel   context.CancelFunc
}

// Session is one browser process driven over CDP. It implements schemas.Environment,
// schemas.Stabilizer and schemas.Clipboard. A Session serves a single run.
type Session struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu         sync.Mutex
	tabs       map[target.ID]*tab
	active     *tab
	nextPageID int
	clipboard  string
	closed     bool
}

var (
	_ schemas.Environment = (*Session)(nil)
	_ schemas.Stabilizer  = (*Session)(nil)
	_ schemas.Clipboard   = (*Session)(nil)
)

// NewSession creates a Session. No browser is started until Initialize.
func NewSession(cfg config.BrowserConfig, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:     id,
		cfg:    cfg,
		logger: logger.Named("browser").With(zap.String("session_id", id[:8])),
		tabs:   make(map[target.ID]*tab),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Initialize launches the browser, attaches to its first tab and loads the start URL.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.browserCtx != nil || s.closed {
		s.mu.Unlock()
		return errors.New("browser session already initialized")
	}

	// The browser outlives the caller's context; it is released by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), DefaultAllocatorOptions(s.cfg)...)
	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(s.logger.Sugar().Errorf)}
	if s.cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(s.logger.Sugar().Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)
	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.mu.Unlock()

	s.logger.Info("Launching browser.",
		zap.Bool("headless", s.cfg.Headless),
		zap.String("window_size", windowSizeArg(s.cfg)))

	// The first Run allocates the browser and must not carry a deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	first := &tab{targetID: chromedp.FromContext(browserCtx).Target.TargetID, ctx: browserCtx}
	s.mu.Lock()
	s.register(first)
	s.active = first
	s.mu.Unlock()

	if err := s.prepareTab(ctx, first); err != nil {
		return err
	}

	if start := s.cfg.StartURL; start != "" && start != "about:blank" {
		if err := s.NavigateTo(ctx, start); err != nil {
			return fmt.Errorf("failed to load start url: %w", err)
		}
	}
	s.logger.Info("Browser session ready.")
	return nil
}

// register assigns the next page id to t. Callers hold s.mu.
func (s *Session) register(t *tab) {
	t.pageID = s.nextPageID
	s.nextPageID++
	s.tabs[t.targetID] = t
}

// prepareTab installs the mutation counter so WaitStable works on every document the tab loads.
func (s *Session) prepareTab(ctx context.Context, t *tab) error {
	err := s.run(ctx, t, s.actionTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(mutationScript).Do(ctx); err != nil {
			return err
		}
		return chromedp.Evaluate(mutationScript, nil).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to prepare tab %d: %w", t.pageID, err)
	}
	return nil
}

// attach binds a chromedp context to a tab discovered through the target list.
func (s *Session) attach(t *tab) error {
	if t.ctx != nil {
		return nil
	}
	ctx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(t.targetID))
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to attach to tab %d: %w", t.pageID, err)
	}
	t.ctx, t.cancel = ctx, cancel
	return nil
}

// activeTab returns the current tab, attaching to it when needed.
func (s *Session) activeTab() (*tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("browser session is closed")
	}
	if s.active == nil {
		return nil, fmt.Errorf("no active tab: %w", schemas.ErrTabNotFound)
	}
	if err := s.attach(s.active); err != nil {
		return nil, err
	}
	return s.active, nil
}

// run executes actions in t, bounded by the caller's ctx and timeout.
func (s *Session) run(ctx context.Context, t *tab, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		opCtx, timeoutCancel = context.WithTimeout(opCtx, timeout)
		defer timeoutCancel()
	}
	return chromedp.Run(opCtx, actions...)
}

func (s *Session) runActive(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	t, err := s.activeTab()
	if err != nil {
		return err
	}
	return s.run(ctx, t, timeout, actions...)
}

func (s *Session) navigationTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (s *Session) actionTimeout() time.Duration {
	if s.cfg.ActionTimeout > 0 {
		return s.cfg.ActionTimeout
	}
	return defaultActionTimeout
}

func (s *Session) maxElementText() int {
	if s.cfg.MaxElementText > 0 {
		return s.cfg.MaxElementText
	}
	return defaultMaxElementText
}

// -- Observation --

// GetState captures URL, title, interactive elements, page text, tabs and a screenshot.
// Tab listing, page data and the screenshot are collected concurrently.
func (s *Session) GetState(ctx context.Context) (*schemas.Snapshot, error) {
	t, err := s.activeTab()
	if err != nil {
		return nil, err
	}

	snapshot := &schemas.Snapshot{CapturedAt: time.Now()}
	var screenshot []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tabs, err := s.listTabs(gctx)
		if err != nil {
			return fmt.Errorf("list tabs: %w", err)
		}
		snapshot.Tabs = tabs
		return nil
	})
	g.Go(func() error {
		var text string
		err := s.run(gctx, t, s.actionTimeout(),
			chromedp.Location(&snapshot.URL),
			chromedp.Title(&snapshot.Title),
			chromedp.Evaluate(elementScript, &snapshot.Elements),
			chromedp.Evaluate(pageTextScript, &text),
		)
		if err != nil {
			return fmt.Errorf("read page: %w", err)
		}
		snapshot.Text = truncateText(strings.TrimSpace(text), maxPageText)
		return nil
	})
	g.Go(func() error {
		if err := s.run(gctx, t, s.actionTimeout(), chromedp.CaptureScreenshot(&screenshot)); err != nil {
			// A page without a frame yet cannot be captured; the rest of the snapshot is still useful.
			s.logger.Debug("Screenshot capture failed.", zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to capture page state: %w", err)
	}

	snapshot.Elements = normalizeElements(snapshot.Elements, s.maxElementText())
	if len(screenshot) > 0 {
		snapshot.Screenshot = base64.StdEncoding.EncodeToString(screenshot)
	}
	return snapshot, nil
}

// listTabs syncs the tab table with the browser's page targets and returns the tabs
// ordered by page id. Tabs opened by the page itself are picked up here.
func (s *Session) listTabs(ctx context.Context) ([]schemas.Tab, error) {
	opCtx, cancel := CombineContext(s.browserCtx, ctx)
	defer cancel()
	infos, err := chromedp.Targets(opCtx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[target.ID]*target.Info, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		seen[info.TargetID] = info
		if _, ok := s.tabs[info.TargetID]; !ok {
			s.register(&tab{targetID: info.TargetID})
		}
	}
	for id, t := range s.tabs {
		if _, ok := seen[id]; !ok {
			s.forget(t)
		}
	}
	if s.active == nil {
		s.active = s.lowestTab()
	}

	tabs := make([]schemas.Tab, 0, len(s.tabs))
	for id, t := range s.tabs {
		info := seen[id]
		tabs = append(tabs, schemas.Tab{
			PageID: t.pageID,
			URL:    info.URL,
			Title:  info.Title,
			Active: t == s.active,
		})
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].PageID < tabs[j].PageID })
	return tabs, nil
}

// forget drops a tab whose target is gone. Callers hold s.mu.
func (s *Session) forget(t *tab) {
	delete(s.tabs, t.targetID)
	if t.cancel != nil {
		t.cancel()
	}
	if s.active == t {
		s.active = nil
	}
}

func (s *Session) lowestTab() *tab {
	var lowest *tab
	for _, t := range s.tabs {
		if lowest == nil || t.pageID < lowest.pageID {
			lowest = t
		}
	}
	return lowest
}

// -- Actions --

// NavigateTo loads url in the active tab.
func (s *Session) NavigateTo(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.runActive(ctx, s.navigationTimeout(), chromedp.Navigate(url)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("navigation timed out after %s: %w", s.navigationTimeout(), err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// ClickElementByIndex clicks the element tagged with index by the latest snapshot.
func (s *Session) ClickElementByIndex(ctx context.Context, index int) error {
	sel := elementSelector(index)
	return s.withElement(ctx, index,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
	)
}

// InputText replaces the value of the element tagged with index.
func (s *Session) InputText(ctx context.Context, index int, text string) error {
	sel := elementSelector(index)
	return s.withElement(ctx, index,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	)
}

// withElement fails fast with ErrElementNotFound before running actions that would
// otherwise wait for the selector until the action timeout.
func (s *Session) withElement(ctx context.Context, index int, actions ...chromedp.Action) error {
	var exists bool
	if err := s.runActive(ctx, s.actionTimeout(), chromedp.Evaluate(existsScript(index), &exists)); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("index %d: %w", index, schemas.ErrElementNotFound)
	}
	return s.runActive(ctx, s.actionTimeout(), actions...)
}

// GoBack moves one entry back in the active tab's history.
func (s *Session) GoBack(ctx context.Context) error {
	return s.runActive(ctx, s.navigationTimeout(), chromedp.NavigateBack())
}

// GoForward moves one entry forward in the active tab's history.
func (s *Session) GoForward(ctx context.Context) error {
	return s.runActive(ctx, s.navigationTimeout(), chromedp.NavigateForward())
}

// Scroll scrolls the window by amount pixels. direction is "up" or "down".
func (s *Session) Scroll(ctx context.Context, direction string, amount int) error {
	delta := amount
	switch direction {
	case "down":
	case "up":
		delta = -amount
	default:
		return fmt.Errorf("invalid scroll direction %q", direction)
	}
	script := fmt.Sprintf(`window.scrollBy(0, %d)`, delta)
	return s.runActive(ctx, s.actionTimeout(), chromedp.Evaluate(script, nil))
}

// SwitchTab brings the tab with pageID to the front and makes it active.
func (s *Session) SwitchTab(ctx context.Context, pageID int) error {
	if _, err := s.listTabs(ctx); err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}

	s.mu.Lock()
	var found *tab
	for _, t := range s.tabs {
		if t.pageID == pageID {
			found = t
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return fmt.Errorf("page_id %d: %w", pageID, schemas.ErrTabNotFound)
	}
	if err := s.attach(found); err != nil {
		s.mu.Unlock()
		return err
	}
	s.active = found
	s.mu.Unlock()

	return s.run(ctx, found, s.actionTimeout(), target.ActivateTarget(found.targetID))
}

// OpenTab opens a new tab, makes it active and loads url when given.
func (s *Session) OpenTab(ctx context.Context, url string) error {
	s.mu.Lock()
	if s.closed || s.browserCtx == nil {
		s.mu.Unlock()
		return errors.New("browser session is not running")
	}
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	s.mu.Unlock()

	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to open tab: %w", err)
	}
	t := &tab{targetID: chromedp.FromContext(tabCtx).Target.TargetID, ctx: tabCtx, cancel: cancel}

	s.mu.Lock()
	s.register(t)
	s.active = t
	s.mu.Unlock()

	if err := s.prepareTab(ctx, t); err != nil {
		s.logger.Warn("New tab not fully prepared.", zap.Error(err))
	}
	if url != "" {
		return s.NavigateTo(ctx, url)
	}
	return nil
}

// CloseTab closes the active tab and activates the remaining tab with the lowest page id.
// The last tab cannot be closed.
func (s *Session) CloseTab(ctx context.Context) error {
	if _, err := s.listTabs(ctx); err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}

	s.mu.Lock()
	current := s.active
	if current == nil {
		s.mu.Unlock()
		return fmt.Errorf("no active tab: %w", schemas.ErrTabNotFound)
	}
	if len(s.tabs) == 1 {
		s.mu.Unlock()
		return errors.New("cannot close the last tab")
	}
	browserCtx := s.browserCtx
	s.mu.Unlock()

	opCtx, cancel := CombineContext(browserCtx, ctx)
	defer cancel()
	opCtx, timeoutCancel := context.WithTimeout(opCtx, s.actionTimeout())
	defer timeoutCancel()
	browser := chromedp.FromContext(opCtx).Browser
	if err := target.CloseTarget(current.targetID).Do(cdp.WithExecutor(opCtx, browser)); err != nil {
		return fmt.Errorf("failed to close tab %d: %w", current.pageID, err)
	}

	s.mu.Lock()
	s.forget(current)
	s.active = s.lowestTab()
	next := s.active
	if next != nil {
		if err := s.attach(next); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	if next == nil {
		return nil
	}
	return s.run(ctx, next, s.actionTimeout(), target.ActivateTarget(next.targetID))
}

// ExtractContent returns readable text for selector, or for the whole body when selector is empty.
func (s *Session) ExtractContent(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		selector = "body"
	}
	var outer string
	var found bool
	err := s.runActive(ctx, s.actionTimeout(),
		chromedp.Evaluate(selectorExistsScript(selector), &found),
	)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("selector %q: %w", selector, schemas.ErrElementNotFound)
	}
	if err := s.runActive(ctx, s.actionTimeout(), chromedp.OuterHTML(selector, &outer, chromedp.ByQuery)); err != nil {
		return "", err
	}
	text, err := ReadableText(outer)
	if err != nil {
		return "", fmt.Errorf("failed to parse page content: %w", err)
	}
	return text, nil
}

// -- Stabilizer --

// WaitStable polls the document's mutation counter until the page has finished loading
// and no mutation was observed for a quiet period, or maxWait elapses. Running out of
// time is not an error.
func (s *Session) WaitStable(ctx context.Context, maxWait time.Duration) error {
	t, err := s.activeTab()
	if err != nil {
		return err
	}
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(stablePollInterval)
	defer ticker.Stop()

	last := -1
	quietSince := time.Now()
	for {
		var state mutationState
		if err := s.run(ctx, t, s.actionTimeout(), chromedp.Evaluate(mutationProbe, &state)); err != nil {
			return fmt.Errorf("probe page stability: %w", err)
		}
		now := time.Now()
		if state.Count != last {
			last = state.Count
			quietSince = now
		}
		if state.Ready && now.Sub(quietSince) >= stableQuietPeriod {
			return nil
		}
		if now.After(deadline) {
			s.logger.Debug("Page did not settle before the deadline.", zap.Duration("max_wait", maxWait))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// -- Clipboard --

// SetClipboard stores text in the session clipboard and mirrors it to the page
// clipboard when the page allows it.
func (s *Session) SetClipboard(ctx context.Context, text string) error {
	s.mu.Lock()
	s.clipboard = text
	s.mu.Unlock()

	script := fmt.Sprintf(`navigator.clipboard ? navigator.clipboard.writeText(%s).then(() => true, () => false) : false`, jsString(text))
	var mirrored bool
	err := s.runActive(ctx, s.actionTimeout(), chromedp.Evaluate(script, &mirrored, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil || !mirrored {
		s.logger.Debug("Page clipboard unavailable, kept session clipboard only.", zap.Error(err))
	}
	return nil
}

// ClipboardText returns the session clipboard.
func (s *Session) ClipboardText(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipboard, nil
}

// -- Lifecycle --

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	browserCtx, browserCancel, allocCancel := s.browserCtx, s.browserCancel, s.allocCancel
	for _, t := range s.tabs {
		if t.cancel != nil && t.ctx != browserCtx {
			t.cancel()
		}
	}
	s.tabs = make(map[target.ID]*tab)
	s.active = nil
	s.mu.Unlock()

	if browserCtx == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		// chromedp.Cancel closes the browser gracefully and waits for the process to exit.
		done <- chromedp.Cancel(browserCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("browser did not exit in time: %w", ctx.Err())
	}
	browserCancel()
	allocCancel()
	s.logger.Info("Browser session closed.")
	return err
}
