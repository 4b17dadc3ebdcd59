// internal/browser/session/session.go
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/browser/dom"
	"github.com/xkilldash9x/browserpilot/internal/config"
)

const (
	defaultNavigationTimeout = 90 * time.Second
	defaultActionTimeout     = 30 * time.Second
	observeTimeout           = 30 * time.Second
)

// tab is one open page. The context carries the CDP target; URL and Title are
// the last values seen for this tab so background tabs can be listed without
// round-tripping to the browser.
type tab struct {
	id     int
	ctx    context.Context
	cancel context.CancelFunc
	url    string
	title  string
}

// Session drives a single Chrome instance over CDP and exposes it through
// observe and apply operations. One session owns its browser process; closing
// the session tears the process down.
type Session struct {
	cfg    config.Interface
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu        sync.Mutex
	tabs      []*tab
	active    int
	nextTabID int
	// lastTree is the element arena from the most recent observation. Indexed
	// actions resolve their target through it.
	lastTree *dom.ElementTree
	isClosed bool

	actions map[schemas.ActionType]actionHandler
}

// New launches a browser and returns a session bound to its first tab. The
// provided context scopes the browser process lifetime.
func New(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Session, error) {
	s := newSession(cfg, logger)
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// newSession builds the session structure without touching the browser.
// Separated from New so the action registry can be tested headlessly.
func newSession(cfg config.Interface, logger *zap.Logger) *Session {
	s := &Session{
		cfg:    cfg,
		logger: logger.Named("browser_session"),
	}
	s.registerActions()
	return s
}

// start creates the allocator, launches Chrome and opens the initial tab.
func (s *Session) start(ctx context.Context) error {
	opts := execAllocatorOptions(s.cfg.Browser())
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(s.logger.Sugar().Debugf),
		chromedp.WithErrorf(s.logger.Sugar().Warnf),
	)

	// An empty Run forces the browser process to launch so startup failures
	// surface here rather than on the first action.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	s.mu.Lock()
	s.allocCtx = allocCtx
	s.allocCancel = allocCancel
	s.tabs = []*tab{{id: 0, ctx: tabCtx, cancel: tabCancel, url: "about:blank"}}
	s.active = 0
	s.nextTabID = 1
	s.mu.Unlock()

	s.logger.Info("Browser session started.",
		zap.Bool("headless", s.cfg.Browser().Headless),
		zap.Bool("vision", s.cfg.Browser().UseVision))
	return nil
}

// execAllocatorOptions translates browser configuration into chromedp
// allocator options.
func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	return opts
}

// Observe captures the current page as a browser state: identity, the
// interactive-element arena with its selector map, the tab list, and a
// screenshot when vision capture is enabled.
func (s *Session) Observe(ctx context.Context) (*schemas.BrowserState, error) {
	cur, err := s.activeTab()
	if err != nil {
		return nil, err
	}

	opCtx, cancel := CombineContext(cur.ctx, ctx)
	defer cancel()
	opCtx, timeoutCancel := context.WithTimeout(opCtx, observeTimeout)
	defer timeoutCancel()

	var url, title, rawHTML string
	tasks := chromedp.Tasks{
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &rawHTML, chromedp.ByQuery),
	}

	var screenshot []byte
	if s.cfg.Browser().UseVision {
		tasks = append(tasks, chromedp.CaptureScreenshot(&screenshot))
	}

	if err := chromedp.Run(opCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to capture page state: %w", err)
	}

	tree, err := dom.BuildTree(rawHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to build element tree: %w", err)
	}

	s.mu.Lock()
	cur.url = url
	cur.title = title
	s.lastTree = tree
	tabInfos := s.tabInfosLocked()
	s.mu.Unlock()

	state := &schemas.BrowserState{
		URL:         url,
		Title:       title,
		Tabs:        tabInfos,
		ElementTree: tree,
		SelectorMap: tree.SelectorMap(),
	}
	if len(screenshot) > 0 {
		state.Screenshot = base64.StdEncoding.EncodeToString(screenshot)
	}

	s.logger.Debug("Page observed.",
		zap.String("url", url),
		zap.Int("interactive_elements", len(state.SelectorMap)),
		zap.Int("tabs", len(tabInfos)))
	return state, nil
}

// Apply executes a single action against the browser. Action-level failures
// (missing element, timed-out interaction) come back as result data; an error
// return means the session itself is unusable.
func (s *Session) Apply(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil, fmt.Errorf("session is closed")
	}
	handler, ok := s.actions[action.Type]
	s.mu.Unlock()

	if !ok {
		return &schemas.ActionResult{
			Error: fmt.Sprintf("unsupported action type %q", action.Type),
		}, nil
	}

	result, err := handler(ctx, action)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The browser survived but the action did not. Hand the failure back
		// as data so the caller can record and recover from it.
		return &schemas.ActionResult{Error: err.Error()}, nil
	}
	return result, nil
}

// activeTab returns the currently focused tab.
func (s *Session) activeTab() (*tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil, fmt.Errorf("session is closed")
	}
	if s.active < 0 || s.active >= len(s.tabs) {
		return nil, fmt.Errorf("session has no active tab")
	}
	return s.tabs[s.active], nil
}

// tabInfosLocked snapshots the tab list. Callers hold s.mu.
func (s *Session) tabInfosLocked() []schemas.TabInfo {
	infos := make([]schemas.TabInfo, 0, len(s.tabs))
	for _, t := range s.tabs {
		infos = append(infos, schemas.TabInfo{ID: t.id, URL: t.url, Title: t.title})
	}
	return infos
}

// resolveXPath maps a selector-map index from the last observation to the
// element's XPath.
func (s *Session) resolveXPath(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastTree == nil {
		return "", fmt.Errorf("no page has been observed yet")
	}
	node, ok := s.lastTree.SelectorMap()[index]
	if !ok {
		return "", fmt.Errorf("element with index %d not found on the current page", index)
	}
	return node.XPath, nil
}

// stabilize waits for the document to become ready and then idles for the
// configured post-load period so late DOM mutations settle before the next
// observation.
func (s *Session) stabilize(ctx context.Context) error {
	if err := chromedp.Run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("page did not become ready: %w", err)
	}

	wait := s.cfg.Browser().PostLoadWait
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runOnActiveTab executes chromedp actions on the focused tab with a timeout.
func (s *Session) runOnActiveTab(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	cur, err := s.activeTab()
	if err != nil {
		return err
	}

	opCtx, cancel := CombineContext(cur.ctx, ctx)
	defer cancel()
	opCtx, timeoutCancel := context.WithTimeout(opCtx, timeout)
	defer timeoutCancel()

	return chromedp.Run(opCtx, actions...)
}

// navigationTimeout returns the configured navigation deadline.
func (s *Session) navigationTimeout() time.Duration {
	if t := s.cfg.Browser().NavigationTimeout; t > 0 {
		return t
	}
	return defaultNavigationTimeout
}

// Close shuts the browser down. Safe to call multiple times; later calls are
// no-ops.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	tabs := s.tabs
	s.tabs = nil
	s.lastTree = nil
	allocCancel := s.allocCancel
	s.mu.Unlock()

	s.logger.Info("Closing browser session.")

	// Cancel secondary tabs first, then the root tab that owns the browser
	// connection.
	for i := len(tabs) - 1; i >= 0; i-- {
		tabs[i].cancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	return nil
}
