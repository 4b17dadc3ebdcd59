// internal/browser/session/actions.go
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/llmutil"
)

// actionHandler executes one action kind. A returned error means the
// interaction failed; Apply converts it into result data.
type actionHandler func(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error)

// maxExtractChars bounds the text returned by extract_content so a single
// extraction cannot blow the decision context.
const maxExtractChars = 16000

// registerActions wires every supported action type to its handler.
func (s *Session) registerActions() {
	s.actions = map[schemas.ActionType]actionHandler{
		schemas.ActionGoToURL:        s.handleGoToURL,
		schemas.ActionGoBack:         s.handleGoBack,
		schemas.ActionClickElement:   s.handleClickElement,
		schemas.ActionInputText:      s.handleInputText,
		schemas.ActionSendKeys:       s.handleSendKeys,
		schemas.ActionScroll:         s.handleScroll,
		schemas.ActionOpenTab:        s.handleOpenTab,
		schemas.ActionSwitchTab:      s.handleSwitchTab,
		schemas.ActionExtractContent: s.handleExtractContent,
		schemas.ActionWait:           s.handleWait,
		schemas.ActionDone:           s.handleDone,
	}
}

func (s *Session) handleGoToURL(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	if action.URL == "" {
		return nil, fmt.Errorf("go_to_url requires a url")
	}

	if err := s.runOnActiveTab(ctx, s.navigationTimeout(), chromedp.Navigate(action.URL)); err != nil {
		return nil, fmt.Errorf("navigation to %s failed: %w", action.URL, err)
	}
	if err := s.stabilizeActiveTab(ctx); err != nil {
		s.logger.Warn("Page stabilization failed after navigation.", zap.Error(err))
	}

	return &schemas.ActionResult{
		ExtractedContent: fmt.Sprintf("Navigated to %s", action.URL),
		IncludeInMemory:  true,
	}, nil
}

func (s *Session) handleGoBack(ctx context.Context, _ schemas.Action) (*schemas.ActionResult, error) {
	if err := s.runOnActiveTab(ctx, s.navigationTimeout(), chromedp.NavigateBack()); err != nil {
		return nil, fmt.Errorf("failed to navigate back: %w", err)
	}
	if err := s.stabilizeActiveTab(ctx); err != nil {
		s.logger.Warn("Page stabilization failed after history navigation.", zap.Error(err))
	}

	return &schemas.ActionResult{
		ExtractedContent: "Navigated back",
		IncludeInMemory:  true,
	}, nil
}

func (s *Session) handleClickElement(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	index, ok := action.TargetIndex()
	if !ok {
		return nil, fmt.Errorf("click_element requires an element index")
	}
	xpath, err := s.resolveXPath(index)
	if err != nil {
		return nil, err
	}

	tasks := chromedp.Tasks{
		chromedp.ScrollIntoView(xpath, chromedp.BySearch),
		chromedp.WaitVisible(xpath, chromedp.BySearch),
		chromedp.Click(xpath, chromedp.BySearch),
	}
	if err := s.runOnActiveTab(ctx, defaultActionTimeout, tasks); err != nil {
		return nil, fmt.Errorf("click on element %d failed: %w", index, err)
	}
	if err := s.stabilizeActiveTab(ctx); err != nil {
		s.logger.Debug("Page did not settle after click.", zap.Error(err))
	}

	return &schemas.ActionResult{
		ExtractedContent: fmt.Sprintf("Clicked element %d", index),
		IncludeInMemory:  true,
	}, nil
}

func (s *Session) handleInputText(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	index, ok := action.TargetIndex()
	if !ok {
		return nil, fmt.Errorf("input_text requires an element index")
	}
	xpath, err := s.resolveXPath(index)
	if err != nil {
		return nil, err
	}

	tasks := chromedp.Tasks{
		chromedp.ScrollIntoView(xpath, chromedp.BySearch),
		chromedp.WaitVisible(xpath, chromedp.BySearch),
		chromedp.Clear(xpath, chromedp.BySearch),
		chromedp.SendKeys(xpath, action.Text, chromedp.BySearch),
	}
	if err := s.runOnActiveTab(ctx, typeTimeout(action.Text), tasks); err != nil {
		return nil, fmt.Errorf("typing into element %d failed: %w", index, err)
	}

	return &schemas.ActionResult{
		ExtractedContent: fmt.Sprintf("Typed %q into element %d", action.Text, index),
		IncludeInMemory:  true,
	}, nil
}

func (s *Session) handleSendKeys(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	if action.Keys == "" {
		return nil, fmt.Errorf("send_keys requires a key sequence")
	}

	keys := translateKeys(action.Keys)
	if err := s.runOnActiveTab(ctx, defaultActionTimeout, chromedp.KeyEvent(keys)); err != nil {
		return nil, fmt.Errorf("sending keys %q failed: %w", action.Keys, err)
	}
	if err := s.stabilizeActiveTab(ctx); err != nil {
		s.logger.Debug("Page did not settle after key input.", zap.Error(err))
	}

	return &schemas.ActionResult{
		ExtractedContent: fmt.Sprintf("Sent keys %q", action.Keys),
		IncludeInMemory:  true,
	}, nil
}

func (s *Session) handleScroll(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	script := scrollScript(action.ScrollDown, action.Amount)
	if err := s.runOnActiveTab(ctx, defaultActionTimeout, chromedp.Evaluate(script, nil)); err != nil {
		return nil, fmt.Errorf("scroll failed: %w", err)
	}

	direction := "up"
	if action.ScrollDown {
		direction = "down"
	}
	return &schemas.ActionResult{
		ExtractedContent: fmt.Sprintf("Scrolled %s", direction),
	}, nil
}

func (s *Session) handleOpenTab(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	cur, err := s.activeTab()
	if err != nil {
		return nil, err
	}

	// A context derived from an existing tab opens a new tab in the same
	// browser.
	newCtx, newCancel := chromedp.NewContext(cur.ctx)

	url := action.URL
	if url == "" {
		url = "about:blank"
	}

	opCtx, cancel := CombineContext(newCtx, ctx)
	navCtx, navCancel := context.WithTimeout(opCtx, s.navigationTimeout())
	err = chromedp.Run(navCtx, chromedp.Navigate(url))
	navCancel()
	cancel()
	if err != nil {
		newCancel()
		return nil, fmt.Errorf("failed to open tab for %s: %w", url, err)
	}

	s.mu.Lock()
	t := &tab{id: s.nextTabID, ctx: newCtx, cancel: newCancel, url: url}
	s.nextTabID++
	s.tabs = append(s.tabs, t)
	s.active = len(s.tabs) - 1
	// Element indices from the previous tab are meaningless on the new one.
	s.lastTree = nil
	s.mu.Unlock()

	return &schemas.ActionResult{
		ExtractedContent: fmt.Sprintf("Opened new tab %d with %s", t.id, url),
		IncludeInMemory:  true,
	}, nil
}

func (s *Session) handleSwitchTab(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	s.mu.Lock()
	var target *tab
	targetPos := -1
	for i, t := range s.tabs {
		if t.id == action.TabID {
			target = t
			targetPos = i
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("tab with id %d not found", action.TabID)
	}
	s.active = targetPos
	s.lastTree = nil
	s.mu.Unlock()

	bringToFront := chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	})
	if err := s.runOnActiveTab(ctx, defaultActionTimeout, bringToFront); err != nil {
		return nil, fmt.Errorf("failed to focus tab %d: %w", action.TabID, err)
	}

	return &schemas.ActionResult{
		ExtractedContent: fmt.Sprintf("Switched to tab %d", action.TabID),
		IncludeInMemory:  true,
	}, nil
}

func (s *Session) handleExtractContent(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	var text string
	if err := s.runOnActiveTab(ctx, defaultActionTimeout, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("content extraction failed: %w", err)
	}

	text = llmutil.Truncate(strings.TrimSpace(text), maxExtractChars)
	content := text
	if action.Text != "" {
		content = fmt.Sprintf("Page content for goal %q:\n%s", action.Text, text)
	}

	return &schemas.ActionResult{
		ExtractedContent: content,
		IncludeInMemory:  true,
	}, nil
}

func (s *Session) handleWait(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	seconds := action.Seconds
	if seconds <= 0 {
		seconds = 1
	}

	select {
	case <-time.After(time.Duration(seconds) * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &schemas.ActionResult{
		ExtractedContent: fmt.Sprintf("Waited %d seconds", seconds),
	}, nil
}

func (s *Session) handleDone(_ context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	return &schemas.ActionResult{
		ExtractedContent: action.Text,
		IsDone:           true,
		IncludeInMemory:  true,
	}, nil
}

// stabilizeActiveTab runs stabilize against the focused tab.
func (s *Session) stabilizeActiveTab(ctx context.Context) error {
	cur, err := s.activeTab()
	if err != nil {
		return err
	}
	opCtx, cancel := CombineContext(cur.ctx, ctx)
	defer cancel()
	opCtx, timeoutCancel := context.WithTimeout(opCtx, s.navigationTimeout())
	defer timeoutCancel()
	return s.stabilize(opCtx)
}

// namedKeys maps the key names the oracle emits to the CDP key runes.
var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
}

// translateKeys converts a space-separated key sequence into the raw key
// string chromedp expects. Unrecognized tokens are sent literally.
func translateKeys(keys string) string {
	var b strings.Builder
	for _, token := range strings.Fields(keys) {
		if mapped, ok := namedKeys[strings.ToLower(token)]; ok {
			b.WriteString(mapped)
			continue
		}
		b.WriteString(token)
	}
	return b.String()
}

// scrollScript builds the scroll expression. A zero amount scrolls by one
// viewport height.
func scrollScript(down bool, amount int) string {
	if amount > 0 {
		if down {
			return fmt.Sprintf("window.scrollBy({top: %d, behavior: 'instant'});", amount)
		}
		return fmt.Sprintf("window.scrollBy({top: -%d, behavior: 'instant'});", amount)
	}
	if down {
		return "window.scrollBy({top: window.innerHeight, behavior: 'instant'});"
	}
	return "window.scrollBy({top: -window.innerHeight, behavior: 'instant'});"
}

// typeTimeout scales the input deadline with the text length.
func typeTimeout(text string) time.Duration {
	timeout := 15*time.Second + time.Duration(len(text)/4)*time.Second
	if timeout > 3*time.Minute {
		timeout = 3 * time.Minute
	}
	return timeout
}
