package schemas

import (
	"github.com/xkilldash9x/browserpilot/internal/browser/dom"
)

// -- Browser State Schemas --

// TabInfo identifies one open browser tab at observation time.
type TabInfo struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// BrowserState is a point-in-time description of the page the agent is
// looking at: identity (url/title/tabs), the interactive-element selector map,
// and optional pixels. A state is produced by one observation and never
// mutated afterwards; highlight indices in the selector map are only valid
// against this exact state.
type BrowserState struct {
	URL         string                   `json:"url"`
	Title       string                   `json:"title"`
	Tabs        []TabInfo                `json:"tabs,omitempty"`
	ElementTree *dom.ElementTree         `json:"element_tree,omitempty"`
	SelectorMap map[int]*dom.ElementNode `json:"-"`
	// Screenshot is a base64-encoded PNG, empty when vision capture is off.
	Screenshot string `json:"screenshot,omitempty"`
}

// InteractedElement resolves the element a highlight index referred to in this
// state, or nil when the index is unknown.
func (s *BrowserState) InteractedElement(highlightIndex int) *dom.ElementNode {
	if s == nil || s.SelectorMap == nil {
		return nil
	}
	return s.SelectorMap[highlightIndex]
}

// StateHistory is the reduced projection of a BrowserState kept in recorded
// history: transient handles (element tree, selector map) are dropped, only
// identity plus the elements actually interacted with survive. One entry in
// InteractedElements per executed action, nil where the action had no target.
type StateHistory struct {
	URL                string                `json:"url"`
	Title              string                `json:"title"`
	Tabs               []TabInfo             `json:"tabs,omitempty"`
	Screenshot         string                `json:"screenshot,omitempty"`
	InteractedElements []*dom.HistoryElement `json:"interacted_elements"`
}
