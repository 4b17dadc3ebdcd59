// internal/agent/history.go
package agent

import (
	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/browser/dom"
)

// recordHistoryItem reduces one executed step to its durable projection and
// appends it. Interacted elements are captured by fingerprint so a later
// replay can re-find them after the page renumbers its indices. One entry per
// decided action, nil where the action targeted no element.
func (a *Agent) recordHistoryItem(decision *schemas.AgentDecision, state *schemas.BrowserState, results []schemas.ActionResult) {
	var interacted []*dom.HistoryElement
	if decision != nil && state != nil {
		interacted = make([]*dom.HistoryElement, len(decision.Actions))
		for i, action := range decision.Actions {
			idx, ok := action.TargetIndex()
			if !ok {
				continue
			}
			if node := state.InteractedElement(idx); node != nil {
				interacted[i] = dom.NewHistoryElement(node)
			}
		}
	}

	item := schemas.HistoryItem{
		ModelOutput: decision,
		Result:      results,
	}
	if state != nil {
		item.State = schemas.StateHistory{
			URL:                state.URL,
			Title:              state.Title,
			Tabs:               state.Tabs,
			Screenshot:         state.Screenshot,
			InteractedElements: interacted,
		}
	}
	a.history.Append(item)
}
