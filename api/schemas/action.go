package schemas

// -- Action Schemas --

// ActionType enumerates the operations the agent can request against the
// browser. The set is closed for the core loop; new kinds are added by
// registering a handler in the session's action registry, which never touches
// the executor's drift or abort logic.
type ActionType string

const (
	ActionGoToURL        ActionType = "go_to_url"
	ActionGoBack         ActionType = "go_back"
	ActionClickElement   ActionType = "click_element"
	ActionInputText      ActionType = "input_text"
	ActionSendKeys       ActionType = "send_keys"
	ActionScroll         ActionType = "scroll"
	ActionOpenTab        ActionType = "open_tab"
	ActionSwitchTab      ActionType = "switch_tab"
	ActionExtractContent ActionType = "extract_content"
	ActionWait           ActionType = "wait"
	ActionDone           ActionType = "done"
)

// indexedActions is the subset of action types that target a selector-map
// index. An indexed action is only valid against the state its index was
// drawn from.
var indexedActions = map[ActionType]bool{
	ActionClickElement: true,
	ActionInputText:    true,
}

// Action is one concrete step decided by the oracle. It is a tagged variant:
// Type selects the operation, and only the parameter fields relevant to that
// type are set. Index is a pointer so "targets no element" is distinguishable
// from "targets element 0".
type Action struct {
	Type ActionType `json:"type"`

	// Index targets an interactive element by its selector-map number
	// (click_element, input_text).
	Index *int `json:"index,omitempty"`
	// Text carries typed input, the extraction goal, or the final answer for
	// a done action.
	Text string `json:"text,omitempty"`
	// URL for go_to_url and open_tab.
	URL string `json:"url,omitempty"`
	// Keys is a keyboard shortcut sequence for send_keys (e.g. "Enter").
	Keys string `json:"keys,omitempty"`
	// ScrollDown selects direction and Amount the pixel distance for scroll;
	// zero Amount means one viewport.
	ScrollDown bool `json:"scroll_down,omitempty"`
	Amount     int  `json:"amount,omitempty"`
	// TabID for switch_tab.
	TabID int `json:"tab_id,omitempty"`
	// Seconds for wait.
	Seconds int `json:"seconds,omitempty"`
	// Success marks whether a done action reports the task as achieved.
	Success bool `json:"success,omitempty"`
}

// RequiresIndex reports whether this action kind targets a selector-map index.
func (a Action) RequiresIndex() bool { return indexedActions[a.Type] }

// TargetIndex returns the element index the action targets, with ok=false for
// non-indexed actions or a missing index.
func (a Action) TargetIndex() (int, bool) {
	if !a.RequiresIndex() || a.Index == nil {
		return 0, false
	}
	return *a.Index, true
}

// SetTargetIndex rewrites the target index in place. Used by the replayer
// after re-resolving an element at a new position.
func (a *Action) SetTargetIndex(idx int) {
	a.Index = &idx
}

// ActionResult is the outcome of one executed action. A failed action is
// represented as data (non-empty Error), never as a raised error, so the
// control loop can always record what happened.
type ActionResult struct {
	ExtractedContent string `json:"extracted_content,omitempty"`
	Error            string `json:"error,omitempty"`
	// IsDone marks the terminal success of the whole task.
	IsDone bool `json:"is_done,omitempty"`
	// IncludeInMemory keeps this result in the decision context of later
	// steps instead of discarding it with the consumed state message.
	IncludeInMemory bool `json:"include_in_memory,omitempty"`
}

// Failed reports whether the action produced an error.
func (r ActionResult) Failed() bool { return r.Error != "" }
