// internal/agent/prompts.go
package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/browserpilot/api/schemas"
)

// systemPrompt is the standing instruction set for the decision oracle. It
// pins the exact JSON envelope the parser expects.
const systemPrompt = `You are an autonomous agent that controls a web browser to complete a task.

INPUT: on every turn you receive the task, the current page (url, title, open tabs and a numbered list of interactive elements) and the results of your previous actions.

OUTPUT: respond with a single JSON object and nothing else, in this exact format:
{
  "current_state": {
    "evaluation_previous_goal": "Success|Failed|Unknown - brief assessment of the last step",
    "memory": "what you need to remember across steps",
    "next_goal": "what you are trying to achieve with the next actions"
  },
  "action": [
    {"type": "<action_type>", ...parameters}
  ]
}

AVAILABLE ACTIONS:
- {"type": "go_to_url", "url": "..."}: navigate the current tab
- {"type": "go_back"}: browser history back
- {"type": "click_element", "index": N}: click the element numbered N
- {"type": "input_text", "index": N, "text": "..."}: type into the element numbered N
- {"type": "send_keys", "keys": "Enter"}: send a keyboard shortcut
- {"type": "scroll", "scroll_down": true, "amount": 500}: scroll; omit amount for one viewport
- {"type": "open_tab", "url": "..."}: open a new tab
- {"type": "switch_tab", "tab_id": N}: focus another tab
- {"type": "extract_content", "text": "<goal>"}: extract page content relevant to the goal
- {"type": "wait", "seconds": N}: wait for the page to settle
- {"type": "done", "text": "<final answer>", "success": true}: finish the task

RULES:
1. Element indices are only valid for the page state they were presented with. Never reuse an index from an earlier turn.
2. You may return several actions to execute in sequence. Execution stops early if the page changes in a way that invalidates the remaining indices.
3. Use "done" exactly once, as the only way to finish. Set success=false if the task could not be completed.
4. If the page shows no useful elements, scroll or navigate rather than guessing indices.`

// plannerSystemPrompt drives the cheaper planning model.
const plannerSystemPrompt = `You are a planning assistant for a browser agent. Given the task and the conversation so far, produce a short high-level plan: what has been achieved, what remains, and the next 2-3 concrete milestones. Respond in plain text or JSON, at most 10 lines.`

// validatorSystemPrompt drives the output self-check after a done action.
const validatorSystemPrompt = `You are a validator for a browser agent. Given the original task and the agent's final answer, judge whether the task was truly completed. Respond with a single JSON object: {"is_valid": true|false, "reason": "..."}`

// renderState formats an observation into the user message the oracle sees.
// Interactive elements are listed in selector map order as "[N]<tag>text</tag>".
func renderState(state *schemas.BrowserState, lastResult []schemas.ActionResult, info stepInfo) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Step %d of %d\n", info.step+1, info.maxSteps)
	fmt.Fprintf(&b, "Current url: %s\n", state.URL)
	fmt.Fprintf(&b, "Page title: %s\n", state.Title)

	if len(state.Tabs) > 1 {
		b.WriteString("Open tabs:\n")
		for _, tab := range state.Tabs {
			fmt.Fprintf(&b, "  [%d] %s (%s)\n", tab.ID, tab.Title, tab.URL)
		}
	}

	b.WriteString("Interactive elements:\n")
	b.WriteString(renderElements(state))

	for i, r := range lastResult {
		if r.ExtractedContent != "" {
			fmt.Fprintf(&b, "Result of action %d/%d: %s\n", i+1, len(lastResult), r.ExtractedContent)
		}
		if r.Error != "" {
			fmt.Fprintf(&b, "Error of action %d/%d: %s\n", i+1, len(lastResult), tail(r.Error, 400))
		}
	}

	return b.String()
}

func renderElements(state *schemas.BrowserState) string {
	if len(state.SelectorMap) == 0 {
		return "empty page\n"
	}

	indices := make([]int, 0, len(state.SelectorMap))
	for idx := range state.SelectorMap {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var b strings.Builder
	for _, idx := range indices {
		n := state.SelectorMap[idx]
		label := n.Text
		if label == "" {
			label = n.Attributes["aria-label"]
		}
		if label == "" {
			label = n.Attributes["placeholder"]
		}
		attrs := ""
		if t := n.Attributes["type"]; t != "" {
			attrs = fmt.Sprintf(" type=%q", t)
		}
		fmt.Fprintf(&b, "[%d]<%s%s>%s</%s>\n", idx, n.Tag, attrs, label, n.Tag)
	}
	return b.String()
}

// tail keeps the end of an error message, where the useful part usually is.
func tail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
