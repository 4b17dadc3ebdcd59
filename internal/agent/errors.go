// internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/browserpilot/internal/llmclient"
)

// The oracle and environment failure modes the recovery policy distinguishes.
// Everything else is treated as a generic step failure.

// DecodeError reports that the oracle returned text that could not be parsed
// into a decision. Raw keeps the offending output for diagnostics.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to parse oracle decision: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EmptyResponseError reports that the oracle returned no content or a decision
// with no actions.
type EmptyResponseError struct {
	Reason string
}

func (e *EmptyResponseError) Error() string {
	if e.Reason == "" {
		return "oracle returned an empty decision"
	}
	return "oracle returned an empty decision: " + e.Reason
}

// EnvironmentUnavailableError reports that the browser could not produce an
// observation or accept an action.
type EnvironmentUnavailableError struct {
	Op  string
	Err error
}

func (e *EnvironmentUnavailableError) Error() string {
	return fmt.Sprintf("browser environment unavailable during %s: %v", e.Op, e.Err)
}

func (e *EnvironmentUnavailableError) Unwrap() error { return e.Err }

// ElementNotFoundError reports that an indexed action referred to a selector
// map entry that does not exist in the current state.
type ElementNotFoundError struct {
	Index int
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element with index %d not found in current state", e.Index)
}

// InterruptedError reports that a stop or pause request arrived at a mid-step
// checkpoint. It is not a failure: the step unwinds without incrementing the
// failure counter and the run loop decides what the request means.
type InterruptedError struct{}

func (e *InterruptedError) Error() string {
	return "step interrupted by a stop or pause request"
}

func isInterrupted(err error) bool {
	var ie *InterruptedError
	return errors.As(err, &ie)
}

// isMalformedDecision reports whether the failure calls for a corrective
// format hint on the next oracle call.
func isMalformedDecision(err error) bool {
	var de *DecodeError
	var ee *EmptyResponseError
	return errors.As(err, &de) || errors.As(err, &ee)
}

// isRateLimited defers to the transport's classification.
func isRateLimited(err error) bool {
	return llmclient.IsRateLimited(err)
}

// isTokenOverflow recognizes context-window rejections across providers by
// message text; neither API exposes a structured code for it.
func isTokenOverflow(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "maximum context length") ||
		strings.Contains(msg, "context window") ||
		strings.Contains(msg, "token limit") ||
		strings.Contains(msg, "input token count exceeds")
}
