package schemas

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

// ActionSchemaVersion identifies the action vocabulary a history file was
// recorded with. Replaying a file produced under a different vocabulary is a
// configuration error, not something to paper over at load time.
const ActionSchemaVersion = 1

// ErrSchemaVersionMismatch is returned by LoadHistory when the file was
// written by an incompatible action-schema version.
var ErrSchemaVersionMismatch = fmt.Errorf("history file action-schema version mismatch")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HistoryItem records one completed step: the decision that produced it (nil
// for steps aborted before a decision existed), every action result, and the
// reduced state projection. Items are immutable once appended.
type HistoryItem struct {
	ModelOutput *AgentDecision `json:"model_output"`
	Result      []ActionResult `json:"result"`
	State       StateHistory   `json:"state"`
}

// History is the ordered, append-only record of one run.
type History struct {
	Items []HistoryItem `json:"items"`
}

// Append adds a completed step. Existing items are never rewritten.
func (h *History) Append(item HistoryItem) {
	h.Items = append(h.Items, item)
}

// Len returns the number of recorded steps.
func (h *History) Len() int { return len(h.Items) }

// IsDone reports whether the run reached terminal success: the last result of
// the last item carries the done marker.
func (h *History) IsDone() bool {
	if len(h.Items) == 0 {
		return false
	}
	results := h.Items[len(h.Items)-1].Result
	if len(results) == 0 {
		return false
	}
	return results[len(results)-1].IsDone
}

// Errors collects every non-empty error message in recorded order.
func (h *History) Errors() []string {
	var errs []string
	for _, item := range h.Items {
		for _, r := range item.Result {
			if r.Failed() {
				errs = append(errs, r.Error)
			}
		}
	}
	return errs
}

// FinalResult returns the extracted content of the terminal done action, or
// "" when the run is not done.
func (h *History) FinalResult() string {
	if !h.IsDone() {
		return ""
	}
	results := h.Items[len(h.Items)-1].Result
	return results[len(results)-1].ExtractedContent
}

// historyFile is the on-disk envelope. The embedded version makes stale files
// detectable instead of silently corrupting a replay.
type historyFile struct {
	Version int           `json:"action_schema_version"`
	Items   []HistoryItem `json:"items"`
}

// SaveHistory serializes the full history to path, creating parent
// directories as needed. Round-trips all decision, result and state fields.
func SaveHistory(h *History, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(historyFile{Version: ActionSchemaVersion, Items: h.Items}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}

// LoadHistory reads a history file back, rejecting files recorded under a
// different action-schema version.
func LoadHistory(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode history file %s: %w", path, err)
	}
	if file.Version != ActionSchemaVersion {
		return nil, fmt.Errorf("%w: file has version %d, this build expects %d",
			ErrSchemaVersionMismatch, file.Version, ActionSchemaVersion)
	}
	return &History{Items: file.Items}, nil
}
