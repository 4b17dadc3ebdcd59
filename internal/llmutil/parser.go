// internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Regex definitions use \x60 for backticks because Go raw strings cannot
// contain backticks.
var (
	// fencedObjectRegex extracts a JSON object wrapped in a markdown fence.
	fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// fencedArrayRegex extracts a JSON array wrapped in a markdown fence.
	fencedArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ParseJSONResponse parses an LLM response into a target Go type, tolerating
// the common formatting habits of models: markdown code fences around the
// payload and conversational text before or after the JSON structure.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := ExtractJSON(response)

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s",
			err, Truncate(payload, 500))
	}
	return &result, nil
}

// ExtractJSON isolates the most plausible JSON object or array inside raw
// model output. When no structure can be located the input is returned
// unchanged so the JSON decoder produces a useful error.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") {
		if m := fencedObjectRegex.FindStringSubmatch(response); len(m) > 1 {
			return m[1]
		}
		if m := fencedArrayRegex.FindStringSubmatch(response); len(m) > 1 {
			return m[1]
		}
	}

	// Already a bare structure.
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	// Structure embedded in conversational text: take the widest bracket span.
	if span := widestSpan(response, '{', '}'); span != "" {
		return span
	}
	if span := widestSpan(response, '[', ']'); span != "" {
		return span
	}
	return response
}

// widestSpan returns the substring from the first open to the last close
// bracket, or "" when no such span exists.
func widestSpan(s string, open, close byte) string {
	first := strings.IndexByte(s, open)
	last := strings.LastIndexByte(s, close)
	if first == -1 || last == -1 || last <= first {
		return ""
	}
	return s[first : last+1]
}

// Truncate shortens a string for inclusion in error messages and logs. It
// does not respect rune boundaries; the output is diagnostic only.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
