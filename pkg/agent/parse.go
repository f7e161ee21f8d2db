package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeReply unmarshals a model reply into out after stripping markdown
// code fences. Models are instructed to return bare JSON but routinely wrap
// it anyway.
func decodeReply(reply string, out any) error {
	cleaned := stripCodeFence(reply)
	if cleaned == "" {
		return fmt.Errorf("empty model reply")
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("parse model reply: %w", err)
	}
	return nil
}

// stripCodeFence removes one enclosing markdown code fence, with or without
// a language tag, and any prose before the opening fence. Replies without a
// fence are returned trimmed.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	fence := strings.Index(trimmed, "```")
	if fence < 0 {
		return trimmed
	}
	trimmed = trimmed[fence:]

	// Drop the opening fence line (``` or ```json).
	nl := strings.Index(trimmed, "\n")
	if nl < 0 {
		return ""
	}
	trimmed = trimmed[nl+1:]

	if closing := strings.LastIndex(trimmed, "```"); closing >= 0 {
		trimmed = trimmed[:closing]
	}
	return strings.TrimSpace(trimmed)
}
