// Package ids centralizes the identifier generation used for runs,
// generations, tool calls, and sessions so every component shares one
// scheme instead of ad hoc string formatting.
package ids

import "github.com/google/uuid"

// New returns a fresh, globally unique identifier suitable for a runId,
// generationId, toolCallId, sessionId, or receiptId.
func New() string {
	return uuid.NewString()
}
