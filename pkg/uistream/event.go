// Package uistream serializes the client-facing message stream: one logical
// assistant message per response, announced as text-start, streamed as
// text-delta fragments, and sealed with text-end. Events are SSE-framed
// JSON records keyed by a per-response message id.
package uistream

// Event type discriminants on the client wire.
const (
	TypeTextStart = "text-start"
	TypeTextDelta = "text-delta"
	TypeTextEnd   = "text-end"
)

// doneSentinel terminates the stream after the final event.
const doneSentinel = "[DONE]"

// Event is one client-facing stream record.
type Event struct {
	Type string `json:"type"`
	ID   string `json:"id"`

	// Delta is the appended text fragment; only set for text-delta events.
	Delta string `json:"delta,omitempty"`
}
