package backend

import "encoding/json"

// Stream event discriminants emitted by the backend inside its data channel.
// The backend is free to add new kinds; anything unrecognized must be
// ignorable without aborting the stream.
const (
	EventContent = "content"
	EventError   = "error"
)

// StreamEvent is one decoded record from the backend's answer stream.
type StreamEvent struct {
	// Type discriminates the payload: "content" carries a text fragment,
	// "error" carries a soft error message, anything else is unknown.
	Type string `json:"type"`

	// Content is the text fragment for "content" events.
	Content string `json:"content,omitempty"`

	// Message is the human-readable description for "error" events.
	Message string `json:"message,omitempty"`
}

// DecodeStreamEvent parses one frame's data payload. A payload that is not
// valid JSON returns ok=false: the frame is skipped, never fatal, so a single
// malformed frame cannot terminate the transcoding loop or corrupt the
// frames after it.
func DecodeStreamEvent(data string) (*StreamEvent, bool) {
	var ev StreamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, false
	}
	return &ev, true
}
