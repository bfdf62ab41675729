// Package chat defines the inbound chat request shape accepted by the relay
// gateway and the rules for extracting the user's question from it.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoMessages is returned when the request carries an empty message list.
	ErrNoMessages = errors.New("chat request has no messages")

	// ErrEmptyQuestion is returned when no question text could be extracted
	// from the last message.
	ErrEmptyQuestion = errors.New("chat request has no question text")
)

// Request is the JSON body POSTed by the browser client.
type Request struct {
	Messages  []Message `json:"messages"`
	SessionID string    `json:"session_id,omitempty"`
	Settings  *Settings `json:"settings,omitempty"`
}

// Settings carries optional per-request provider overrides supplied by the
// client's settings panel. All fields are optional; empty values mean
// "use the backend's configured default".
type Settings struct {
	LLMProvider string `json:"llm_provider,omitempty"`
	LLMModel    string `json:"llm_model,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
}

// Message is a single conversation message. The client sends content either
// as a flat string or as a list of typed parts, depending on client version.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// Part is one typed segment of a multi-part message. Only "text" parts carry
// question content; other kinds (attachments, tool output) are ignored here.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// messageJSON mirrors Message but leaves content as raw JSON so both the
// flat-string and part-list encodings decode through the same struct.
type messageJSON struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
	Parts   []Part          `json:"parts,omitempty"`
}

// UnmarshalJSON accepts content as either a JSON string or an array of parts.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Role = raw.Role
	m.Parts = raw.Parts

	if len(raw.Content) == 0 {
		return nil
	}

	var flat string
	if err := json.Unmarshal(raw.Content, &flat); err == nil {
		m.Content = flat
		return nil
	}

	var parts []Part
	if err := json.Unmarshal(raw.Content, &parts); err != nil {
		return fmt.Errorf("message content is neither string nor part list: %w", err)
	}

	// Older clients send parts under "content"; merge them after any
	// explicit "parts" entries so extraction sees all of them.
	m.Parts = append(m.Parts, parts...)
	return nil
}

// Text returns the message's flat content if present, otherwise the
// concatenation of all "text"-kind parts.
func (m *Message) Text() string {
	if m.Content != "" {
		return m.Content
	}

	var b strings.Builder
	for _, part := range m.Parts {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// Question returns the question text extracted from the last message.
func (r *Request) Question() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Text()
}

// ParseRequest decodes and validates an inbound chat request body.
// A request with no messages or no extractable question text is invalid.
func ParseRequest(body []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decoding chat request: %w", err)
	}

	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	if req.Question() == "" {
		return nil, ErrEmptyQuestion
	}

	return &req, nil
}
