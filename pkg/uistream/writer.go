package uistream

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Writer emits the message lifecycle for exactly one logical message onto w.
//
// The message is opened lazily: the first Append writes text-start before its
// text-delta, so a stream that never produces content never announces a
// message. Close seals the message exactly once; appends after Close are
// rejected. Writer is not safe for concurrent use — it is owned by a single
// request's transcoding loop.
type Writer struct {
	w      io.Writer
	id     string
	opened bool
	closed bool
}

// NewWriter creates a Writer for one response. The message id is generated
// here, once, and reused across all events of the message.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:  w,
		id: uuid.NewString(),
	}
}

// MessageID returns the stream-unique id for this response's message.
func (w *Writer) MessageID() string {
	return w.id
}

// Opened reports whether text-start has been emitted.
func (w *Writer) Opened() bool {
	return w.opened
}

// Append streams one text fragment, opening the message first if this is the
// initial fragment. A write error means the client is gone and is terminal
// for the stream; it is never retried.
func (w *Writer) Append(text string) error {
	if w.closed {
		return fmt.Errorf("append after message %s closed", w.id)
	}

	if !w.opened {
		if err := w.emit(Event{Type: TypeTextStart, ID: w.id}); err != nil {
			return err
		}
		w.opened = true
	}

	return w.emit(Event{Type: TypeTextDelta, ID: w.id, Delta: text})
}

// Close seals the message and terminates the stream. It emits text-end only
// if the message was opened, always writes the [DONE] sentinel, and is
// idempotent so every exit path of the transcoding loop can call it.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.opened {
		if err := w.emit(Event{Type: TypeTextEnd, ID: w.id}); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w.w, "data: %s\n\n", doneSentinel)
	return err
}

// emit writes one SSE-framed event immediately; no batching buffer exists
// beyond the event being serialized.
func (w *Writer) emit(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding stream event: %w", err)
	}

	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("writing stream event: %w", err)
	}

	return nil
}
