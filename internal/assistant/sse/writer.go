package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
)

// Writer produces the wire format, flushing after every frame so deltas
// reach the peer as they happen. It is the emitting counterpart of
// Decoder and Parser.
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates a writer over a streaming response body.
func NewWriter(w *bufio.Writer) *Writer {
	return &Writer{w: w}
}

// Emit writes one event as a data frame.
func (s *Writer) Emit(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.w.Flush()
}

// EmitRaw writes an arbitrary JSON-encodable payload as a data frame,
// for sidecar frames outside the core event set.
func (s *Writer) EmitRaw(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.w.Flush()
}

// KeepAlive writes a comment frame that carries no event.
func (s *Writer) KeepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	return s.w.Flush()
}
