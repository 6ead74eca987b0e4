// Package sse decodes the assistant service's event-stream wire format:
// UTF-8 records of the shape "data: <json>\n\n" delivered incrementally
// over a long-lived HTTP response body.
package sse

import (
	"strings"
)

// frameSeparator terminates a complete frame. Carriage returns are
// normalized away first so CRLF streams split identically.
const frameSeparator = "\n\n"

// Decoder turns raw byte chunks into complete frames. Chunks may split a
// frame anywhere, including mid-separator or mid-rune; the trailing
// incomplete frame is retained across reads and prefixed onto the next
// chunk. One Decoder serves exactly one stream and is not safe for
// concurrent use.
type Decoder struct {
	buf string
}

// NewDecoder creates a decoder with an empty accumulator.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a chunk to the accumulator and returns every frame whose
// terminating separator has now been observed, in stream order. Returns
// nil when the chunk completes no frame. Empty frames (separator runs)
// are dropped.
func (d *Decoder) Feed(chunk []byte) []string {
	d.buf += string(chunk)

	// Normalizing the whole accumulator keeps a CR/LF pair split across
	// two chunks intact: the dangling CR stays buffered until its LF
	// arrives.
	d.buf = strings.ReplaceAll(d.buf, "\r\n", "\n")

	if !strings.Contains(d.buf, frameSeparator) {
		return nil
	}

	parts := strings.Split(d.buf, frameSeparator)
	d.buf = parts[len(parts)-1]

	var frames []string
	for _, part := range parts[:len(parts)-1] {
		if strings.TrimSpace(part) == "" {
			continue
		}
		frames = append(frames, part)
	}
	return frames
}

// Rest returns the retained incomplete frame. A non-empty rest after the
// stream ends means the sender truncated a frame; callers may want to log
// it but must not parse it.
func (d *Decoder) Rest() string {
	return d.buf
}
