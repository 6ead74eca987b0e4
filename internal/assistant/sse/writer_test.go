package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// What the writer emits must come back out of the decoder and parser
// unchanged.
func TestWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(bufio.NewWriter(&buf))

	events := []Event{
		{Type: EventConversationID, ConversationID: "conv-1"},
		{Type: EventText, Content: "Hello\nworld"},
		{Type: EventToolResult, ToolName: "create_requirement", Result: json.RawMessage(`{"id":"r1"}`)},
		{Type: EventDone},
	}
	for _, e := range events {
		require.NoError(t, w.Emit(e))
	}
	require.NoError(t, w.KeepAlive())

	decoder := NewDecoder()
	parser := NewParser(nil)

	var parsed []Event
	for _, frame := range decoder.Feed(buf.Bytes()) {
		if event := parser.Parse(frame); event != nil {
			parsed = append(parsed, *event)
		}
	}

	require.Len(t, parsed, len(events))
	assert.Equal(t, "conv-1", parsed[0].ConversationID)
	assert.Equal(t, "Hello\nworld", parsed[1].Content)
	assert.Equal(t, "create_requirement", parsed[2].ToolName)
	assert.Equal(t, EventDone, parsed[3].Type)
	assert.Empty(t, decoder.Rest())
}

// Unknown sidecar frames written with EmitRaw are skipped by the parser
// without disturbing the stream.
func TestWriter_EmitRawSkippedByParser(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(bufio.NewWriter(&buf))

	require.NoError(t, w.EmitRaw(map[string]interface{}{"type": "detection", "candidate_count": 3}))
	require.NoError(t, w.Emit(Event{Type: EventDone}))

	decoder := NewDecoder()
	parser := NewParser(nil)

	var parsed []Event
	for _, frame := range decoder.Feed(buf.Bytes()) {
		if event := parser.Parse(frame); event != nil {
			parsed = append(parsed, *event)
		}
	}

	require.Len(t, parsed, 1)
	assert.Equal(t, EventDone, parsed[0].Type)
}
