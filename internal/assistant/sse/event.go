package sse

import (
	"encoding/json"
)

// EventType tags the variants of the assistant stream protocol.
type EventType string

const (
	// EventConversationID carries the backend-assigned conversation id.
	EventConversationID EventType = "conversation_id"
	// EventText carries one incremental text delta.
	EventText EventType = "text"
	// EventToolResult reports a tool the assistant executed server-side.
	EventToolResult EventType = "tool_result"
	// EventError aborts the stream; treated like a transport failure.
	EventError EventType = "error"
	// EventDone finalizes the in-flight assistant message.
	EventDone EventType = "done"
)

// Event is one parsed protocol event. Only the fields relevant to its
// Type are populated.
type Event struct {
	Type           EventType       `json:"type"`
	ConversationID string          `json:"id,omitempty"`
	Content        string          `json:"content,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// ResultError extracts the error marker from a tool result payload.
// A result object with a non-empty "error" field marks the tool execution
// as failed; everything else, including non-object payloads, counts as
// success.
func (e *Event) ResultError() string {
	if len(e.Result) == 0 {
		return ""
	}
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(e.Result, &probe); err != nil {
		return ""
	}
	return probe.Error
}
