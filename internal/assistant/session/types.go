// Package session owns the live conversation state of one assistant chat:
// the ordered message history, the single in-flight assistant message,
// stream cancellation and rollback, and the mutation notification policy
// for tool calls reported inline in the stream.
package session

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolStatus is the outcome of a tool the assistant executed.
type ToolStatus string

const (
	ToolComplete ToolStatus = "complete"
	ToolError    ToolStatus = "error"
)

// ToolCall records one tool execution reported by the stream, attached to
// the assistant message it arrived under. Order within a message is
// arrival order.
type ToolCall struct {
	Name   string          `json:"name"`
	Status ToolStatus      `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Message is one entry of the conversation history. Content is mutable
// only while the message is the trailing assistant message of an active
// stream (Streaming true); once finalized it never changes.
type Message struct {
	Role      Role                   `json:"role"`
	Content   string                 `json:"content"`
	CreatedAt time.Time              `json:"created_at"`
	ToolCalls []ToolCall             `json:"tool_calls,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Streaming bool                   `json:"streaming"`
}

// State is the lifecycle phase of a session's current exchange.
type State string

const (
	// StateIdle means no stream is in flight and history is stable.
	StateIdle State = "idle"
	// StateStreaming means events are being applied to the trailing
	// assistant message.
	StateStreaming State = "streaming"
)
