package session

import (
	"sync"
	"time"

	"github.com/caseflow/caseflow-backend/internal/assistant/sse"
)

// Session holds one conversation's state. All mutation goes through the
// transition methods below; the mutex makes every transition atomic from
// the point of view of concurrent readers (the relay handler snapshotting
// history mid-stream).
//
// Invariant: at most one message has Streaming true, and if present it is
// the last message and has role assistant.
type Session struct {
	mu             sync.Mutex
	conversationID string
	messages       []Message
	streaming      bool

	// userCount tracks user messages sent this session; the detection
	// trigger reads it.
	userCount int
}

// New creates an empty session. The conversation id stays empty until the
// backend assigns one via a conversation_id event.
func New() *Session {
	return &Session{}
}

// NewSeeded creates a session preloaded with stored history, used when
// the surface reopens an existing conversation. Seeded messages are
// always finalized.
func NewSeeded(conversationID string, history []Message) *Session {
	s := &Session{conversationID: conversationID}
	for _, m := range history {
		m.Streaming = false
		s.messages = append(s.messages, m)
		if m.Role == RoleUser {
			s.userCount++
		}
	}
	return s
}

// ConversationID returns the backend-assigned id, empty until known.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// State reports whether a stream is currently applying events.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return StateStreaming
	}
	return StateIdle
}

// Busy reports whether a stream is in flight.
func (s *Session) Busy() bool {
	return s.State() == StateStreaming
}

// Messages returns a snapshot copy of the history. Tool call slices are
// shared but only appended to under the lock, so a snapshot never
// observes a half-applied event.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// UserMessageCount returns the number of user messages sent this session.
func (s *Session) UserMessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userCount
}

// RecentHistory returns up to n finalized messages preceding the current
// exchange, oldest first. The streaming placeholder is never included.
func (s *Session) RecentHistory(n int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finalized []Message
	for _, m := range s.messages {
		if !m.Streaming {
			finalized = append(finalized, m)
		}
	}
	if len(finalized) > n {
		finalized = finalized[len(finalized)-n:]
	}
	out := make([]Message, len(finalized))
	copy(out, finalized)
	return out
}

// beginExchange appends the user's message and the streaming assistant
// placeholder, moving the session to StateStreaming. Returns false when a
// stream is already in flight; callers must reject the send.
func (s *Session) beginExchange(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streaming {
		return false
	}

	now := time.Now()
	s.messages = append(s.messages,
		Message{Role: RoleUser, Content: text, CreatedAt: now},
		Message{Role: RoleAssistant, CreatedAt: now, Streaming: true},
	)
	s.userCount++
	s.streaming = true
	return true
}

// apply folds one typed event into the in-flight assistant message.
// Events arriving outside a stream are ignored. The returned tool call is
// non-nil when the event appended one, for the mutation notifier.
func (s *Session) apply(event *sse.Event) *ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case sse.EventConversationID:
		// Only meaningful the first time; the backend repeats it on
		// reconnects.
		if s.conversationID == "" {
			s.conversationID = event.ConversationID
		}

	case sse.EventText:
		if current := s.current(); current != nil {
			current.Content += event.Content
		}

	case sse.EventToolResult:
		current := s.current()
		if current == nil {
			return nil
		}
		call := ToolCall{
			Name:   event.ToolName,
			Status: ToolComplete,
			Result: event.Result,
		}
		if msg := event.ResultError(); msg != "" {
			call.Status = ToolError
			call.Error = msg
		}
		current.ToolCalls = append(current.ToolCalls, call)
		return &call

	case sse.EventDone:
		if current := s.current(); current != nil {
			current.Streaming = false
		}
		s.streaming = false
	}
	return nil
}

// rollback removes the never-finalized assistant placeholder after a
// cancel or stream error. The user's message stays: it was genuinely
// sent. This is the only place a message leaves the history.
func (s *Session) rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.streaming {
		return
	}
	last := len(s.messages) - 1
	if last >= 0 && s.messages[last].Streaming {
		s.messages = s.messages[:last]
	}
	s.streaming = false
}

// current returns the in-flight assistant message, or nil outside a
// stream. Callers hold the lock.
func (s *Session) current() *Message {
	if !s.streaming || len(s.messages) == 0 {
		return nil
	}
	last := &s.messages[len(s.messages)-1]
	if !last.Streaming {
		return nil
	}
	return last
}
