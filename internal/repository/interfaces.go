package repository

import (
	"context"
	"time"
)

// Conversation represents a stored assistant conversation
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Message represents a stored conversation message. ToolCalls is the
// JSON-encoded list of tool executions reported while the message
// streamed.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	ToolCalls      []byte    `db:"tool_calls" json:"tool_calls,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Requirement is a structured requirement extracted from or discussed in
// conversations; the assistant's mutating tools operate on these.
type Requirement struct {
	ID             string    `db:"id" json:"id"`
	ConversationID *string   `db:"conversation_id" json:"conversation_id,omitempty"`
	Title          string    `db:"title" json:"title"`
	Description    string    `db:"description" json:"description"`
	Priority       string    `db:"priority" json:"priority"`
	Status         string    `db:"status" json:"status"`
	Evidence       []byte    `db:"evidence" json:"evidence,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// User represents a portal user
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ConversationRepository defines conversation storage operations
type ConversationRepository interface {
	Create(ctx context.Context, conv Conversation) (string, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	List(ctx context.Context) ([]*Conversation, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// MessageRepository defines message storage operations
type MessageRepository interface {
	Create(ctx context.Context, message Message) (string, error)
	ListByConversation(ctx context.Context, conversationID string) ([]Message, error)
}

// RequirementRepository defines requirement storage operations
type RequirementRepository interface {
	Create(ctx context.Context, req Requirement) (string, error)
	Get(ctx context.Context, id string) (*Requirement, error)
	List(ctx context.Context) ([]*Requirement, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	AppendEvidence(ctx context.Context, id string, evidence []byte) error
	Delete(ctx context.Context, id string) error
}

// UserRepository defines user storage operations
type UserRepository interface {
	Create(ctx context.Context, user User) (string, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Get(ctx context.Context, id string) (*User, error)
}
