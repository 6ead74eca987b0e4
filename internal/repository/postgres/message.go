package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/caseflow/caseflow-backend/internal/repository"
)

// MessageRepository implements repository.MessageRepository using PostgreSQL
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sqlx.DB) repository.MessageRepository {
	return &MessageRepository{db: db}
}

// Create stores a finalized message
func (r *MessageRepository) Create(ctx context.Context, message repository.Message) (string, error) {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	if len(message.ToolCalls) == 0 {
		message.ToolCalls = []byte("[]")
	}

	query := `
		INSERT INTO messages (id, conversation_id, role, content, tool_calls, created_at)
		VALUES (:id, :conversation_id, :role, :content, :tool_calls, :created_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return "", err
	}
	return message.ID, nil
}

// ListByConversation returns a conversation's messages in order
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]repository.Message, error) {
	var messages []repository.Message
	query := `
		SELECT id, conversation_id, role, content, tool_calls, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`

	if err := r.db.SelectContext(ctx, &messages, query, conversationID); err != nil {
		return nil, err
	}
	return messages, nil
}
