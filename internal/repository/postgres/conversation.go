package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/caseflow/caseflow-backend/internal/repository"
)

// ConversationRepository implements repository.ConversationRepository using PostgreSQL
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository creates a new PostgreSQL conversation repository
func NewConversationRepository(db *sqlx.DB) repository.ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create creates a new conversation
func (r *ConversationRepository) Create(ctx context.Context, conv repository.Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = time.Now()

	query := `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (:id, :user_id, :title, :created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, conv); err != nil {
		return "", err
	}
	return conv.ID, nil
}

// Get retrieves a conversation by ID
func (r *ConversationRepository) Get(ctx context.Context, id string) (*repository.Conversation, error) {
	var conv repository.Conversation
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &conv, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// List returns all conversations, most recently updated first
func (r *ConversationRepository) List(ctx context.Context) ([]*repository.Conversation, error) {
	var convs []*repository.Conversation
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
	`

	if err := r.db.SelectContext(ctx, &convs, query); err != nil {
		return nil, err
	}
	return convs, nil
}

// Touch bumps the conversation's updated_at timestamp
func (r *ConversationRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, id)
	return err
}

// Delete deletes a conversation and its messages
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	return err
}
