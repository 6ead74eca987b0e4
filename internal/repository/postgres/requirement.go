package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/caseflow/caseflow-backend/internal/repository"
)

// RequirementRepository implements repository.RequirementRepository using PostgreSQL
type RequirementRepository struct {
	db *sqlx.DB
}

// NewRequirementRepository creates a new PostgreSQL requirement repository
func NewRequirementRepository(db *sqlx.DB) repository.RequirementRepository {
	return &RequirementRepository{db: db}
}

// Create creates a new requirement
func (r *RequirementRepository) Create(ctx context.Context, req repository.Requirement) (string, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}
	if req.Status == "" {
		req.Status = "open"
	}
	if len(req.Evidence) == 0 {
		req.Evidence = []byte("[]")
	}
	req.CreatedAt = time.Now()
	req.UpdatedAt = time.Now()

	query := `
		INSERT INTO requirements (id, conversation_id, title, description, priority, status, evidence, created_at, updated_at)
		VALUES (:id, :conversation_id, :title, :description, :priority, :status, :evidence, :created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return "", err
	}
	return req.ID, nil
}

// Get retrieves a requirement by ID
func (r *RequirementRepository) Get(ctx context.Context, id string) (*repository.Requirement, error) {
	var req repository.Requirement
	query := `
		SELECT id, conversation_id, title, description, priority, status, evidence, created_at, updated_at
		FROM requirements
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &req, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// List returns all requirements, newest first
func (r *RequirementRepository) List(ctx context.Context) ([]*repository.Requirement, error) {
	var reqs []*repository.Requirement
	query := `
		SELECT id, conversation_id, title, description, priority, status, evidence, created_at, updated_at
		FROM requirements
		ORDER BY created_at DESC
	`

	if err := r.db.SelectContext(ctx, &reqs, query); err != nil {
		return nil, err
	}
	return reqs, nil
}

// allowed update columns; anything else in the updates map is rejected.
var requirementColumns = map[string]bool{
	"title":       true,
	"description": true,
	"priority":    true,
	"status":      true,
}

// Update applies a partial update to a requirement
func (r *RequirementRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	var sets []string
	args := []interface{}{id}
	for column, value := range updates {
		if !requirementColumns[column] {
			return fmt.Errorf("cannot update column %q", column)
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	sets = append(sets, "updated_at = now()")

	query := fmt.Sprintf("UPDATE requirements SET %s WHERE id = $1", strings.Join(sets, ", "))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendEvidence appends one evidence entry to the requirement's list
func (r *RequirementRepository) AppendEvidence(ctx context.Context, id string, evidence []byte) error {
	query := `
		UPDATE requirements
		SET evidence = evidence || $2::jsonb, updated_at = now()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, string(evidence))
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete deletes a requirement
func (r *RequirementRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM requirements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
