package upstream

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/caseflow-backend/internal/repository"
)

// memRequirements is an in-memory repository.RequirementRepository.
type memRequirements struct {
	items map[string]*repository.Requirement
}

func newMemRequirements() *memRequirements {
	return &memRequirements{items: map[string]*repository.Requirement{}}
}

func (m *memRequirements) Create(_ context.Context, req repository.Requirement) (string, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	m.items[req.ID] = &req
	return req.ID, nil
}

func (m *memRequirements) Get(_ context.Context, id string) (*repository.Requirement, error) {
	return m.items[id], nil
}

func (m *memRequirements) List(_ context.Context) ([]*repository.Requirement, error) {
	var out []*repository.Requirement
	for _, r := range m.items {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRequirements) Update(_ context.Context, id string, updates map[string]interface{}) error {
	r, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	if title, ok := updates["title"].(string); ok {
		r.Title = title
	}
	if status, ok := updates["status"].(string); ok {
		r.Status = status
	}
	return nil
}

func (m *memRequirements) AppendEvidence(_ context.Context, id string, _ []byte) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	return nil
}

func (m *memRequirements) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func resultMap(t *testing.T, raw json.RawMessage) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestToolExecutor_CreateRequirement(t *testing.T) {
	repo := newMemRequirements()
	exec := NewToolExecutor(repo, nil)

	result := resultMap(t, exec.Execute(context.Background(),
		"create_requirement", `{"title":"SSO login","priority":"high"}`))

	require.NotContains(t, result, "error")
	id := result["id"].(string)
	created, _ := repo.Get(context.Background(), id)
	require.NotNil(t, created)
	assert.Equal(t, "SSO login", created.Title)
}

func TestToolExecutor_CreateRequiresTitle(t *testing.T) {
	exec := NewToolExecutor(newMemRequirements(), nil)

	result := resultMap(t, exec.Execute(context.Background(), "create_requirement", `{}`))
	assert.Equal(t, "title is required", result["error"])
}

func TestToolExecutor_UpdateMissingRequirement(t *testing.T) {
	exec := NewToolExecutor(newMemRequirements(), nil)

	result := resultMap(t, exec.Execute(context.Background(),
		"update_requirement", `{"id":"missing","status":"done"}`))
	assert.Contains(t, result, "error")
}

func TestToolExecutor_DeleteRequirement(t *testing.T) {
	repo := newMemRequirements()
	exec := NewToolExecutor(repo, nil)

	id, err := repo.Create(context.Background(), repository.Requirement{Title: "old"})
	require.NoError(t, err)

	result := resultMap(t, exec.Execute(context.Background(),
		"delete_requirement", `{"id":"`+id+`"}`))

	require.NotContains(t, result, "error")
	gone, _ := repo.Get(context.Background(), id)
	assert.Nil(t, gone)
}

func TestToolExecutor_UnknownTool(t *testing.T) {
	exec := NewToolExecutor(newMemRequirements(), nil)

	result := resultMap(t, exec.Execute(context.Background(), "summon_intern", `{}`))
	assert.Contains(t, result["error"], "unknown tool")
}

func TestToolExecutor_InvalidArguments(t *testing.T) {
	exec := NewToolExecutor(newMemRequirements(), nil)

	result := resultMap(t, exec.Execute(context.Background(), "create_requirement", `{broken`))
	assert.Contains(t, result["error"], "invalid tool arguments")
}

func TestToolExecutor_SearchRequirements(t *testing.T) {
	repo := newMemRequirements()
	exec := NewToolExecutor(repo, nil)

	_, err := repo.Create(context.Background(), repository.Requirement{Title: "a"})
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), repository.Requirement{Title: "b"})
	require.NoError(t, err)

	result := resultMap(t, exec.Execute(context.Background(), "search_requirements", `{}`))
	assert.Equal(t, float64(2), result["count"])
}
