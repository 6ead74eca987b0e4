package upstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/repository"
)

// ToolExecutor runs the assistant's tools against the requirements
// store. Failures are reported inside the result payload (an "error"
// field) rather than as Go errors: a failed tool does not abort the
// stream.
type ToolExecutor struct {
	requirements repository.RequirementRepository
	log          *logrus.Entry
}

// NewToolExecutor creates a tool executor.
func NewToolExecutor(requirements repository.RequirementRepository, log *logrus.Entry) *ToolExecutor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ToolExecutor{requirements: requirements, log: log}
}

// Execute runs one tool by name with JSON-encoded arguments and returns
// the result payload.
func (e *ToolExecutor) Execute(ctx context.Context, name string, arguments string) json.RawMessage {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return errResult(fmt.Sprintf("invalid tool arguments: %v", err))
	}

	e.log.WithField("tool", name).Debug("executing tool")

	switch name {
	case "create_requirement":
		return e.createRequirement(ctx, args)
	case "update_requirement":
		return e.updateRequirement(ctx, args)
	case "delete_requirement":
		return e.deleteRequirement(ctx, args)
	case "attach_evidence":
		return e.attachEvidence(ctx, args)
	case "search_requirements":
		return e.searchRequirements(ctx, args)
	default:
		return errResult(fmt.Sprintf("unknown tool: %s", name))
	}
}

func (e *ToolExecutor) createRequirement(ctx context.Context, args map[string]interface{}) json.RawMessage {
	title, _ := args["title"].(string)
	if title == "" {
		return errResult("title is required")
	}
	req := repository.Requirement{
		Title:       title,
		Description: stringArg(args, "description"),
		Priority:    stringArg(args, "priority"),
	}
	if conv := stringArg(args, "conversation_id"); conv != "" {
		req.ConversationID = &conv
	}

	id, err := e.requirements.Create(ctx, req)
	if err != nil {
		return errResult(err.Error())
	}
	return okResult(map[string]interface{}{"id": id, "title": title})
}

func (e *ToolExecutor) updateRequirement(ctx context.Context, args map[string]interface{}) json.RawMessage {
	id, _ := args["id"].(string)
	if id == "" {
		return errResult("id is required")
	}

	updates := map[string]interface{}{}
	for _, column := range []string{"title", "description", "priority", "status"} {
		if v, ok := args[column]; ok {
			updates[column] = v
		}
	}
	if len(updates) == 0 {
		return errResult("no fields to update")
	}

	if err := e.requirements.Update(ctx, id, updates); err != nil {
		return errResult(err.Error())
	}
	return okResult(map[string]interface{}{"id": id, "updated": len(updates)})
}

func (e *ToolExecutor) deleteRequirement(ctx context.Context, args map[string]interface{}) json.RawMessage {
	id, _ := args["id"].(string)
	if id == "" {
		return errResult("id is required")
	}
	if err := e.requirements.Delete(ctx, id); err != nil {
		return errResult(err.Error())
	}
	return okResult(map[string]interface{}{"id": id, "deleted": true})
}

func (e *ToolExecutor) attachEvidence(ctx context.Context, args map[string]interface{}) json.RawMessage {
	id, _ := args["id"].(string)
	if id == "" {
		return errResult("id is required")
	}
	evidence, ok := args["evidence"]
	if !ok {
		return errResult("evidence is required")
	}
	entry, err := json.Marshal([]interface{}{evidence})
	if err != nil {
		return errResult(err.Error())
	}
	if err := e.requirements.AppendEvidence(ctx, id, entry); err != nil {
		return errResult(err.Error())
	}
	return okResult(map[string]interface{}{"id": id, "attached": true})
}

func (e *ToolExecutor) searchRequirements(ctx context.Context, _ map[string]interface{}) json.RawMessage {
	reqs, err := e.requirements.List(ctx)
	if err != nil {
		return errResult(err.Error())
	}
	items := make([]map[string]interface{}, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, map[string]interface{}{
			"id":       r.ID,
			"title":    r.Title,
			"priority": r.Priority,
			"status":   r.Status,
		})
	}
	return okResult(map[string]interface{}{"requirements": items, "count": len(items)})
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func okResult(payload map[string]interface{}) json.RawMessage {
	data, _ := json.Marshal(payload)
	return data
}

func errResult(message string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": message})
	return data
}

// Definitions returns the tool schemas advertised to the model.
func (e *ToolExecutor) Definitions() []openai.Tool {
	return []openai.Tool{
		toolDef("create_requirement", "Create a structured requirement for the engagement.", map[string]interface{}{
			"title":       prop("string", "Short requirement title"),
			"description": prop("string", "Full requirement description"),
			"priority":    prop("string", "One of low, medium, high"),
		}, []string{"title"}),
		toolDef("update_requirement", "Update fields of an existing requirement.", map[string]interface{}{
			"id":          prop("string", "Requirement id"),
			"title":       prop("string", "New title"),
			"description": prop("string", "New description"),
			"priority":    prop("string", "New priority"),
			"status":      prop("string", "One of open, in_progress, done"),
		}, []string{"id"}),
		toolDef("delete_requirement", "Delete a requirement.", map[string]interface{}{
			"id": prop("string", "Requirement id"),
		}, []string{"id"}),
		toolDef("attach_evidence", "Attach a piece of supporting evidence to a requirement.", map[string]interface{}{
			"id":       prop("string", "Requirement id"),
			"evidence": prop("string", "Evidence text or reference"),
		}, []string{"id", "evidence"}),
		toolDef("search_requirements", "List the engagement's current requirements.", map[string]interface{}{}, nil),
	}
}

func toolDef(name, description string, properties map[string]interface{}, required []string) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}
