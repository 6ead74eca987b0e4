// Package upstream implements the assistant service: it produces the
// event-stream wire format the client subsystem consumes, executes the
// assistant's tools against the requirements store, and answers
// requirement-detection queries.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/assistant/session"
	"github.com/caseflow/caseflow-backend/internal/assistant/sse"
	"github.com/caseflow/caseflow-backend/internal/repository"
)

const (
	// maxToolRounds bounds how many times the model may chain tool
	// calls in a single exchange.
	maxToolRounds = 4

	systemPrompt = "You are the CaseFlow consulting assistant. You help consultants " +
		"capture, refine and track engagement requirements. Use the provided tools " +
		"to create or change requirements when the user asks for it; answer " +
		"directly otherwise."
)

// Service runs one assistant exchange: it drives the upstream model,
// executes tool calls, persists the finished conversation, and emits the
// wire-format events.
type Service struct {
	client        *openai.Client
	model         string
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	tools         *ToolExecutor
	log           *logrus.Entry
}

// NewService creates the assistant service.
func NewService(client *openai.Client, model string, conversations repository.ConversationRepository, messages repository.MessageRepository, tools *ToolExecutor, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		client:        client,
		model:         model,
		conversations: conversations,
		messages:      messages,
		tools:         tools,
		log:           log,
	}
}

// Stream processes one chat request, calling emit for every protocol
// event in order. A nil return means a done event was emitted; on error
// the caller is responsible for emitting the error event.
func (s *Service) Stream(ctx context.Context, req session.ChatRequest, emit func(sse.Event) error) error {
	convID := req.ConversationID
	if convID == "" {
		id, err := s.conversations.Create(ctx, repository.Conversation{Title: titleFrom(req.Message)})
		if err != nil {
			return fmt.Errorf("creating conversation: %w", err)
		}
		convID = id
	} else if err := s.conversations.Touch(ctx, convID); err != nil {
		s.log.WithError(err).Warn("failed to touch conversation")
	}

	if err := emit(sse.Event{Type: sse.EventConversationID, ConversationID: convID}); err != nil {
		return err
	}

	if _, err := s.messages.Create(ctx, repository.Message{
		ConversationID: convID,
		Role:           string(session.RoleUser),
		Content:        req.Message,
	}); err != nil {
		// Persistence is best effort; the exchange itself goes on.
		s.log.WithError(err).Warn("failed to persist user message")
	}

	prompt := buildPrompt(req)

	var content strings.Builder
	var applied []session.ToolCall

	for round := 0; round < maxToolRounds; round++ {
		calls, err := s.streamRound(ctx, prompt, &content, emit)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			break
		}

		prompt = append(prompt, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			ToolCalls: calls,
		})

		for _, call := range calls {
			result := s.tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
			event := sse.Event{
				Type:     sse.EventToolResult,
				ToolName: call.Function.Name,
				Result:   result,
			}

			record := session.ToolCall{Name: call.Function.Name, Status: session.ToolComplete, Result: result}
			if msg := event.ResultError(); msg != "" {
				record.Status = session.ToolError
				record.Error = msg
			}
			applied = append(applied, record)

			if err := emit(event); err != nil {
				return err
			}

			prompt = append(prompt, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    string(result),
			})
		}
	}

	s.persistAssistantMessage(ctx, convID, content.String(), applied)

	return emit(sse.Event{Type: sse.EventDone})
}

// streamRound runs one model call, emitting text deltas as they arrive
// and accumulating any tool calls the model requests.
func (s *Service) streamRound(ctx context.Context, prompt []openai.ChatCompletionMessage, content *strings.Builder, emit func(sse.Event) error) ([]openai.ToolCall, error) {
	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: prompt,
		Tools:    s.tools.Definitions(),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer stream.Close()

	pending := map[int]*openai.ToolCall{}
	var order []int

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("model stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			content.WriteString(delta.Content)
			if err := emit(sse.Event{Type: sse.EventText, Content: delta.Content}); err != nil {
				return nil, err
			}
		}

		// Tool call arguments arrive as fragments keyed by index.
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &openai.ToolCall{Type: openai.ToolTypeFunction}
				pending[idx] = call
				order = append(order, idx)
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Function.Name = tc.Function.Name
			}
			call.Function.Arguments += tc.Function.Arguments
		}
	}

	calls := make([]openai.ToolCall, 0, len(order))
	for _, idx := range order {
		calls = append(calls, *pending[idx])
	}
	return calls, nil
}

func (s *Service) persistAssistantMessage(ctx context.Context, convID, content string, calls []session.ToolCall) {
	toolCalls := []byte("[]")
	if len(calls) > 0 {
		if data, err := json.Marshal(calls); err == nil {
			toolCalls = data
		}
	}

	if _, err := s.messages.Create(ctx, repository.Message{
		ConversationID: convID,
		Role:           string(session.RoleAssistant),
		Content:        content,
		ToolCalls:      toolCalls,
	}); err != nil {
		s.log.WithError(err).Warn("failed to persist assistant message")
	}
	if err := s.conversations.Touch(ctx, convID); err != nil {
		s.log.WithError(err).Warn("failed to touch conversation")
	}
}

// buildPrompt assembles the model messages from the request: system
// prompt plus optional context, the bounded history slice, and the new
// user message.
func buildPrompt(req session.ChatRequest) []openai.ChatCompletionMessage {
	system := systemPrompt
	if req.Context != "" {
		system += "\n\nEngagement context: " + req.Context
	}
	if req.PageContext != "" {
		system += "\n\nThe user is currently looking at: " + req.PageContext
	}
	if req.Starter != "" {
		system += "\n\nSuggested opener for this exchange: " + req.Starter
	}

	prompt := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == session.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		prompt = append(prompt, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	prompt = append(prompt, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})
	return prompt
}

func titleFrom(message string) string {
	title := strings.TrimSpace(message)
	if len(title) > 60 {
		title = title[:60]
	}
	return title
}
