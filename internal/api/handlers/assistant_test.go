package handlers

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/caseflow-backend/internal/assistant"
	"github.com/caseflow/caseflow-backend/internal/assistant/detect"
	"github.com/caseflow/caseflow-backend/internal/assistant/session"
	"github.com/caseflow/caseflow-backend/internal/config"
)

type fakeClient struct {
	stream    string
	streamErr error

	history    []session.Message
	historyErr error

	detectResult *detect.Result

	conversations []assistant.ConversationSummary
	deleted       []string
}

func (f *fakeClient) OpenStream(ctx context.Context, req session.ChatRequest) (io.ReadCloser, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return io.NopCloser(strings.NewReader(f.stream)), nil
}

func (f *fakeClient) Detect(ctx context.Context, messages []session.Message) (*detect.Result, error) {
	if f.detectResult == nil {
		return &detect.Result{}, nil
	}
	return f.detectResult, nil
}

func (f *fakeClient) History(ctx context.Context, conversationID string) ([]session.Message, error) {
	return f.history, f.historyErr
}

func (f *fakeClient) ListConversations(ctx context.Context) ([]assistant.ConversationSummary, error) {
	return f.conversations, nil
}

func (f *fakeClient) DeleteConversation(ctx context.Context, conversationID string) error {
	f.deleted = append(f.deleted, conversationID)
	return nil
}

func testConfig() config.AssistantConfig {
	return config.AssistantConfig{
		MutatingTools: []string{"create_requirement", "update_requirement", "delete_requirement", "attach_evidence"},
	}
}

func chatApp(m *ChatManager) *fiber.App {
	app := fiber.New()
	app.Post("/chat", m.Chat)
	app.Get("/conversations", m.ListConversations)
	app.Get("/conversations/:id/messages", m.GetConversationMessages)
	app.Delete("/conversations/:id", m.DeleteConversation)
	app.Post("/conversations/:id/cancel", m.Cancel)
	app.Get("/conversations/:id/detection", m.GetDetection)
	app.Post("/conversations/:id/detection/dismiss", m.DismissDetection)
	app.Post("/conversations/:id/detection/accept", m.AcceptDetection)
	app.Get("/revision", m.GetRevision)
	return app
}

func TestChatManager_ChatRelaysStream(t *testing.T) {
	client := &fakeClient{
		stream: "data: {\"type\":\"conversation_id\",\"id\":\"conv-1\"}\n\n" +
			"data: {\"type\":\"text\",\"content\":\"Noted\"}\n\n" +
			"data: {\"type\":\"tool_result\",\"tool_name\":\"create_requirement\",\"result\":{\"id\":\"req-1\"}}\n\n" +
			"data: {\"type\":\"done\"}\n\n",
	}
	m := NewChatManager(client, testConfig(), nil)
	app := chatApp(m)

	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`{"message":"capture that"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `"type":"conversation_id"`)
	assert.Contains(t, text, `"type":"text"`)
	assert.Contains(t, text, `"type":"tool_result"`)
	assert.Contains(t, text, `"type":"done"`)

	// The mutating tool bumped the revision and the conversation is now
	// addressable by id.
	assert.Equal(t, int64(1), m.Revision())
	require.NotNil(t, m.lookup("conv-1"))

	messages := m.lookup("conv-1").controller.Session().Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, session.RoleUser, messages[0].Role)
	assert.Equal(t, "Noted", messages[1].Content)
}

func TestChatManager_ChatRequiresMessage(t *testing.T) {
	m := NewChatManager(&fakeClient{}, testConfig(), nil)
	app := chatApp(m)

	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`{"message":""}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestChatManager_ChatEmitsErrorFrameOnFailure(t *testing.T) {
	client := &fakeClient{
		// Body ends without a done event.
		stream: "data: {\"type\":\"conversation_id\",\"id\":\"conv-1\"}\n\n" +
			"data: {\"type\":\"text\",\"content\":\"par\"}\n\n",
	}
	m := NewChatManager(client, testConfig(), nil)
	app := chatApp(m)

	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"type":"error"`)
}

func TestChatManager_ChatLoadFailure(t *testing.T) {
	client := &fakeClient{historyErr: errors.New("connection refused")}
	m := NewChatManager(client, testConfig(), nil)
	app := chatApp(m)

	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`{"message":"hi","conversation_id":"conv-9"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func TestChatManager_ReopenSeedsFromHistory(t *testing.T) {
	client := &fakeClient{
		history: []session.Message{
			{Role: session.RoleUser, Content: "old question"},
			{Role: session.RoleAssistant, Content: "old answer"},
		},
		stream: "data: {\"type\":\"text\",\"content\":\"fresh\"}\n\ndata: {\"type\":\"done\"}\n\n",
	}
	m := NewChatManager(client, testConfig(), nil)
	app := chatApp(m)

	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`{"message":"again","conversation_id":"conv-2"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	_, _ = io.ReadAll(resp.Body)

	state := m.lookup("conv-2")
	require.NotNil(t, state)
	messages := state.controller.Session().Messages()
	require.Len(t, messages, 4)
	assert.Equal(t, "old question", messages[0].Content)
	assert.Equal(t, "fresh", messages[3].Content)
}

func TestChatManager_GetConversationMessagesPrefersLiveState(t *testing.T) {
	client := &fakeClient{
		history: []session.Message{{Role: session.RoleUser, Content: "stored"}},
		stream:  "data: {\"type\":\"conversation_id\",\"id\":\"conv-3\"}\n\ndata: {\"type\":\"text\",\"content\":\"live\"}\n\ndata: {\"type\":\"done\"}\n\n",
	}
	m := NewChatManager(client, testConfig(), nil)
	app := chatApp(m)

	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	_, _ = io.ReadAll(resp.Body)

	resp, err = app.Test(httptest.NewRequest("GET", "/conversations/conv-3/messages", nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "live")
	assert.NotContains(t, string(body), "stored")
}

func TestChatManager_DetectionLifecycle(t *testing.T) {
	client := &fakeClient{stream: "data: {\"type\":\"done\"}\n\n"}
	m := NewChatManager(client, testConfig(), nil)

	state, err := m.stateFor(context.Background(), "")
	require.NoError(t, err)
	m.chats["conv-5"] = state

	app := chatApp(m)

	// Nothing pending yet.
	resp, err := app.Test(httptest.NewRequest("GET", "/conversations/conv-5/detection", nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"pending":null`)

	// Unknown conversations are a 404.
	resp, err = app.Test(httptest.NewRequest("POST", "/conversations/ghost/detection/dismiss", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/conversations/conv-5/detection/dismiss", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/conversations/conv-5/detection/accept", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestChatManager_DeleteDropsLiveState(t *testing.T) {
	client := &fakeClient{stream: "data: {\"type\":\"done\"}\n\n"}
	m := NewChatManager(client, testConfig(), nil)

	state, err := m.stateFor(context.Background(), "")
	require.NoError(t, err)
	m.chats["conv-7"] = state

	app := chatApp(m)
	resp, err := app.Test(httptest.NewRequest("DELETE", "/conversations/conv-7", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	assert.Nil(t, m.lookup("conv-7"))
	assert.Equal(t, []string{"conv-7"}, client.deleted)
}

func TestChatManager_CancelUnknownConversation(t *testing.T) {
	m := NewChatManager(&fakeClient{}, testConfig(), nil)
	app := chatApp(m)

	resp, err := app.Test(httptest.NewRequest("POST", "/conversations/ghost/cancel", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestChatManager_Revision(t *testing.T) {
	m := NewChatManager(&fakeClient{}, testConfig(), nil)
	app := chatApp(m)

	resp, err := app.Test(httptest.NewRequest("GET", "/revision", nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"revision":0}`, string(body))
}
