package handlers

import (
	"bufio"
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/assistant"
	"github.com/caseflow/caseflow-backend/internal/assistant/detect"
	"github.com/caseflow/caseflow-backend/internal/assistant/session"
	"github.com/caseflow/caseflow-backend/internal/assistant/sse"
	"github.com/caseflow/caseflow-backend/internal/config"
)

// AssistantClient is what the chat manager needs from the assistant
// service client.
type AssistantClient interface {
	session.Transport
	detect.Detector
	History(ctx context.Context, conversationID string) ([]session.Message, error)
	ListConversations(ctx context.Context) ([]assistant.ConversationSummary, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// chatState is everything the portal keeps per open conversation: the
// session controller and the detection trigger. The sink is the current
// request's event writer; it swaps when the browser reconnects to the
// same conversation.
type chatState struct {
	controller *session.Controller
	trigger    *detect.Trigger

	mu   sync.Mutex
	sink func(sse.Event)
}

func (cs *chatState) setSink(sink func(sse.Event)) {
	cs.mu.Lock()
	cs.sink = sink
	cs.mu.Unlock()
}

func (cs *chatState) emit(event sse.Event) {
	cs.mu.Lock()
	sink := cs.sink
	cs.mu.Unlock()
	if sink != nil {
		sink(event)
	}
}

// ChatManager owns the portal's live conversations. Each conversation
// gets one controller and one detection trigger for its whole life; HTTP
// and WebSocket requests attach to them. Mutating tool calls bump the
// revision counter so requirement views know to refresh.
type ChatManager struct {
	client AssistantClient
	cfg    config.AssistantConfig
	log    *logrus.Entry

	mu    sync.Mutex
	chats map[string]*chatState

	revision int64
}

// NewChatManager creates the manager.
func NewChatManager(client AssistantClient, cfg config.AssistantConfig, log *logrus.Entry) *ChatManager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ChatManager{
		client: client,
		cfg:    cfg,
		log:    log,
		chats:  map[string]*chatState{},
	}
}

// Revision returns the requirements revision counter. It increments every
// time the assistant successfully runs a mutating tool.
func (m *ChatManager) Revision() int64 {
	return atomic.LoadInt64(&m.revision)
}

// stateFor returns the live state for the conversation, creating and
// seeding it from stored history when the portal sees the id for the
// first time. An empty id always starts a fresh conversation.
func (m *ChatManager) stateFor(ctx context.Context, conversationID string) (*chatState, error) {
	if conversationID != "" {
		m.mu.Lock()
		state, ok := m.chats[conversationID]
		m.mu.Unlock()
		if ok {
			return state, nil
		}
	}

	var sess *session.Session
	if conversationID == "" {
		sess = session.New()
	} else {
		history, err := m.client.History(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		sess = session.NewSeeded(conversationID, history)
	}

	state := &chatState{}
	notifier := session.NewMutationNotifier(m.cfg.MutatingTools, func() {
		atomic.AddInt64(&m.revision, 1)
	}, m.log)

	state.controller = session.NewController(sess, session.ControllerConfig{
		Transport: m.client,
		Notifier:  notifier,
		Context:   m.cfg.Context,
		OnEvent:   state.emit,
		Log:       m.log,
	})
	state.trigger = detect.NewTrigger(m.client, m.log)

	if conversationID != "" {
		m.mu.Lock()
		m.chats[conversationID] = state
		m.mu.Unlock()
	}
	return state, nil
}

// register indexes the state by its conversation id once the backend has
// assigned one. New conversations only become addressable (cancel,
// detection actions) after their first exchange completes the id event.
func (m *ChatManager) register(state *chatState) {
	id := state.controller.Session().ConversationID()
	if id == "" {
		return
	}
	m.mu.Lock()
	if _, ok := m.chats[id]; !ok {
		m.chats[id] = state
	}
	m.mu.Unlock()
}

func (m *ChatManager) lookup(conversationID string) *chatState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chats[conversationID]
}

// chatRequest is the browser-facing chat request.
type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	PageContext    string `json:"page_context,omitempty"`
	Starter        string `json:"starter,omitempty"`
}

// detectionFrame is the sidecar frame appended after the done event when
// a detection fires. The stream parser on other surfaces skips it as an
// unknown type, so it never disturbs the message state machine.
type detectionFrame struct {
	Type           string `json:"type"`
	Recommendation bool   `json:"recommendation"`
	CandidateCount int    `json:"candidate_count"`
	Summary        string `json:"summary"`
}

func newDetectionFrame(result *detect.Result) detectionFrame {
	return detectionFrame{
		Type:           "detection",
		Recommendation: result.Recommendation,
		CandidateCount: result.CandidateCount,
		Summary:        result.Summary,
	}
}

// Chat handles POST /api/v1/assistant/chat: it relays the assistant's
// event stream to the browser frame by frame.
func (m *ChatManager) Chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "message is required",
		})
	}

	state, err := m.stateFor(c.Context(), req.ConversationID)
	if err != nil {
		m.log.WithError(err).Warn("failed to load conversation")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "assistant service unavailable",
		})
	}
	if state.controller.Session().Busy() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "a response is already streaming for this conversation",
		})
	}

	state.controller.SetPageContext(req.PageContext)
	if req.Starter != "" {
		state.controller.SetStarter(req.Starter)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// The request context doubles as the stream context: when the
	// browser goes away the read loop aborts and rolls back.
	ctx := c.Context()
	message := req.Message

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		writer := sse.NewWriter(w)

		var sawError bool
		state.setSink(func(event sse.Event) {
			if event.Type == sse.EventError {
				sawError = true
			}
			if err := writer.Emit(event); err != nil {
				m.log.WithError(err).Debug("browser went away mid-stream")
			}
		})
		defer state.setSink(nil)

		if err := state.controller.Send(ctx, message); err != nil {
			m.log.WithError(err).Warn("assistant exchange failed")
			if !sawError {
				_ = writer.Emit(sse.Event{Type: sse.EventError, Message: "assistant request failed"})
			}
			return
		}

		m.register(state)

		if result := state.trigger.MaybeRun(ctx, state.controller.Session()); result != nil {
			_ = writer.EmitRaw(newDetectionFrame(result))
		}
	})

	return nil
}

// wsRequest is one inbound WebSocket message.
type wsRequest struct {
	Type           string `json:"type"` // "message" or "cancel"
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	PageContext    string `json:"page_context,omitempty"`
	Starter        string `json:"starter,omitempty"`
}

// StreamChat is the WebSocket variant of Chat: the same event stream as
// JSON messages over one long-lived connection, with in-flight sends
// cancellable by a cancel message.
func (m *ChatManager) StreamChat(conn *websocket.Conn) {
	defer conn.Close()

	var writeMu sync.Mutex
	writeJSON := func(v interface{}) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(v); err != nil {
			m.log.WithError(err).Debug("websocket write failed")
		}
	}

	var state *chatState
	var sendWG sync.WaitGroup
	defer sendWG.Wait()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if state != nil {
				state.controller.Cancel()
			}
			return
		}

		switch req.Type {
		case "cancel":
			if state != nil {
				state.controller.Cancel()
			}

		case "message":
			if req.Message == "" {
				writeJSON(fiber.Map{"type": "error", "message": "message is required"})
				continue
			}
			if state == nil {
				var err error
				state, err = m.stateFor(context.Background(), req.ConversationID)
				if err != nil {
					m.log.WithError(err).Warn("failed to load conversation")
					writeJSON(fiber.Map{"type": "error", "message": "assistant service unavailable"})
					continue
				}
			}
			if state.controller.Session().Busy() {
				writeJSON(fiber.Map{"type": "error", "message": "a response is already streaming"})
				continue
			}

			state.controller.SetPageContext(req.PageContext)
			if req.Starter != "" {
				state.controller.SetStarter(req.Starter)
			}

			state.setSink(func(event sse.Event) { writeJSON(event) })

			st := state
			message := req.Message
			sendWG.Add(1)
			go func() {
				defer sendWG.Done()
				err := st.controller.Send(context.Background(), message)
				if err != nil {
					m.log.WithError(err).Warn("assistant exchange failed")
					if !errors.Is(err, session.ErrStreamInFlight) {
						writeJSON(fiber.Map{"type": "error", "message": "assistant request failed"})
					}
					return
				}
				m.register(st)
				if result := st.trigger.MaybeRun(context.Background(), st.controller.Session()); result != nil {
					writeJSON(newDetectionFrame(result))
				}
			}()

		default:
			writeJSON(fiber.Map{"type": "error", "message": "unknown request type"})
		}
	}
}

// Cancel handles POST /api/v1/assistant/conversations/:id/cancel. The
// in-flight assistant message is rolled back; the user's message stays.
func (m *ChatManager) Cancel(c *fiber.Ctx) error {
	state := m.lookup(c.Params("id"))
	if state == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no live conversation with that id",
		})
	}
	state.controller.Cancel()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "cancelling"})
}

// GetDetection handles GET
// /api/v1/assistant/conversations/:id/detection, returning the pending
// detection result, if any.
func (m *ChatManager) GetDetection(c *fiber.Ctx) error {
	state := m.lookup(c.Params("id"))
	if state == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no live conversation with that id",
		})
	}
	return c.JSON(fiber.Map{"pending": state.trigger.Pending()})
}

// DismissDetection handles POST
// /api/v1/assistant/conversations/:id/detection/dismiss.
func (m *ChatManager) DismissDetection(c *fiber.Ctx) error {
	state := m.lookup(c.Params("id"))
	if state == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no live conversation with that id",
		})
	}
	state.trigger.Dismiss()
	return c.SendStatus(fiber.StatusNoContent)
}

// AcceptDetection handles POST
// /api/v1/assistant/conversations/:id/detection/accept, called after the
// user saved the suggested requirements.
func (m *ChatManager) AcceptDetection(c *fiber.Ctx) error {
	state := m.lookup(c.Params("id"))
	if state == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no live conversation with that id",
		})
	}
	state.trigger.Accept()
	return c.SendStatus(fiber.StatusNoContent)
}

// ListConversations handles GET /api/v1/assistant/conversations.
func (m *ChatManager) ListConversations(c *fiber.Ctx) error {
	conversations, err := m.client.ListConversations(c.Context())
	if err != nil {
		m.log.WithError(err).Warn("failed to list conversations")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "assistant service unavailable",
		})
	}
	return c.JSON(fiber.Map{"conversations": conversations})
}

// GetConversationMessages handles GET
// /api/v1/assistant/conversations/:id/messages. Live conversations answer
// from the in-memory session, so a reconnecting tab sees messages applied
// since the stored copy; everything else proxies the assistant service.
func (m *ChatManager) GetConversationMessages(c *fiber.Ctx) error {
	id := c.Params("id")

	if state := m.lookup(id); state != nil {
		return c.JSON(fiber.Map{
			"conversation_id": id,
			"messages":        state.controller.Session().Messages(),
		})
	}

	messages, err := m.client.History(c.Context(), id)
	if err != nil {
		m.log.WithError(err).Warn("failed to load conversation")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "assistant service unavailable",
		})
	}
	return c.JSON(fiber.Map{
		"conversation_id": id,
		"messages":        messages,
	})
}

// DeleteConversation handles DELETE
// /api/v1/assistant/conversations/:id: it drops the live state and
// deletes the stored copy.
func (m *ChatManager) DeleteConversation(c *fiber.Ctx) error {
	id := c.Params("id")

	m.mu.Lock()
	if state, ok := m.chats[id]; ok {
		state.controller.Cancel()
		delete(m.chats, id)
	}
	m.mu.Unlock()

	if err := m.client.DeleteConversation(c.Context(), id); err != nil {
		m.log.WithError(err).Warn("failed to delete conversation")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "assistant service unavailable",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetRevision handles GET /api/v1/assistant/revision. Requirement views
// poll it and refetch when the value moves.
func (m *ChatManager) GetRevision(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"revision": m.Revision()})
}
