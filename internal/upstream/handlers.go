package upstream

import (
	"bufio"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/assistant/session"
	"github.com/caseflow/caseflow-backend/internal/assistant/sse"
	"github.com/caseflow/caseflow-backend/internal/repository"
)

// Handlers exposes the assistant service over HTTP.
type Handlers struct {
	service       *Service
	detection     *DetectionService
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	log           *logrus.Entry
}

// NewHandlers creates the handler set.
func NewHandlers(service *Service, detection *DetectionService, conversations repository.ConversationRepository, messages repository.MessageRepository, log *logrus.Entry) *Handlers {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handlers{
		service:       service,
		detection:     detection,
		conversations: conversations,
		messages:      messages,
		log:           log,
	}
}

// SetupRoutes registers the assistant service routes. serviceToken, when
// non-empty, is required as a bearer credential on every call.
func (h *Handlers) SetupRoutes(app *fiber.App, serviceToken string) {
	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "caseflow-assistantd",
		})
	})

	assistant := api.Group("/assistant", requireServiceToken(serviceToken))
	assistant.Post("/chat", h.Chat)
	assistant.Post("/detect", h.Detect)
	assistant.Get("/conversations", h.ListConversations)
	assistant.Get("/conversations/:id/messages", h.GetConversationMessages)
	assistant.Delete("/conversations/:id", h.DeleteConversation)
}

func requireServiceToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		if c.Get("Authorization") != "Bearer "+token {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service token",
			})
		}
		return c.Next()
	}
}

// Chat handles POST /api/v1/assistant/chat: it runs the exchange and
// streams protocol frames back as the response body.
func (h *Handlers) Chat(c *fiber.Ctx) error {
	var req session.ChatRequest
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

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	ctx := c.Context()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		writer := sse.NewWriter(w)

		err := h.service.Stream(ctx, req, writer.Emit)
		if err != nil {
			h.log.WithError(err).Warn("assistant exchange failed")
			// Best effort: the client may already be gone.
			_ = writer.Emit(sse.Event{Type: sse.EventError, Message: err.Error()})
		}
	})

	return nil
}

// Detect handles POST /api/v1/assistant/detect.
func (h *Handlers) Detect(c *fiber.Ctx) error {
	var req struct {
		Messages []session.Message `json:"messages"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	result, err := h.detection.Analyze(c.Context(), req.Messages)
	if err != nil {
		h.log.WithError(err).Warn("detection failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(result)
}

// ListConversations handles GET /api/v1/assistant/conversations.
func (h *Handlers) ListConversations(c *fiber.Ctx) error {
	convs, err := h.conversations.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

// GetConversationMessages handles GET
// /api/v1/assistant/conversations/:id/messages, the read the portal uses
// to seed a reopened session.
func (h *Handlers) GetConversationMessages(c *fiber.Ctx) error {
	id := c.Params("id")

	conv, err := h.conversations.Get(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if conv == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "conversation not found",
		})
	}

	stored, err := h.messages.ListByConversation(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	messages := make([]session.Message, 0, len(stored))
	for _, m := range stored {
		msg := session.Message{
			Role:      session.Role(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		if len(m.ToolCalls) > 0 {
			if err := json.Unmarshal(m.ToolCalls, &msg.ToolCalls); err != nil {
				h.log.WithError(err).WithField("message_id", m.ID).Warn("corrupt tool call record")
			}
		}
		messages = append(messages, msg)
	}

	return c.JSON(fiber.Map{
		"conversation_id": id,
		"messages":        messages,
	})
}

// DeleteConversation handles DELETE /api/v1/assistant/conversations/:id.
func (h *Handlers) DeleteConversation(c *fiber.Ctx) error {
	if err := h.conversations.Delete(c.Context(), c.Params("id")); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
