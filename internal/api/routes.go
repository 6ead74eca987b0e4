// Package api wires the portal's HTTP surface: authentication, the
// assistant chat relay, and requirement views.
package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/api/handlers"
	"github.com/caseflow/caseflow-backend/internal/api/middleware"
	"github.com/caseflow/caseflow-backend/internal/auth"
	"github.com/caseflow/caseflow-backend/internal/repository"
)

// Deps are the collaborators the portal routes need.
type Deps struct {
	AuthService  *auth.Service
	ChatManager  *handlers.ChatManager
	Requirements repository.RequirementRepository
	Log          *logrus.Entry
}

// SetupRoutes configures all portal routes.
func SetupRoutes(app *fiber.App, deps Deps) {
	api := app.Group("/api/v1")

	// Public routes
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "caseflow-backend",
		})
	})
	api.Post("/auth/login", middleware.AuthRateLimit(), handlers.Login(deps.AuthService, deps.Log))

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(deps.AuthService))

	protected.Get("/auth/me", handlers.GetCurrentUser())

	// Assistant chat relay
	chat := deps.ChatManager
	protected.Post("/assistant/chat", chat.Chat)
	protected.Get("/assistant/revision", chat.GetRevision)
	protected.Get("/assistant/conversations", chat.ListConversations)
	protected.Get("/assistant/conversations/:id/messages", chat.GetConversationMessages)
	protected.Delete("/assistant/conversations/:id", chat.DeleteConversation)
	protected.Post("/assistant/conversations/:id/cancel", chat.Cancel)
	protected.Get("/assistant/conversations/:id/detection", chat.GetDetection)
	protected.Post("/assistant/conversations/:id/detection/dismiss", chat.DismissDetection)
	protected.Post("/assistant/conversations/:id/detection/accept", chat.AcceptDetection)

	// Requirement views
	requirementHandlers := handlers.NewRequirementHandlers(deps.Requirements, deps.Log)
	protected.Get("/requirements", requirementHandlers.List)
	protected.Get("/requirements/:id", requirementHandlers.Get)

	// WebSocket chat, token via query param since browsers cannot set
	// headers on the upgrade request.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if token == "" {
			token = auth.ExtractTokenFromBearer(c.Get("Authorization"))
		}
		if token != "" {
			if claims, err := deps.AuthService.Validate(token); err == nil {
				c.Locals("user_id", claims.UserID)
				return c.Next()
			}
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required for WebSocket",
		})
	})
	app.Get("/ws/chat", websocket.New(chat.StreamChat))
}
