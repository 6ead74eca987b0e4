package main

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/config"
	"github.com/caseflow/caseflow-backend/internal/database"
	"github.com/caseflow/caseflow-backend/internal/repository/postgres"
	"github.com/caseflow/caseflow-backend/internal/upstream"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if cfg.OpenAI.APIKey == "" {
		log.Fatal("CASEFLOW_OPENAI_API_KEY is required")
	}

	logEntry := logrus.WithField("service", "caseflow-assistantd")

	// Connect to database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName: "CaseFlow Assistant",
	})
	app.Use(recover.New())
	app.Use(logger.New())

	// Initialize repositories
	conversationRepo := postgres.NewConversationRepository(db.DB)
	messageRepo := postgres.NewMessageRepository(db.DB)
	requirementRepo := postgres.NewRequirementRepository(db.DB)

	// Assistant service
	client := openai.NewClient(cfg.OpenAI.APIKey)
	tools := upstream.NewToolExecutor(requirementRepo, logEntry)
	service := upstream.NewService(client, cfg.OpenAI.Model, conversationRepo, messageRepo, tools, logEntry)
	detection := upstream.NewDetectionService(client, cfg.OpenAI.Model, logEntry)

	handlers := upstream.NewHandlers(service, detection, conversationRepo, messageRepo, logEntry)
	handlers.SetupRoutes(app, cfg.Assistant.Token)

	// Start server
	port := os.Getenv("CASEFLOW_ASSISTANTD_PORT")
	if port == "" {
		port = "8090"
	}

	log.Printf("CaseFlow Assistant starting on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
