package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/api"
	"github.com/caseflow/caseflow-backend/internal/api/handlers"
	"github.com/caseflow/caseflow-backend/internal/assistant"
	"github.com/caseflow/caseflow-backend/internal/auth"
	"github.com/caseflow/caseflow-backend/internal/config"
	"github.com/caseflow/caseflow-backend/internal/database"
	"github.com/caseflow/caseflow-backend/internal/repository/postgres"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logEntry := logrus.WithField("service", "caseflow-backend")

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
		AppName:      "CaseFlow Backend",
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     getOrigins(),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db.DB)
	requirementRepo := postgres.NewRequirementRepository(db.DB)

	// Initialize auth service
	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "change-me-in-production" // Default for development
		log.Println("WARNING: Using default JWT secret. Set CASEFLOW_AUTH_JWT_SECRET in production!")
	}
	authService := auth.NewService(userRepo, auth.NewJWTService(jwtSecret, cfg.Auth.Issuer))

	// Assistant service client and chat relay
	client := assistant.NewClient(cfg.Assistant.BaseURL, cfg.Assistant.Token, logEntry)
	chatManager := handlers.NewChatManager(client, cfg.Assistant, logEntry)

	// Setup routes
	api.SetupRoutes(app, api.Deps{
		AuthService:  authService,
		ChatManager:  chatManager,
		Requirements: requirementRepo,
		Log:          logEntry,
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("CaseFlow Backend starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func getOrigins() string {
	origins := os.Getenv("CASEFLOW_CORS_ORIGINS")
	if origins == "" {
		return "http://localhost:5173,http://localhost:3000"
	}
	return origins
}
