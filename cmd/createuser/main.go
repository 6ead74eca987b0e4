package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/caseflow/caseflow-backend/internal/auth"
	"github.com/caseflow/caseflow-backend/internal/config"
	"github.com/caseflow/caseflow-backend/internal/database"
	"github.com/caseflow/caseflow-backend/internal/repository"
	"github.com/caseflow/caseflow-backend/internal/repository/postgres"
)

func main() {
	// Parse command line flags
	var (
		email    = flag.String("email", "consultant@example.com", "User email")
		password = flag.String("password", "password123", "User password")
		name     = flag.String("name", "Test Consultant", "Full name")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatal("Failed to hash password:", err)
	}

	users := postgres.NewUserRepository(db.DB)
	ctx := context.Background()

	existing, err := users.GetByEmail(ctx, *email)
	if err != nil {
		log.Fatal("Failed to look up user:", err)
	}
	if existing != nil {
		log.Fatalf("User %s already exists (id %s)", *email, existing.ID)
	}

	id, err := users.Create(ctx, repository.User{
		Email:        *email,
		Name:         *name,
		PasswordHash: hash,
	})
	if err != nil {
		log.Fatal("Failed to create user:", err)
	}

	fmt.Printf("Created user:\n")
	fmt.Printf("   Email: %s\n", *email)
	fmt.Printf("   Password: %s\n", *password)
	fmt.Printf("   ID: %s\n", id)
}
