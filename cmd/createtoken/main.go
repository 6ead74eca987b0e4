package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/caseflow/caseflow-backend/internal/auth"
	"github.com/caseflow/caseflow-backend/internal/config"
)

// Mints an access token without going through the login endpoint, handy
// for exercising the API with curl.
func main() {
	var (
		userID = flag.String("user-id", "", "User id to embed in the token")
		email  = flag.String("email", "consultant@example.com", "User email")
		name   = flag.String("name", "Test Consultant", "Full name")
	)
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user-id is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("CASEFLOW_AUTH_JWT_SECRET is required")
	}

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	token, err := jwtService.GenerateToken(*userID, *email, *name)
	if err != nil {
		log.Fatal("Failed to generate token:", err)
	}

	fmt.Println(token)
}
