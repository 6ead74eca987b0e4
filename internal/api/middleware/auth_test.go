package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/caseflow-backend/internal/auth"
)

func protectedApp(t *testing.T) (*fiber.App, *auth.JWTService) {
	t.Helper()
	jwtService := auth.NewJWTService("test-secret", "caseflow")
	authService := auth.NewService(nil, jwtService)

	app := fiber.New()
	app.Get("/me", AuthRequired(authService), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": GetUserID(c)})
	})
	return app, jwtService
}

func TestAuthRequired_ValidToken(t *testing.T) {
	app, jwtService := protectedApp(t)

	token, err := jwtService.GenerateToken("user-1", "a@b.c", "A")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthRequired_MissingToken(t *testing.T) {
	app, _ := protectedApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequired_BadToken(t *testing.T) {
	app, _ := protectedApp(t)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequired_CookieFallback(t *testing.T) {
	app, jwtService := protectedApp(t)

	token, err := jwtService.GenerateToken("user-2", "b@c.d", "B")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
