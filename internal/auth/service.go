package auth

import (
	"context"
	"errors"

	"github.com/caseflow/caseflow-backend/internal/repository"
)

// ErrInvalidCredentials is returned when email or password do not match
var ErrInvalidCredentials = errors.New("invalid email or password")

// Service authenticates portal users and issues tokens
type Service struct {
	users repository.UserRepository
	jwt   *JWTService
}

// NewService creates a new auth service
func NewService(users repository.UserRepository, jwt *JWTService) *Service {
	return &Service{users: users, jwt: jwt}
}

// Login verifies the credentials and returns a signed access token
func (s *Service) Login(ctx context.Context, email, password string) (string, *repository.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if user == nil || !CheckPassword(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email, user.Name)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Validate checks a token and returns its claims
func (s *Service) Validate(tokenString string) (*Claims, error) {
	return s.jwt.ValidateToken(tokenString)
}
