package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kilnstock/kilnstock/internal/policy"
	"github.com/kilnstock/kilnstock/internal/shared"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// ErrPasswordTooShort indicates the password fails the length rule.
var ErrPasswordTooShort = errors.New("password must be at least 6 characters")

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Register creates a new account with the default role and no transaction
// restriction.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:                 uuid.New(),
		Username:           username,
		Email:              email,
		PasswordHash:       string(hash),
		Role:               policy.RoleUser,
		AllowedTransaction: policy.AllowAll,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ResetPassword replaces the password for the account with the given
// username and email pair.
func (s *Service) ResetPassword(ctx context.Context, username, email, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return shared.ErrNotFound
	}
	if !strings.EqualFold(user.Email, strings.TrimSpace(email)) {
		return shared.ErrNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, user.ID, string(hash))
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
