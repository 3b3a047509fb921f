package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// RepositoryPort describes the persistence operations the service needs.
type RepositoryPort interface {
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	Create(ctx context.Context, user User) error
}

// Service owns user lookups and credential handling.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateInput carries new-user data.
type CreateInput struct {
	Username    string
	DisplayName string
	RoleID      uuid.UUID
	Password    string
}

// Create hashes the password and stores the user.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return User{}, shared.NewValidationError("username", "required")
	}
	if input.RoleID == uuid.Nil {
		return User{}, shared.NewValidationError("role_id", "required")
	}
	if len(input.Password) < 8 {
		return User{}, shared.NewValidationError("password", "must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:           uuid.New(),
		Username:     username,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		RoleID:       input.RoleID,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// VerifyPassword checks credentials for an active user.
func (s *Service) VerifyPassword(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if !user.IsActive {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Actor resolves the shared.Actor for a user ID. The outer HTTP layer calls
// this after verifying its authentication token. Unknown and inactive users
// both surface as a shared.NotFoundError so callers classify them uniformly.
func (s *Service) Actor(ctx context.Context, userID uuid.UUID) (shared.Actor, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return shared.Actor{}, &shared.NotFoundError{Entity: "user", ID: userID.String()}
	}
	if err != nil {
		return shared.Actor{}, err
	}
	if !user.IsActive {
		return shared.Actor{}, &shared.NotFoundError{Entity: "user", ID: userID.String()}
	}
	return shared.Actor{UserID: user.ID, RoleID: user.RoleID, Username: user.Username}, nil
}
