package users

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// User belongs to exactly one role. The role reference is non-owning; roles
// live in the permission configuration.
type User struct {
	ID           uuid.UUID
	Username     string
	DisplayName  string
	RoleID       uuid.UUID
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	// ErrNotFound indicates the user record is missing.
	ErrNotFound = errors.New("users: not found")
	// ErrInvalidCredentials indicates a failed password check.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
)
