package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aurora-erp/aurora-erp/internal/shared"
)

type memoryUserRepo struct {
	byID       map[uuid.UUID]User
	byUsername map[string]User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{byID: make(map[uuid.UUID]User), byUsername: make(map[string]User)}
}

func (r *memoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	u, ok := r.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *memoryUserRepo) GetByUsername(ctx context.Context, username string) (User, error) {
	u, ok := r.byUsername[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *memoryUserRepo) Create(ctx context.Context, user User) error {
	r.byID[user.ID] = user
	r.byUsername[user.Username] = user
	return nil
}

func TestCreateAndVerifyPassword(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateInput{
		Username: "buyer",
		RoleID:   uuid.New(),
		Password: "correct horse",
	})
	require.NoError(t, err)
	require.NotEqual(t, "correct horse", user.PasswordHash)

	verified, err := svc.VerifyPassword(ctx, "buyer", "correct horse")
	require.NoError(t, err)
	require.Equal(t, user.ID, verified.ID)

	_, err = svc.VerifyPassword(ctx, "buyer", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryUserRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Username: "", RoleID: uuid.New(), Password: "long enough"})
	require.True(t, shared.IsValidation(err))

	_, err = svc.Create(ctx, CreateInput{Username: "x", RoleID: uuid.Nil, Password: "long enough"})
	require.True(t, shared.IsValidation(err))

	_, err = svc.Create(ctx, CreateInput{Username: "x", RoleID: uuid.New(), Password: "short"})
	require.True(t, shared.IsValidation(err))
}

func TestActorResolution(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateInput{Username: "clerk", RoleID: uuid.New(), Password: "long enough"})
	require.NoError(t, err)

	actor, err := svc.Actor(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, user.RoleID, actor.RoleID)
	require.Equal(t, "clerk", actor.Username)

	// Unknown and inactive users surface as the shared not-found class so
	// the HTTP layer answers 401, never 500.
	_, err = svc.Actor(ctx, uuid.New())
	require.True(t, shared.IsNotFound(err))

	inactive := user
	inactive.IsActive = false
	repo.byID[inactive.ID] = inactive
	_, err = svc.Actor(ctx, inactive.ID)
	require.True(t, shared.IsNotFound(err))
}
