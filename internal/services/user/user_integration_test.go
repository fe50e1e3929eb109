package user

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/internal/services/servicetest"
	"github.com/obsplan/obsplan/pkg/models"
)

func TestSoftDeletedUsersAreExcluded(t *testing.T) {
	db := servicetest.StartPostgres(t)
	svc := NewService(db, servicetest.Logger())
	ctx := context.Background()

	alice, err := svc.Create(ctx, "alice", "Alice", "Arp", "alice@example.com", uuid.Nil)
	require.NoError(t, err)
	bob, err := svc.Create(ctx, "bob", "Bob", "Bok", "bob@example.com", uuid.Nil)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, alice.ID, bob.ID))

	_, err = svc.Get(ctx, alice.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = svc.GetByEmail(ctx, "alice@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	users, err := svc.List(ctx, 100, 0)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, bob.ID, users[0].ID)
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	db := servicetest.StartPostgres(t)
	svc := NewService(db, servicetest.Logger())
	ctx := context.Background()

	_, err := svc.Create(ctx, "alice", "Alice", "Arp", "alice@example.com", uuid.Nil)
	require.NoError(t, err)

	_, err = svc.Create(ctx, "alice2", "Alice", "Arp", "alice@example.com", uuid.Nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDuplicate))
}
