package serviceaccount

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/internal/services/servicetest"
	"github.com/obsplan/obsplan/internal/services/user"
	"github.com/obsplan/obsplan/pkg/models"
)

func TestRotateKeyInvalidatesOldSecret(t *testing.T) {
	db := servicetest.StartPostgres(t)
	log := servicetest.Logger()
	svc := NewService(db, log, "server-secret")
	ctx := context.Background()

	owner, err := user.NewService(db, log).Create(ctx, "ops", "", "", "ops@example.com", uuid.Nil)
	require.NoError(t, err)

	sa, err := svc.Create(ctx, "pipeline", nil, 30, owner.ID, owner.ID)
	require.NoError(t, err)
	oldSecret := sa.SecretKey

	resolved, err := svc.GetBySecret(ctx, oldSecret)
	require.NoError(t, err)
	assert.Equal(t, sa.ID, resolved.ID)

	rotated, err := svc.RotateKey(ctx, sa.ID, owner.ID)
	require.NoError(t, err)
	require.NotEqual(t, oldSecret, rotated.SecretKey)

	_, err = svc.GetBySecret(ctx, oldSecret)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnauthorized))

	resolved, err = svc.GetBySecret(ctx, rotated.SecretKey)
	require.NoError(t, err)
	assert.Equal(t, sa.ID, resolved.ID)
}

func TestDeleteExpiresAccountButKeepsRecord(t *testing.T) {
	db := servicetest.StartPostgres(t)
	log := servicetest.Logger()
	svc := NewService(db, log, "server-secret")
	ctx := context.Background()

	owner, err := user.NewService(db, log).Create(ctx, "ops", "", "", "ops@example.com", uuid.Nil)
	require.NoError(t, err)

	sa, err := svc.Create(ctx, "pipeline", nil, 30, owner.ID, owner.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, sa.ID, owner.ID))

	// The secret stops authenticating, indistinguishable from an unknown one.
	_, err = svc.GetBySecret(ctx, sa.SecretKey)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnauthorized))

	// The record itself stays readable.
	kept, err := svc.Get(ctx, sa.ID)
	require.NoError(t, err)
	assert.Equal(t, sa.ID, kept.ID)
}
