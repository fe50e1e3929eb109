package group

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

func TestResolveInviteEnforcesReceiver(t *testing.T) {
	db := servicetest.StartPostgres(t)
	log := servicetest.Logger()
	groups := NewService(db, log)
	users := user.NewService(db, log)
	ctx := context.Background()

	sender, err := users.Create(ctx, "sender", "", "", "sender@example.com", uuid.Nil)
	require.NoError(t, err)
	alice, err := users.Create(ctx, "alice", "", "", "alice@example.com", uuid.Nil)
	require.NoError(t, err)
	mallory, err := users.Create(ctx, "mallory", "", "", "mallory@example.com", uuid.Nil)
	require.NoError(t, err)

	g, err := groups.Create(ctx, "Burst Advocates", "BA", sender.ID)
	require.NoError(t, err)

	inv, err := groups.Invite(ctx, g.ID, "alice@example.com", sender.ID)
	require.NoError(t, err)

	// A different authenticated user cannot resolve the invite.
	_, err = groups.ResolveInvite(ctx, inv.ID, mallory.ID, mallory.Email, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	member, err := groups.IsMember(ctx, g.ID, mallory.ID)
	require.NoError(t, err)
	assert.False(t, member)

	// The invited address matches case-insensitively.
	resolved, err := groups.ResolveInvite(ctx, inv.ID, alice.ID, "ALICE@Example.COM", true)
	require.NoError(t, err)
	assert.Equal(t, models.InviteAccepted, resolved.Status)

	member, err = groups.IsMember(ctx, g.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, member)

	// A resolved invite cannot be resolved again.
	_, err = groups.ResolveInvite(ctx, inv.ID, alice.ID, alice.Email, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestResolveInviteRejectDoesNotJoin(t *testing.T) {
	db := servicetest.StartPostgres(t)
	log := servicetest.Logger()
	groups := NewService(db, log)
	users := user.NewService(db, log)
	ctx := context.Background()

	sender, err := users.Create(ctx, "sender", "", "", "sender@example.com", uuid.Nil)
	require.NoError(t, err)
	alice, err := users.Create(ctx, "alice", "", "", "alice@example.com", uuid.Nil)
	require.NoError(t, err)

	g, err := groups.Create(ctx, "Burst Advocates", "BA", sender.ID)
	require.NoError(t, err)

	inv, err := groups.Invite(ctx, g.ID, "alice@example.com", sender.ID)
	require.NoError(t, err)

	resolved, err := groups.ResolveInvite(ctx, inv.ID, alice.ID, alice.Email, false)
	require.NoError(t, err)
	assert.Equal(t, models.InviteRejected, resolved.Status)

	member, err := groups.IsMember(ctx, g.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, member)
}
