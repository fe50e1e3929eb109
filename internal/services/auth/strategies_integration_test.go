package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/internal/services/group"
	"github.com/obsplan/obsplan/internal/services/role"
	"github.com/obsplan/obsplan/internal/services/serviceaccount"
	"github.com/obsplan/obsplan/internal/services/servicetest"
	"github.com/obsplan/obsplan/internal/services/user"
	"github.com/obsplan/obsplan/pkg/config"
	"github.com/obsplan/obsplan/pkg/models"
)

func newStrategyFixture(t *testing.T) (*Service, *user.Service, *group.Service, *role.Service) {
	t.Helper()
	db := servicetest.StartPostgres(t)
	log := servicetest.Logger()

	users := user.NewService(db, log)
	accounts := serviceaccount.NewService(db, log, "server-secret")
	roles := role.NewService(db, log)
	groups := group.NewService(db, log)

	authSvc := NewService(db, nil, users, accounts, nil, config.AuthConfig{
		ServiceAccountSecretKey: "server-secret",
		SessionLifetime:         time.Hour,
		LoginTokenTTL:           10 * time.Minute,
	}, log)

	return authSvc, users, groups, roles
}

func TestGroupRoleGrantsStayConfinedToTheirGroup(t *testing.T) {
	authSvc, users, groups, roles := newStrategyFixture(t)
	ctx := context.Background()

	bob, err := users.Create(ctx, "bob", "", "", "bob@example.com", uuid.Nil)
	require.NoError(t, err)

	home, err := groups.Create(ctx, "Home Group", "HOME", bob.ID)
	require.NoError(t, err)
	other, err := groups.Create(ctx, "Other Group", "OTHER", bob.ID)
	require.NoError(t, err)

	perm, err := roles.CreatePermission(ctx, PermissionAll)
	require.NoError(t, err)

	gr, err := groups.CreateGroupRole(ctx, home.ID, "operators", bob.ID)
	require.NoError(t, err)
	require.NoError(t, groups.AttachGroupRolePermission(ctx, gr.ID, perm.ID, bob.ID))
	require.NoError(t, groups.AssignGroupRoleToUser(ctx, gr.ID, bob.ID))

	p := &Principal{User: bob}

	// The grant works inside its group.
	require.NoError(t, authSvc.RequireGroup(ctx, p, home.ID, "schedule:write"))

	// It does not leak into other groups or into global checks.
	err = authSvc.RequireGroup(ctx, p, other.ID, "schedule:write")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	err = authSvc.RequireGlobal(ctx, p, "schedule:write")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrForbidden))
}

func TestGlobalRoleGrantsApplyEverywhere(t *testing.T) {
	authSvc, users, groups, roles := newStrategyFixture(t)
	ctx := context.Background()

	admin, err := users.Create(ctx, "admin", "", "", "admin@example.com", uuid.Nil)
	require.NoError(t, err)

	g, err := groups.Create(ctx, "Any Group", "ANY", admin.ID)
	require.NoError(t, err)

	perm, err := roles.CreatePermission(ctx, PermissionAll)
	require.NoError(t, err)
	r, err := roles.Create(ctx, "administrator", admin.ID)
	require.NoError(t, err)
	require.NoError(t, roles.AttachPermission(ctx, r.ID, perm.ID, admin.ID))
	require.NoError(t, roles.AssignToUser(ctx, r.ID, admin.ID))

	p := &Principal{User: admin}

	require.NoError(t, authSvc.RequireGlobal(ctx, p, "schedule:write"))
	require.NoError(t, authSvc.RequireGroup(ctx, p, g.ID, "schedule:write"))
}
