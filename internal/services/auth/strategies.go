package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/obsplan/obsplan/pkg/models"
)

// PermissionAll short-circuits every permission check.
const PermissionAll = "all:write"

// globalPermissions returns the principal's permission names derived
// from global roles only. Group role grants are confined to their group
// and never count here; they resolve through groupPermissions.
func (s *Service) globalPermissions(ctx context.Context, p *Principal) (map[string]bool, error) {
	var query string
	var id uuid.UUID

	if p.User != nil {
		id = p.User.ID
		query = `
			SELECT p.name FROM permissions p
			JOIN role_permissions rp ON rp.permission_id = p.permission_id
			JOIN user_roles ur ON ur.role_id = rp.role_id
			WHERE ur.user_id = $1
		`
	} else {
		id = p.ServiceAccount.ID
		query = `
			SELECT p.name FROM permissions p
			JOIN role_permissions rp ON rp.permission_id = p.permission_id
			JOIN service_account_roles sar ON sar.role_id = rp.role_id
			WHERE sar.service_account_id = $1
		`
	}

	rows, err := s.db.Pool().Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	perms := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms[name] = true
	}

	return perms, rows.Err()
}

// groupPermissions returns the permission names the principal holds
// through roles scoped to the given group.
func (s *Service) groupPermissions(ctx context.Context, p *Principal, groupID uuid.UUID) (map[string]bool, error) {
	var query string
	var id uuid.UUID

	if p.User != nil {
		id = p.User.ID
		query = `
			SELECT p.name FROM permissions p
			JOIN group_role_permissions grp ON grp.permission_id = p.permission_id
			JOIN group_roles gr ON gr.group_role_id = grp.group_role_id
			JOIN user_group_roles ugr ON ugr.group_role_id = gr.group_role_id
			WHERE ugr.user_id = $1 AND gr.group_id = $2
		`
	} else {
		id = p.ServiceAccount.ID
		query = `
			SELECT p.name FROM permissions p
			JOIN group_role_permissions grp ON grp.permission_id = p.permission_id
			JOIN group_roles gr ON gr.group_role_id = grp.group_role_id
			JOIN service_account_group_roles sagr ON sagr.group_role_id = gr.group_role_id
			WHERE sagr.service_account_id = $1 AND gr.group_id = $2
		`
	}

	rows, err := s.db.Pool().Query(ctx, query, id, groupID)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	perms := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms[name] = true
	}

	return perms, rows.Err()
}

// RequireGlobal allows principals holding the named permission, or
// PermissionAll, through any role.
func (s *Service) RequireGlobal(ctx context.Context, p *Principal, permission string) error {
	perms, err := s.globalPermissions(ctx, p)
	if err != nil {
		return err
	}
	if perms[permission] || perms[PermissionAll] {
		return nil
	}
	return fmt.Errorf("%w: requires %s", models.ErrForbidden, permission)
}

// RequireGroup allows principals holding the named permission within the
// group, or globally.
func (s *Service) RequireGroup(ctx context.Context, p *Principal, groupID uuid.UUID, permission string) error {
	perms, err := s.groupPermissions(ctx, p, groupID)
	if err != nil {
		return err
	}
	if perms[permission] || perms[PermissionAll] {
		return nil
	}
	return s.RequireGlobal(ctx, p, permission)
}

// RequireSelf allows a user acting on their own resources, or a service
// account owned by that user. Principals holding the named permission
// (or PermissionAll) may act on anyone.
func (s *Service) RequireSelf(ctx context.Context, p *Principal, userID uuid.UUID, permission string) error {
	if p.User != nil && p.User.ID == userID {
		return nil
	}
	if p.ServiceAccount != nil {
		owned, err := s.accounts.OwnedBy(ctx, p.ServiceAccount.ID, userID)
		if err != nil {
			return err
		}
		if owned {
			return nil
		}
	}
	return s.RequireGlobal(ctx, p, permission)
}

// RequireSystemServiceAccount allows only service accounts holding the
// named permission. System ingest endpoints use this so a stolen session
// token cannot feed the catalog.
func (s *Service) RequireSystemServiceAccount(ctx context.Context, p *Principal, permission string) error {
	if p.ServiceAccount == nil {
		return fmt.Errorf("%w: service account credential required", models.ErrForbidden)
	}
	return s.RequireGlobal(ctx, p, permission)
}
