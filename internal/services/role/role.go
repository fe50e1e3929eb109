package role

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
	"github.com/obsplan/obsplan/pkg/models"
)

// Service handles the role and permission catalog.
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new role service.
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// CreatePermission registers a named capability. Permissions are immutable
// once created; the name is globally unique.
func (s *Service) CreatePermission(ctx context.Context, name string) (*models.Permission, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: permission name is required", models.ErrInvalidInput)
	}

	query := `
		INSERT INTO permissions (permission_id, name)
		VALUES ($1, $2)
		RETURNING permission_id, name, created_on
	`

	var p models.Permission
	err := s.db.Pool().QueryRow(ctx, query, uuid.New(), name).Scan(&p.ID, &p.Name, &p.CreatedOn)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: permission %s already exists", models.ErrDuplicate, name)
		}
		s.logger.Errorf("Failed to create permission: %v", err)
		return nil, err
	}

	return &p, nil
}

// ListPermissions returns the full permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT permission_id, name, created_on FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var perms []*models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedOn); err != nil {
			return nil, err
		}
		perms = append(perms, &p)
	}

	return perms, rows.Err()
}

// Create creates a global role.
func (s *Service) Create(ctx context.Context, name string, actor uuid.UUID) (*models.Role, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", models.ErrInvalidInput)
	}

	s.logger.Infof("Creating role %s", name)

	query := `
		INSERT INTO roles (role_id, name, created_by, modified_by)
		VALUES ($1, $2, $3, $3)
		RETURNING role_id, name, created_on, created_by, modified_on, modified_by
	`

	var r models.Role
	err := s.db.Pool().QueryRow(ctx, query, uuid.New(), name, actor).Scan(
		&r.ID, &r.Name, &r.CreatedOn, &r.CreatedBy, &r.ModifiedOn, &r.ModifiedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: role %s already exists", models.ErrDuplicate, name)
		}
		s.logger.Errorf("Failed to create role: %v", err)
		return nil, err
	}

	return &r, nil
}

// Get retrieves a role with its permission set.
func (s *Service) Get(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	var r models.Role
	err := s.db.Pool().QueryRow(ctx,
		`SELECT role_id, name, created_on, created_by, modified_on, modified_by FROM roles WHERE role_id = $1`,
		roleID).Scan(&r.ID, &r.Name, &r.CreatedOn, &r.CreatedBy, &r.ModifiedOn, &r.ModifiedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: role %s", models.ErrNotFound, roleID)
		}
		s.logger.Errorf("Failed to get role: %v", err)
		return nil, err
	}

	perms, err := s.rolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	r.Permissions = perms

	return &r, nil
}

// List returns all global roles, permissions not populated.
func (s *Service) List(ctx context.Context) ([]*models.Role, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT role_id, name, created_on, created_by, modified_on, modified_by FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedOn, &r.CreatedBy, &r.ModifiedOn, &r.ModifiedBy); err != nil {
			return nil, err
		}
		roles = append(roles, &r)
	}

	return roles, rows.Err()
}

func (s *Service) rolePermissions(ctx context.Context, roleID uuid.UUID) ([]models.Permission, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT p.permission_id, p.name, p.created_on
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedOn); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}

	return perms, rows.Err()
}

// AttachPermission adds a permission to a role. The role row is locked
// with FOR UPDATE first: role mutation is the contended write path and
// concurrent attach/detach must serialize on it.
func (s *Service) AttachPermission(ctx context.Context, roleID, permissionID uuid.UUID, actor uuid.UUID) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT role_id FROM roles WHERE role_id = $1 FOR UPDATE`, roleID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: role %s", models.ErrNotFound, roleID)
		}
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roleID, permissionID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: permission %s", models.ErrNotFound, permissionID)
		}
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE roles SET modified_on = CURRENT_TIMESTAMP, modified_by = $2 WHERE role_id = $1`,
		roleID, actor)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DetachPermission removes a permission from a role, under the same row
// lock as AttachPermission.
func (s *Service) DetachPermission(ctx context.Context, roleID, permissionID uuid.UUID, actor uuid.UUID) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT role_id FROM roles WHERE role_id = $1 FOR UPDATE`, roleID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: role %s", models.ErrNotFound, roleID)
		}
		return err
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: permission %s is not attached to role %s", models.ErrNotFound, permissionID, roleID)
	}

	_, err = tx.Exec(ctx,
		`UPDATE roles SET modified_on = CURRENT_TIMESTAMP, modified_by = $2 WHERE role_id = $1`,
		roleID, actor)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AssignToUser grants a global role to a user.
func (s *Service) AssignToUser(ctx context.Context, roleID, userID uuid.UUID) error {
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: role or user", models.ErrNotFound)
		}
	}
	return err
}

// RemoveFromUser revokes a global role from a user.
func (s *Service) RemoveFromUser(ctx context.Context, roleID, userID uuid.UUID) error {
	tag, err := s.db.Pool().Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %s is not held by user %s", models.ErrNotFound, roleID, userID)
	}
	return nil
}
