package group

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
	"github.com/obsplan/obsplan/pkg/models"
)

// Service handles groups, their membership, invites, and group-scoped
// roles. Group roles are deleted in cascade with their group.
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new group service.
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// Create creates a new group.
func (s *Service) Create(ctx context.Context, name, shortName string, actor uuid.UUID) (*models.Group, error) {
	if name == "" || shortName == "" {
		return nil, fmt.Errorf("%w: name and short_name are required", models.ErrInvalidInput)
	}

	s.logger.Infof("Creating group %s (%s)", name, shortName)

	query := `
		INSERT INTO groups (group_id, name, short_name, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING group_id, name, short_name, created_on, created_by, modified_on, modified_by
	`

	var g models.Group
	err := s.db.Pool().QueryRow(ctx, query, uuid.New(), name, shortName, actor).Scan(
		&g.ID, &g.Name, &g.ShortName, &g.CreatedOn, &g.CreatedBy, &g.ModifiedOn, &g.ModifiedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: group %s already exists", models.ErrDuplicate, name)
		}
		s.logger.Errorf("Failed to create group: %v", err)
		return nil, err
	}

	return &g, nil
}

// Get retrieves a group by ID.
func (s *Service) Get(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	var g models.Group
	err := s.db.Pool().QueryRow(ctx,
		`SELECT group_id, name, short_name, created_on, created_by, modified_on, modified_by FROM groups WHERE group_id = $1`,
		groupID).Scan(&g.ID, &g.Name, &g.ShortName, &g.CreatedOn, &g.CreatedBy, &g.ModifiedOn, &g.ModifiedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: group %s", models.ErrNotFound, groupID)
		}
		s.logger.Errorf("Failed to get group: %v", err)
		return nil, err
	}

	return &g, nil
}

// List returns all groups.
func (s *Service) List(ctx context.Context) ([]*models.Group, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT group_id, name, short_name, created_on, created_by, modified_on, modified_by FROM groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.ShortName, &g.CreatedOn, &g.CreatedBy, &g.ModifiedOn, &g.ModifiedBy); err != nil {
			return nil, err
		}
		groups = append(groups, &g)
	}

	return groups, rows.Err()
}

// Delete removes a group. Group roles and pending invites go with it via
// cascade; membership rows are cleaned by the same constraint.
func (s *Service) Delete(ctx context.Context, groupID uuid.UUID) error {
	s.logger.Infof("Deleting group %s", groupID)

	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM groups WHERE group_id = $1`, groupID)
	if err != nil {
		s.logger.Errorf("Failed to delete group: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: group %s", models.ErrNotFound, groupID)
	}

	return nil
}

// Members returns the non-deleted users belonging to the group.
func (s *Service) Members(ctx context.Context, groupID uuid.UUID) ([]*models.User, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT u.user_id, u.username, u.first_name, u.last_name, u.email, u.is_deleted,
		       u.created_on, u.created_by, u.modified_on, u.modified_by
		FROM users u
		JOIN group_members gm ON gm.user_id = u.user_id
		WHERE gm.group_id = $1 AND u.is_deleted = FALSE
		ORDER BY u.username
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.IsDeleted,
			&u.CreatedOn, &u.CreatedBy, &u.ModifiedOn, &u.ModifiedBy)
		if err != nil {
			return nil, err
		}
		users = append(users, &u)
	}

	return users, rows.Err()
}

// AddMember adds a user to the group.
func (s *Service) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: group or user", models.ErrNotFound)
		}
	}
	return err
}

// RemoveMember removes a user from the group.
func (s *Service) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	tag, err := s.db.Pool().Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s is not a member of group %s", models.ErrNotFound, userID, groupID)
	}
	return nil
}

// IsMember reports group membership for a user.
func (s *Service) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var member bool
	err := s.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID).Scan(&member)
	return member, err
}

// Invite creates a pending invite from sender to receiverEmail. The
// receiver link is resolved at acceptance time, not at creation.
func (s *Service) Invite(ctx context.Context, groupID uuid.UUID, receiverEmail string, sender uuid.UUID) (*models.GroupInvite, error) {
	if receiverEmail == "" {
		return nil, fmt.Errorf("%w: receiver_email is required", models.ErrInvalidInput)
	}

	s.logger.Infof("Creating invite to group %s for %s", groupID, receiverEmail)

	query := `
		INSERT INTO group_invites (invite_id, group_id, receiver_email, sender_id, status, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $4, $4)
		RETURNING invite_id, group_id, receiver_email, receiver_id, sender_id, status,
		          created_on, created_by, modified_on, modified_by
	`

	var inv models.GroupInvite
	err := s.db.Pool().QueryRow(ctx, query, uuid.New(), groupID, receiverEmail, sender, models.InvitePending).Scan(
		&inv.ID, &inv.GroupID, &inv.ReceiverEmail, &inv.ReceiverID, &inv.SenderID, &inv.Status,
		&inv.CreatedOn, &inv.CreatedBy, &inv.ModifiedOn, &inv.ModifiedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, fmt.Errorf("%w: group %s", models.ErrNotFound, groupID)
		}
		s.logger.Errorf("Failed to create invite: %v", err)
		return nil, err
	}

	return &inv, nil
}

// Invites lists the invites of a group, pending first.
func (s *Service) Invites(ctx context.Context, groupID uuid.UUID) ([]*models.GroupInvite, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT invite_id, group_id, receiver_email, receiver_id, sender_id, status,
		       created_on, created_by, modified_on, modified_by
		FROM group_invites
		WHERE group_id = $1
		ORDER BY status = 'PENDING' DESC, created_on DESC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var invites []*models.GroupInvite
	for rows.Next() {
		var inv models.GroupInvite
		err := rows.Scan(&inv.ID, &inv.GroupID, &inv.ReceiverEmail, &inv.ReceiverID, &inv.SenderID, &inv.Status,
			&inv.CreatedOn, &inv.CreatedBy, &inv.ModifiedOn, &inv.ModifiedBy)
		if err != nil {
			return nil, err
		}
		invites = append(invites, &inv)
	}

	return invites, rows.Err()
}

// receiverMatches reports whether the invited address belongs to the
// caller. Addresses compare case-insensitively.
func receiverMatches(invited, caller string) bool {
	return caller != "" && strings.EqualFold(strings.TrimSpace(invited), strings.TrimSpace(caller))
}

// ResolveInvite accepts or rejects a pending invite. Only the invited
// address may resolve; acceptance also adds the receiver to the group,
// in the same transaction.
func (s *Service) ResolveInvite(ctx context.Context, inviteID uuid.UUID, receiver uuid.UUID, receiverEmail string, accept bool) (*models.GroupInvite, error) {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var invitedEmail string
	var invStatus models.GroupInviteStatus
	err = tx.QueryRow(ctx,
		`SELECT receiver_email, status FROM group_invites WHERE invite_id = $1 FOR UPDATE`,
		inviteID).Scan(&invitedEmail, &invStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: invite %s", models.ErrNotFound, inviteID)
		}
		s.logger.Errorf("Failed to load invite: %v", err)
		return nil, err
	}
	if invStatus != models.InvitePending {
		return nil, fmt.Errorf("%w: invite %s already resolved", models.ErrConflict, inviteID)
	}
	if !receiverMatches(invitedEmail, receiverEmail) {
		return nil, fmt.Errorf("%w: invite is addressed to a different user", models.ErrForbidden)
	}

	status := models.InviteRejected
	if accept {
		status = models.InviteAccepted
	}

	query := `
		UPDATE group_invites
		SET status = $2, receiver_id = $3, modified_on = CURRENT_TIMESTAMP, modified_by = $3
		WHERE invite_id = $1 AND status = 'PENDING'
		RETURNING invite_id, group_id, receiver_email, receiver_id, sender_id, status,
		          created_on, created_by, modified_on, modified_by
	`

	var inv models.GroupInvite
	err = tx.QueryRow(ctx, query, inviteID, status, receiver).Scan(
		&inv.ID, &inv.GroupID, &inv.ReceiverEmail, &inv.ReceiverID, &inv.SenderID, &inv.Status,
		&inv.CreatedOn, &inv.CreatedBy, &inv.ModifiedOn, &inv.ModifiedBy)
	if err != nil {
		s.logger.Errorf("Failed to resolve invite: %v", err)
		return nil, err
	}

	if accept {
		_, err = tx.Exec(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			inv.GroupID, receiver)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &inv, nil
}

// CreateGroupRole creates a role scoped to the group.
func (s *Service) CreateGroupRole(ctx context.Context, groupID uuid.UUID, name string, actor uuid.UUID) (*models.GroupRole, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", models.ErrInvalidInput)
	}

	query := `
		INSERT INTO group_roles (group_role_id, group_id, name, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING group_role_id, group_id, name, created_on, created_by, modified_on, modified_by
	`

	var gr models.GroupRole
	err := s.db.Pool().QueryRow(ctx, query, uuid.New(), groupID, name, actor).Scan(
		&gr.ID, &gr.GroupID, &gr.Name, &gr.CreatedOn, &gr.CreatedBy, &gr.ModifiedOn, &gr.ModifiedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("%w: group role %s already exists", models.ErrDuplicate, name)
			case "23503":
				return nil, fmt.Errorf("%w: group %s", models.ErrNotFound, groupID)
			}
		}
		s.logger.Errorf("Failed to create group role: %v", err)
		return nil, err
	}

	return &gr, nil
}

// GroupRoles lists the roles scoped to a group, with their permissions.
func (s *Service) GroupRoles(ctx context.Context, groupID uuid.UUID) ([]*models.GroupRole, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT group_role_id, group_id, name, created_on, created_by, modified_on, modified_by
		FROM group_roles
		WHERE group_id = $1
		ORDER BY name
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var groupRoles []*models.GroupRole
	for rows.Next() {
		var gr models.GroupRole
		err := rows.Scan(&gr.ID, &gr.GroupID, &gr.Name, &gr.CreatedOn, &gr.CreatedBy, &gr.ModifiedOn, &gr.ModifiedBy)
		if err != nil {
			return nil, err
		}
		groupRoles = append(groupRoles, &gr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, gr := range groupRoles {
		perms, err := s.groupRolePermissions(ctx, gr.ID)
		if err != nil {
			return nil, err
		}
		gr.Permissions = perms
	}

	return groupRoles, nil
}

func (s *Service) groupRolePermissions(ctx context.Context, groupRoleID uuid.UUID) ([]models.Permission, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT p.permission_id, p.name, p.created_on
		FROM permissions p
		JOIN group_role_permissions grp ON grp.permission_id = p.permission_id
		WHERE grp.group_role_id = $1
		ORDER BY p.name
	`, groupRoleID)
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

// AttachGroupRolePermission adds a permission to a group role under a
// FOR UPDATE lock on the role row.
func (s *Service) AttachGroupRolePermission(ctx context.Context, groupRoleID, permissionID uuid.UUID, actor uuid.UUID) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT group_role_id FROM group_roles WHERE group_role_id = $1 FOR UPDATE`, groupRoleID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: group role %s", models.ErrNotFound, groupRoleID)
		}
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO group_role_permissions (group_role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupRoleID, permissionID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: permission %s", models.ErrNotFound, permissionID)
		}
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE group_roles SET modified_on = CURRENT_TIMESTAMP, modified_by = $2 WHERE group_role_id = $1`,
		groupRoleID, actor)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AssignGroupRoleToUser grants a group-scoped role to a user.
func (s *Service) AssignGroupRoleToUser(ctx context.Context, groupRoleID, userID uuid.UUID) error {
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO user_group_roles (user_id, group_role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, groupRoleID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: group role or user", models.ErrNotFound)
		}
	}
	return err
}

// RemoveGroupRoleFromUser revokes a group-scoped role from a user.
func (s *Service) RemoveGroupRoleFromUser(ctx context.Context, groupRoleID, userID uuid.UUID) error {
	tag, err := s.db.Pool().Exec(ctx,
		`DELETE FROM user_group_roles WHERE user_id = $1 AND group_role_id = $2`, userID, groupRoleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: group role %s is not held by user %s", models.ErrNotFound, groupRoleID, userID)
	}
	return nil
}

// GroupRoleGroup resolves the group a group role belongs to.
func (s *Service) GroupRoleGroup(ctx context.Context, groupRoleID uuid.UUID) (uuid.UUID, error) {
	var groupID uuid.UUID
	err := s.db.Pool().QueryRow(ctx,
		`SELECT group_id FROM group_roles WHERE group_role_id = $1`, groupRoleID).Scan(&groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%w: group role %s", models.ErrNotFound, groupRoleID)
		}
		return uuid.Nil, err
	}
	return groupID, nil
}
