package user

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

const userColumns = "user_id, username, first_name, last_name, email, is_deleted, created_on, created_by, modified_on, modified_by"

// Service handles user-related operations. Every read path filters
// soft-deleted users so they never leak through joins or listings.
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new user service.
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.IsDeleted,
		&u.CreatedOn,
		&u.CreatedBy,
		&u.ModifiedOn,
		&u.ModifiedBy,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create creates a new user.
func (s *Service) Create(ctx context.Context, username, firstName, lastName, email string, actor uuid.UUID) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", models.ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", models.ErrInvalidInput)
	}

	s.logger.Infof("Creating user %s (%s)", username, email)

	query := `
		INSERT INTO users (user_id, username, first_name, last_name, email, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + userColumns

	row := s.db.Pool().QueryRow(ctx, query, uuid.New(), username, firstName, lastName, email, actor)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: user with email %s already exists", models.ErrDuplicate, email)
		}
		s.logger.Errorf("Failed to create user: %v", err)
		return nil, err
	}

	return u, nil
}

// Get retrieves a user by ID. Soft-deleted users are treated as missing.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1 AND is_deleted = FALSE`

	u, err := scanUser(s.db.Pool().QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
		}
		s.logger.Errorf("Failed to get user: %v", err)
		return nil, err
	}

	return u, nil
}

// GetByEmail retrieves a non-deleted user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND is_deleted = FALSE`

	u, err := scanUser(s.db.Pool().QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user with email %s", models.ErrNotFound, email)
		}
		s.logger.Errorf("Failed to get user by email: %v", err)
		return nil, err
	}

	return u, nil
}

// List retrieves users, newest first, with limit/offset pagination.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_deleted = FALSE
		ORDER BY created_on DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		s.logger.Errorf("Failed to list users: %v", err)
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

// Updates names the user fields that may change after creation. Nil fields
// are left untouched.
type Updates struct {
	Username  *string
	FirstName *string
	LastName  *string
	Email     *string
}

// Update applies the non-nil fields and stamps the modification audit
// columns. Idempotent with respect to domain fields.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, updates Updates, actor uuid.UUID) (*models.User, error) {
	query := "UPDATE users SET modified_on = CURRENT_TIMESTAMP"
	args := []interface{}{}
	argIndex := 1

	set := func(column string, value interface{}) {
		query += fmt.Sprintf(", %s = $%d", column, argIndex)
		args = append(args, value)
		argIndex++
	}

	if updates.Username != nil {
		set("username", *updates.Username)
	}
	if updates.FirstName != nil {
		set("first_name", *updates.FirstName)
	}
	if updates.LastName != nil {
		set("last_name", *updates.LastName)
	}
	if updates.Email != nil {
		if !strings.Contains(*updates.Email, "@") {
			return nil, fmt.Errorf("%w: a valid email is required", models.ErrInvalidInput)
		}
		set("email", *updates.Email)
	}
	set("modified_by", actor)

	query += fmt.Sprintf(" WHERE user_id = $%d AND is_deleted = FALSE RETURNING %s", argIndex, userColumns)
	args = append(args, userID)

	u, err := scanUser(s.db.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: email already in use", models.ErrDuplicate)
		}
		s.logger.Errorf("Failed to update user: %v", err)
		return nil, err
	}

	return u, nil
}

// Delete soft-deletes a user. The row stays; is_deleted hides it from
// every read and login path.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, actor uuid.UUID) error {
	s.logger.Infof("Soft-deleting user %s", userID)

	query := `
		UPDATE users
		SET is_deleted = TRUE, modified_on = CURRENT_TIMESTAMP, modified_by = $2
		WHERE user_id = $1 AND is_deleted = FALSE
	`

	tag, err := s.db.Pool().Exec(ctx, query, userID, actor)
	if err != nil {
		s.logger.Errorf("Failed to delete user: %v", err)
		return err
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}

	return nil
}

// Exists checks if a non-deleted user with the given ID exists.
func (s *Service) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1 AND is_deleted = FALSE)`

	var exists bool
	err := s.db.Pool().QueryRow(ctx, query, userID).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}
