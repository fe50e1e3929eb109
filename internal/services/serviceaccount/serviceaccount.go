package serviceaccount

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
	"github.com/obsplan/obsplan/pkg/models"
)

// DefaultExpirationDays is applied when a create request does not carry an
// expiration_duration.
const DefaultExpirationDays = 30

const saColumns = "service_account_id, name, description, secret_key, expiration, expiration_duration, created_on, created_by, modified_on, modified_by"

// Service handles service-account lifecycle: creation, rotation,
// expiration, and the user/role association tables.
type Service struct {
	db           *database.PostgreSQL
	logger       *logger.Logger
	serverSecret string
}

// NewService creates a new service-account service. serverSecret is the
// configured secret that account secrets are derived from.
func NewService(db *database.PostgreSQL, logger *logger.Logger, serverSecret string) *Service {
	return &Service{
		db:           db,
		logger:       logger,
		serverSecret: serverSecret,
	}
}

// DeriveSecret builds a fresh account secret: SHA-512 over the server
// secret concatenated with the current time in nanoseconds, hex-encoded.
// Unguessable without the server secret and unique per generation.
func DeriveSecret(serverSecret string, now time.Time) string {
	sum := sha512.Sum512([]byte(serverSecret + strconv.FormatInt(now.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])
}

func scanAccount(row pgx.Row) (*models.ServiceAccount, error) {
	var sa models.ServiceAccount
	err := row.Scan(
		&sa.ID,
		&sa.Name,
		&sa.Description,
		&sa.SecretKey,
		&sa.Expiration,
		&sa.ExpirationDuration,
		&sa.CreatedOn,
		&sa.CreatedBy,
		&sa.ModifiedOn,
		&sa.ModifiedBy,
	)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

// Create creates a service account owned by ownerID. The plaintext secret
// is carried on the returned account; it is shown to the client exactly
// once.
func (s *Service) Create(ctx context.Context, name string, description *string, expirationDays int, ownerID, actor uuid.UUID) (*models.ServiceAccount, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrInvalidInput)
	}
	if expirationDays < 0 {
		return nil, fmt.Errorf("%w: expiration_duration must not be negative", models.ErrInvalidInput)
	}
	if expirationDays == 0 {
		expirationDays = DefaultExpirationDays
	}

	now := time.Now().UTC()
	secret := DeriveSecret(s.serverSecret, now)
	expiration := now.Add(time.Duration(expirationDays) * 24 * time.Hour)

	s.logger.Infof("Creating service account %s for user %s", name, ownerID)

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO service_accounts (service_account_id, name, description, secret_key, expiration, expiration_duration, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING ` + saColumns

	sa, err := scanAccount(tx.QueryRow(ctx, query, uuid.New(), name, description, secret, expiration, expirationDays, actor))
	if err != nil {
		s.logger.Errorf("Failed to create service account: %v", err)
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_service_accounts (user_id, service_account_id) VALUES ($1, $2)`,
		ownerID, sa.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return sa, nil
}

// Get retrieves a service account by ID, expired accounts included: the
// account record stays readable after its tombstone.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ServiceAccount, error) {
	query := `SELECT ` + saColumns + ` FROM service_accounts WHERE service_account_id = $1`

	sa, err := scanAccount(s.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: service account %s", models.ErrNotFound, id)
		}
		s.logger.Errorf("Failed to get service account: %v", err)
		return nil, err
	}

	return sa, nil
}

// GetBySecret resolves an account from its plaintext secret. Expired
// accounts do not resolve; the caller cannot distinguish them from
// unknown secrets.
func (s *Service) GetBySecret(ctx context.Context, secret string) (*models.ServiceAccount, error) {
	query := `SELECT ` + saColumns + ` FROM service_accounts WHERE secret_key = $1 AND expiration > CURRENT_TIMESTAMP`

	sa, err := scanAccount(s.db.Pool().QueryRow(ctx, query, secret))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Errorf("Failed to resolve service account secret: %v", err)
		return nil, err
	}

	return sa, nil
}

// ListForUser retrieves the service accounts attached to a user.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.ServiceAccount, error) {
	query := `
		SELECT ` + saColumns + `
		FROM service_accounts sa
		JOIN user_service_accounts usa ON usa.service_account_id = sa.service_account_id
		WHERE usa.user_id = $1
		ORDER BY sa.created_on DESC
	`

	rows, err := s.db.Pool().Query(ctx, query, userID)
	if err != nil {
		s.logger.Errorf("Failed to list service accounts: %v", err)
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var accounts []*models.ServiceAccount
	for rows.Next() {
		sa, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, sa)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

// OwnedBy reports whether the service account is attached to the user.
func (s *Service) OwnedBy(ctx context.Context, accountID, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM user_service_accounts WHERE service_account_id = $1 AND user_id = $2)`

	var owned bool
	err := s.db.Pool().QueryRow(ctx, query, accountID, userID).Scan(&owned)
	if err != nil {
		return false, err
	}

	return owned, nil
}

// Owners returns the IDs of the users the account is attached to.
func (s *Service) Owners(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT user_id FROM user_service_accounts WHERE service_account_id = $1`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}

	return owners, rows.Err()
}

// Update changes name, description, or expiration_duration. A changed
// duration recomputes the expiration as now + duration days.
func (s *Service) Update(ctx context.Context, id uuid.UUID, name, description *string, expirationDays *int, actor uuid.UUID) (*models.ServiceAccount, error) {
	query := "UPDATE service_accounts SET modified_on = CURRENT_TIMESTAMP"
	args := []interface{}{}
	argIndex := 1

	set := func(column string, value interface{}) {
		query += fmt.Sprintf(", %s = $%d", column, argIndex)
		args = append(args, value)
		argIndex++
	}

	if name != nil {
		if *name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", models.ErrInvalidInput)
		}
		set("name", *name)
	}
	if description != nil {
		set("description", *description)
	}
	if expirationDays != nil {
		if *expirationDays <= 0 {
			return nil, fmt.Errorf("%w: expiration_duration must be positive", models.ErrInvalidInput)
		}
		set("expiration_duration", *expirationDays)
		set("expiration", time.Now().UTC().Add(time.Duration(*expirationDays)*24*time.Hour))
	}
	set("modified_by", actor)

	query += fmt.Sprintf(" WHERE service_account_id = $%d RETURNING %s", argIndex, saColumns)
	args = append(args, id)

	sa, err := scanAccount(s.db.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: service account %s", models.ErrNotFound, id)
		}
		s.logger.Errorf("Failed to update service account: %v", err)
		return nil, err
	}

	return sa, nil
}

// RotateKey replaces the secret in place. The returned account carries the
// new plaintext secret; the old secret stops authenticating immediately.
func (s *Service) RotateKey(ctx context.Context, id uuid.UUID, actor uuid.UUID) (*models.ServiceAccount, error) {
	s.logger.Infof("Rotating secret for service account %s", id)

	secret := DeriveSecret(s.serverSecret, time.Now().UTC())

	query := `
		UPDATE service_accounts
		SET secret_key = $2, modified_on = CURRENT_TIMESTAMP, modified_by = $3
		WHERE service_account_id = $1
		RETURNING ` + saColumns

	sa, err := scanAccount(s.db.Pool().QueryRow(ctx, query, id, secret, actor))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: service account %s", models.ErrNotFound, id)
		}
		s.logger.Errorf("Failed to rotate service account key: %v", err)
		return nil, err
	}

	return sa, nil
}

// Delete tombstones the account by setting its expiration to now. The row
// is never physically removed.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	s.logger.Infof("Expiring service account %s", id)

	query := `
		UPDATE service_accounts
		SET expiration = CURRENT_TIMESTAMP, modified_on = CURRENT_TIMESTAMP, modified_by = $2
		WHERE service_account_id = $1
	`

	tag, err := s.db.Pool().Exec(ctx, query, id, actor)
	if err != nil {
		s.logger.Errorf("Failed to expire service account: %v", err)
		return err
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: service account %s", models.ErrNotFound, id)
	}

	return nil
}

// AttachUser adds a user to the account's owner set.
func (s *Service) AttachUser(ctx context.Context, accountID, userID uuid.UUID) error {
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO user_service_accounts (user_id, service_account_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, accountID)
	return err
}

// DetachUser removes a user from the account's owner set.
func (s *Service) DetachUser(ctx context.Context, accountID, userID uuid.UUID) error {
	tag, err := s.db.Pool().Exec(ctx,
		`DELETE FROM user_service_accounts WHERE user_id = $1 AND service_account_id = $2`,
		userID, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s is not attached to service account %s", models.ErrNotFound, userID, accountID)
	}
	return nil
}

// AttachGroupRole grants a group-scoped role to the account.
func (s *Service) AttachGroupRole(ctx context.Context, accountID, groupRoleID uuid.UUID) error {
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO service_account_group_roles (service_account_id, group_role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		accountID, groupRoleID)
	return err
}

// DetachGroupRole revokes a group-scoped role from the account.
func (s *Service) DetachGroupRole(ctx context.Context, accountID, groupRoleID uuid.UUID) error {
	tag, err := s.db.Pool().Exec(ctx,
		`DELETE FROM service_account_group_roles WHERE service_account_id = $1 AND group_role_id = $2`,
		accountID, groupRoleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: group role %s is not attached to service account %s", models.ErrNotFound, groupRoleID, accountID)
	}
	return nil
}

// AttachRole grants a global role to the account.
func (s *Service) AttachRole(ctx context.Context, accountID, roleID uuid.UUID) error {
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO service_account_roles (service_account_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		accountID, roleID)
	return err
}
