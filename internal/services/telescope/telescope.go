package telescope

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
	"github.com/obsplan/obsplan/pkg/models"
)

// Service handles telescopes.
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new telescope service.
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

const telescopeColumns = `telescope_id, observatory_id, name, short_name, schedule_cadence,
	created_on, created_by, modified_on, modified_by`

func scanTelescope(row pgx.Row) (*models.Telescope, error) {
	var t models.Telescope
	err := row.Scan(&t.ID, &t.ObservatoryID, &t.Name, &t.ShortName, &t.ScheduleCadence,
		&t.CreatedOn, &t.CreatedBy, &t.ModifiedOn, &t.ModifiedBy)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create creates a telescope under an observatory.
func (s *Service) Create(ctx context.Context, observatoryID uuid.UUID, name, shortName string, scheduleCadence *string, actor uuid.UUID) (*models.Telescope, error) {
	if name == "" || shortName == "" {
		return nil, fmt.Errorf("%w: name and short_name are required", models.ErrInvalidInput)
	}

	s.logger.Infof("Creating telescope %s (%s)", name, shortName)

	query := `
		INSERT INTO telescopes (telescope_id, observatory_id, name, short_name, schedule_cadence, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + telescopeColumns

	t, err := scanTelescope(s.db.Pool().QueryRow(ctx, query, uuid.New(), observatoryID, name, shortName, scheduleCadence, actor))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("%w: telescope %s already exists", models.ErrDuplicate, name)
			case "23503":
				return nil, fmt.Errorf("%w: observatory %s", models.ErrNotFound, observatoryID)
			}
		}
		s.logger.Errorf("Failed to create telescope: %v", err)
		return nil, err
	}

	return t, nil
}

// Get retrieves a telescope by ID.
func (s *Service) Get(ctx context.Context, telescopeID uuid.UUID) (*models.Telescope, error) {
	t, err := scanTelescope(s.db.Pool().QueryRow(ctx,
		`SELECT `+telescopeColumns+` FROM telescopes WHERE telescope_id = $1`, telescopeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: telescope %s", models.ErrNotFound, telescopeID)
		}
		s.logger.Errorf("Failed to get telescope: %v", err)
		return nil, err
	}
	return t, nil
}

// ListFilter narrows List results. Name and ShortName match by
// case-insensitive substring; the created_on range bounds are inclusive.
type ListFilter struct {
	Name           *string
	ShortName      *string
	ObservatoryID  *uuid.UUID
	CreatedOnAfter *time.Time
	CreatedOnUntil *time.Time
}

// List returns telescopes matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*models.Telescope, error) {
	query := `SELECT ` + telescopeColumns + ` FROM telescopes`
	args := []interface{}{}
	clauses := []string{}

	where := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Name != nil {
		where("name ILIKE '%%' || $%d || '%%'", *filter.Name)
	}
	if filter.ShortName != nil {
		where("short_name ILIKE '%%' || $%d || '%%'", *filter.ShortName)
	}
	if filter.ObservatoryID != nil {
		where("observatory_id = $%d", *filter.ObservatoryID)
	}
	if filter.CreatedOnAfter != nil {
		where("created_on >= $%d", *filter.CreatedOnAfter)
	}
	if filter.CreatedOnUntil != nil {
		where("created_on <= $%d", *filter.CreatedOnUntil)
	}

	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_on DESC"

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var telescopes []*models.Telescope
	for rows.Next() {
		t, err := scanTelescope(rows)
		if err != nil {
			return nil, err
		}
		telescopes = append(telescopes, t)
	}

	return telescopes, rows.Err()
}

// Updates are the mutable telescope fields. Nil means unchanged; setting
// ClearCadence removes the recurring schedule build.
type Updates struct {
	Name            *string
	ShortName       *string
	ScheduleCadence *string
	ClearCadence    bool
}

// Update applies partial updates to a telescope.
func (s *Service) Update(ctx context.Context, telescopeID uuid.UUID, updates Updates, actor uuid.UUID) (*models.Telescope, error) {
	setClauses := []string{}
	args := []interface{}{telescopeID}

	set := func(column string, value interface{}) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if updates.Name != nil {
		set("name", *updates.Name)
	}
	if updates.ShortName != nil {
		set("short_name", *updates.ShortName)
	}
	if updates.ScheduleCadence != nil {
		set("schedule_cadence", *updates.ScheduleCadence)
	} else if updates.ClearCadence {
		setClauses = append(setClauses, "schedule_cadence = NULL")
	}

	if len(setClauses) == 0 {
		return s.Get(ctx, telescopeID)
	}

	args = append(args, actor)
	setClauses = append(setClauses, fmt.Sprintf("modified_by = $%d", len(args)))
	setClauses = append(setClauses, "modified_on = CURRENT_TIMESTAMP")

	query := "UPDATE telescopes SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE telescope_id = $1 RETURNING " + telescopeColumns

	t, err := scanTelescope(s.db.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: telescope %s", models.ErrNotFound, telescopeID)
		}
		s.logger.Errorf("Failed to update telescope: %v", err)
		return nil, err
	}

	return t, nil
}

// Delete removes a telescope and its instruments and schedules via cascade.
func (s *Service) Delete(ctx context.Context, telescopeID uuid.UUID) error {
	s.logger.Infof("Deleting telescope %s", telescopeID)

	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM telescopes WHERE telescope_id = $1`, telescopeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: telescope %s", models.ErrNotFound, telescopeID)
	}
	return nil
}

// Exists checks whether a telescope exists.
func (s *Service) Exists(ctx context.Context, telescopeID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM telescopes WHERE telescope_id = $1)`, telescopeID).Scan(&exists)
	return exists, err
}

// Group resolves the owning group of a telescope, through its observatory.
func (s *Service) Group(ctx context.Context, telescopeID uuid.UUID) (uuid.UUID, error) {
	var groupID uuid.UUID
	err := s.db.Pool().QueryRow(ctx, `
		SELECT o.group_id
		FROM telescopes t
		JOIN observatories o ON o.observatory_id = t.observatory_id
		WHERE t.telescope_id = $1
	`, telescopeID).Scan(&groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%w: telescope %s", models.ErrNotFound, telescopeID)
		}
		return uuid.Nil, err
	}
	return groupID, nil
}
