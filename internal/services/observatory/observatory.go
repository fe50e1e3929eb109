package observatory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
	"github.com/obsplan/obsplan/pkg/models"
)

// Service handles observatories and their ephemeris fallback chains.
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new observatory service.
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

const observatoryColumns = `observatory_id, name, short_name, observatory_type, group_id,
	created_on, created_by, modified_on, modified_by`

func scanObservatory(row pgx.Row) (*models.Observatory, error) {
	var o models.Observatory
	err := row.Scan(&o.ID, &o.Name, &o.ShortName, &o.Type, &o.GroupID,
		&o.CreatedOn, &o.CreatedBy, &o.ModifiedOn, &o.ModifiedBy)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func validType(t models.ObservatoryType) bool {
	return t == models.SpaceBased || t == models.GroundBased
}

// Create creates an observatory owned by a group.
func (s *Service) Create(ctx context.Context, name, shortName string, obsType models.ObservatoryType, groupID uuid.UUID, actor uuid.UUID) (*models.Observatory, error) {
	if name == "" || shortName == "" {
		return nil, fmt.Errorf("%w: name and short_name are required", models.ErrInvalidInput)
	}
	if !validType(obsType) {
		return nil, fmt.Errorf("%w: unknown observatory type %q", models.ErrInvalidInput, obsType)
	}

	s.logger.Infof("Creating observatory %s (%s)", name, shortName)

	query := `
		INSERT INTO observatories (observatory_id, name, short_name, observatory_type, group_id, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + observatoryColumns

	o, err := scanObservatory(s.db.Pool().QueryRow(ctx, query, uuid.New(), name, shortName, obsType, groupID, actor))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("%w: observatory %s already exists", models.ErrDuplicate, name)
			case "23503":
				return nil, fmt.Errorf("%w: group %s", models.ErrNotFound, groupID)
			}
		}
		s.logger.Errorf("Failed to create observatory: %v", err)
		return nil, err
	}

	return o, nil
}

// Get retrieves an observatory by ID.
func (s *Service) Get(ctx context.Context, observatoryID uuid.UUID) (*models.Observatory, error) {
	o, err := scanObservatory(s.db.Pool().QueryRow(ctx,
		`SELECT `+observatoryColumns+` FROM observatories WHERE observatory_id = $1`, observatoryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: observatory %s", models.ErrNotFound, observatoryID)
		}
		s.logger.Errorf("Failed to get observatory: %v", err)
		return nil, err
	}
	return o, nil
}

// List returns all observatories, optionally restricted to one group.
func (s *Service) List(ctx context.Context, groupID *uuid.UUID) ([]*models.Observatory, error) {
	query := `SELECT ` + observatoryColumns + ` FROM observatories`
	args := []interface{}{}
	if groupID != nil {
		query += ` WHERE group_id = $1`
		args = append(args, *groupID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var observatories []*models.Observatory
	for rows.Next() {
		o, err := scanObservatory(rows)
		if err != nil {
			return nil, err
		}
		observatories = append(observatories, o)
	}

	return observatories, rows.Err()
}

// Updates are the mutable observatory fields. Nil means unchanged.
type Updates struct {
	Name      *string
	ShortName *string
	GroupID   *uuid.UUID
}

// Update applies partial updates to an observatory.
func (s *Service) Update(ctx context.Context, observatoryID uuid.UUID, updates Updates, actor uuid.UUID) (*models.Observatory, error) {
	setClauses := []string{}
	args := []interface{}{observatoryID}

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
	if updates.GroupID != nil {
		set("group_id", *updates.GroupID)
	}

	if len(setClauses) == 0 {
		return s.Get(ctx, observatoryID)
	}

	args = append(args, actor)
	setClauses = append(setClauses, fmt.Sprintf("modified_by = $%d", len(args)))
	setClauses = append(setClauses, "modified_on = CURRENT_TIMESTAMP")

	query := "UPDATE observatories SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE observatory_id = $1 RETURNING " + observatoryColumns

	o, err := scanObservatory(s.db.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: observatory %s", models.ErrNotFound, observatoryID)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, fmt.Errorf("%w: group", models.ErrNotFound)
		}
		s.logger.Errorf("Failed to update observatory: %v", err)
		return nil, err
	}

	return o, nil
}

// Delete removes an observatory and, via cascade, its telescopes and
// ephemeris entries.
func (s *Service) Delete(ctx context.Context, observatoryID uuid.UUID) error {
	s.logger.Infof("Deleting observatory %s", observatoryID)

	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM observatories WHERE observatory_id = $1`, observatoryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: observatory %s", models.ErrNotFound, observatoryID)
	}
	return nil
}

// ValidateEphemerisParams checks that the parameter payload matches the
// ephemeris type. DisallowUnknownFields keeps mistyped payloads from
// silently passing as a different variant.
func ValidateEphemerisParams(ephType models.EphemerisType, params json.RawMessage) error {
	decode := func(v interface{}) error {
		dec := json.NewDecoder(bytes.NewReader(params))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}

	switch ephType {
	case models.EphemerisEarthLocation:
		var p models.EarthLocationParams
		if err := decode(&p); err != nil {
			return fmt.Errorf("%w: earth location parameters: %v", models.ErrInvalidInput, err)
		}
		if p.Latitude < -90 || p.Latitude > 90 {
			return fmt.Errorf("%w: latitude %g out of range [-90, 90]", models.ErrInvalidInput, p.Latitude)
		}
		if p.Longitude < -180 || p.Longitude > 180 {
			return fmt.Errorf("%w: longitude %g out of range [-180, 180]", models.ErrInvalidInput, p.Longitude)
		}
	case models.EphemerisTLE:
		var p models.TLEParams
		if err := decode(&p); err != nil {
			return fmt.Errorf("%w: tle parameters: %v", models.ErrInvalidInput, err)
		}
		if p.NoradID <= 0 {
			return fmt.Errorf("%w: norad_id must be positive", models.ErrInvalidInput)
		}
	case models.EphemerisJPL:
		var p models.JPLParams
		if err := decode(&p); err != nil {
			return fmt.Errorf("%w: jpl parameters: %v", models.ErrInvalidInput, err)
		}
	case models.EphemerisSPICE:
		var p models.SPICEParams
		if err := decode(&p); err != nil {
			return fmt.Errorf("%w: spice parameters: %v", models.ErrInvalidInput, err)
		}
		if p.KernelURL == "" {
			return fmt.Errorf("%w: kernel_url is required", models.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown ephemeris type %q", models.ErrInvalidInput, ephType)
	}

	return nil
}

// AddEphemeris appends an ephemeris configuration to the observatory's
// fallback chain. (observatory, type, priority) must be unique.
func (s *Service) AddEphemeris(ctx context.Context, observatoryID uuid.UUID, ephType models.EphemerisType, priority int, params json.RawMessage) (*models.ObservatoryEphemeris, error) {
	if priority < 0 {
		return nil, fmt.Errorf("%w: priority must be non-negative", models.ErrInvalidInput)
	}
	if err := ValidateEphemerisParams(ephType, params); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO observatory_ephemerides (ephemeris_id, observatory_id, ephemeris_type, priority, parameters)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ephemeris_id, observatory_id, ephemeris_type, priority, parameters
	`

	var e models.ObservatoryEphemeris
	err := s.db.Pool().QueryRow(ctx, query, uuid.New(), observatoryID, ephType, priority, params).Scan(
		&e.ID, &e.ObservatoryID, &e.Type, &e.Priority, &e.Parameters)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("%w: ephemeris %s priority %d already configured", models.ErrDuplicate, ephType, priority)
			case "23503":
				return nil, fmt.Errorf("%w: observatory %s", models.ErrNotFound, observatoryID)
			}
		}
		s.logger.Errorf("Failed to add ephemeris: %v", err)
		return nil, err
	}

	return &e, nil
}

// Ephemerides lists the observatory's ephemeris chain in resolution order.
func (s *Service) Ephemerides(ctx context.Context, observatoryID uuid.UUID) ([]*models.ObservatoryEphemeris, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT ephemeris_id, observatory_id, ephemeris_type, priority, parameters
		FROM observatory_ephemerides
		WHERE observatory_id = $1
		ORDER BY priority
	`, observatoryID)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var entries []*models.ObservatoryEphemeris
	for rows.Next() {
		var e models.ObservatoryEphemeris
		if err := rows.Scan(&e.ID, &e.ObservatoryID, &e.Type, &e.Priority, &e.Parameters); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// RemoveEphemeris deletes one entry from the chain.
func (s *Service) RemoveEphemeris(ctx context.Context, ephemerisID uuid.UUID) error {
	tag, err := s.db.Pool().Exec(ctx,
		`DELETE FROM observatory_ephemerides WHERE ephemeris_id = $1`, ephemerisID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: ephemeris %s", models.ErrNotFound, ephemerisID)
	}
	return nil
}
