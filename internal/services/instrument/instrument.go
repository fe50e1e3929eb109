package instrument

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

// Service handles instruments, their field-of-view footprints, visibility
// constraints, and optical filters.
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new instrument service.
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

const instrumentColumns = `instrument_id, telescope_id, name, short_name,
	created_on, created_by, modified_on, modified_by`

func scanInstrument(row pgx.Row) (*models.Instrument, error) {
	var ins models.Instrument
	err := row.Scan(&ins.ID, &ins.TelescopeID, &ins.Name, &ins.ShortName,
		&ins.CreatedOn, &ins.CreatedBy, &ins.ModifiedOn, &ins.ModifiedBy)
	if err != nil {
		return nil, err
	}
	return &ins, nil
}

// Create creates an instrument under a telescope.
func (s *Service) Create(ctx context.Context, telescopeID uuid.UUID, name, shortName string, actor uuid.UUID) (*models.Instrument, error) {
	if name == "" || shortName == "" {
		return nil, fmt.Errorf("%w: name and short_name are required", models.ErrInvalidInput)
	}

	s.logger.Infof("Creating instrument %s (%s)", name, shortName)

	query := `
		INSERT INTO instruments (instrument_id, telescope_id, name, short_name, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING ` + instrumentColumns

	ins, err := scanInstrument(s.db.Pool().QueryRow(ctx, query, uuid.New(), telescopeID, name, shortName, actor))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("%w: instrument %s already exists", models.ErrDuplicate, name)
			case "23503":
				return nil, fmt.Errorf("%w: telescope %s", models.ErrNotFound, telescopeID)
			}
		}
		s.logger.Errorf("Failed to create instrument: %v", err)
		return nil, err
	}

	return ins, nil
}

// Get retrieves an instrument by ID.
func (s *Service) Get(ctx context.Context, instrumentID uuid.UUID) (*models.Instrument, error) {
	ins, err := scanInstrument(s.db.Pool().QueryRow(ctx,
		`SELECT `+instrumentColumns+` FROM instruments WHERE instrument_id = $1`, instrumentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: instrument %s", models.ErrNotFound, instrumentID)
		}
		s.logger.Errorf("Failed to get instrument: %v", err)
		return nil, err
	}
	return ins, nil
}

// List returns instruments, optionally restricted to one telescope.
func (s *Service) List(ctx context.Context, telescopeID *uuid.UUID) ([]*models.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments`
	args := []interface{}{}
	if telescopeID != nil {
		query += ` WHERE telescope_id = $1`
		args = append(args, *telescopeID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var instruments []*models.Instrument
	for rows.Next() {
		ins, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, ins)
	}

	return instruments, rows.Err()
}

// Delete removes an instrument with its footprints and filters via cascade.
// Shared constraints survive; only the association rows go.
func (s *Service) Delete(ctx context.Context, instrumentID uuid.UUID) error {
	s.logger.Infof("Deleting instrument %s", instrumentID)

	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM instruments WHERE instrument_id = $1`, instrumentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: instrument %s", models.ErrNotFound, instrumentID)
	}
	return nil
}

// Exists checks whether an instrument exists.
func (s *Service) Exists(ctx context.Context, instrumentID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM instruments WHERE instrument_id = $1)`, instrumentID).Scan(&exists)
	return exists, err
}

func validatePolygon(polygon []models.Point) error {
	if len(polygon) < 3 {
		return fmt.Errorf("%w: polygon needs at least 3 vertices", models.ErrInvalidInput)
	}
	for _, p := range polygon {
		if p.Lon < -180 || p.Lon > 180 {
			return fmt.Errorf("%w: lon %g out of range [-180, 180]", models.ErrInvalidInput, p.Lon)
		}
		if p.Lat < -90 || p.Lat > 90 {
			return fmt.Errorf("%w: lat %g out of range [-90, 90]", models.ErrInvalidInput, p.Lat)
		}
	}
	return nil
}

// AddFootprint attaches a field-of-view polygon to the instrument.
func (s *Service) AddFootprint(ctx context.Context, instrumentID uuid.UUID, polygon []models.Point) (*models.Footprint, error) {
	if err := validatePolygon(polygon); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(polygon)
	if err != nil {
		return nil, err
	}

	var fp models.Footprint
	var raw []byte
	err = s.db.Pool().QueryRow(ctx, `
		INSERT INTO footprints (footprint_id, instrument_id, polygon)
		VALUES ($1, $2, $3)
		RETURNING footprint_id, instrument_id, polygon
	`, uuid.New(), instrumentID, encoded).Scan(&fp.ID, &fp.InstrumentID, &raw)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, fmt.Errorf("%w: instrument %s", models.ErrNotFound, instrumentID)
		}
		s.logger.Errorf("Failed to add footprint: %v", err)
		return nil, err
	}
	if err := json.Unmarshal(raw, &fp.Polygon); err != nil {
		return nil, err
	}

	return &fp, nil
}

// Footprints lists the instrument's field-of-view polygons.
func (s *Service) Footprints(ctx context.Context, instrumentID uuid.UUID) ([]*models.Footprint, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT footprint_id, instrument_id, polygon FROM footprints WHERE instrument_id = $1`, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var footprints []*models.Footprint
	for rows.Next() {
		var fp models.Footprint
		var raw []byte
		if err := rows.Scan(&fp.ID, &fp.InstrumentID, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fp.Polygon); err != nil {
			return nil, err
		}
		footprints = append(footprints, &fp)
	}

	return footprints, rows.Err()
}

// RemoveFootprint deletes one footprint.
func (s *Service) RemoveFootprint(ctx context.Context, footprintID uuid.UUID) error {
	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM footprints WHERE footprint_id = $1`, footprintID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: footprint %s", models.ErrNotFound, footprintID)
	}
	return nil
}

// ValidateConstraintParams checks that the parameter payload matches the
// constraint type. Angles are separation angles in degrees, so [0, 180].
// SAA polygons must be closed: first vertex equals last.
func ValidateConstraintParams(cType models.ConstraintType, params json.RawMessage) error {
	decode := func(v interface{}) error {
		dec := json.NewDecoder(bytes.NewReader(params))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}

	checkAngle := func(name string, deg float64) error {
		if deg < 0 || deg > 180 {
			return fmt.Errorf("%w: %s angle %g out of range [0, 180]", models.ErrInvalidInput, name, deg)
		}
		return nil
	}

	switch cType {
	case models.ConstraintSAA:
		var p models.SAAPolygonParams
		if err := decode(&p); err != nil {
			return fmt.Errorf("%w: saa parameters: %v", models.ErrInvalidInput, err)
		}
		if err := validatePolygon(p.Polygon); err != nil {
			return err
		}
		if p.Polygon[0] != p.Polygon[len(p.Polygon)-1] {
			return fmt.Errorf("%w: saa polygon must be closed", models.ErrInvalidInput)
		}
	case models.ConstraintSun:
		var p models.SunAngleParams
		if err := decode(&p); err != nil {
			return fmt.Errorf("%w: sun parameters: %v", models.ErrInvalidInput, err)
		}
		if err := checkAngle("sun min", p.Min); err != nil {
			return err
		}
		if err := checkAngle("sun max", p.Max); err != nil {
			return err
		}
		if p.Min > p.Max {
			return fmt.Errorf("%w: sun min angle exceeds max", models.ErrInvalidInput)
		}
	case models.ConstraintMoon:
		var p models.MoonAngleParams
		if err := decode(&p); err != nil {
			return fmt.Errorf("%w: moon parameters: %v", models.ErrInvalidInput, err)
		}
		if err := checkAngle("moon min", p.Min); err != nil {
			return err
		}
	case models.ConstraintEarth:
		var p models.EarthLimbParams
		if err := decode(&p); err != nil {
			return fmt.Errorf("%w: earth parameters: %v", models.ErrInvalidInput, err)
		}
		if err := checkAngle("earth limb min", p.Min); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown constraint type %q", models.ErrInvalidInput, cType)
	}

	return nil
}

// CreateConstraint stores a visibility constraint. Constraints are shared:
// they exist independently and attach to instruments via AttachConstraint.
func (s *Service) CreateConstraint(ctx context.Context, cType models.ConstraintType, params json.RawMessage) (*models.Constraint, error) {
	if err := ValidateConstraintParams(cType, params); err != nil {
		return nil, err
	}

	var c models.Constraint
	err := s.db.Pool().QueryRow(ctx, `
		INSERT INTO constraints (constraint_id, constraint_type, parameters)
		VALUES ($1, $2, $3)
		RETURNING constraint_id, constraint_type, parameters
	`, uuid.New(), cType, params).Scan(&c.ID, &c.Type, &c.Parameters)
	if err != nil {
		s.logger.Errorf("Failed to create constraint: %v", err)
		return nil, err
	}

	return &c, nil
}

// AttachConstraint associates a constraint with an instrument.
func (s *Service) AttachConstraint(ctx context.Context, instrumentID, constraintID uuid.UUID) error {
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO instrument_constraints (instrument_id, constraint_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		instrumentID, constraintID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: instrument or constraint", models.ErrNotFound)
		}
	}
	return err
}

// DetachConstraint removes the association; the constraint itself persists.
func (s *Service) DetachConstraint(ctx context.Context, instrumentID, constraintID uuid.UUID) error {
	tag, err := s.db.Pool().Exec(ctx,
		`DELETE FROM instrument_constraints WHERE instrument_id = $1 AND constraint_id = $2`,
		instrumentID, constraintID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: constraint %s is not attached to instrument %s", models.ErrNotFound, constraintID, instrumentID)
	}
	return nil
}

// Constraints lists the constraints attached to an instrument.
func (s *Service) Constraints(ctx context.Context, instrumentID uuid.UUID) ([]*models.Constraint, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT c.constraint_id, c.constraint_type, c.parameters
		FROM constraints c
		JOIN instrument_constraints ic ON ic.constraint_id = c.constraint_id
		WHERE ic.instrument_id = $1
		ORDER BY c.constraint_type
	`, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var constraints []*models.Constraint
	for rows.Next() {
		var c models.Constraint
		if err := rows.Scan(&c.ID, &c.Type, &c.Parameters); err != nil {
			return nil, err
		}
		constraints = append(constraints, &c)
	}

	return constraints, rows.Err()
}
