package observation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/obsplan/obsplan/internal/services/schedule"
	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
	"github.com/obsplan/obsplan/pkg/models"
)

// Service handles observations. Every mutation that changes a schedule's
// observation list recomputes the schedule checksum in the same
// transaction.
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new observation service.
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

const observationColumns = `observation_id, instrument_id, schedule_id, object_name,
	pointing_ra, pointing_dec, date_range_begin, date_range_end, external_id,
	observation_type, status, exposure_sec, filter_name, bandwidth,
	target_lon, target_lat, polarization, category, priority,
	created_on, created_by, modified_on, modified_by`

func scanObservation(row pgx.Row) (*models.Observation, error) {
	var o models.Observation
	var targetLon, targetLat *float64
	err := row.Scan(&o.ID, &o.InstrumentID, &o.ScheduleID, &o.ObjectName,
		&o.PointingRA, &o.PointingDec, &o.DateRangeBegin, &o.DateRangeEnd, &o.ExternalID,
		&o.Type, &o.Status, &o.ExposureSec, &o.FilterName, &o.Bandwidth,
		&targetLon, &targetLat, &o.Polarization, &o.Category, &o.Priority,
		&o.CreatedOn, &o.CreatedBy, &o.ModifiedOn, &o.ModifiedBy)
	if err != nil {
		return nil, err
	}
	if targetLon != nil && targetLat != nil {
		o.TargetPosition = &models.Point{Lon: *targetLon, Lat: *targetLat}
	}
	return &o, nil
}

func validType(t models.ObservationType) bool {
	switch t {
	case models.ObservationImaging, models.ObservationSpectroscopy,
		models.ObservationTiming, models.ObservationCalibration:
		return true
	}
	return false
}

func validStatus(st models.ObservationStatus) bool {
	switch st {
	case models.ObservationPlanned, models.ObservationScheduled,
		models.ObservationPerformed, models.ObservationAborted:
		return true
	}
	return false
}

// Input is the payload for creating an observation.
type Input struct {
	InstrumentID   uuid.UUID
	ScheduleID     uuid.UUID
	ObjectName     string
	PointingRA     float64
	PointingDec    float64
	DateRangeBegin time.Time
	DateRangeEnd   time.Time
	ExternalID     *string
	Type           models.ObservationType
	Status         models.ObservationStatus
	ExposureSec    *float64
	FilterName     *string
	Bandwidth      *float64
	TargetPosition *models.Point
	Polarization   *string
	Category       *string
	Priority       *int
}

func (in *Input) validate() error {
	if in.ObjectName == "" {
		return fmt.Errorf("%w: object_name is required", models.ErrInvalidInput)
	}
	if in.PointingRA < 0 || in.PointingRA >= 360 {
		return fmt.Errorf("%w: pointing_ra %g out of range [0, 360)", models.ErrInvalidInput, in.PointingRA)
	}
	if in.PointingDec < -90 || in.PointingDec > 90 {
		return fmt.Errorf("%w: pointing_dec %g out of range [-90, 90]", models.ErrInvalidInput, in.PointingDec)
	}
	if in.DateRangeEnd.Before(in.DateRangeBegin) {
		return fmt.Errorf("%w: date_range_end precedes date_range_begin", models.ErrInvalidInput)
	}
	if !validType(in.Type) {
		return fmt.Errorf("%w: unknown observation type %q", models.ErrInvalidInput, in.Type)
	}
	if in.Status == "" {
		in.Status = models.ObservationPlanned
	}
	if !validStatus(in.Status) {
		return fmt.Errorf("%w: unknown observation status %q", models.ErrInvalidInput, in.Status)
	}
	if in.ExposureSec != nil && *in.ExposureSec < 0 {
		return fmt.Errorf("%w: exposure_sec must be non-negative", models.ErrInvalidInput)
	}
	return nil
}

// Create validates and inserts an observation, then recomputes the owning
// schedule's checksum in the same transaction.
func (s *Service) Create(ctx context.Context, in Input, actor uuid.UUID) (*models.Observation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM instruments WHERE instrument_id = $1)`, in.InstrumentID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: instrument %s", models.ErrNotFound, in.InstrumentID)
	}

	var targetLon, targetLat *float64
	if in.TargetPosition != nil {
		targetLon, targetLat = &in.TargetPosition.Lon, &in.TargetPosition.Lat
	}

	query := `
		INSERT INTO observations (observation_id, instrument_id, schedule_id, object_name,
			pointing_ra, pointing_dec, date_range_begin, date_range_end, external_id,
			observation_type, status, exposure_sec, filter_name, bandwidth,
			target_lon, target_lat, polarization, category, priority, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
		RETURNING ` + observationColumns

	o, err := scanObservation(tx.QueryRow(ctx, query,
		uuid.New(), in.InstrumentID, in.ScheduleID, in.ObjectName,
		in.PointingRA, in.PointingDec, in.DateRangeBegin, in.DateRangeEnd, in.ExternalID,
		in.Type, in.Status, in.ExposureSec, in.FilterName, in.Bandwidth,
		targetLon, targetLat, in.Polarization, in.Category, in.Priority, actor))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, fmt.Errorf("%w: schedule %s", models.ErrNotFound, in.ScheduleID)
		}
		s.logger.Errorf("Failed to create observation: %v", err)
		return nil, err
	}

	if _, err := schedule.Recompute(ctx, tx, in.ScheduleID); err != nil {
		s.logger.Errorf("Failed to recompute schedule checksum: %v", err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return o, nil
}

// Get retrieves an observation by ID.
func (s *Service) Get(ctx context.Context, observationID uuid.UUID) (*models.Observation, error) {
	o, err := scanObservation(s.db.Pool().QueryRow(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE observation_id = $1`, observationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: observation %s", models.ErrNotFound, observationID)
		}
		s.logger.Errorf("Failed to get observation: %v", err)
		return nil, err
	}
	return o, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	ScheduleID   *uuid.UUID
	InstrumentID *uuid.UUID
	Status       *models.ObservationStatus
	ObjectName   *string
	Limit        int
	Offset       int
}

// List returns observations matching the filter ordered by begin time.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations`
	args := []interface{}{}
	clauses := []string{}

	where := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.ScheduleID != nil {
		where("schedule_id = $%d", *filter.ScheduleID)
	}
	if filter.InstrumentID != nil {
		where("instrument_id = $%d", *filter.InstrumentID)
	}
	if filter.Status != nil {
		where("status = $%d", *filter.Status)
	}
	if filter.ObjectName != nil {
		where("object_name ILIKE '%%' || $%d || '%%'", *filter.ObjectName)
	}

	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY date_range_begin"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var observations []*models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, o)
	}

	return observations, rows.Err()
}

// Updates carries a partial observation update; nil fields are kept.
type Updates struct {
	ObjectName     *string
	PointingRA     *float64
	PointingDec    *float64
	DateRangeBegin *time.Time
	DateRangeEnd   *time.Time
	ExternalID     *string
	Type           *models.ObservationType
	Status         *models.ObservationStatus
	ExposureSec    *float64
	FilterName     *string
	Bandwidth      *float64
	TargetPosition *models.Point
	Polarization   *string
	Category       *string
	Priority       *int
}

// touchesChecksum reports whether the update alters a field the schedule
// checksum is computed over.
func (u Updates) touchesChecksum() bool {
	return u.ObjectName != nil || u.PointingRA != nil || u.PointingDec != nil ||
		u.DateRangeBegin != nil || u.DateRangeEnd != nil
}

// apply merges the updates into the observation's current state.
func (u Updates) apply(in *Input) {
	if u.ObjectName != nil {
		in.ObjectName = *u.ObjectName
	}
	if u.PointingRA != nil {
		in.PointingRA = *u.PointingRA
	}
	if u.PointingDec != nil {
		in.PointingDec = *u.PointingDec
	}
	if u.DateRangeBegin != nil {
		in.DateRangeBegin = *u.DateRangeBegin
	}
	if u.DateRangeEnd != nil {
		in.DateRangeEnd = *u.DateRangeEnd
	}
	if u.ExternalID != nil {
		in.ExternalID = u.ExternalID
	}
	if u.Type != nil {
		in.Type = *u.Type
	}
	if u.Status != nil {
		in.Status = *u.Status
	}
	if u.ExposureSec != nil {
		in.ExposureSec = u.ExposureSec
	}
	if u.FilterName != nil {
		in.FilterName = u.FilterName
	}
	if u.Bandwidth != nil {
		in.Bandwidth = u.Bandwidth
	}
	if u.TargetPosition != nil {
		in.TargetPosition = u.TargetPosition
	}
	if u.Polarization != nil {
		in.Polarization = u.Polarization
	}
	if u.Category != nil {
		in.Category = u.Category
	}
	if u.Priority != nil {
		in.Priority = u.Priority
	}
}

func inputFromRow(o *models.Observation) Input {
	return Input{
		InstrumentID:   o.InstrumentID,
		ScheduleID:     o.ScheduleID,
		ObjectName:     o.ObjectName,
		PointingRA:     o.PointingRA,
		PointingDec:    o.PointingDec,
		DateRangeBegin: o.DateRangeBegin,
		DateRangeEnd:   o.DateRangeEnd,
		ExternalID:     o.ExternalID,
		Type:           o.Type,
		Status:         o.Status,
		ExposureSec:    o.ExposureSec,
		FilterName:     o.FilterName,
		Bandwidth:      o.Bandwidth,
		TargetPosition: o.TargetPosition,
		Polarization:   o.Polarization,
		Category:       o.Category,
		Priority:       o.Priority,
	}
}

// Update merges the given fields into the observation, validating the
// merged state the same way Create does. When a checksum identity field
// changes, the owning schedule's checksum is recomputed in the same
// transaction.
func (s *Service) Update(ctx context.Context, observationID uuid.UUID, u Updates, actor uuid.UUID) (*models.Observation, error) {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := scanObservation(tx.QueryRow(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE observation_id = $1 FOR UPDATE`, observationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: observation %s", models.ErrNotFound, observationID)
		}
		s.logger.Errorf("Failed to load observation: %v", err)
		return nil, err
	}

	in := inputFromRow(current)
	u.apply(&in)
	if err := in.validate(); err != nil {
		return nil, err
	}

	var targetLon, targetLat *float64
	if in.TargetPosition != nil {
		targetLon, targetLat = &in.TargetPosition.Lon, &in.TargetPosition.Lat
	}

	o, err := scanObservation(tx.QueryRow(ctx, `
		UPDATE observations
		SET object_name = $2, pointing_ra = $3, pointing_dec = $4,
		    date_range_begin = $5, date_range_end = $6, external_id = $7,
		    observation_type = $8, status = $9, exposure_sec = $10,
		    filter_name = $11, bandwidth = $12, target_lon = $13, target_lat = $14,
		    polarization = $15, category = $16, priority = $17,
		    modified_on = CURRENT_TIMESTAMP, modified_by = $18
		WHERE observation_id = $1
		RETURNING `+observationColumns,
		observationID, in.ObjectName, in.PointingRA, in.PointingDec,
		in.DateRangeBegin, in.DateRangeEnd, in.ExternalID,
		in.Type, in.Status, in.ExposureSec,
		in.FilterName, in.Bandwidth, targetLon, targetLat,
		in.Polarization, in.Category, in.Priority, actor))
	if err != nil {
		s.logger.Errorf("Failed to update observation: %v", err)
		return nil, err
	}

	if u.touchesChecksum() {
		if _, err := schedule.Recompute(ctx, tx, o.ScheduleID); err != nil {
			s.logger.Errorf("Failed to recompute schedule checksum: %v", err)
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return o, nil
}

// Delete removes an observation and recomputes the owning schedule's
// checksum in the same transaction.
func (s *Service) Delete(ctx context.Context, observationID uuid.UUID) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var scheduleID uuid.UUID
	err = tx.QueryRow(ctx,
		`DELETE FROM observations WHERE observation_id = $1 RETURNING schedule_id`, observationID).Scan(&scheduleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: observation %s", models.ErrNotFound, observationID)
		}
		s.logger.Errorf("Failed to delete observation: %v", err)
		return err
	}

	if _, err := schedule.Recompute(ctx, tx, scheduleID); err != nil {
		s.logger.Errorf("Failed to recompute schedule checksum: %v", err)
		return err
	}

	return tx.Commit(ctx)
}
