package schedule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
	"github.com/obsplan/obsplan/pkg/models"
)

// Service handles schedules. The schedule checksum covers the normalized
// observation list and is recomputed in the same transaction as any
// observation mutation, so readers never see a stale value.
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new schedule service.
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

const scheduleColumns = `schedule_id, telescope_id, name, date_range_begin, date_range_end,
	status, fidelity, external_id, checksum, created_on, created_by, modified_on, modified_by`

func scanSchedule(row pgx.Row) (*models.Schedule, error) {
	var sch models.Schedule
	err := row.Scan(&sch.ID, &sch.TelescopeID, &sch.Name, &sch.DateRangeBegin, &sch.DateRangeEnd,
		&sch.Status, &sch.Fidelity, &sch.ExternalID, &sch.Checksum,
		&sch.CreatedOn, &sch.CreatedBy, &sch.ModifiedOn, &sch.ModifiedBy)
	if err != nil {
		return nil, err
	}
	return &sch, nil
}

func validStatus(st models.ScheduleStatus) bool {
	switch st {
	case models.SchedulePlanned, models.ScheduleActive, models.ScheduleCompleted, models.ScheduleCancelled:
		return true
	}
	return false
}

func validFidelity(f models.ScheduleFidelity) bool {
	switch f {
	case models.FidelityHigh, models.FidelityMedium, models.FidelityLow, models.FidelityForecast:
		return true
	}
	return false
}

// checksumRow is what the checksum sees of one observation.
type checksumRow struct {
	ID          uuid.UUID
	ObjectName  string
	PointingRA  float64
	PointingDec float64
	Begin       time.Time
	End         time.Time
}

// EmptyChecksum is the checksum of a schedule with no observations.
var EmptyChecksum = computeChecksum(nil)

// computeChecksum hashes the normalized observation list: rows sorted by
// begin time then ID, each reduced to its identity fields in a fixed
// textual form.
func computeChecksum(rows []checksumRow) string {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Begin.Equal(rows[j].Begin) {
			return rows[i].Begin.Before(rows[j].Begin)
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})

	h := sha256.New()
	for _, r := range rows {
		fmt.Fprintf(h, "%s|%s|%.9f|%.9f|%s|%s\n",
			r.ID, r.ObjectName, r.PointingRA, r.PointingDec,
			r.Begin.UTC().Format(time.RFC3339Nano), r.End.UTC().Format(time.RFC3339Nano))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Recompute reloads the observation list and rewrites the schedule
// checksum inside the caller's transaction.
func Recompute(ctx context.Context, tx pgx.Tx, scheduleID uuid.UUID) (string, error) {
	rows, err := tx.Query(ctx, `
		SELECT observation_id, object_name, pointing_ra, pointing_dec, date_range_begin, date_range_end
		FROM observations
		WHERE schedule_id = $1
	`, scheduleID)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var entries []checksumRow
	for rows.Next() {
		var r checksumRow
		if err := rows.Scan(&r.ID, &r.ObjectName, &r.PointingRA, &r.PointingDec, &r.Begin, &r.End); err != nil {
			return "", err
		}
		entries = append(entries, r)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	rows.Close()

	sum := computeChecksum(entries)
	_, err = tx.Exec(ctx,
		`UPDATE schedules SET checksum = $2, modified_on = CURRENT_TIMESTAMP WHERE schedule_id = $1`,
		scheduleID, sum)
	return sum, err
}

// Create creates a schedule. A new schedule has no observations, so its
// checksum starts at the empty-list value.
func (s *Service) Create(ctx context.Context, telescopeID uuid.UUID, name string, begin, end time.Time, status models.ScheduleStatus, fidelity models.ScheduleFidelity, externalID *string, actor uuid.UUID) (*models.Schedule, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrInvalidInput)
	}
	if end.Before(begin) {
		return nil, fmt.Errorf("%w: date_range_end precedes date_range_begin", models.ErrInvalidInput)
	}
	if status == "" {
		status = models.SchedulePlanned
	}
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: unknown schedule status %q", models.ErrInvalidInput, status)
	}
	if !validFidelity(fidelity) {
		return nil, fmt.Errorf("%w: unknown schedule fidelity %q", models.ErrInvalidInput, fidelity)
	}

	s.logger.Infof("Creating schedule %s for telescope %s", name, telescopeID)

	query := `
		INSERT INTO schedules (schedule_id, telescope_id, name, date_range_begin, date_range_end,
			status, fidelity, external_id, checksum, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING ` + scheduleColumns

	sch, err := scanSchedule(s.db.Pool().QueryRow(ctx, query,
		uuid.New(), telescopeID, name, begin, end, status, fidelity, externalID, EmptyChecksum, actor))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("%w: schedule %s already exists", models.ErrDuplicate, name)
			case "23503":
				return nil, fmt.Errorf("%w: telescope %s", models.ErrNotFound, telescopeID)
			}
		}
		s.logger.Errorf("Failed to create schedule: %v", err)
		return nil, err
	}

	return sch, nil
}

// Get retrieves a schedule by ID.
func (s *Service) Get(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error) {
	sch, err := scanSchedule(s.db.Pool().QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE schedule_id = $1`, scheduleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: schedule %s", models.ErrNotFound, scheduleID)
		}
		s.logger.Errorf("Failed to get schedule: %v", err)
		return nil, err
	}
	return sch, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	TelescopeID *uuid.UUID
	Status      *models.ScheduleStatus
	Begin       *time.Time
	End         *time.Time
}

// List returns schedules matching the filter, newest range first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	args := []interface{}{}
	clauses := []string{}

	where := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.TelescopeID != nil {
		where("telescope_id = $%d", *filter.TelescopeID)
	}
	if filter.Status != nil {
		where("status = $%d", *filter.Status)
	}
	if filter.Begin != nil {
		where("date_range_end >= $%d", *filter.Begin)
	}
	if filter.End != nil {
		where("date_range_begin <= $%d", *filter.End)
	}

	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY date_range_begin DESC"

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sch)
	}

	return schedules, rows.Err()
}

// Updates are the mutable schedule fields. Nil means unchanged.
type Updates struct {
	Name       *string
	Begin      *time.Time
	End        *time.Time
	Status     *models.ScheduleStatus
	Fidelity   *models.ScheduleFidelity
	ExternalID *string
}

// Update applies partial updates to a schedule.
func (s *Service) Update(ctx context.Context, scheduleID uuid.UUID, updates Updates, actor uuid.UUID) (*models.Schedule, error) {
	if updates.Status != nil && !validStatus(*updates.Status) {
		return nil, fmt.Errorf("%w: unknown schedule status %q", models.ErrInvalidInput, *updates.Status)
	}
	if updates.Fidelity != nil && !validFidelity(*updates.Fidelity) {
		return nil, fmt.Errorf("%w: unknown schedule fidelity %q", models.ErrInvalidInput, *updates.Fidelity)
	}
	if updates.Begin != nil && updates.End != nil && updates.End.Before(*updates.Begin) {
		return nil, fmt.Errorf("%w: date_range_end precedes date_range_begin", models.ErrInvalidInput)
	}

	setClauses := []string{}
	args := []interface{}{scheduleID}

	set := func(column string, value interface{}) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if updates.Name != nil {
		set("name", *updates.Name)
	}
	if updates.Begin != nil {
		set("date_range_begin", *updates.Begin)
	}
	if updates.End != nil {
		set("date_range_end", *updates.End)
	}
	if updates.Status != nil {
		set("status", *updates.Status)
	}
	if updates.Fidelity != nil {
		set("fidelity", *updates.Fidelity)
	}
	if updates.ExternalID != nil {
		set("external_id", *updates.ExternalID)
	}

	if len(setClauses) == 0 {
		return s.Get(ctx, scheduleID)
	}

	args = append(args, actor)
	setClauses = append(setClauses, fmt.Sprintf("modified_by = $%d", len(args)))
	setClauses = append(setClauses, "modified_on = CURRENT_TIMESTAMP")

	query := "UPDATE schedules SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE schedule_id = $1 RETURNING " + scheduleColumns

	sch, err := scanSchedule(s.db.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: schedule %s", models.ErrNotFound, scheduleID)
		}
		s.logger.Errorf("Failed to update schedule: %v", err)
		return nil, err
	}

	return sch, nil
}

// Delete removes a schedule and its observations via cascade.
func (s *Service) Delete(ctx context.Context, scheduleID uuid.UUID) error {
	s.logger.Infof("Deleting schedule %s", scheduleID)

	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM schedules WHERE schedule_id = $1`, scheduleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: schedule %s", models.ErrNotFound, scheduleID)
	}
	return nil
}

// Exists checks whether a schedule exists.
func (s *Service) Exists(ctx context.Context, scheduleID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM schedules WHERE schedule_id = $1)`, scheduleID).Scan(&exists)
	return exists, err
}

// Telescope resolves the telescope a schedule belongs to.
func (s *Service) Telescope(ctx context.Context, scheduleID uuid.UUID) (uuid.UUID, error) {
	var telescopeID uuid.UUID
	err := s.db.Pool().QueryRow(ctx,
		`SELECT telescope_id FROM schedules WHERE schedule_id = $1`, scheduleID).Scan(&telescopeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%w: schedule %s", models.ErrNotFound, scheduleID)
		}
		return uuid.Nil, err
	}
	return telescopeID, nil
}
