package instrument

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/obsplan/obsplan/pkg/models"
)

// WavelengthUnit names the unit a filter bandpass was supplied in.
// Storage is always angstrom.
type WavelengthUnit string

const (
	UnitAngstrom  WavelengthUnit = "angstrom"
	UnitNanometer WavelengthUnit = "nm"
)

func toAngstrom(value float64, unit WavelengthUnit) (float64, error) {
	switch unit {
	case UnitAngstrom, "":
		return value, nil
	case UnitNanometer:
		return value * 10, nil
	default:
		return 0, fmt.Errorf("%w: unknown wavelength unit %q", models.ErrInvalidInput, unit)
	}
}

// Bandpass describes a filter passband either as Center+Width or as
// Min+Max, never both. Unit defaults to angstrom.
type Bandpass struct {
	Center *float64
	Width  *float64
	Min    *float64
	Max    *float64
	Unit   WavelengthUnit
}

// Resolve converts the bandpass to a min/max pair in angstrom.
func (b Bandpass) Resolve() (min, max float64, err error) {
	centerForm := b.Center != nil || b.Width != nil
	rangeForm := b.Min != nil || b.Max != nil

	switch {
	case centerForm && rangeForm:
		return 0, 0, fmt.Errorf("%w: bandpass must be center/width or min/max, not both", models.ErrInvalidInput)
	case centerForm:
		if b.Center == nil || b.Width == nil {
			return 0, 0, fmt.Errorf("%w: bandpass center and width are both required", models.ErrInvalidInput)
		}
		min = *b.Center - *b.Width/2
		max = *b.Center + *b.Width/2
	case rangeForm:
		if b.Min == nil || b.Max == nil {
			return 0, 0, fmt.Errorf("%w: bandpass min and max are both required", models.ErrInvalidInput)
		}
		min = *b.Min
		max = *b.Max
	default:
		return 0, 0, fmt.Errorf("%w: bandpass is required", models.ErrInvalidInput)
	}

	if min, err = toAngstrom(min, b.Unit); err != nil {
		return 0, 0, err
	}
	if max, err = toAngstrom(max, b.Unit); err != nil {
		return 0, 0, err
	}
	if min <= 0 || max <= 0 || min >= max {
		return 0, 0, fmt.Errorf("%w: bandpass [%g, %g] angstrom is not a valid range", models.ErrInvalidInput, min, max)
	}

	return min, max, nil
}

// AddFilter attaches an optical filter to the instrument.
func (s *Service) AddFilter(ctx context.Context, instrumentID uuid.UUID, name string, bandpass Bandpass, operational bool, referenceURL *string) (*models.Filter, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: filter name is required", models.ErrInvalidInput)
	}

	min, max, err := bandpass.Resolve()
	if err != nil {
		return nil, err
	}

	var f models.Filter
	err = s.db.Pool().QueryRow(ctx, `
		INSERT INTO filters (filter_id, instrument_id, name, min_wavelength, max_wavelength, is_operational, reference_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING filter_id, instrument_id, name, min_wavelength, max_wavelength, is_operational, reference_url
	`, uuid.New(), instrumentID, name, min, max, operational, referenceURL).Scan(
		&f.ID, &f.InstrumentID, &f.Name, &f.MinWavelength, &f.MaxWavelength, &f.IsOperational, &f.ReferenceURL)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("%w: filter %s already exists on instrument %s", models.ErrDuplicate, name, instrumentID)
			case "23503":
				return nil, fmt.Errorf("%w: instrument %s", models.ErrNotFound, instrumentID)
			}
		}
		s.logger.Errorf("Failed to add filter: %v", err)
		return nil, err
	}

	return &f, nil
}

// Filters lists the instrument's filters.
func (s *Service) Filters(ctx context.Context, instrumentID uuid.UUID) ([]*models.Filter, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT filter_id, instrument_id, name, min_wavelength, max_wavelength, is_operational, reference_url
		FROM filters
		WHERE instrument_id = $1
		ORDER BY min_wavelength
	`, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var filters []*models.Filter
	for rows.Next() {
		var f models.Filter
		err := rows.Scan(&f.ID, &f.InstrumentID, &f.Name, &f.MinWavelength, &f.MaxWavelength, &f.IsOperational, &f.ReferenceURL)
		if err != nil {
			return nil, err
		}
		filters = append(filters, &f)
	}

	return filters, rows.Err()
}

// SetFilterOperational flips the operational flag on a filter.
func (s *Service) SetFilterOperational(ctx context.Context, filterID uuid.UUID, operational bool) error {
	tag, err := s.db.Pool().Exec(ctx,
		`UPDATE filters SET is_operational = $2 WHERE filter_id = $1`, filterID, operational)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: filter %s", models.ErrNotFound, filterID)
	}
	return nil
}

// RemoveFilter deletes a filter.
func (s *Service) RemoveFilter(ctx context.Context, filterID uuid.UUID) error {
	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM filters WHERE filter_id = $1`, filterID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: filter %s", models.ErrNotFound, filterID)
	}
	return nil
}
