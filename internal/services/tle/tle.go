package tle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
	"github.com/obsplan/obsplan/pkg/models"
)

// LineLength is the fixed length of each TLE line.
const LineLength = 69

// Service handles TLE ingestion and lookup.
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new TLE service.
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// ParseEpoch derives the epoch instant from tle1. The epoch field occupies
// columns 19-32 as YYDDD.FFFFFFFF: two-digit year (NORAD pivot: YY<57 is
// 2000+YY, else 1900+YY) and fractional day-of-year counted from 1.
func ParseEpoch(line1 string) (time.Time, error) {
	if len(line1) < 32 {
		return time.Time{}, fmt.Errorf("%w: tle1 too short to carry an epoch field", models.ErrInvalidInput)
	}

	field := strings.TrimSpace(line1[18:32])
	if len(field) < 4 {
		return time.Time{}, fmt.Errorf("%w: malformed epoch field %q", models.ErrInvalidInput, field)
	}

	yy, err := strconv.Atoi(field[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed epoch year in %q", models.ErrInvalidInput, field)
	}

	days, err := strconv.ParseFloat(field[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed epoch day in %q", models.ErrInvalidInput, field)
	}
	if days < 1 || days >= 367 {
		return time.Time{}, fmt.Errorf("%w: epoch day %v out of range", models.ErrInvalidInput, days)
	}

	year := 1900 + yy
	if yy < 57 {
		year = 2000 + yy
	}

	base := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	ns := (days - 1) * float64(24*time.Hour)
	return base.Add(time.Duration(math.Round(ns))), nil
}

// Validate checks the structural constraints of a TLE before insertion.
func Validate(noradID int, line1, line2 string) error {
	if noradID <= 0 {
		return fmt.Errorf("%w: norad_id must be positive", models.ErrInvalidInput)
	}
	if len(line1) != LineLength {
		return fmt.Errorf("%w: tle1 must be exactly %d characters, got %d", models.ErrInvalidInput, LineLength, len(line1))
	}
	if len(line2) != LineLength {
		return fmt.Errorf("%w: tle2 must be exactly %d characters, got %d", models.ErrInvalidInput, LineLength, len(line2))
	}
	return nil
}

// Create validates the TLE, derives its epoch from tle1, and inserts it.
// A row already present at (norad_id, epoch) is a duplicate; the unique
// constraint is the authority, not a prior existence check.
func (s *Service) Create(ctx context.Context, t *models.TLE) (*models.TLE, error) {
	if err := Validate(t.NoradID, t.Line1, t.Line2); err != nil {
		return nil, err
	}

	epoch, err := ParseEpoch(t.Line1)
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Ingesting TLE for norad_id %d at epoch %s", t.NoradID, epoch.Format(time.RFC3339Nano))

	query := `
		INSERT INTO tle (norad_id, epoch, satellite_name, tle1, tle2)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING norad_id, epoch, satellite_name, tle1, tle2, created_on
	`

	var stored models.TLE
	err = s.db.Pool().QueryRow(ctx, query, t.NoradID, epoch, t.SatelliteName, t.Line1, t.Line2).Scan(
		&stored.NoradID,
		&stored.Epoch,
		&stored.SatelliteName,
		&stored.Line1,
		&stored.Line2,
		&stored.CreatedOn,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: TLE for norad_id %d at epoch %s already exists",
				models.ErrDuplicate, t.NoradID, epoch.Format(time.RFC3339Nano))
		}
		s.logger.Errorf("Failed to insert TLE: %v", err)
		return nil, err
	}

	return &stored, nil
}

// Get returns the TLE for noradID whose epoch is nearest to refEpoch.
// Equidistant epochs resolve to the earlier one. Returns (nil, nil) when
// the satellite has no TLEs at all.
func (s *Service) Get(ctx context.Context, noradID int, refEpoch time.Time) (*models.TLE, error) {
	query := `
		SELECT norad_id, epoch, satellite_name, tle1, tle2, created_on
		FROM tle
		WHERE norad_id = $1
		ORDER BY ABS(EXTRACT(EPOCH FROM (epoch - $2::timestamptz))), epoch
		LIMIT 1
	`

	var t models.TLE
	err := s.db.Pool().QueryRow(ctx, query, noradID, refEpoch).Scan(
		&t.NoradID,
		&t.Epoch,
		&t.SatelliteName,
		&t.Line1,
		&t.Line2,
		&t.CreatedOn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		s.logger.Errorf("Failed to get TLE: %v", err)
		return nil, err
	}

	return &t, nil
}

// Exists checks for an exact (norad_id, epoch) match.
func (s *Service) Exists(ctx context.Context, noradID int, epoch time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM tle WHERE norad_id = $1 AND epoch = $2)`

	var exists bool
	err := s.db.Pool().QueryRow(ctx, query, noradID, epoch).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// Position is an SGP4-propagated satellite state at a requested instant.
// Coordinates are Earth-fixed kilometres; Lon/Lat/AltKm is the
// sub-satellite point on a spherical Earth.
type Position struct {
	NoradID       int       `json:"norad_id"`
	SatelliteName string    `json:"satellite_name"`
	Epoch         time.Time `json:"epoch"`
	At            time.Time `json:"at"`
	X             float64   `json:"x_km"`
	Y             float64   `json:"y_km"`
	Z             float64   `json:"z_km"`
	Lon           float64   `json:"lon"`
	Lat           float64   `json:"lat"`
	AltKm         float64   `json:"alt_km"`
}

const earthRadiusKm = 6378.137

// Position propagates the nearest TLE for noradID to the requested instant.
func (s *Service) Position(ctx context.Context, noradID int, at time.Time) (*Position, error) {
	t, err := s.Get(ctx, noradID, at)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: no TLE for norad_id %d", models.ErrNotFound, noradID)
	}

	sat := satellite.TLEToSat(t.Line1, t.Line2, satellite.GravityWGS72)

	at = at.UTC()
	year, month, day := at.Date()
	hour, min, sec := at.Clock()

	posECI, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	r := math.Sqrt(posECEF.X*posECEF.X + posECEF.Y*posECEF.Y + posECEF.Z*posECEF.Z)
	lon := math.Atan2(posECEF.Y, posECEF.X) * 180 / math.Pi
	lat := math.Atan2(posECEF.Z, math.Sqrt(posECEF.X*posECEF.X+posECEF.Y*posECEF.Y)) * 180 / math.Pi

	return &Position{
		NoradID:       t.NoradID,
		SatelliteName: t.SatelliteName,
		Epoch:         t.Epoch,
		At:            at,
		X:             posECEF.X,
		Y:             posECEF.Y,
		Z:             posECEF.Z,
		Lon:           lon,
		Lat:           lat,
		AltKm:         r - earthRadiusKm,
	}, nil
}
