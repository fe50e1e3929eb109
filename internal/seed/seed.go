package seed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
	"github.com/obsplan/obsplan/pkg/models"
)

// permissionCatalog is the set of permission names the handlers check.
// Seeding is idempotent; re-running against a populated database is a
// no-op.
var permissionCatalog = []string{
	"all:write",
	"user:read",
	"user:write",
	"user:service_account:read",
	"user:service_account:write",
	"group:read",
	"group:write",
	"observatory:write",
	"system:tle:write",
	"system:service_account:write",
}

// builtinRoles maps role names to the permissions they grant.
var builtinRoles = map[string][]string{
	"admin":        {"all:write"},
	"member":       {"user:service_account:read", "user:service_account:write", "group:read"},
	"tle-ingester": {"system:tle:write"},
}

// Run populates the permission catalog, the built-in roles, and the
// sample observatory catalog.
func Run(ctx context.Context, db *database.PostgreSQL, log *logger.Logger) error {
	if err := permissions(ctx, db); err != nil {
		return fmt.Errorf("seeding permissions: %w", err)
	}
	if err := roles(ctx, db); err != nil {
		return fmt.Errorf("seeding roles: %w", err)
	}
	if err := observatoryCatalog(ctx, db); err != nil {
		return fmt.Errorf("seeding observatory catalog: %w", err)
	}
	log.Infof("Seed data applied")
	return nil
}

func permissions(ctx context.Context, db *database.PostgreSQL) error {
	for _, name := range permissionCatalog {
		_, err := db.Pool().Exec(ctx,
			`INSERT INTO permissions (permission_id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			uuid.New(), name)
		if err != nil {
			return err
		}
	}
	return nil
}

func roles(ctx context.Context, db *database.PostgreSQL) error {
	for roleName, perms := range builtinRoles {
		_, err := db.Pool().Exec(ctx,
			`INSERT INTO roles (role_id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			uuid.New(), roleName)
		if err != nil {
			return err
		}
		for _, permName := range perms {
			_, err := db.Pool().Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				SELECT r.role_id, p.permission_id
				FROM roles r, permissions p
				WHERE r.name = $1 AND p.name = $2
				ON CONFLICT DO NOTHING
			`, roleName, permName)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

type observatoryRow struct {
	name      string
	shortName string
	obsType   models.ObservatoryType
	ephType   models.EphemerisType
	ephParams interface{}
}

type telescopeRow struct {
	observatory string
	name        string
	shortName   string
}

type instrumentRow struct {
	telescope string
	name      string
	shortName string
}

type filterRow struct {
	instrument string
	name       string
	minWav     float64
	maxWav     float64
}

var observatories = []observatoryRow{
	{
		name: "Neil Gehrels Swift Observatory", shortName: "Swift",
		obsType: models.SpaceBased,
		ephType: models.EphemerisTLE,
		ephParams: models.TLEParams{
			NoradID: 28485, SatelliteName: "SWIFT",
		},
	},
	{
		name: "Fermi Gamma-ray Space Telescope", shortName: "Fermi",
		obsType: models.SpaceBased,
		ephType: models.EphemerisTLE,
		ephParams: models.TLEParams{
			NoradID: 33053, SatelliteName: "FGST",
		},
	},
	{
		name: "Karl G. Jansky Very Large Array", shortName: "VLA",
		obsType: models.GroundBased,
		ephType: models.EphemerisEarthLocation,
		ephParams: models.EarthLocationParams{
			Latitude: 34.0784, Longitude: -107.6184, Height: 2124,
		},
	},
}

var telescopes = []telescopeRow{
	{observatory: "Swift", name: "Burst Alert Telescope", shortName: "BAT"},
	{observatory: "Swift", name: "Ultra-Violet/Optical Telescope", shortName: "UVOT"},
	{observatory: "Fermi", name: "Large Area Telescope", shortName: "LAT"},
}

var instruments = []instrumentRow{
	{telescope: "BAT", name: "BAT Coded Mask", shortName: "BAT-CM"},
	{telescope: "UVOT", name: "UVOT Filter Wheel Imager", shortName: "UVOT-IMG"},
}

// The UVOT filter wheel passbands, in angstrom.
var filters = []filterRow{
	{instrument: "UVOT-IMG", name: "v", minWav: 5027, maxWav: 5939},
	{instrument: "UVOT-IMG", name: "b", minWav: 3905, maxWav: 4880},
	{instrument: "UVOT-IMG", name: "u", minWav: 3072, maxWav: 3857},
	{instrument: "UVOT-IMG", name: "uvw1", minWav: 2253, maxWav: 2946},
	{instrument: "UVOT-IMG", name: "uvm2", minWav: 1997, maxWav: 2495},
	{instrument: "UVOT-IMG", name: "uvw2", minWav: 1599, maxWav: 2256},
}

// saaPolygon is a coarse closed outline of the South Atlantic Anomaly.
var saaPolygon = []models.Point{
	{Lon: -93.0, Lat: -30.0},
	{Lon: -20.0, Lat: -50.0},
	{Lon: 40.0, Lat: -30.0},
	{Lon: 20.0, Lat: 0.0},
	{Lon: -60.0, Lat: 5.0},
	{Lon: -93.0, Lat: -30.0},
}

func observatoryCatalog(ctx context.Context, db *database.PostgreSQL) error {
	_, err := db.Pool().Exec(ctx,
		`INSERT INTO groups (group_id, name, short_name) VALUES ($1, 'Mission Operations', 'MOC') ON CONFLICT (name) DO NOTHING`,
		uuid.New())
	if err != nil {
		return err
	}

	for _, o := range observatories {
		_, err = db.Pool().Exec(ctx, `
			INSERT INTO observatories (observatory_id, name, short_name, observatory_type, group_id)
			SELECT $1, $2, $3, $4, g.group_id
			FROM groups g WHERE g.short_name = 'MOC'
			ON CONFLICT (name) DO NOTHING
		`, uuid.New(), o.name, o.shortName, o.obsType)
		if err != nil {
			return err
		}

		params, err := json.Marshal(o.ephParams)
		if err != nil {
			return err
		}
		_, err = db.Pool().Exec(ctx, `
			INSERT INTO observatory_ephemerides (ephemeris_id, observatory_id, ephemeris_type, priority, parameters)
			SELECT $1, o.observatory_id, $2, 0, $3
			FROM observatories o WHERE o.short_name = $4
			ON CONFLICT (observatory_id, ephemeris_type, priority) DO NOTHING
		`, uuid.New(), o.ephType, params, o.shortName)
		if err != nil {
			return err
		}
	}

	for _, t := range telescopes {
		_, err = db.Pool().Exec(ctx, `
			INSERT INTO telescopes (telescope_id, observatory_id, name, short_name)
			SELECT $1, o.observatory_id, $2, $3
			FROM observatories o WHERE o.short_name = $4
			ON CONFLICT (name) DO NOTHING
		`, uuid.New(), t.name, t.shortName, t.observatory)
		if err != nil {
			return err
		}
	}

	for _, in := range instruments {
		_, err = db.Pool().Exec(ctx, `
			INSERT INTO instruments (instrument_id, telescope_id, name, short_name)
			SELECT $1, t.telescope_id, $2, $3
			FROM telescopes t WHERE t.short_name = $4
			ON CONFLICT (telescope_id, name) DO NOTHING
		`, uuid.New(), in.name, in.shortName, in.telescope)
		if err != nil {
			return err
		}
	}

	for _, f := range filters {
		_, err = db.Pool().Exec(ctx, `
			INSERT INTO filters (filter_id, instrument_id, name, min_wavelength, max_wavelength)
			SELECT $1, i.instrument_id, $2, $3, $4
			FROM instruments i WHERE i.short_name = $5
			ON CONFLICT (instrument_id, name) DO NOTHING
		`, uuid.New(), f.name, f.minWav, f.maxWav, f.instrument)
		if err != nil {
			return err
		}
	}

	return saaConstraint(ctx, db)
}

// saaConstraint stores one shared SAA polygon and attaches it to the
// space-based instruments.
func saaConstraint(ctx context.Context, db *database.PostgreSQL) error {
	params, err := json.Marshal(models.SAAPolygonParams{Polygon: saaPolygon})
	if err != nil {
		return err
	}

	var exists bool
	err = db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM constraints WHERE constraint_type = $1)`,
		models.ConstraintSAA).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		_, err = db.Pool().Exec(ctx,
			`INSERT INTO constraints (constraint_id, constraint_type, parameters) VALUES ($1, $2, $3)`,
			uuid.New(), models.ConstraintSAA, params)
		if err != nil {
			return err
		}
	}

	for _, short := range []string{"BAT-CM", "UVOT-IMG"} {
		_, err = db.Pool().Exec(ctx, `
			INSERT INTO instrument_constraints (instrument_id, constraint_id)
			SELECT i.instrument_id, c.constraint_id
			FROM instruments i, constraints c
			WHERE i.short_name = $1 AND c.constraint_type = $2
			ON CONFLICT DO NOTHING
		`, short, models.ConstraintSAA)
		if err != nil {
			return err
		}
	}

	return nil
}
