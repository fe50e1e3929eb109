package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit carries the cross-cutting creation/modification fields shared by
// most entities. Services fill them from the authenticated principal; the
// store never sets them implicitly.
type Audit struct {
	CreatedOn  time.Time  `json:"created_on"`
	CreatedBy  *uuid.UUID `json:"created_by,omitempty"`
	ModifiedOn time.Time  `json:"modified_on"`
	ModifiedBy *uuid.UUID `json:"modified_by,omitempty"`
}

// User is a human principal. Users are soft-deleted: IsDeleted hides them
// from every read path but the row is never removed.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	IsDeleted bool      `json:"is_deleted"`
	Audit
}

// Group is a membership and authority boundary. Observatories belong to
// groups; group roles are scoped to them.
type Group struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ShortName string    `json:"short_name"`
	Audit
}

// GroupInviteStatus enumerates the lifecycle states of a group invite.
type GroupInviteStatus string

const (
	InvitePending  GroupInviteStatus = "PENDING"
	InviteAccepted GroupInviteStatus = "ACCEPTED"
	InviteRejected GroupInviteStatus = "REJECTED"
	InviteExpired  GroupInviteStatus = "EXPIRED"
)

// GroupInvite is created by a sender and resolved when the receiver accepts
// (becoming a group member) or rejects. ReceiverID is nil until the invited
// email maps to a registered user.
type GroupInvite struct {
	ID            uuid.UUID         `json:"id"`
	GroupID       uuid.UUID         `json:"group_id"`
	ReceiverEmail string            `json:"receiver_email"`
	ReceiverID    *uuid.UUID        `json:"receiver_id,omitempty"`
	SenderID      uuid.UUID         `json:"sender_id"`
	Status        GroupInviteStatus `json:"status"`
	Audit
}

// Permission is a string-named capability, e.g. "user:service_account:write"
// or "system:tle:write". The name is globally unique and immutable once
// created.
type Permission struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedOn time.Time `json:"created_on"`
}

// Role is a global role: a named set of permissions held by users and
// service accounts.
type Role struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions,omitempty"`
	Audit
}

// GroupRole is a role whose grants apply only to actions scoped to its
// group. Deleted in cascade with the group.
type GroupRole struct {
	ID          uuid.UUID    `json:"id"`
	GroupID     uuid.UUID    `json:"group_id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions,omitempty"`
	Audit
}

// ServiceAccount is a non-human principal carrying a long-lived secret.
// Deletion tombstones the account by setting Expiration to the current time.
type ServiceAccount struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Description        *string   `json:"description,omitempty"`
	SecretKey          string    `json:"-"`
	Expiration         time.Time `json:"expiration"`
	ExpirationDuration int       `json:"expiration_duration"`
	Audit
}

// Expired reports whether the account can no longer authenticate.
func (sa *ServiceAccount) Expired(now time.Time) bool {
	return !sa.Expiration.After(now)
}

// ObservatoryType distinguishes orbital platforms from ground stations.
type ObservatoryType string

const (
	SpaceBased  ObservatoryType = "SPACE_BASED"
	GroundBased ObservatoryType = "GROUND_BASED"
)

// Observatory owns telescopes and a prioritized list of ephemeris
// configurations. Each observatory belongs to exactly one group.
type Observatory struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	ShortName string          `json:"short_name"`
	Type      ObservatoryType `json:"type"`
	GroupID   uuid.UUID       `json:"group_id"`
	Audit
}

// EphemerisType discriminates the ObservatoryEphemeris tagged union.
type EphemerisType string

const (
	EphemerisEarthLocation EphemerisType = "EARTH_LOCATION"
	EphemerisTLE           EphemerisType = "TLE"
	EphemerisJPL           EphemerisType = "JPL"
	EphemerisSPICE         EphemerisType = "SPICE"
)

// ObservatoryEphemeris is one entry of an observatory's ephemeris fallback
// chain. (ObservatoryID, Type, Priority) is unique; ascending priority is
// the resolution order. Parameters holds the payload matching Type.
type ObservatoryEphemeris struct {
	ID            uuid.UUID       `json:"id"`
	ObservatoryID uuid.UUID       `json:"observatory_id"`
	Type          EphemerisType   `json:"ephemeris_type"`
	Priority      int             `json:"priority"`
	Parameters    json.RawMessage `json:"parameters"`
}

// EarthLocationParams is the EARTH_LOCATION ephemeris payload.
type EarthLocationParams struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Height    float64 `json:"height"`
}

// TLEParams is the TLE ephemeris payload.
type TLEParams struct {
	NoradID       int    `json:"norad_id"`
	SatelliteName string `json:"satellite_name"`
}

// JPLParams is the JPL ephemeris payload.
type JPLParams struct {
	NaifID int `json:"naif_id"`
}

// SPICEParams is the SPICE ephemeris payload.
type SPICEParams struct {
	NaifID    int    `json:"naif_id"`
	KernelURL string `json:"kernel_url"`
}

// Telescope belongs to an observatory. ScheduleCadence is a cron-like
// expression, nil when the telescope has no recurring schedule builds.
type Telescope struct {
	ID              uuid.UUID `json:"id"`
	ObservatoryID   uuid.UUID `json:"observatory_id"`
	Name            string    `json:"name"`
	ShortName       string    `json:"short_name"`
	ScheduleCadence *string   `json:"schedule_cadence,omitempty"`
	Audit
}

// Instrument belongs to a telescope and carries footprints, constraints,
// and filters.
type Instrument struct {
	ID          uuid.UUID `json:"id"`
	TelescopeID uuid.UUID `json:"telescope_id"`
	Name        string    `json:"name"`
	ShortName   string    `json:"short_name"`
	Audit
}

// Point is a spherical coordinate pair: lon in [-180,180], lat in [-90,90].
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Footprint is an instrument field-of-view polygon in instrument-frame
// degrees on the unit sphere.
type Footprint struct {
	ID           uuid.UUID `json:"id"`
	InstrumentID uuid.UUID `json:"instrument_id"`
	Polygon      []Point   `json:"polygon"`
}

// ConstraintType discriminates the Constraint tagged union.
type ConstraintType string

const (
	ConstraintSun   ConstraintType = "SUN"
	ConstraintMoon  ConstraintType = "MOON"
	ConstraintEarth ConstraintType = "EARTH"
	ConstraintSAA   ConstraintType = "SAA"
)

// Constraint is a visibility constraint shared across instruments via a
// many-to-many association. Parameters holds the payload matching Type.
// Constraints are stored here, never evaluated.
type Constraint struct {
	ID         uuid.UUID       `json:"id"`
	Type       ConstraintType  `json:"constraint_type"`
	Parameters json.RawMessage `json:"parameters"`
}

// SAAPolygonParams is the SAA constraint payload: the South Atlantic
// Anomaly region polygon. The polygon must be closed (first == last vertex).
type SAAPolygonParams struct {
	Polygon []Point `json:"polygon"`
}

// SunAngleParams bounds the allowed Sun separation angle in degrees.
type SunAngleParams struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MoonAngleParams is the minimum Moon separation angle in degrees.
type MoonAngleParams struct {
	Min float64 `json:"min"`
}

// EarthLimbParams is the minimum Earth-limb avoidance angle in degrees.
type EarthLimbParams struct {
	Min float64 `json:"min"`
}

// Filter is an optical filter bandpass. Wavelengths are stored in angstrom
// regardless of the unit the bandpass was defined in.
type Filter struct {
	ID            uuid.UUID `json:"id"`
	InstrumentID  uuid.UUID `json:"instrument_id"`
	Name          string    `json:"name"`
	MinWavelength float64   `json:"min_wavelength"`
	MaxWavelength float64   `json:"max_wavelength"`
	IsOperational bool      `json:"is_operational"`
	ReferenceURL  *string   `json:"reference_url,omitempty"`
}

// ScheduleStatus enumerates schedule lifecycle states.
type ScheduleStatus string

const (
	SchedulePlanned   ScheduleStatus = "PLANNED"
	ScheduleActive    ScheduleStatus = "ACTIVE"
	ScheduleCompleted ScheduleStatus = "COMPLETED"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
)

// ScheduleFidelity enumerates schedule fidelity levels.
type ScheduleFidelity string

const (
	FidelityHigh     ScheduleFidelity = "HIGH"
	FidelityMedium   ScheduleFidelity = "MEDIUM"
	FidelityLow      ScheduleFidelity = "LOW"
	FidelityForecast ScheduleFidelity = "FORECAST"
)

// Schedule owns observations (cascade delete). Checksum covers the
// normalized observation list and is recomputed transactionally whenever
// observations are added or removed.
type Schedule struct {
	ID             uuid.UUID        `json:"id"`
	TelescopeID    uuid.UUID        `json:"telescope_id"`
	Name           string           `json:"name"`
	DateRangeBegin time.Time        `json:"date_range_begin"`
	DateRangeEnd   time.Time        `json:"date_range_end"`
	Status         ScheduleStatus   `json:"status"`
	Fidelity       ScheduleFidelity `json:"fidelity"`
	ExternalID     *string          `json:"external_id,omitempty"`
	Checksum       string           `json:"checksum"`
	Audit
}

// ObservationType enumerates observation kinds.
type ObservationType string

const (
	ObservationImaging      ObservationType = "IMAGING"
	ObservationSpectroscopy ObservationType = "SPECTROSCOPY"
	ObservationTiming       ObservationType = "TIMING"
	ObservationCalibration  ObservationType = "CALIBRATION"
)

// ObservationStatus enumerates observation lifecycle states.
type ObservationStatus string

const (
	ObservationPlanned   ObservationStatus = "PLANNED"
	ObservationScheduled ObservationStatus = "SCHEDULED"
	ObservationPerformed ObservationStatus = "PERFORMED"
	ObservationAborted   ObservationStatus = "ABORTED"
)

// Observation is a single pointing within a schedule. IVOA ObsLocTAP
// passthrough fields are stored verbatim.
type Observation struct {
	ID             uuid.UUID         `json:"id"`
	InstrumentID   uuid.UUID         `json:"instrument_id"`
	ScheduleID     uuid.UUID         `json:"schedule_id"`
	ObjectName     string            `json:"object_name"`
	PointingRA     float64           `json:"pointing_ra"`
	PointingDec    float64           `json:"pointing_dec"`
	Position       *Point            `json:"position,omitempty"`
	DateRangeBegin time.Time         `json:"date_range_begin"`
	DateRangeEnd   time.Time         `json:"date_range_end"`
	ExternalID     *string           `json:"external_id,omitempty"`
	Type           ObservationType   `json:"type"`
	Status         ObservationStatus `json:"status"`
	ExposureSec    *float64          `json:"exposure_sec,omitempty"`
	FilterName     *string           `json:"filter_name,omitempty"`
	Bandwidth      *float64          `json:"bandwidth,omitempty"`
	TargetPosition *Point            `json:"target_position,omitempty"`
	Polarization   *string           `json:"polarization,omitempty"`
	Category       *string           `json:"category,omitempty"`
	Priority       *int              `json:"priority,omitempty"`
	Audit
}

// TLE is a Two-Line Element set. (NoradID, Epoch) is the composite key;
// Epoch is derived from Line1 at insertion time, never supplied by clients.
type TLE struct {
	NoradID       int       `json:"norad_id"`
	Epoch         time.Time `json:"epoch"`
	SatelliteName string    `json:"satellite_name"`
	Line1         string    `json:"tle1"`
	Line2         string    `json:"tle2"`
	CreatedOn     time.Time `json:"created_on"`
}
