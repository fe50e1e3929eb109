package observation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/pkg/models"
)

func validInput() Input {
	begin := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	return Input{
		ObjectName:     "GRB 250301A",
		PointingRA:     83.633083,
		PointingDec:    22.0145,
		DateRangeBegin: begin,
		DateRangeEnd:   begin.Add(30 * time.Minute),
		Type:           models.ObservationImaging,
	}
}

func TestInputValidate(t *testing.T) {
	in := validInput()
	require.NoError(t, in.validate())

	// Status defaults to PLANNED when omitted.
	assert.Equal(t, models.ObservationPlanned, in.Status)
}

func TestInputValidateKeepsExplicitStatus(t *testing.T) {
	in := validInput()
	in.Status = models.ObservationScheduled
	require.NoError(t, in.validate())
	assert.Equal(t, models.ObservationScheduled, in.Status)
}

func TestInputValidateRejections(t *testing.T) {
	negative := -1.0
	cases := map[string]func(*Input){
		"missing object name": func(in *Input) { in.ObjectName = "" },
		"ra below range":      func(in *Input) { in.PointingRA = -0.1 },
		"ra at upper bound":   func(in *Input) { in.PointingRA = 360 },
		"dec below range":     func(in *Input) { in.PointingDec = -90.5 },
		"dec above range":     func(in *Input) { in.PointingDec = 90.5 },
		"inverted date range": func(in *Input) {
			in.DateRangeEnd = in.DateRangeBegin.Add(-time.Second)
		},
		"unknown type":      func(in *Input) { in.Type = models.ObservationType("SURVEY") },
		"unknown status":    func(in *Input) { in.Status = models.ObservationStatus("QUEUED") },
		"negative exposure": func(in *Input) { in.ExposureSec = &negative },
	}

	for name, mutate := range cases {
		in := validInput()
		mutate(&in)
		err := in.validate()
		assert.Error(t, err, name)
		assert.True(t, errors.Is(err, models.ErrInvalidInput), name)
	}
}

func TestUpdatesApply(t *testing.T) {
	in := validInput()
	require.NoError(t, in.validate())

	name := "GRB 250301B"
	ra := 120.5
	status := models.ObservationPerformed
	exposure := 600.0
	pos := models.Point{Lon: 12.5, Lat: -30.25}

	u := Updates{
		ObjectName:     &name,
		PointingRA:     &ra,
		Status:         &status,
		ExposureSec:    &exposure,
		TargetPosition: &pos,
	}
	u.apply(&in)

	assert.Equal(t, "GRB 250301B", in.ObjectName)
	assert.Equal(t, 120.5, in.PointingRA)
	assert.Equal(t, models.ObservationPerformed, in.Status)
	require.NotNil(t, in.ExposureSec)
	assert.Equal(t, 600.0, *in.ExposureSec)
	require.NotNil(t, in.TargetPosition)
	assert.Equal(t, pos, *in.TargetPosition)

	// Untouched fields keep their current values.
	assert.Equal(t, 22.0145, in.PointingDec)
	assert.Equal(t, models.ObservationImaging, in.Type)
}

func TestUpdatesMergedStateIsValidated(t *testing.T) {
	in := validInput()
	require.NoError(t, in.validate())

	// Moving begin past the current end must fail validation even though
	// the new begin is well-formed on its own.
	begin := in.DateRangeEnd.Add(time.Hour)
	u := Updates{DateRangeBegin: &begin}
	u.apply(&in)

	err := in.validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestUpdatesTouchesChecksum(t *testing.T) {
	name := "NGC 1275"
	ra := 49.950667
	dec := 41.511696
	at := time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)
	status := models.ObservationPerformed
	exposure := 120.0
	filter := "uvw1"

	identity := []Updates{
		{ObjectName: &name},
		{PointingRA: &ra},
		{PointingDec: &dec},
		{DateRangeBegin: &at},
		{DateRangeEnd: &at},
	}
	for _, u := range identity {
		assert.True(t, u.touchesChecksum())
	}

	// Status and exposure changes do not feed the schedule checksum.
	assert.False(t, Updates{Status: &status}.touchesChecksum())
	assert.False(t, Updates{ExposureSec: &exposure, FilterName: &filter}.touchesChecksum())
	assert.False(t, Updates{}.touchesChecksum())
}

func TestInputValidateAllowsInstantaneousRange(t *testing.T) {
	// A zero-length window is a valid pointing, not an inverted range.
	in := validInput()
	in.DateRangeEnd = in.DateRangeBegin
	assert.NoError(t, in.validate())
}
