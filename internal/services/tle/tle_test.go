package tle

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/pkg/models"
)

const (
	swiftLine1 = "1 28485U 04047A   25038.03159117  .00012415  00000-0  55099-3 0  9992"
	swiftLine2 = "2 28485  20.5558 333.3569 0010877 161.0112 199.0823 15.24941556111170"
)

func TestParseEpoch(t *testing.T) {
	require.Len(t, swiftLine1, LineLength)

	epoch, err := ParseEpoch(swiftLine1)
	require.NoError(t, err)

	want := time.Date(2025, time.February, 7, 0, 45, 29, 477088000, time.UTC)
	assert.WithinDuration(t, want, epoch, time.Millisecond)
	assert.Equal(t, time.UTC, epoch.Location())
}

func TestParseEpochCenturyPivot(t *testing.T) {
	// YY < 57 maps to 2000+YY, everything else to 1900+YY.
	line := func(field string) string {
		return "1 25544U 98067A   " + field + "  .00016717  00000-0  10270-3 0  9000"
	}

	epoch, err := ParseEpoch(line("98336.50000000"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(1998, time.December, 2, 12, 0, 0, 0, time.UTC), epoch)

	epoch, err = ParseEpoch(line("56001.00000000"))
	require.NoError(t, err)
	assert.Equal(t, 2056, epoch.Year())

	epoch, err = ParseEpoch(line("57001.00000000"))
	require.NoError(t, err)
	assert.Equal(t, 1957, epoch.Year())
}

func TestParseEpochDayOne(t *testing.T) {
	// Day-of-year counts from 1, so DDD=001 at zero fraction is Jan 1 midnight.
	epoch, err := ParseEpoch("1 28485U 04047A   25001.00000000  .00012415  00000-0  55099-3 0  9992")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), epoch)
}

func TestParseEpochRejectsMalformedFields(t *testing.T) {
	cases := map[string]string{
		"too short":        "1 28485U 04047A",
		"garbage year":     "1 28485U 04047A   XX038.03159117  .00012415  00000-0  55099-3 0  9992",
		"garbage day":      "1 28485U 04047A   25xyz.zzzzzzzz  .00012415  00000-0  55099-3 0  9992",
		"day below range":  "1 28485U 04047A   25000.50000000  .00012415  00000-0  55099-3 0  9992",
		"day beyond range": "1 28485U 04047A   25370.00000000  .00012415  00000-0  55099-3 0  9992",
	}

	for name, line1 := range cases {
		_, err := ParseEpoch(line1)
		assert.Error(t, err, name)
		assert.True(t, errors.Is(err, models.ErrInvalidInput), name)
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(28485, swiftLine1, swiftLine2))

	err := Validate(0, swiftLine1, swiftLine2)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	err = Validate(28485, swiftLine1[:68], swiftLine2)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	err = Validate(28485, swiftLine1, swiftLine2+" ")
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	err = Validate(28485, swiftLine1+strings.Repeat("0", 5), swiftLine2)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}
