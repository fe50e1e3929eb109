package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/pkg/models"
)

func TestEmptyChecksum(t *testing.T) {
	// A schedule with no observations hashes the empty input.
	empty := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(empty[:]), EmptyChecksum)
	assert.Equal(t, EmptyChecksum, computeChecksum(nil))
	assert.Equal(t, EmptyChecksum, computeChecksum([]checksumRow{}))
}

func TestComputeChecksumOrderIndependent(t *testing.T) {
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	a := checksumRow{
		ID:          uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		ObjectName:  "GRB 250301A",
		PointingRA:  83.633083,
		PointingDec: 22.0145,
		Begin:       base,
		End:         base.Add(30 * time.Minute),
	}
	b := checksumRow{
		ID:          uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		ObjectName:  "M31",
		PointingRA:  10.684708,
		PointingDec: 41.26875,
		Begin:       base.Add(time.Hour),
		End:         base.Add(2 * time.Hour),
	}
	c := checksumRow{
		ID:          uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		ObjectName:  "Vega",
		PointingRA:  279.234735,
		PointingDec: 38.783689,
		Begin:       base.Add(time.Hour),
		End:         base.Add(90 * time.Minute),
	}

	want := computeChecksum([]checksumRow{a, b, c})
	assert.Equal(t, want, computeChecksum([]checksumRow{c, b, a}))
	assert.Equal(t, want, computeChecksum([]checksumRow{b, a, c}))
	assert.Len(t, want, 64)
}

func TestComputeChecksumTieBreaksOnID(t *testing.T) {
	// Two rows at the same begin time must sort the same way every run.
	begin := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	a := checksumRow{ID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), ObjectName: "a", Begin: begin, End: begin}
	b := checksumRow{ID: uuid.MustParse("99999999-9999-9999-9999-999999999999"), ObjectName: "b", Begin: begin, End: begin}

	assert.Equal(t, computeChecksum([]checksumRow{a, b}), computeChecksum([]checksumRow{b, a}))
}

func TestComputeChecksumSensitivity(t *testing.T) {
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	row := checksumRow{
		ID:          uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		ObjectName:  "GRB 250301A",
		PointingRA:  83.633083,
		PointingDec: 22.0145,
		Begin:       base,
		End:         base.Add(30 * time.Minute),
	}
	original := computeChecksum([]checksumRow{row})

	moved := row
	moved.PointingRA += 0.000000001
	assert.NotEqual(t, original, computeChecksum([]checksumRow{moved}))

	renamed := row
	renamed.ObjectName = "GRB 250301B"
	assert.NotEqual(t, original, computeChecksum([]checksumRow{renamed}))

	extended := row
	extended.End = extended.End.Add(time.Second)
	assert.NotEqual(t, original, computeChecksum([]checksumRow{extended}))
}

func TestComputeChecksumNormalizesZone(t *testing.T) {
	// Wall-clock zone must not matter, only the instant.
	begin := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	est := time.FixedZone("EST", -5*3600)

	utcRow := checksumRow{ID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), ObjectName: "x", Begin: begin, End: begin.Add(time.Hour)}
	estRow := utcRow
	estRow.Begin = utcRow.Begin.In(est)
	estRow.End = utcRow.End.In(est)

	require.True(t, utcRow.Begin.Equal(estRow.Begin))
	assert.Equal(t, computeChecksum([]checksumRow{utcRow}), computeChecksum([]checksumRow{estRow}))
}

func TestValidStatusAndFidelity(t *testing.T) {
	assert.True(t, validStatus(models.SchedulePlanned))
	assert.True(t, validStatus(models.ScheduleCompleted))
	assert.False(t, validStatus(models.ScheduleStatus("planned")))
	assert.False(t, validStatus(models.ScheduleStatus("")))

	assert.True(t, validFidelity(models.FidelityForecast))
	assert.False(t, validFidelity(models.ScheduleFidelity("BOGUS")))
}
