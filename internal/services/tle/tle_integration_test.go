package tle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/internal/services/servicetest"
	"github.com/obsplan/obsplan/pkg/models"
)

// lineWithEpoch swaps the 14-character epoch field into columns 19-32.
func lineWithEpoch(line, field string) string {
	return line[:18] + field + line[32:]
}

func ingest(t *testing.T, svc *Service, noradID int, epochField string) *models.TLE {
	t.Helper()
	stored, err := svc.Create(context.Background(), &models.TLE{
		NoradID:       noradID,
		SatelliteName: "SWIFT",
		Line1:         lineWithEpoch(swiftLine1, epochField),
		Line2:         swiftLine2,
	})
	require.NoError(t, err)
	return stored
}

func TestGetReturnsNearestEpoch(t *testing.T) {
	db := servicetest.StartPostgres(t)
	svc := NewService(db, servicetest.Logger())
	ctx := context.Background()

	jan1 := ingest(t, svc, 28485, "25001.00000000")
	jan3 := ingest(t, svc, 28485, "25003.00000000")

	got, err := svc.Get(ctx, 28485, time.Date(2025, time.January, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Epoch.Equal(jan3.Epoch))

	got, err = svc.Get(ctx, 28485, time.Date(2025, time.January, 1, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Epoch.Equal(jan1.Epoch))
}

func TestGetPrefersEarlierEpochWhenEquidistant(t *testing.T) {
	db := servicetest.StartPostgres(t)
	svc := NewService(db, servicetest.Logger())

	jan1 := ingest(t, svc, 28485, "25001.00000000")
	ingest(t, svc, 28485, "25003.00000000")

	// Jan 2 00:00 is exactly one day from both stored epochs.
	got, err := svc.Get(context.Background(), 28485,
		time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Epoch.Equal(jan1.Epoch))
}

func TestCreateRejectsDuplicateEpoch(t *testing.T) {
	db := servicetest.StartPostgres(t)
	svc := NewService(db, servicetest.Logger())

	ingest(t, svc, 28485, "25038.03159117")

	_, err := svc.Create(context.Background(), &models.TLE{
		NoradID:       28485,
		SatelliteName: "SWIFT",
		Line1:         swiftLine1,
		Line2:         swiftLine2,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDuplicate))
}

func TestGetUnknownSatelliteReturnsNil(t *testing.T) {
	db := servicetest.StartPostgres(t)
	svc := NewService(db, servicetest.Logger())

	got, err := svc.Get(context.Background(), 99999, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, got)
}
