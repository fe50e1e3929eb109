package instrument

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/pkg/models"
)

func f64(v float64) *float64 { return &v }

func TestBandpassResolveCenterWidth(t *testing.T) {
	// Johnson V: 5500 +/- 445 angstrom.
	min, max, err := Bandpass{Center: f64(5500), Width: f64(890)}.Resolve()
	require.NoError(t, err)
	assert.InDelta(t, 5055, min, 1e-9)
	assert.InDelta(t, 5945, max, 1e-9)
}

func TestBandpassResolveMinMax(t *testing.T) {
	min, max, err := Bandpass{Min: f64(1700), Max: f64(2300), Unit: UnitAngstrom}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 1700.0, min)
	assert.Equal(t, 2300.0, max)
}

func TestBandpassResolveNanometerConversion(t *testing.T) {
	// Storage is angstrom, so nm inputs scale by 10.
	min, max, err := Bandpass{Center: f64(550), Width: f64(89), Unit: UnitNanometer}.Resolve()
	require.NoError(t, err)
	assert.InDelta(t, 5055, min, 1e-9)
	assert.InDelta(t, 5945, max, 1e-9)
}

func TestBandpassResolveRejectsBadInput(t *testing.T) {
	cases := map[string]Bandpass{
		"empty":                {},
		"both forms":           {Center: f64(5500), Width: f64(890), Min: f64(5055), Max: f64(5945)},
		"center without width": {Center: f64(5500)},
		"min without max":      {Min: f64(1700)},
		"inverted range":       {Min: f64(2300), Max: f64(1700)},
		"zero lower bound":     {Min: f64(0), Max: f64(100)},
		"unknown unit":         {Min: f64(1700), Max: f64(2300), Unit: WavelengthUnit("micron")},
	}

	for name, bp := range cases {
		_, _, err := bp.Resolve()
		assert.Error(t, err, name)
		assert.True(t, errors.Is(err, models.ErrInvalidInput), name)
	}
}
