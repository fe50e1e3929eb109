package observatory

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/obsplan/obsplan/pkg/models"
)

func TestValidateEphemerisParams(t *testing.T) {
	assert.NoError(t, ValidateEphemerisParams(models.EphemerisEarthLocation,
		json.RawMessage(`{"latitude":19.8207,"longitude":-155.468,"height":4207}`)))
	assert.NoError(t, ValidateEphemerisParams(models.EphemerisTLE,
		json.RawMessage(`{"norad_id":28485,"satellite_name":"SWIFT"}`)))
	assert.NoError(t, ValidateEphemerisParams(models.EphemerisJPL,
		json.RawMessage(`{"naif_id":-48}`)))
	assert.NoError(t, ValidateEphemerisParams(models.EphemerisSPICE,
		json.RawMessage(`{"naif_id":-48,"kernel_url":"https://example.com/swift.bsp"}`)))
}

func TestValidateEphemerisParamsRejections(t *testing.T) {
	cases := []struct {
		name    string
		ephType models.EphemerisType
		params  string
	}{
		{"latitude out of range", models.EphemerisEarthLocation, `{"latitude":95,"longitude":0}`},
		{"longitude out of range", models.EphemerisEarthLocation, `{"latitude":0,"longitude":-200}`},
		{"unknown key", models.EphemerisEarthLocation, `{"latitude":0,"longitude":0,"altitude":100}`},
		{"zero norad id", models.EphemerisTLE, `{"norad_id":0}`},
		{"negative norad id", models.EphemerisTLE, `{"norad_id":-1}`},
		{"tle payload as jpl", models.EphemerisJPL, `{"norad_id":28485}`},
		{"missing kernel url", models.EphemerisSPICE, `{"naif_id":-48}`},
		{"unknown type", models.EphemerisType("HORIZONS"), `{}`},
	}

	for _, tc := range cases {
		err := ValidateEphemerisParams(tc.ephType, json.RawMessage(tc.params))
		assert.Error(t, err, tc.name)
		assert.True(t, errors.Is(err, models.ErrInvalidInput), tc.name)
	}
}
