package instrument

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/obsplan/obsplan/pkg/models"
)

func TestValidatePolygon(t *testing.T) {
	good := []models.Point{{Lon: -60, Lat: -30}, {Lon: -20, Lat: -30}, {Lon: -40, Lat: -10}}
	assert.NoError(t, validatePolygon(good))

	assert.Error(t, validatePolygon(nil))
	assert.Error(t, validatePolygon(good[:2]))
	assert.Error(t, validatePolygon([]models.Point{{Lon: 181, Lat: 0}, {Lon: 0, Lat: 0}, {Lon: 1, Lat: 1}}))
	assert.Error(t, validatePolygon([]models.Point{{Lon: 0, Lat: -91}, {Lon: 0, Lat: 0}, {Lon: 1, Lat: 1}}))
}

func TestValidateConstraintParamsSAA(t *testing.T) {
	closed := json.RawMessage(`{"polygon":[{"lon":-60,"lat":-30},{"lon":-20,"lat":-30},{"lon":-40,"lat":-10},{"lon":-60,"lat":-30}]}`)
	assert.NoError(t, ValidateConstraintParams(models.ConstraintSAA, closed))

	open := json.RawMessage(`{"polygon":[{"lon":-60,"lat":-30},{"lon":-20,"lat":-30},{"lon":-40,"lat":-10}]}`)
	err := ValidateConstraintParams(models.ConstraintSAA, open)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	// Unknown keys in the payload are rejected, not silently dropped.
	extra := json.RawMessage(`{"polygon":[{"lon":0,"lat":0},{"lon":1,"lat":0},{"lon":0,"lat":1},{"lon":0,"lat":0}],"altitude":550}`)
	err = ValidateConstraintParams(models.ConstraintSAA, extra)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestValidateConstraintParamsAngles(t *testing.T) {
	assert.NoError(t, ValidateConstraintParams(models.ConstraintSun, json.RawMessage(`{"min":45,"max":170}`)))
	assert.NoError(t, ValidateConstraintParams(models.ConstraintMoon, json.RawMessage(`{"min":10}`)))
	assert.NoError(t, ValidateConstraintParams(models.ConstraintEarth, json.RawMessage(`{"min":28}`)))

	cases := []struct {
		cType  models.ConstraintType
		params string
	}{
		{models.ConstraintSun, `{"min":170,"max":45}`},
		{models.ConstraintSun, `{"min":-1,"max":45}`},
		{models.ConstraintSun, `{"min":0,"max":181}`},
		{models.ConstraintMoon, `{"min":200}`},
		{models.ConstraintEarth, `{"min":-5}`},
		{models.ConstraintType("ORBIT"), `{}`},
	}
	for _, tc := range cases {
		err := ValidateConstraintParams(tc.cType, json.RawMessage(tc.params))
		assert.True(t, errors.Is(err, models.ErrInvalidInput), "%s %s", tc.cType, tc.params)
	}
}
