package serviceaccount

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/obsplan/obsplan/pkg/models"
)

func TestDeriveSecret(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 123456789, time.UTC)

	secret := DeriveSecret("server-secret", now)
	assert.Len(t, secret, 128)
	assert.Regexp(t, "^[0-9a-f]+$", secret)

	// Same inputs derive the same key, any changed input a different one.
	assert.Equal(t, secret, DeriveSecret("server-secret", now))
	assert.NotEqual(t, secret, DeriveSecret("other-secret", now))
	assert.NotEqual(t, secret, DeriveSecret("server-secret", now.Add(time.Nanosecond)))
}

func TestServiceAccountExpired(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	live := &models.ServiceAccount{Expiration: now.Add(24 * time.Hour)}
	assert.False(t, live.Expired(now))

	dead := &models.ServiceAccount{Expiration: now.Add(-time.Second)}
	assert.True(t, dead.Expired(now))

	// Expiration exactly at the reference instant counts as expired.
	edge := &models.ServiceAccount{Expiration: now}
	assert.True(t, edge.Expired(now))
}
