package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverallStatus(t *testing.T) {
	c := NewChecker()
	assert.Equal(t, StatusHealthy, c.OverallStatus())

	c.RunCheck("postgres", func() error { return nil })
	c.RunCheck("redis", func() error { return nil })
	assert.Equal(t, StatusHealthy, c.OverallStatus())

	c.RunCheck("redis", func() error { return errors.New("connection refused") })
	assert.Equal(t, StatusDegraded, c.OverallStatus())

	c.RunCheck("postgres", func() error { return errors.New("connection refused") })
	assert.Equal(t, StatusUnhealthy, c.OverallStatus())
}

func TestCheckResults(t *testing.T) {
	c := NewChecker()
	c.RunCheck("postgres", func() error { return errors.New("dial timeout") })

	checks := c.Checks()
	assert.Len(t, checks, 1)
	assert.Equal(t, "postgres", checks[0].Name)
	assert.Equal(t, StatusUnhealthy, checks[0].Status)
	assert.Equal(t, "dial timeout", checks[0].Message)
	assert.False(t, checks[0].LastChecked.IsZero())

	// Re-running replaces the previous result.
	c.RunCheck("postgres", func() error { return nil })
	checks = c.Checks()
	assert.Len(t, checks, 1)
	assert.Equal(t, StatusHealthy, checks[0].Status)
	assert.Equal(t, "OK", checks[0].Message)
}
