package health

import (
	"sync"
	"time"
)

// Status is the result of a health check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc is a function that performs a health check.
type CheckFunc func() error

// Check represents a single health check result.
type Check struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Message     string    `json:"message"`
	LastChecked time.Time `json:"last_checked"`
}

// Checker manages health checks for the service.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]*Check
}

// NewChecker creates a new health checker.
func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]*Check),
	}
}

// RunCheck executes a health check and updates the status.
func (c *Checker) RunCheck(name string, checkFunc CheckFunc) {
	status := StatusHealthy
	message := "OK"

	if err := checkFunc(); err != nil {
		status = StatusUnhealthy
		message = err.Error()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = &Check{
		Name:        name,
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
	}
}

// OverallStatus returns the aggregate health status.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.checks) == 0 {
		return StatusHealthy
	}

	unhealthy := 0
	for _, check := range c.checks {
		if check.Status == StatusUnhealthy {
			unhealthy++
		}
	}

	switch {
	case unhealthy == 0:
		return StatusHealthy
	case unhealthy < len(c.checks):
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// Checks returns a snapshot of all check results.
func (c *Checker) Checks() []Check {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Check, 0, len(c.checks))
	for _, check := range c.checks {
		out = append(out, *check)
	}
	return out
}
