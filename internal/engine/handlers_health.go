package engine

import (
	"net/http"

	"github.com/obsplan/obsplan/pkg/health"
)

type healthResponse struct {
	Status  health.Status    `json:"status"`
	Checks  []health.Check   `json:"checks"`
	Metrics map[string]int64 `json:"metrics"`
}

// handleHealthz checks the engine's dependencies. Degraded dependencies
// answer 503 so load balancers rotate the instance out.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	checker := health.NewChecker()
	checker.RunCheck("postgres", func() error {
		return s.engine.db.Ping(r.Context())
	})
	checker.RunCheck("redis", func() error {
		return s.engine.redis.Ping(r.Context())
	})

	status := http.StatusOK
	overall := checker.OverallStatus()
	if overall != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, status, healthResponse{
		Status:  overall,
		Checks:  checker.Checks(),
		Metrics: s.engine.Metrics(),
	})
}
