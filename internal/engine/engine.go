package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/obsplan/obsplan/internal/mailer"
	"github.com/obsplan/obsplan/internal/services/auth"
	"github.com/obsplan/obsplan/internal/services/group"
	"github.com/obsplan/obsplan/internal/services/instrument"
	"github.com/obsplan/obsplan/internal/services/observation"
	"github.com/obsplan/obsplan/internal/services/observatory"
	"github.com/obsplan/obsplan/internal/services/role"
	"github.com/obsplan/obsplan/internal/services/schedule"
	"github.com/obsplan/obsplan/internal/services/serviceaccount"
	"github.com/obsplan/obsplan/internal/services/telescope"
	"github.com/obsplan/obsplan/internal/services/tle"
	"github.com/obsplan/obsplan/internal/services/user"
	"github.com/obsplan/obsplan/pkg/config"
	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
)

// Engine wires configuration, storage, and the domain services behind the
// HTTP surface, and tracks simple liveness metrics for health reporting.
type Engine struct {
	config *config.Config
	logger *logger.Logger
	db     *database.PostgreSQL
	redis  *database.Redis

	auth          *auth.Service
	users         *user.Service
	accounts      *serviceaccount.Service
	roles         *role.Service
	groups        *group.Service
	observatories *observatory.Service
	telescopes    *telescope.Service
	instruments   *instrument.Service
	schedules     *schedule.Service
	observations  *observation.Service
	tles          *tle.Service

	state struct {
		ongoingOperations int64
		requestsProcessed int64
		errorsEncountered int64
	}
}

// NewEngine creates the engine and its service graph. It does not open
// connections; call Connect before Start.
func NewEngine(cfg *config.Config, log *logger.Logger) *Engine {
	return &Engine{
		config: cfg,
		logger: log,
	}
}

// Connect opens the PostgreSQL and Redis connections and builds the
// services on top of them.
func (e *Engine) Connect(ctx context.Context) error {
	db, err := database.New(ctx, e.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	e.db = db

	rdb, err := database.NewRedis(ctx, e.config.Redis)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	e.redis = rdb

	e.buildServices(mailer.New(e.config.SMTP, e.logger))
	return nil
}

func (e *Engine) buildServices(m auth.Mailer) {
	e.users = user.NewService(e.db, e.logger)
	e.accounts = serviceaccount.NewService(e.db, e.logger, e.config.Auth.ServiceAccountSecretKey)
	e.roles = role.NewService(e.db, e.logger)
	e.groups = group.NewService(e.db, e.logger)
	e.observatories = observatory.NewService(e.db, e.logger)
	e.telescopes = telescope.NewService(e.db, e.logger)
	e.instruments = instrument.NewService(e.db, e.logger)
	e.schedules = schedule.NewService(e.db, e.logger)
	e.observations = observation.NewService(e.db, e.logger)
	e.tles = tle.NewService(e.db, e.logger)
	e.auth = auth.NewService(e.db, e.redis, e.users, e.accounts, m, e.config.Auth, e.logger)
}

// DB exposes the engine's PostgreSQL handle for seeding and tooling.
func (e *Engine) DB() *database.PostgreSQL {
	return e.db
}

// Close releases the engine's connections.
func (e *Engine) Close() {
	if e.redis != nil {
		e.redis.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
}

// TrackOperation increments the in-flight operation count.
func (e *Engine) TrackOperation() {
	atomic.AddInt64(&e.state.ongoingOperations, 1)
	atomic.AddInt64(&e.state.requestsProcessed, 1)
}

// UntrackOperation decrements the in-flight operation count.
func (e *Engine) UntrackOperation() {
	atomic.AddInt64(&e.state.ongoingOperations, -1)
}

// TrackError increments the error count.
func (e *Engine) TrackError() {
	atomic.AddInt64(&e.state.errorsEncountered, 1)
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() map[string]int64 {
	return map[string]int64{
		"ongoing_operations": atomic.LoadInt64(&e.state.ongoingOperations),
		"requests_processed": atomic.LoadInt64(&e.state.requestsProcessed),
		"errors_encountered": atomic.LoadInt64(&e.state.errorsEncountered),
	}
}
