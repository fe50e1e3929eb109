package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsplan/obsplan/internal/services/auth"
	"github.com/obsplan/obsplan/pkg/models"
)

// Server is the HTTP surface over the engine.
type Server struct {
	engine     *Engine
	router     *mux.Router
	httpServer *http.Server
}

// NewServer builds the router and middleware chain.
func NewServer(engine *Engine) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
	}

	if root := engine.config.Server.RootPath; root != "" {
		s.router = s.router.PathPrefix(root).Subrouter()
	}

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.accessLogMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.trackMiddleware)

	s.registerRoutes()
	return s
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router

	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	ah := &AuthHandlers{server: s}
	r.HandleFunc("/auth/login", ah.Login).Methods("POST")
	r.HandleFunc("/auth/redeem", ah.Redeem).Methods("POST")

	sah := &ServiceAccountHandlers{server: s}
	r.HandleFunc("/user/service_account", sah.List).Methods("GET")
	r.HandleFunc("/user/service_account", sah.Create).Methods("POST")
	r.HandleFunc("/user/service_account/{id}", sah.Get).Methods("GET")
	r.HandleFunc("/user/service_account/{id}", sah.Update).Methods("PATCH")
	r.HandleFunc("/user/service_account/{id}", sah.Delete).Methods("DELETE")
	r.HandleFunc("/user/{uid}/service-account/{sid}/group-role/{grid}", sah.AttachGroupRole).Methods("POST")
	r.HandleFunc("/user/{uid}/service-account/{sid}/group-role/{grid}", sah.DetachGroupRole).Methods("DELETE")
	r.HandleFunc("/v1/service-account/{id}/rotate_key", sah.RotateKey).Methods("PATCH")

	uh := &UserHandlers{server: s}
	r.HandleFunc("/user", uh.List).Methods("GET")
	r.HandleFunc("/user", uh.Create).Methods("POST")
	r.HandleFunc("/user/{id}", uh.Get).Methods("GET")
	r.HandleFunc("/user/{id}", uh.Update).Methods("PATCH")
	r.HandleFunc("/user/{id}", uh.Delete).Methods("DELETE")

	rh := &RoleHandlers{server: s}
	r.HandleFunc("/role", rh.List).Methods("GET")
	r.HandleFunc("/role", rh.Create).Methods("POST")
	r.HandleFunc("/role/{id}", rh.Get).Methods("GET")
	r.HandleFunc("/role/{id}/permission/{pid}", rh.AttachPermission).Methods("POST")
	r.HandleFunc("/role/{id}/permission/{pid}", rh.DetachPermission).Methods("DELETE")
	r.HandleFunc("/role/{id}/user/{uid}", rh.AssignToUser).Methods("POST")
	r.HandleFunc("/role/{id}/user/{uid}", rh.RemoveFromUser).Methods("DELETE")
	r.HandleFunc("/permission", rh.ListPermissions).Methods("GET")
	r.HandleFunc("/permission", rh.CreatePermission).Methods("POST")

	gh := &GroupHandlers{server: s}
	r.HandleFunc("/group", gh.List).Methods("GET")
	r.HandleFunc("/group", gh.Create).Methods("POST")
	r.HandleFunc("/group/{id}", gh.Get).Methods("GET")
	r.HandleFunc("/group/{id}", gh.Delete).Methods("DELETE")
	r.HandleFunc("/group/{id}/member", gh.Members).Methods("GET")
	r.HandleFunc("/group/{id}/member/{uid}", gh.AddMember).Methods("POST")
	r.HandleFunc("/group/{id}/member/{uid}", gh.RemoveMember).Methods("DELETE")
	r.HandleFunc("/group/{id}/invite", gh.Invites).Methods("GET")
	r.HandleFunc("/group/{id}/invite", gh.Invite).Methods("POST")
	r.HandleFunc("/group/invite/{id}", gh.ResolveInvite).Methods("PATCH")
	r.HandleFunc("/group/{id}/role", gh.GroupRoles).Methods("GET")
	r.HandleFunc("/group/{id}/role", gh.CreateGroupRole).Methods("POST")
	r.HandleFunc("/group/role/{id}/permission/{pid}", gh.AttachGroupRolePermission).Methods("POST")
	r.HandleFunc("/group/role/{id}/user/{uid}", gh.AssignGroupRoleToUser).Methods("POST")
	r.HandleFunc("/group/role/{id}/user/{uid}", gh.RemoveGroupRoleFromUser).Methods("DELETE")

	oh := &ObservatoryHandlers{server: s}
	r.HandleFunc("/observatory", oh.List).Methods("GET")
	r.HandleFunc("/observatory", oh.Create).Methods("POST")
	r.HandleFunc("/observatory/{id}", oh.Get).Methods("GET")
	r.HandleFunc("/observatory/{id}", oh.Update).Methods("PATCH")
	r.HandleFunc("/observatory/{id}", oh.Delete).Methods("DELETE")
	r.HandleFunc("/observatory/{id}/ephemeris", oh.Ephemerides).Methods("GET")
	r.HandleFunc("/observatory/{id}/ephemeris", oh.AddEphemeris).Methods("POST")
	r.HandleFunc("/observatory/ephemeris/{id}", oh.RemoveEphemeris).Methods("DELETE")

	th := &TelescopeHandlers{server: s}
	r.HandleFunc("/telescope", th.List).Methods("GET")
	r.HandleFunc("/telescope", th.Create).Methods("POST")
	r.HandleFunc("/telescope/{id}", th.Get).Methods("GET")
	r.HandleFunc("/telescope/{id}", th.Update).Methods("PATCH")
	r.HandleFunc("/telescope/{id}", th.Delete).Methods("DELETE")

	ih := &InstrumentHandlers{server: s}
	r.HandleFunc("/instrument", ih.List).Methods("GET")
	r.HandleFunc("/instrument", ih.Create).Methods("POST")
	r.HandleFunc("/instrument/{id}", ih.Get).Methods("GET")
	r.HandleFunc("/instrument/{id}", ih.Delete).Methods("DELETE")
	r.HandleFunc("/instrument/{id}/footprint", ih.Footprints).Methods("GET")
	r.HandleFunc("/instrument/{id}/footprint", ih.AddFootprint).Methods("POST")
	r.HandleFunc("/instrument/footprint/{id}", ih.RemoveFootprint).Methods("DELETE")
	r.HandleFunc("/instrument/{id}/constraint", ih.Constraints).Methods("GET")
	r.HandleFunc("/instrument/{id}/constraint/{cid}", ih.AttachConstraint).Methods("POST")
	r.HandleFunc("/instrument/{id}/constraint/{cid}", ih.DetachConstraint).Methods("DELETE")
	r.HandleFunc("/instrument/{id}/filter", ih.Filters).Methods("GET")
	r.HandleFunc("/instrument/{id}/filter", ih.AddFilter).Methods("POST")
	r.HandleFunc("/constraint", ih.CreateConstraint).Methods("POST")

	sch := &ScheduleHandlers{server: s}
	r.HandleFunc("/schedule", sch.List).Methods("GET")
	r.HandleFunc("/schedule", sch.Create).Methods("POST")
	r.HandleFunc("/schedule/{id}", sch.Get).Methods("GET")
	r.HandleFunc("/schedule/{id}", sch.Update).Methods("PATCH")
	r.HandleFunc("/schedule/{id}", sch.Delete).Methods("DELETE")

	obh := &ObservationHandlers{server: s}
	r.HandleFunc("/observation", obh.List).Methods("GET")
	r.HandleFunc("/observation", obh.Create).Methods("POST")
	r.HandleFunc("/observation/{id}", obh.Get).Methods("GET")
	r.HandleFunc("/observation/{id}", obh.Update).Methods("PATCH")
	r.HandleFunc("/observation/{id}", obh.Delete).Methods("DELETE")

	tlh := &TLEHandlers{server: s}
	r.HandleFunc("/tle", tlh.Get).Methods("GET")
	r.HandleFunc("/tle", tlh.Create).Methods("POST")
	r.HandleFunc("/tle/{norad_id}/position", tlh.Position).Methods("GET")
}

// principal authenticates the request's bearer credential.
func (s *Server) principal(r *http.Request) (*auth.Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("%w: missing authorization header", models.ErrUnauthorized)
	}
	credential := header
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		credential = strings.TrimSpace(header[7:])
	}
	return s.engine.auth.Authenticate(r.Context(), credential)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, "ok")
}

// Start runs the HTTP listener until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.engine.config.Server.Host, s.engine.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.engine.logger.Infof("HTTP server listening on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
