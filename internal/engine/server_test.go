package engine

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/pkg/config"
	"github.com/obsplan/obsplan/pkg/logger"
)

func newTestServer() *Server {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			RequestIDHeader: "X-Request-ID",
		},
		Auth: config.AuthConfig{
			ServiceAccountSecretKey: "test-secret",
			SessionLifetime:         time.Hour,
			LoginTokenTTL:           15 * time.Minute,
		},
	}

	log := logger.New("obsplan-test", "test")
	log.SetOutput(io.Discard)

	eng := NewEngine(cfg, log)
	eng.buildServices(nil)
	return NewServer(eng)
}

func doRequest(srv *Server, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestRootEndpoint(t *testing.T) {
	rec := doRequest(newTestServer(), http.MethodGet, "/", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"ok"`, strings.TrimSpace(rec.Body.String()))
	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	header := http.Header{}
	header.Set("X-Request-ID", "client-supplied-id")
	rec := doRequest(newTestServer(), http.MethodGet, "/", "", header)

	assert.Equal(t, "client-supplied-id", rec.Header().Get("X-Request-ID"))
}

func TestPanicRecoveredAsInternalError(t *testing.T) {
	srv := newTestServer()
	router := mux.NewRouter()
	router.Use(srv.requestIDMiddleware)
	router.Use(srv.accessLogMiddleware)
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal", body.Error)
	assert.Equal(t, "internal server error", body.Message)
}

func TestCreateServiceAccountWithoutName(t *testing.T) {
	rec := doRequest(newTestServer(), http.MethodPost, "/user/service_account",
		`{"description":"nightly TLE sync"}`, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_input", body.Error)
	assert.Equal(t, http.StatusUnprocessableEntity, body.Status)
}

func TestLoginRequiresEmail(t *testing.T) {
	rec := doRequest(newTestServer(), http.MethodPost, "/auth/login", `{}`, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_input", body.Error)
}

func TestTLEGetRequiresNoradID(t *testing.T) {
	srv := newTestServer()

	rec := doRequest(srv, http.MethodGet, "/tle", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/tle?norad_id=-3", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/tle?norad_id=28485&epoch=yesterday", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUnauthenticatedWriteRejected(t *testing.T) {
	rec := doRequest(newTestServer(), http.MethodPost, "/user",
		`{"username":"jdoe","first_name":"J","last_name":"Doe","email":"jdoe@example.com"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := doRequest(newTestServer(), http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
