package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID returns the correlation id attached to the request context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// requestIDMiddleware reads the configured correlation header or generates
// a fresh id, then attaches it to the context and the response.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	header := s.engine.config.Server.RequestIDHeader
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(header)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(header, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// capturingWriter records the status code actually sent, so the access log
// reports what went on the wire rather than what the handler intended.
type capturingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (cw *capturingWriter) WriteHeader(status int) {
	if !cw.wroteHeader {
		cw.status = status
		cw.wroteHeader = true
	}
	cw.ResponseWriter.WriteHeader(status)
}

func (cw *capturingWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(b)
}

// accessLogMiddleware times the request at nanosecond precision, recovers
// panics into a 500, sets X-Process-Time, and emits exactly one structured
// access record per request.
func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		cw := &capturingWriter{ResponseWriter: w, status: http.StatusOK}

		// X-Process-Time must be present on the response even though the
		// final duration is only known afterwards: the header goes out with
		// the first write, so it is computed at that moment.
		trailer := &processTimeWriter{capturingWriter: cw, start: start}

		defer func() {
			duration := time.Since(start)

			if rec := recover(); rec != nil {
				s.engine.TrackError()
				s.engine.logger.WithFields(map[string]string{
					"request_id": RequestID(r.Context()),
					"stack":      string(debug.Stack()),
				}).Error(fmt.Sprintf("Uncaught exception: %v", rec))
				if !cw.wroteHeader {
					trailer.setProcessTime()
					writeErrorResponse(cw, http.StatusInternalServerError, "internal", "internal server error")
				}
			}

			clientIP, clientPort, _ := net.SplitHostPort(r.RemoteAddr)
			s.engine.logger.WithFields(map[string]string{
				"http.url":            r.URL.String(),
				"http.status":         strconv.Itoa(cw.status),
				"http.method":         r.Method,
				"http.version":        r.Proto,
				"http.request_id":     RequestID(r.Context()),
				"network.client.ip":   clientIP,
				"network.client.port": clientPort,
				"duration_ns":         strconv.FormatInt(duration.Nanoseconds(), 10),
			}).Info(fmt.Sprintf("%s %s %d", r.Method, r.URL.Path, cw.status))
		}()

		next.ServeHTTP(trailer, r)
	})
}

// processTimeWriter injects X-Process-Time just before headers flush.
type processTimeWriter struct {
	*capturingWriter
	start time.Time
}

func (pw *processTimeWriter) setProcessTime() {
	pw.Header().Set("X-Process-Time",
		strconv.FormatFloat(time.Since(pw.start).Seconds(), 'f', -1, 64))
}

func (pw *processTimeWriter) WriteHeader(status int) {
	if !pw.wroteHeader {
		pw.setProcessTime()
	}
	pw.capturingWriter.WriteHeader(status)
}

func (pw *processTimeWriter) Write(b []byte) (int, error) {
	if !pw.wroteHeader {
		pw.WriteHeader(http.StatusOK)
	}
	return pw.capturingWriter.Write(b)
}

// metricsMiddleware records prometheus counters per templated route, so
// path parameters do not explode label cardinality.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		cw := &capturingWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(cw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(cw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// trackMiddleware maintains the engine's in-flight operation counters.
func (s *Server) trackMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.engine.TrackOperation()
		defer s.engine.UntrackOperation()
		next.ServeHTTP(w, r)
	})
}
