package engine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/obsplan/obsplan/pkg/models"
)

// ErrorResponse is the JSON error body shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, kind, message string) {
	writeJSONResponse(w, status, ErrorResponse{
		Error:   kind,
		Message: message,
		Status:  status,
	})
}

// errorKind maps a sentinel error to its wire name and HTTP status.
func errorKind(err error) (string, int) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input", http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, models.ErrDuplicate):
		return "duplicate", http.StatusConflict
	case errors.Is(err, models.ErrExpired):
		return "unauthorized", http.StatusUnauthorized
	case errors.Is(err, models.ErrUnauthorized):
		return "unauthorized", http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return "forbidden", http.StatusForbidden
	case errors.Is(err, models.ErrConflict):
		return "conflict", http.StatusConflict
	}
	return "internal", http.StatusInternalServerError
}

// writeServiceError converts a service error into the JSON error body.
// Internal failures are logged but never echoed to the client.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	kind, status := errorKind(err)
	if status == http.StatusInternalServerError {
		s.engine.TrackError()
		s.engine.logger.Errorf("Internal error: %v", err)
		writeErrorResponse(w, status, kind, "internal server error")
		return
	}
	writeErrorResponse(w, status, kind, err.Error())
}
