package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/obsplan/obsplan/pkg/models"
)

// TLEHandlers serves TLE ingest, nearest-epoch lookup, and SGP4
// propagation. Lookups are open; ingest is restricted to system service
// accounts.
type TLEHandlers struct {
	server *Server
}

type createTLERequest struct {
	NoradID       int    `json:"norad_id"`
	SatelliteName string `json:"satellite_name"`
	Line1         string `json:"tle1"`
	Line2         string `json:"tle2"`
}

// Create ingests a TLE. The epoch is derived from tle1 server-side; a row
// already present at (norad_id, epoch) answers 409.
func (h *TLEHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createTLERequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireSystemServiceAccount(r.Context(), p, "system:tle:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	stored, err := h.server.engine.tles.Create(r.Context(), &models.TLE{
		NoradID:       req.NoradID,
		SatelliteName: req.SatelliteName,
		Line1:         req.Line1,
		Line2:         req.Line2,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			tleIngestTotal.WithLabelValues("duplicate").Inc()
		} else {
			tleIngestTotal.WithLabelValues("rejected").Inc()
		}
		h.server.writeServiceError(w, err)
		return
	}

	tleIngestTotal.WithLabelValues("created").Inc()
	writeJSONResponse(w, http.StatusCreated, stored)
}

// Get answers the TLE whose epoch is nearest the requested one. An absent
// epoch means "now".
func (h *TLEHandlers) Get(w http.ResponseWriter, r *http.Request) {
	noradID, err := strconv.Atoi(r.URL.Query().Get("norad_id"))
	if err != nil || noradID <= 0 {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "norad_id must be a positive integer")
		return
	}

	refEpoch := time.Now().UTC()
	if raw := r.URL.Query().Get("epoch"); raw != "" {
		refEpoch, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid epoch timestamp")
			return
		}
	}

	t, err := h.server.engine.tles.Get(r.Context(), noradID, refEpoch)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if t == nil {
		writeErrorResponse(w, http.StatusNotFound, "not_found", "no TLE recorded for satellite")
		return
	}
	writeJSONResponse(w, http.StatusOK, t)
}

// Position propagates the nearest TLE to the requested instant.
func (h *TLEHandlers) Position(w http.ResponseWriter, r *http.Request) {
	noradID, err := strconv.Atoi(mux.Vars(r)["norad_id"])
	if err != nil || noradID <= 0 {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "norad_id must be a positive integer")
		return
	}

	at := time.Now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		at, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid at timestamp")
			return
		}
	}

	pos, err := h.server.engine.tles.Position(r.Context(), noradID, at)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, pos)
}
