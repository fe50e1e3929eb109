package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/obsplan/obsplan/internal/services/auth"
	"github.com/obsplan/obsplan/internal/services/observation"
	"github.com/obsplan/obsplan/pkg/models"
)

// ObservationHandlers serves observation CRUD, guarded by all:write.
type ObservationHandlers struct {
	server *Server
}

type createObservationRequest struct {
	InstrumentID   uuid.UUID                `json:"instrument_id"`
	ScheduleID     uuid.UUID                `json:"schedule_id"`
	ObjectName     string                   `json:"object_name"`
	PointingRA     float64                  `json:"pointing_ra"`
	PointingDec    float64                  `json:"pointing_dec"`
	DateRangeBegin time.Time                `json:"date_range_begin"`
	DateRangeEnd   time.Time                `json:"date_range_end"`
	ExternalID     *string                  `json:"external_id"`
	Type           models.ObservationType   `json:"type"`
	Status         models.ObservationStatus `json:"status"`
	ExposureSec    *float64                 `json:"exposure_sec"`
	FilterName     *string                  `json:"filter_name"`
	Bandwidth      *float64                 `json:"bandwidth"`
	TargetPosition *models.Point            `json:"target_position"`
	Polarization   *string                  `json:"polarization"`
	Category       *string                  `json:"category"`
	Priority       *int                     `json:"priority"`
}

type updateObservationRequest struct {
	ObjectName     *string                   `json:"object_name"`
	PointingRA     *float64                  `json:"pointing_ra"`
	PointingDec    *float64                  `json:"pointing_dec"`
	DateRangeBegin *time.Time                `json:"date_range_begin"`
	DateRangeEnd   *time.Time                `json:"date_range_end"`
	ExternalID     *string                   `json:"external_id"`
	Type           *models.ObservationType   `json:"type"`
	Status         *models.ObservationStatus `json:"status"`
	ExposureSec    *float64                  `json:"exposure_sec"`
	FilterName     *string                   `json:"filter_name"`
	Bandwidth      *float64                  `json:"bandwidth"`
	TargetPosition *models.Point             `json:"target_position"`
	Polarization   *string                   `json:"polarization"`
	Category       *string                   `json:"category"`
	Priority       *int                      `json:"priority"`
}

func (h *ObservationHandlers) authorize(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return uuid.Nil, false
	}
	if err := h.server.engine.auth.RequireGlobal(r.Context(), p, auth.PermissionAll); err != nil {
		h.server.writeServiceError(w, err)
		return uuid.Nil, false
	}
	return p.ActorID(), true
}

func (h *ObservationHandlers) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	q := r.URL.Query()
	var filter observation.ListFilter
	if v := q.Get("schedule_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid schedule_id")
			return
		}
		filter.ScheduleID = &id
	}
	if v := q.Get("instrument_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid instrument_id")
			return
		}
		filter.InstrumentID = &id
	}
	if v := q.Get("status"); v != "" {
		status := models.ObservationStatus(v)
		filter.Status = &status
	}
	if v := q.Get("object_name"); v != "" {
		filter.ObjectName = &v
	}

	observations, err := h.server.engine.observations.List(r.Context(), filter)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, observations)
}

func (h *ObservationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid observation id")
		return
	}
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	o, err := h.server.engine.observations.Get(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, o)
}

func (h *ObservationHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}
	if req.ObjectName == "" {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "object_name is required")
		return
	}

	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}

	o, err := h.server.engine.observations.Create(r.Context(), observation.Input{
		InstrumentID:   req.InstrumentID,
		ScheduleID:     req.ScheduleID,
		ObjectName:     req.ObjectName,
		PointingRA:     req.PointingRA,
		PointingDec:    req.PointingDec,
		DateRangeBegin: req.DateRangeBegin,
		DateRangeEnd:   req.DateRangeEnd,
		ExternalID:     req.ExternalID,
		Type:           req.Type,
		Status:         req.Status,
		ExposureSec:    req.ExposureSec,
		FilterName:     req.FilterName,
		Bandwidth:      req.Bandwidth,
		TargetPosition: req.TargetPosition,
		Polarization:   req.Polarization,
		Category:       req.Category,
		Priority:       req.Priority,
	}, actor)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, o)
}

func (h *ObservationHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid observation id")
		return
	}

	var req updateObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}
	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}

	o, err := h.server.engine.observations.Update(r.Context(), id, observation.Updates{
		ObjectName:     req.ObjectName,
		PointingRA:     req.PointingRA,
		PointingDec:    req.PointingDec,
		DateRangeBegin: req.DateRangeBegin,
		DateRangeEnd:   req.DateRangeEnd,
		ExternalID:     req.ExternalID,
		Type:           req.Type,
		Status:         req.Status,
		ExposureSec:    req.ExposureSec,
		FilterName:     req.FilterName,
		Bandwidth:      req.Bandwidth,
		TargetPosition: req.TargetPosition,
		Polarization:   req.Polarization,
		Category:       req.Category,
		Priority:       req.Priority,
	}, actor)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, o)
}

func (h *ObservationHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid observation id")
		return
	}
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	if err := h.server.engine.observations.Delete(r.Context(), id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
