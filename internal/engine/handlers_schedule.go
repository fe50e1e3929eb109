package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/obsplan/obsplan/internal/services/auth"
	"github.com/obsplan/obsplan/internal/services/schedule"
	"github.com/obsplan/obsplan/pkg/models"
)

// ScheduleHandlers serves schedule CRUD, guarded by all:write.
type ScheduleHandlers struct {
	server *Server
}

type createScheduleRequest struct {
	TelescopeID    uuid.UUID               `json:"telescope_id"`
	Name           string                  `json:"name"`
	DateRangeBegin time.Time               `json:"date_range_begin"`
	DateRangeEnd   time.Time               `json:"date_range_end"`
	Status         models.ScheduleStatus   `json:"status"`
	Fidelity       models.ScheduleFidelity `json:"fidelity"`
	ExternalID     *string                 `json:"external_id"`
}

type updateScheduleRequest struct {
	Name           *string                  `json:"name"`
	DateRangeBegin *time.Time               `json:"date_range_begin"`
	DateRangeEnd   *time.Time               `json:"date_range_end"`
	Status         *models.ScheduleStatus   `json:"status"`
	Fidelity       *models.ScheduleFidelity `json:"fidelity"`
	ExternalID     *string                  `json:"external_id"`
}

func (h *ScheduleHandlers) authorize(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
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

func (h *ScheduleHandlers) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	q := r.URL.Query()
	var filter schedule.ListFilter
	if v := q.Get("telescope_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid telescope_id")
			return
		}
		filter.TelescopeID = &id
	}
	if v := q.Get("status"); v != "" {
		status := models.ScheduleStatus(v)
		filter.Status = &status
	}
	if v := q.Get("begin"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid begin timestamp")
			return
		}
		filter.Begin = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid end timestamp")
			return
		}
		filter.End = &t
	}

	schedules, err := h.server.engine.schedules.List(r.Context(), filter)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, schedules)
}

func (h *ScheduleHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid schedule id")
		return
	}
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	sch, err := h.server.engine.schedules.Get(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, sch)
}

func (h *ScheduleHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "name is required")
		return
	}

	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}

	sch, err := h.server.engine.schedules.Create(r.Context(), req.TelescopeID, req.Name,
		req.DateRangeBegin, req.DateRangeEnd, req.Status, req.Fidelity, req.ExternalID, actor)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, sch)
}

func (h *ScheduleHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid schedule id")
		return
	}

	var req updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}

	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}

	sch, err := h.server.engine.schedules.Update(r.Context(), id, schedule.Updates{
		Name:       req.Name,
		Begin:      req.DateRangeBegin,
		End:        req.DateRangeEnd,
		Status:     req.Status,
		Fidelity:   req.Fidelity,
		ExternalID: req.ExternalID,
	}, actor)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, sch)
}

func (h *ScheduleHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid schedule id")
		return
	}
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	if err := h.server.engine.schedules.Delete(r.Context(), id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
