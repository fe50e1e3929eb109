package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/obsplan/obsplan/internal/services/telescope"
)

// TelescopeHandlers serves the telescope catalog. Reads are open; writes
// are scoped to the owning group through the observatory.
type TelescopeHandlers struct {
	server *Server
}

type createTelescopeRequest struct {
	ObservatoryID   uuid.UUID `json:"observatory_id"`
	Name            string    `json:"name"`
	ShortName       string    `json:"short_name"`
	ScheduleCadence *string   `json:"schedule_cadence"`
}

type updateTelescopeRequest struct {
	Name            *string `json:"name"`
	ShortName       *string `json:"short_name"`
	ScheduleCadence *string `json:"schedule_cadence"`
	ClearCadence    bool    `json:"clear_cadence"`
}

// List supports case-insensitive substring filters on name and
// short_name, and an inclusive created_on range.
func (h *TelescopeHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter telescope.ListFilter

	if v := q.Get("name"); v != "" {
		filter.Name = &v
	}
	if v := q.Get("short_name"); v != "" {
		filter.ShortName = &v
	}
	if v := q.Get("observatory_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid observatory_id")
			return
		}
		filter.ObservatoryID = &id
	}
	if v := q.Get("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid created_after timestamp")
			return
		}
		filter.CreatedOnAfter = &t
	}
	if v := q.Get("created_until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid created_until timestamp")
			return
		}
		filter.CreatedOnUntil = &t
	}

	telescopes, err := h.server.engine.telescopes.List(r.Context(), filter)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, telescopes)
}

func (h *TelescopeHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid telescope id")
		return
	}

	t, err := h.server.engine.telescopes.Get(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, t)
}

func (h *TelescopeHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createTelescopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}
	if req.Name == "" || req.ShortName == "" {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "name and short_name are required")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	o, err := h.server.engine.observatories.Get(r.Context(), req.ObservatoryID)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireGroup(r.Context(), p, o.GroupID, "observatory:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	t, err := h.server.engine.telescopes.Create(r.Context(), req.ObservatoryID, req.Name, req.ShortName, req.ScheduleCadence, p.ActorID())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, t)
}

func (h *TelescopeHandlers) requireTelescopeWrite(w http.ResponseWriter, r *http.Request, id uuid.UUID) (uuid.UUID, bool) {
	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return uuid.Nil, false
	}
	groupID, err := h.server.engine.telescopes.Group(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return uuid.Nil, false
	}
	if err := h.server.engine.auth.RequireGroup(r.Context(), p, groupID, "observatory:write"); err != nil {
		h.server.writeServiceError(w, err)
		return uuid.Nil, false
	}
	return p.ActorID(), true
}

func (h *TelescopeHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid telescope id")
		return
	}

	var req updateTelescopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}

	actor, ok := h.requireTelescopeWrite(w, r, id)
	if !ok {
		return
	}

	t, err := h.server.engine.telescopes.Update(r.Context(), id, telescope.Updates{
		Name:            req.Name,
		ShortName:       req.ShortName,
		ScheduleCadence: req.ScheduleCadence,
		ClearCadence:    req.ClearCadence,
	}, actor)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, t)
}

func (h *TelescopeHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid telescope id")
		return
	}

	if _, ok := h.requireTelescopeWrite(w, r, id); !ok {
		return
	}

	if err := h.server.engine.telescopes.Delete(r.Context(), id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
