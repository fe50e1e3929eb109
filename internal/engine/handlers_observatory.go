package engine

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/obsplan/obsplan/internal/services/observatory"
	"github.com/obsplan/obsplan/pkg/models"
)

// ObservatoryHandlers serves observatories and their ephemeris chains.
// Reads are open; writes are scoped to the owning group.
type ObservatoryHandlers struct {
	server *Server
}

type createObservatoryRequest struct {
	Name      string                 `json:"name"`
	ShortName string                 `json:"short_name"`
	Type      models.ObservatoryType `json:"type"`
	GroupID   uuid.UUID              `json:"group_id"`
}

type updateObservatoryRequest struct {
	Name      *string    `json:"name"`
	ShortName *string    `json:"short_name"`
	GroupID   *uuid.UUID `json:"group_id"`
}

type addEphemerisRequest struct {
	Type       models.EphemerisType `json:"ephemeris_type"`
	Priority   int                  `json:"priority"`
	Parameters json.RawMessage      `json:"parameters"`
}

func (h *ObservatoryHandlers) List(w http.ResponseWriter, r *http.Request) {
	var groupID *uuid.UUID
	if raw := r.URL.Query().Get("group_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid group_id")
			return
		}
		groupID = &id
	}

	observatories, err := h.server.engine.observatories.List(r.Context(), groupID)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, observatories)
}

func (h *ObservatoryHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid observatory id")
		return
	}

	o, err := h.server.engine.observatories.Get(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, o)
}

func (h *ObservatoryHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createObservatoryRequest
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
	if err := h.server.engine.auth.RequireGroup(r.Context(), p, req.GroupID, "observatory:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	o, err := h.server.engine.observatories.Create(r.Context(), req.Name, req.ShortName, req.Type, req.GroupID, p.ActorID())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, o)
}

// requireObservatoryWrite resolves the observatory's group and checks the
// group-scoped write grant.
func (h *ObservatoryHandlers) requireObservatoryWrite(w http.ResponseWriter, r *http.Request, id uuid.UUID) (uuid.UUID, bool) {
	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return uuid.Nil, false
	}

	o, err := h.server.engine.observatories.Get(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return uuid.Nil, false
	}
	if err := h.server.engine.auth.RequireGroup(r.Context(), p, o.GroupID, "observatory:write"); err != nil {
		h.server.writeServiceError(w, err)
		return uuid.Nil, false
	}
	return p.ActorID(), true
}

func (h *ObservatoryHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid observatory id")
		return
	}

	var req updateObservatoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}

	actor, ok := h.requireObservatoryWrite(w, r, id)
	if !ok {
		return
	}

	o, err := h.server.engine.observatories.Update(r.Context(), id, observatory.Updates{
		Name:      req.Name,
		ShortName: req.ShortName,
		GroupID:   req.GroupID,
	}, actor)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, o)
}

func (h *ObservatoryHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid observatory id")
		return
	}

	if _, ok := h.requireObservatoryWrite(w, r, id); !ok {
		return
	}

	if err := h.server.engine.observatories.Delete(r.Context(), id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ObservatoryHandlers) Ephemerides(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid observatory id")
		return
	}

	entries, err := h.server.engine.observatories.Ephemerides(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, entries)
}

func (h *ObservatoryHandlers) AddEphemeris(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid observatory id")
		return
	}

	var req addEphemerisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}

	if _, ok := h.requireObservatoryWrite(w, r, id); !ok {
		return
	}

	e, err := h.server.engine.observatories.AddEphemeris(r.Context(), id, req.Type, req.Priority, req.Parameters)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, e)
}

func (h *ObservatoryHandlers) RemoveEphemeris(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid ephemeris id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireGlobal(r.Context(), p, "observatory:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	if err := h.server.engine.observatories.RemoveEphemeris(r.Context(), id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
