package engine

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/obsplan/obsplan/internal/services/instrument"
	"github.com/obsplan/obsplan/pkg/models"
)

// InstrumentHandlers serves instruments, footprints, constraints, and
// filters. Reads are open; writes require the group-scoped observatory
// grant resolved through the owning telescope.
type InstrumentHandlers struct {
	server *Server
}

type createInstrumentRequest struct {
	TelescopeID uuid.UUID `json:"telescope_id"`
	Name        string    `json:"name"`
	ShortName   string    `json:"short_name"`
}

type addFootprintRequest struct {
	Polygon []models.Point `json:"polygon"`
}

type createConstraintRequest struct {
	Type       models.ConstraintType `json:"constraint_type"`
	Parameters json.RawMessage       `json:"parameters"`
}

type addFilterRequest struct {
	Name          string   `json:"name"`
	Center        *float64 `json:"center"`
	Width         *float64 `json:"width"`
	MinWavelength *float64 `json:"min_wavelength"`
	MaxWavelength *float64 `json:"max_wavelength"`
	Unit          string   `json:"unit"`
	IsOperational bool     `json:"is_operational"`
	ReferenceURL  *string  `json:"reference_url"`
}

func (h *InstrumentHandlers) requireInstrumentGroupWrite(w http.ResponseWriter, r *http.Request, telescopeID uuid.UUID) (uuid.UUID, bool) {
	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return uuid.Nil, false
	}
	groupID, err := h.server.engine.telescopes.Group(r.Context(), telescopeID)
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

func (h *InstrumentHandlers) requireWriteFor(w http.ResponseWriter, r *http.Request, instrumentID uuid.UUID) (uuid.UUID, bool) {
	ins, err := h.server.engine.instruments.Get(r.Context(), instrumentID)
	if err != nil {
		h.server.writeServiceError(w, err)
		return uuid.Nil, false
	}
	return h.requireInstrumentGroupWrite(w, r, ins.TelescopeID)
}

func (h *InstrumentHandlers) List(w http.ResponseWriter, r *http.Request) {
	var telescopeID *uuid.UUID
	if raw := r.URL.Query().Get("telescope_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid telescope_id")
			return
		}
		telescopeID = &id
	}

	instruments, err := h.server.engine.instruments.List(r.Context(), telescopeID)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, instruments)
}

func (h *InstrumentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid instrument id")
		return
	}

	ins, err := h.server.engine.instruments.Get(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, ins)
}

func (h *InstrumentHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}
	if req.Name == "" || req.ShortName == "" {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "name and short_name are required")
		return
	}

	actor, ok := h.requireInstrumentGroupWrite(w, r, req.TelescopeID)
	if !ok {
		return
	}

	ins, err := h.server.engine.instruments.Create(r.Context(), req.TelescopeID, req.Name, req.ShortName, actor)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, ins)
}

func (h *InstrumentHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid instrument id")
		return
	}

	if _, ok := h.requireWriteFor(w, r, id); !ok {
		return
	}

	if err := h.server.engine.instruments.Delete(r.Context(), id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InstrumentHandlers) Footprints(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid instrument id")
		return
	}

	footprints, err := h.server.engine.instruments.Footprints(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, footprints)
}

func (h *InstrumentHandlers) AddFootprint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid instrument id")
		return
	}

	var req addFootprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}

	if _, ok := h.requireWriteFor(w, r, id); !ok {
		return
	}

	fp, err := h.server.engine.instruments.AddFootprint(r.Context(), id, req.Polygon)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, fp)
}

func (h *InstrumentHandlers) RemoveFootprint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid footprint id")
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

	if err := h.server.engine.instruments.RemoveFootprint(r.Context(), id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InstrumentHandlers) Constraints(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid instrument id")
		return
	}

	constraints, err := h.server.engine.instruments.Constraints(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, constraints)
}

func (h *InstrumentHandlers) CreateConstraint(w http.ResponseWriter, r *http.Request) {
	var req createConstraintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
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

	c, err := h.server.engine.instruments.CreateConstraint(r.Context(), req.Type, req.Parameters)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, c)
}

func (h *InstrumentHandlers) AttachConstraint(w http.ResponseWriter, r *http.Request) {
	h.mutateConstraint(w, r, true)
}

func (h *InstrumentHandlers) DetachConstraint(w http.ResponseWriter, r *http.Request) {
	h.mutateConstraint(w, r, false)
}

func (h *InstrumentHandlers) mutateConstraint(w http.ResponseWriter, r *http.Request, attach bool) {
	id, okI := pathUUID(r, "id")
	cid, okC := pathUUID(r, "cid")
	if !okI || !okC {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid path id")
		return
	}

	if _, ok := h.requireWriteFor(w, r, id); !ok {
		return
	}

	var err error
	if attach {
		err = h.server.engine.instruments.AttachConstraint(r.Context(), id, cid)
	} else {
		err = h.server.engine.instruments.DetachConstraint(r.Context(), id, cid)
	}
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InstrumentHandlers) Filters(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid instrument id")
		return
	}

	filters, err := h.server.engine.instruments.Filters(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, filters)
}

func (h *InstrumentHandlers) AddFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid instrument id")
		return
	}

	var req addFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "name is required")
		return
	}

	if _, ok := h.requireWriteFor(w, r, id); !ok {
		return
	}

	f, err := h.server.engine.instruments.AddFilter(r.Context(), id, req.Name, instrument.Bandpass{
		Center: req.Center,
		Width:  req.Width,
		Min:    req.MinWavelength,
		Max:    req.MaxWavelength,
		Unit:   instrument.WavelengthUnit(req.Unit),
	}, req.IsOperational, req.ReferenceURL)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, f)
}
