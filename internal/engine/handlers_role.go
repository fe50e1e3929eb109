package engine

import (
	"encoding/json"
	"net/http"

	"github.com/obsplan/obsplan/internal/services/auth"
)

// RoleHandlers serves the global role and permission catalogs. Reads are
// open to any authenticated principal; writes require all:write.
type RoleHandlers struct {
	server *Server
}

type createRoleRequest struct {
	Name string `json:"name"`
}

type createPermissionRequest struct {
	Name string `json:"name"`
}

func (h *RoleHandlers) List(w http.ResponseWriter, r *http.Request) {
	if _, err := h.server.principal(r); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	roles, err := h.server.engine.roles.List(r.Context())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, roles)
}

func (h *RoleHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid role id")
		return
	}
	if _, err := h.server.principal(r); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	role, err := h.server.engine.roles.Get(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, role)
}

func (h *RoleHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "name is required")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireGlobal(r.Context(), p, auth.PermissionAll); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	role, err := h.server.engine.roles.Create(r.Context(), req.Name, p.ActorID())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, role)
}

func (h *RoleHandlers) AttachPermission(w http.ResponseWriter, r *http.Request) {
	h.mutatePermission(w, r, true)
}

func (h *RoleHandlers) DetachPermission(w http.ResponseWriter, r *http.Request) {
	h.mutatePermission(w, r, false)
}

func (h *RoleHandlers) mutatePermission(w http.ResponseWriter, r *http.Request, attach bool) {
	id, okR := pathUUID(r, "id")
	pid, okP := pathUUID(r, "pid")
	if !okR || !okP {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid path id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireGlobal(r.Context(), p, auth.PermissionAll); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	if attach {
		err = h.server.engine.roles.AttachPermission(r.Context(), id, pid, p.ActorID())
	} else {
		err = h.server.engine.roles.DetachPermission(r.Context(), id, pid, p.ActorID())
	}
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoleHandlers) AssignToUser(w http.ResponseWriter, r *http.Request) {
	h.mutateAssignment(w, r, true)
}

func (h *RoleHandlers) RemoveFromUser(w http.ResponseWriter, r *http.Request) {
	h.mutateAssignment(w, r, false)
}

func (h *RoleHandlers) mutateAssignment(w http.ResponseWriter, r *http.Request, assign bool) {
	id, okR := pathUUID(r, "id")
	uid, okU := pathUUID(r, "uid")
	if !okR || !okU {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid path id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireGlobal(r.Context(), p, auth.PermissionAll); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	if assign {
		err = h.server.engine.roles.AssignToUser(r.Context(), id, uid)
	} else {
		err = h.server.engine.roles.RemoveFromUser(r.Context(), id, uid)
	}
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoleHandlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	if _, err := h.server.principal(r); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	perms, err := h.server.engine.roles.ListPermissions(r.Context())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, perms)
}

func (h *RoleHandlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "name is required")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireGlobal(r.Context(), p, auth.PermissionAll); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	perm, err := h.server.engine.roles.CreatePermission(r.Context(), req.Name)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, perm)
}
