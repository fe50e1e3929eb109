package engine

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/obsplan/obsplan/internal/services/auth"
	"github.com/obsplan/obsplan/pkg/models"
)

// ServiceAccountHandlers serves service-account lifecycle. Accounts are
// managed by their owning user; principals with the matching global
// permission may act on any account.
type ServiceAccountHandlers struct {
	server *Server
}

type createServiceAccountRequest struct {
	Name               string  `json:"name"`
	Description        *string `json:"description"`
	ExpirationDuration int     `json:"expiration_duration"`
}

type updateServiceAccountRequest struct {
	Name               *string `json:"name"`
	Description        *string `json:"description"`
	ExpirationDuration *int    `json:"expiration_duration"`
}

// serviceAccountResponse carries the plaintext secret on the create and
// rotate paths only.
type serviceAccountResponse struct {
	*models.ServiceAccount
	SecretKey string `json:"secret_key,omitempty"`
}

// requireOwnerOrGlobal allows the account's owner, or a principal holding
// the permission globally.
func (h *ServiceAccountHandlers) requireOwnerOrGlobal(r *http.Request, p *auth.Principal, accountID uuid.UUID, permission string) error {
	if p.User != nil {
		owned, err := h.server.engine.accounts.OwnedBy(r.Context(), accountID, p.User.ID)
		if err != nil {
			return err
		}
		if owned {
			return nil
		}
	}
	return h.server.engine.auth.RequireGlobal(r.Context(), p, permission)
}

func (h *ServiceAccountHandlers) List(w http.ResponseWriter, r *http.Request) {
	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if p.User == nil {
		h.server.writeServiceError(w, fmt.Errorf("%w: user session required", models.ErrForbidden))
		return
	}

	accounts, err := h.server.engine.accounts.ListForUser(r.Context(), p.User.ID)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, accounts)
}

func (h *ServiceAccountHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createServiceAccountRequest
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
	if p.User == nil {
		h.server.writeServiceError(w, fmt.Errorf("%w: user session required", models.ErrForbidden))
		return
	}
	if err := h.server.engine.auth.RequireSelf(r.Context(), p, p.User.ID, "user:service_account:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	sa, err := h.server.engine.accounts.Create(r.Context(), req.Name, req.Description, req.ExpirationDuration, p.User.ID, p.ActorID())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, serviceAccountResponse{ServiceAccount: sa, SecretKey: sa.SecretKey})
}

func (h *ServiceAccountHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid service account id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.requireOwnerOrGlobal(r, p, id, "user:service_account:read"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	sa, err := h.server.engine.accounts.Get(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, sa)
}

func (h *ServiceAccountHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid service account id")
		return
	}

	var req updateServiceAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.requireOwnerOrGlobal(r, p, id, "user:service_account:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	sa, err := h.server.engine.accounts.Update(r.Context(), id, req.Name, req.Description, req.ExpirationDuration, p.ActorID())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, sa)
}

func (h *ServiceAccountHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid service account id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.requireOwnerOrGlobal(r, p, id, "user:service_account:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	if err := h.server.engine.accounts.Delete(r.Context(), id, p.ActorID()); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachGroupRole grants a group role to a service account. The path user
// must own the account and the principal must be that user.
func (h *ServiceAccountHandlers) AttachGroupRole(w http.ResponseWriter, r *http.Request) {
	h.mutateGroupRole(w, r, true)
}

// DetachGroupRole revokes a group role from a service account.
func (h *ServiceAccountHandlers) DetachGroupRole(w http.ResponseWriter, r *http.Request) {
	h.mutateGroupRole(w, r, false)
}

func (h *ServiceAccountHandlers) mutateGroupRole(w http.ResponseWriter, r *http.Request, attach bool) {
	uid, okU := pathUUID(r, "uid")
	sid, okS := pathUUID(r, "sid")
	grid, okG := pathUUID(r, "grid")
	if !okU || !okS || !okG {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid path id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireSelf(r.Context(), p, uid, "user:service_account:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	owned, err := h.server.engine.accounts.OwnedBy(r.Context(), sid, uid)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if !owned {
		h.server.writeServiceError(w, fmt.Errorf("%w: service account %s is not owned by user %s", models.ErrNotFound, sid, uid))
		return
	}

	if attach {
		err = h.server.engine.accounts.AttachGroupRole(r.Context(), sid, grid)
	} else {
		err = h.server.engine.accounts.DetachGroupRole(r.Context(), sid, grid)
	}
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RotateKey replaces the account secret in place. Reserved for system
// service accounts so automation can rotate credentials without a user
// session.
func (h *ServiceAccountHandlers) RotateKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid service account id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireSystemServiceAccount(r.Context(), p, "system:service_account:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	sa, err := h.server.engine.accounts.RotateKey(r.Context(), id, p.ActorID())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, serviceAccountResponse{ServiceAccount: sa, SecretKey: sa.SecretKey})
}
