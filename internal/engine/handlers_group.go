package engine

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/obsplan/obsplan/internal/services/auth"
	"github.com/obsplan/obsplan/pkg/models"
)

// GroupHandlers serves groups, membership, invites, and group roles.
// Group reads are open to members and to group-scoped role holders;
// group writes need a group-scoped write grant.
type GroupHandlers struct {
	server *Server
}

type createGroupRequest struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

type inviteRequest struct {
	ReceiverEmail string `json:"receiver_email"`
}

type resolveInviteRequest struct {
	Accept bool `json:"accept"`
}

type createGroupRoleRequest struct {
	Name string `json:"name"`
}

// requireGroupRead lets group members in without an explicit grant.
func (h *GroupHandlers) requireGroupRead(r *http.Request, p *auth.Principal, groupID uuid.UUID) error {
	if p.User != nil {
		member, err := h.server.engine.groups.IsMember(r.Context(), groupID, p.User.ID)
		if err != nil {
			return err
		}
		if member {
			return nil
		}
	}
	return h.server.engine.auth.RequireGroup(r.Context(), p, groupID, "group:read")
}

func (h *GroupHandlers) List(w http.ResponseWriter, r *http.Request) {
	if _, err := h.server.principal(r); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	groups, err := h.server.engine.groups.List(r.Context())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, groups)
}

func (h *GroupHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid group id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.requireGroupRead(r, p, id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	g, err := h.server.engine.groups.Get(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, g)
}

func (h *GroupHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
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
	if err := h.server.engine.auth.RequireGlobal(r.Context(), p, "group:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	g, err := h.server.engine.groups.Create(r.Context(), req.Name, req.ShortName, p.ActorID())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, g)
}

func (h *GroupHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid group id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireGroup(r.Context(), p, id, "group:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	if err := h.server.engine.groups.Delete(r.Context(), id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandlers) Members(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid group id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.requireGroupRead(r, p, id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	members, err := h.server.engine.groups.Members(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, members)
}

func (h *GroupHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	h.mutateMember(w, r, true)
}

func (h *GroupHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	h.mutateMember(w, r, false)
}

func (h *GroupHandlers) mutateMember(w http.ResponseWriter, r *http.Request, add bool) {
	id, okG := pathUUID(r, "id")
	uid, okU := pathUUID(r, "uid")
	if !okG || !okU {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid path id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireGroup(r.Context(), p, id, "group:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	if add {
		err = h.server.engine.groups.AddMember(r.Context(), id, uid)
	} else {
		err = h.server.engine.groups.RemoveMember(r.Context(), id, uid)
	}
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandlers) Invites(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid group id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.requireGroupRead(r, p, id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	invites, err := h.server.engine.groups.Invites(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, invites)
}

func (h *GroupHandlers) Invite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid group id")
		return
	}

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}
	if req.ReceiverEmail == "" {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "receiver_email is required")
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
	if err := h.server.engine.auth.RequireGroup(r.Context(), p, id, "group:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	inv, err := h.server.engine.groups.Invite(r.Context(), id, req.ReceiverEmail, p.User.ID)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, inv)
}

// ResolveInvite accepts or rejects an invite on behalf of the calling
// user. Only the receiver can resolve; the check is that the invited
// address matches the caller's email.
func (h *GroupHandlers) ResolveInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid invite id")
		return
	}

	var req resolveInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
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

	inv, err := h.server.engine.groups.ResolveInvite(r.Context(), id, p.User.ID, p.User.Email, req.Accept)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, inv)
}

func (h *GroupHandlers) GroupRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid group id")
		return
	}

	p, err := h.server.principal(r)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.requireGroupRead(r, p, id); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	groupRoles, err := h.server.engine.groups.GroupRoles(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, groupRoles)
}

func (h *GroupHandlers) CreateGroupRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid group id")
		return
	}

	var req createGroupRoleRequest
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
	if err := h.server.engine.auth.RequireGroup(r.Context(), p, id, "group:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	gr, err := h.server.engine.groups.CreateGroupRole(r.Context(), id, req.Name, p.ActorID())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, gr)
}

func (h *GroupHandlers) AssignGroupRoleToUser(w http.ResponseWriter, r *http.Request) {
	h.mutateGroupRoleUser(w, r, true)
}

func (h *GroupHandlers) RemoveGroupRoleFromUser(w http.ResponseWriter, r *http.Request) {
	h.mutateGroupRoleUser(w, r, false)
}

func (h *GroupHandlers) mutateGroupRoleUser(w http.ResponseWriter, r *http.Request, assign bool) {
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

	groupID, err := h.server.engine.groups.GroupRoleGroup(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireGroup(r.Context(), p, groupID, "group:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	if assign {
		err = h.server.engine.groups.AssignGroupRoleToUser(r.Context(), id, uid)
	} else {
		err = h.server.engine.groups.RemoveGroupRoleFromUser(r.Context(), id, uid)
	}
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandlers) AttachGroupRolePermission(w http.ResponseWriter, r *http.Request) {
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

	groupID, err := h.server.engine.groups.GroupRoleGroup(r.Context(), id)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	if err := h.server.engine.auth.RequireGroup(r.Context(), p, groupID, "group:write"); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	if err := h.server.engine.groups.AttachGroupRolePermission(r.Context(), id, pid, p.ActorID()); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
