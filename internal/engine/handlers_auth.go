package engine

import (
	"encoding/json"
	"net/http"
)

// AuthHandlers serves the passwordless login flow.
type AuthHandlers struct {
	server *Server
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Message string `json:"message"`
	LoginID string `json:"login_id,omitempty"`
	Token   string `json:"token,omitempty"`
}

type redeemRequest struct {
	LoginID string `json:"login_id"`
	Token   string `json:"token"`
}

type redeemResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login starts a magic-link login. The response is 200 whether or not the
// email belongs to a user, so the endpoint cannot be used to enumerate
// accounts. In the local runtime environment the token is echoed for
// development convenience.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if email := r.URL.Query().Get("email"); email != "" {
		req.Email = email
	} else if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Email == "" {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "email is required")
		return
	}

	loginID, token, err := h.server.engine.auth.StartLogin(r.Context(), req.Email)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	resp := loginResponse{Message: "if the address is registered, a login link has been sent"}
	if h.server.engine.config.Local() {
		resp.LoginID = loginID
		resp.Token = token
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// Redeem exchanges a one-time login token for a session JWT.
func (h *AuthHandlers) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid_input", "invalid JSON body")
		return
	}

	token, err := h.server.engine.auth.Redeem(r.Context(), req.LoginID, req.Token)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, redeemResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}
