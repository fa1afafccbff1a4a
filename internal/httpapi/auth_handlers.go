package httpapi

import (
	"net/http"
	"strings"
	"time"

	"tezoro.org/internal/audit"
)

type tokenRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Admin     bool      `json:"admin"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}

	admin := a.isAdmin(req.UserID)
	token, err := a.tokens.Generate(req.UserID, admin, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user_id":    req.UserID,
		"admin":      admin,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		Admin:     admin,
		ExpiresAt: expiresAt,
	})
}
