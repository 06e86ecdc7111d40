package httpapi

import (
	"errors"
	"net/http"
	"time"

	"dipdive.org/internal/auth"
	"dipdive.org/internal/rbac"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccountID   string    `json:"account_id"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.tokens == nil {
		writeError(w, r, http.StatusServiceUnavailable, "token service unavailable")
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	account, err := a.svc.AccountByEmail(r.Context(), req.Email)
	if err != nil {
		// Same answer for unknown email and bad password.
		if errors.Is(err, rbac.ErrNotFound) || errors.Is(err, rbac.ErrInvalidInput) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "sign-in failed")
		return
	}
	if !account.Active {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.VerifyPassword(account.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := a.tokens.GenerateToken(account.ID, account.Email)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "sign-in failed")
		return
	}
	a.audit(r.Context(), "auth.token.issue", "account", account.ID, nil)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		AccountID:   account.ID,
	})
}
