package httpapi

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"prosite.org/internal/audit"
	"prosite.org/internal/auth"
	"prosite.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

func toTokenPairResponse(pair auth.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (a *API) handleLogin(variant auth.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := validateCredentials(req.Email, req.Password); err != "" {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}

		pair, account, err := a.sessions.Login(r.Context(), req.Email, req.Password, variant)
		if err != nil {
			obs.ObserveLogin(string(variant), "rejected")
			handleAuthError(w, r, err)
			return
		}
		obs.ObserveLogin(string(variant), "ok")
		_ = audit.LogEvent(r.Context(), "session.login", map[string]any{
			"account_id": account.ID,
			"variant":    string(variant),
		})
		writeJSON(w, http.StatusOK, toTokenPairResponse(pair))
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, account, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		obs.ObserveRefresh("rejected")
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveRefresh("ok")
	_ = audit.LogEvent(r.Context(), "session.refresh", map[string]any{
		"account_id": account.ID,
		"variant":    string(account.Variant),
	})
	writeJSON(w, http.StatusOK, toTokenPairResponse(pair))
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Logout never fails on an already-absent token.
	if err := a.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "session.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

type forgotRequest struct {
	Email string `json:"email"`
}

func (a *API) handleForgot(variant auth.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req forgotRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if !validEmail(req.Email) {
			writeError(w, r, http.StatusBadRequest, "invalid email")
			return
		}

		if err := a.resets.ForgotPassword(r.Context(), req.Email, variant); err != nil {
			handleAuthError(w, r, err)
			return
		}
		// Accepted whether or not the account exists; the body is identical
		// in both cases.
		writeJSON(w, http.StatusAccepted, map[string]any{
			"message": "if the email exists, a reset link will be sent",
		})
	}
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.resets.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "session.password_reset", nil)
	w.WriteHeader(http.StatusNoContent)
}

func validateCredentials(email, password string) string {
	if !validEmail(email) {
		return "invalid email"
	}
	if len(password) < 8 {
		return "password must be at least 8 characters"
	}
	return ""
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}
