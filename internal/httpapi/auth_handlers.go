package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"entgate.dev/internal/access"
	"entgate.dev/internal/log"
	"entgate.dev/internal/session"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device,omitempty"`
}

type signInResponse struct {
	Token     string    `json:"token"`
	SubjectID string    `json:"subject_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	meta := session.Metadata{Device: req.Device, IP: clientIP(r)}
	token, sess, err := a.sessions.Issue(r.Context(), email, req.Password, meta)
	if err != nil {
		// Bad email and bad password are indistinguishable on purpose.
		if errors.Is(err, access.ErrUnauthorized) || errors.Is(err, access.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		log.Error(r.Context(), "signin failed", log.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, signInResponse{
		Token:     token,
		SubjectID: sess.SubjectID,
		ExpiresAt: sess.CreatedAt.Add(sess.TTL),
	})
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := a.sessions.Revoke(r.Context(), token); err != nil {
		log.Error(r.Context(), "signout failed", log.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "signed_out"})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if a.accounts == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := a.accounts.Register(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		handleAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     acc.ID,
		"email":  acc.Email,
		"status": acc.Status,
	})
}

type activateRequest struct {
	Code string `json:"code"`
}

func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	if a.accounts == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.accounts.Activate(r.Context(), strings.TrimSpace(req.Code)); err != nil {
		handleAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "active"})
}

type passwordForgotRequest struct {
	Email string `json:"email"`
}

func (a *API) handlePasswordForgot(w http.ResponseWriter, r *http.Request) {
	if a.accounts == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req passwordForgotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Always 200: whether the address exists is not observable.
	if err := a.accounts.RequestPasswordReset(r.Context(), strings.TrimSpace(req.Email)); err != nil {
		if !errors.Is(err, access.ErrNotFound) {
			log.Error(r.Context(), "password reset request failed", log.Err(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type passwordResetRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (a *API) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	if a.accounts == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req passwordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.accounts.ResetPassword(r.Context(), strings.TrimSpace(req.Code), req.Password); err != nil {
		handleAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type passwordChangeRequest struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

func (a *API) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	if a.accounts == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req passwordChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.accounts.ChangePassword(r.Context(), sess.SubjectID, req.Current, req.Next); err != nil {
		handleAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
