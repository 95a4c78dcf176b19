package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"shutterdesk.app/internal/audit"
	"shutterdesk.app/internal/auth"
	"shutterdesk.app/internal/obs"
)

type registerRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type sessionResponse struct {
	UserID           string    `json:"user_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func sessionBody(s auth.Session) sessionResponse {
	return sessionResponse{
		UserID:           s.UserID,
		AccessToken:      s.AccessToken,
		AccessExpiresAt:  s.AccessExpiresAt,
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt,
	}
}

func (a *API) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), a.opts.StoreTimeout)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := a.storeContext(r)
	defer cancel()

	session, err := a.sessions.Register(ctx, req.Phone, req.Password, auth.Profile{
		Email:    req.Email,
		FullName: req.FullName,
	})
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	obs.ObserveTokenPairIssued()
	_ = audit.Record(r.Context(), "auth.register", map[string]any{
		"user_id": session.UserID,
	})
	a.setSessionCookies(w, &session)
	writeJSON(w, http.StatusCreated, sessionBody(session))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := a.storeContext(r)
	defer cancel()

	session, err := a.sessions.Login(ctx, req.Phone, req.Password)
	if err != nil {
		obs.ObserveLogin("invalid")
		a.handleAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("ok")
	obs.ObserveTokenPairIssued()
	_ = audit.Record(r.Context(), "auth.login", map[string]any{
		"user_id": session.UserID,
	})
	a.setSessionCookies(w, &session)
	writeJSON(w, http.StatusOK, sessionBody(session))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// Body first, cookie as fallback for browser clients.
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		if a.opts.CookieTokens {
			if c, cerr := r.Cookie(refreshCookie); cerr == nil {
				req.RefreshToken = c.Value
			}
		}
		if req.RefreshToken == "" {
			writeError(w, r, http.StatusBadRequest, "refresh_token is required")
			return
		}
	}

	ctx, cancel := a.storeContext(r)
	defer cancel()

	session, err := a.sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		obs.ObserveRefresh("invalid")
		a.handleAuthError(w, r, err)
		return
	}
	obs.ObserveRefresh("ok")
	obs.ObserveTokenPairIssued()
	_ = audit.Record(r.Context(), "auth.refresh", map[string]any{
		"user_id": session.UserID,
	})
	a.setSessionCookies(w, &session)
	writeJSON(w, http.StatusOK, sessionBody(session))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request, principal auth.PrincipalSummary) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	ctx, cancel := a.storeContext(r)
	defer cancel()

	if err := a.sessions.Logout(ctx, principal.ID); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.Record(r.Context(), "auth.logout", nil)
	a.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request, principal auth.PrincipalSummary) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := a.storeContext(r)
	defer cancel()

	if err := a.sessions.ChangePassword(ctx, principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.Record(r.Context(), "auth.password_change", nil)
	// Refresh slot is cleared server side, drop the cookies too.
	a.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) handleWhoami(w http.ResponseWriter, r *http.Request, principal auth.PrincipalSummary) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	ctx, cancel := a.storeContext(r)
	defer cancel()

	permissions, err := a.resolver.EffectivePermissions(ctx, principal.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to resolve permissions")
		return
	}
	keys := make([]string, 0, len(permissions))
	for key := range permissions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          principal.ID,
		"phone":       principal.Phone,
		"email":       principal.Email,
		"full_name":   principal.FullName,
		"permissions": keys,
	})
}

// handleAuthError maps the core error taxonomy onto HTTP statuses.
// Anything unmapped is an internal failure and stays opaque.
func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrDuplicateIdentity):
		writeError(w, r, http.StatusConflict, "phone or email is already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid phone or password")
	case errors.Is(err, auth.ErrAccountInactive):
		writeError(w, r, http.StatusForbidden, "account is deactivated")
	case errors.Is(err, auth.ErrInvalidRefreshToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrInvalidSignature):
		writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, auth.ErrPrincipalNotFound), errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		obs.Log("error", "auth operation failed", map[string]any{
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
