package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"shutterdesk.app/internal/auth"
	"shutterdesk.app/internal/obs"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// bearerToken pulls the access token from the Authorization header,
// falling back to the session cookie when cookie mode is enabled.
func (a *API) bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if a.opts.CookieTokens {
		if c, err := r.Cookie(accessCookie); err == nil {
			return c.Value
		}
	}
	return ""
}

// protect wraps a handler with authentication and, when required keys
// are given, authorization. All required keys must be held; any store
// failure along the way denies the request.
func (a *API) protect(next func(http.ResponseWriter, *http.Request, auth.PrincipalSummary), required ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := a.bearerToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "missing access token")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), a.opts.StoreTimeout)
		defer cancel()

		principal, err := a.guard.Authorize(ctx, token, required...)
		if err != nil {
			var forbidden *auth.ForbiddenError
			switch {
			case errors.As(err, &forbidden):
				obs.ObserveAuthz("forbidden")
				obs.Log("warn", "authorization denied", map[string]any{
					"missing":    forbidden.Missing,
					"request_id": RequestIDFromContext(r.Context()),
				})
				writeError(w, r, http.StatusForbidden, "insufficient permissions")
			case errors.Is(err, auth.ErrUnauthenticated):
				obs.ObserveAuthz("unauthenticated")
				writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			default:
				obs.ObserveAuthz("error")
				obs.Log("error", "authorization failed", map[string]any{
					"error":      err.Error(),
					"request_id": RequestIDFromContext(r.Context()),
				})
				writeError(w, r, http.StatusInternalServerError, "authorization unavailable")
			}
			return
		}

		obs.ObserveAuthz("allow")
		next(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)), principal)
	}
}

// setSessionCookies mirrors the token pair into httpOnly cookies so
// browser clients never touch raw tokens.
func (a *API) setSessionCookies(w http.ResponseWriter, s *auth.Session) {
	if !a.opts.CookieTokens {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    s.AccessToken,
		Path:     "/",
		MaxAge:   int(a.opts.AccessTTL.Seconds()),
		HttpOnly: true,
		Secure:   !a.opts.Dev,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    s.RefreshToken,
		Path:     "/v1/auth",
		MaxAge:   int(a.opts.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   !a.opts.Dev,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	if !a.opts.CookieTokens {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !a.opts.Dev,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !a.opts.Dev,
		SameSite: http.SameSiteStrictMode,
	})
}
