package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"shutterdesk.app/internal/auth"
	"shutterdesk.app/internal/obs"
)

// ReadyProbe reports readiness, pinging the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the transport knobs the core supports but does not decide.
type Options struct {
	Version      string
	Dev          bool
	CookieTokens bool
	TrustProxy   bool
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
	StoreTimeout time.Duration
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// API is the HTTP surface over the authorization core.
type API struct {
	mux      *http.ServeMux
	probe    ReadyProbe
	sessions *auth.Service
	guard    *auth.Guard
	resolver *auth.Resolver
	roles    auth.RoleStore
	opts     Options
	limiter  *rateLimiter
}

// New wires the API. Every protected route declares its required
// permission keys at registration; the guard reads them directly.
func New(probe ReadyProbe, sessions *auth.Service, guard *auth.Guard, resolver *auth.Resolver, roles auth.RoleStore, opts Options) *API {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}

	a := &API{
		mux:      http.NewServeMux(),
		probe:    probe,
		sessions: sessions,
		guard:    guard,
		resolver: resolver,
		roles:    roles,
		opts:     opts,
		limiter:  newRateLimiter(opts.RateBurst, opts.RatePerSec, opts.TrustProxy),
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	// Credential endpoints are rate limited per client IP.
	a.mux.Handle("/v1/auth/register", a.limiter.wrap(http.HandlerFunc(a.handleRegister)))
	a.mux.Handle("/v1/auth/login", a.limiter.wrap(http.HandlerFunc(a.handleLogin)))
	a.mux.Handle("/v1/auth/refresh", a.limiter.wrap(http.HandlerFunc(a.handleRefresh)))

	a.mux.HandleFunc("/v1/auth/logout", a.protect(a.handleLogout))
	a.mux.HandleFunc("/v1/auth/change-password", a.protect(a.handleChangePassword))
	a.mux.HandleFunc("/v1/auth/whoami", a.protect(a.handleWhoami))

	a.mux.HandleFunc("/v1/roles", a.protect(a.handleRoles, auth.PermRolesManage))
	a.mux.HandleFunc("/v1/roles/", a.protect(a.handleRoleResource, auth.PermRolesManage))
	a.mux.HandleFunc("/v1/users/", a.protect(a.handleUserRoles, auth.PermRolesManage))
	a.mux.HandleFunc("/v1/permissions", a.protect(a.handlePermissions, auth.PermRolesManage))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = SecurityHeaders(h)
	h = LoggingJSON(h, a.opts.TrustProxy)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "shutterdesk-auth",
		"version": a.opts.Version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.opts.StoreTimeout)
	defer cancel()
	if err := a.probe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "shutterdesk-auth",
		"version":     a.opts.Version,
		"access_ttl":  a.opts.AccessTTL.String(),
		"refresh_ttl": a.opts.RefreshTTL.String(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// decodeJSON reads a strict JSON body. Size is already capped by the
// MaxBodyBytes middleware.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
