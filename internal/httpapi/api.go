// Package httpapi exposes the auth lifecycle and castle settings operations
// over HTTP. Handlers stay thin: decode, call the service, map error kinds
// onto statuses.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"prosite.org/internal/auth"
	"prosite.org/internal/castle"
	"prosite.org/internal/obs"
)

// ReadyProbe is a simple readiness check (DB ping when a store is wired).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the collaborators the API serves.
type Options struct {
	Gate     *auth.Gate
	Sessions *auth.Service
	Resets   *auth.ResetFlow
	Castles  *castle.Service
	Ready    ReadyProbe
	Version  string
	// RateBurst/RatePerSecond shape the bucket on credential endpoints.
	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	gate     *auth.Gate
	sessions *auth.Service
	resets   *auth.ResetFlow
	castles  *castle.Service
	ready    ReadyProbe
	version  string
}

// New wires all routes.
func New(opts Options) *API {
	a := &API{
		mux:      http.NewServeMux(),
		gate:     opts.Gate,
		sessions: opts.Sessions,
		resets:   opts.Resets,
		castles:  opts.Castles,
		ready:    opts.Ready,
		version:  opts.Version,
	}

	burst, perSecond := opts.RateBurst, opts.RatePerSecond
	if burst <= 0 {
		burst = 10
	}
	if perSecond <= 0 {
		perSecond = 5
	}
	limited := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, burst, perSecond)
	}

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle; credential endpoints are rate limited per IP
	a.mux.Handle("/v1/auth/login", limited(a.handleLogin(auth.VariantTenant)))
	a.mux.Handle("/v1/auth/admin/login", limited(a.handleLogin(auth.VariantOperator)))
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.Handle("/v1/auth/forgot", limited(a.handleForgot(auth.VariantTenant)))
	a.mux.Handle("/v1/auth/admin/forgot", limited(a.handleForgot(auth.VariantOperator)))
	a.mux.Handle("/v1/auth/reset", limited(http.HandlerFunc(a.handleReset)))

	// castle settings (tenant only, behind the gate)
	a.mux.Handle("/v1/castles/", a.withAuth(http.HandlerFunc(a.handleCastle)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = obs.Instrument(h)
	h = RequestID(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "prosite-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
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

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
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
