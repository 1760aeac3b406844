// Package api exposes the token authority over HTTP.
//
// Requests are GETs with query parameters; responses are text/plain with one
// field per line. Every token route requires a realm parameter, which is
// digested before it reaches the authority.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/sks/token"
)

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	tokens      *token.Authority
	audit       *auditLogger
	rateLimiter *credentialRateLimiter
	alertFn     AlertFunc
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for per-operation diagnostics.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithAlertFunc sets the callback for credential failure spikes. If not set,
// alerts are logged at WARN.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithMaxAuthFailures sets how many consecutive credential failures for one
// (realm, user, client address) are tolerated before /pam_token answers 429.
// Zero disables throttling.
func WithMaxAuthFailures(n int) Option {
	return func(a *API) {
		if n <= 0 {
			a.rateLimiter = nil
			return
		}
		a.rateLimiter = newCredentialRateLimiter(n)
	}
}

// New creates a new API instance.
func New(tokens *token.Authority, opts ...Option) *API {
	a := &API{
		tokens:      tokens,
		rateLimiter: newCredentialRateLimiter(defaultMaxFailures),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.alertFn == nil {
		logger := a.audit.logger
		a.alertFn = func(e AlertEvent) {
			logger.Warn("alert",
				slog.String("type", string(e.Type)),
				slog.String("message", e.Message),
				slog.Int("count", e.Count),
				slog.Int("threshold", e.Threshold))
		}
	}
	a.audit.metrics = newMetricsCollector(a.alertFn)
	return a
}

// Router returns a chi.Router with all token routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.NotFound(unknownPath)
	r.MethodNotAllowed(unknownPath)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "OK")
	})

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(NoStore)
		r.Use(a.RealmMiddleware)
		r.Get("/valid", a.Validate)
		r.Get("/revoke", a.Revoke)
		r.Get("/stored_token", a.StoreToken)
		r.Get("/pam_token", a.MintToken)
	})

	return r
}

func unknownPath(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusNotFound, "Unknown path")
}
