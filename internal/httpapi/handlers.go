package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cambria.dev/dashboard/internal/audit"
	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/clients"
	"cambria.dev/dashboard/internal/obs"
	"cambria.dev/dashboard/internal/uploads"
)

const serviceName = "cambria-dashboard"

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the primary store. A nil DB (degraded mode) is always ready.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Services are the domain collaborators the HTTP layer calls into.
// Uploads may be nil when no object store is configured.
type Services struct {
	Auth    *auth.Service
	RBAC    *auth.RBACService
	Audit   *audit.Recorder
	Clients *clients.Service
	Uploads *uploads.Service
}

// Settings tunes the HTTP surface.
type Settings struct {
	Version        string
	CookieName     string
	CookieSecure   bool
	AllowedOrigins []string
	MaxBodyBytes   int64
	RateBurst      int
	RatePerSecond  float64
	// Forgot- and reset-password requests are limited separately per client IP.
	ForgotBurst     int
	ForgotPerMinute float64
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Leave it off unless a proxy in front of the service sets those headers.
	TrustProxy bool
}

// API is the HTTP layer.
type API struct {
	svc        Services
	readyProbe ReadyProbe
	settings   Settings
	router     chi.Router
}

func New(svc Services, rp ReadyProbe, s Settings) (*API, error) {
	if svc.Auth == nil || svc.RBAC == nil || svc.Audit == nil || svc.Clients == nil {
		return nil, errors.New("httpapi: auth, rbac, audit and clients services are required")
	}
	if s.CookieName == "" {
		s.CookieName = "cambria_session"
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = uploads.MaxSize + 1<<20
	}
	if s.RateBurst <= 0 {
		s.RateBurst = 40
	}
	if s.RatePerSecond <= 0 {
		s.RatePerSecond = 20
	}
	if s.ForgotBurst <= 0 {
		s.ForgotBurst = 5
	}
	if s.ForgotPerMinute <= 0 {
		s.ForgotPerMinute = 5
	}
	a := &API{svc: svc, readyProbe: rp, settings: s}
	a.router = a.routes()
	return a, nil
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	if a.settings.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestID)
	r.Use(LoggingJSON)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS(a.settings.AllowedOrigins))
	r.Use(func(next http.Handler) http.Handler {
		return RateLimit(next, a.settings.RateBurst, a.settings.RatePerSecond)
	})
	r.Use(func(next http.Handler) http.Handler {
		return MaxBodyBytes(next, a.settings.MaxBodyBytes)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", a.handleLogin)
			r.Post("/logout", a.handleLogout)
			r.Get("/session", a.handleSession)
			r.With(a.recoveryLimit).Post("/forgot-password", a.handleForgotPassword)
			r.With(a.recoveryLimit).Post("/reset-password", a.handleResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.withSession)

			r.Route("/users", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/", a.handleListUsers)
				r.Post("/", a.handleCreateUser)
				r.Get("/{id}", a.handleGetUser)
				r.Put("/{id}", a.handleUpdateUser)
				r.Delete("/{id}", a.handleDeleteUser)
				r.Put("/{id}/client-permissions", a.handleSetClientPermission)
				r.Delete("/{id}/client-permissions/{clientCode}", a.handleRemoveClientPermission)
			})

			r.Route("/permissions", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/", a.handleListPermissions)
				r.Post("/", a.handleCreatePermission)
				r.Get("/{id}", a.handleGetPermission)
				r.Put("/{id}", a.handleUpdatePermission)
				r.Delete("/{id}", a.handleDeletePermission)
			})

			r.Get("/audit-logs", a.handleQueryAuditLogs)
			r.Post("/audit-logs", a.handleAppendAuditLog)

			r.Route("/clients", func(r chi.Router) {
				r.Get("/", a.handleListClients)
				r.Get("/{code}", a.handleGetClient)
				r.Put("/{code}", a.handleUpdateClient)
				r.Post("/{code}/sheets/extract", a.handleExtractSheet)
				r.Get("/{code}/uploads", a.handleListUploads)
				r.Post("/{code}/uploads", a.handleCreateUpload)
			})
		})
	})
	return r
}

// recoveryLimit is the stricter per-route limiter for password recovery.
func (a *API) recoveryLimit(next http.Handler) http.Handler {
	return RateLimit(next, a.settings.ForgotBurst, a.settings.ForgotPerMinute/60)
}

// Handler returns the root handler with request metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.settings.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
