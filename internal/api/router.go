package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/lorastudio/internal/api/middleware"
	"github.com/kiranshivaraju/lorastudio/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MeHandler      http.HandlerFunc
	UploadsHandler http.HandlerFunc

	CreateJob      http.HandlerFunc
	ActiveJob      http.HandlerFunc
	ListJobs       http.HandlerFunc
	GetJob         http.HandlerFunc
	ReportProgress http.HandlerFunc

	CreateUserHandler http.HandlerFunc
	CreateKeyHandler  http.HandlerFunc
	ListKeysHandler   http.HandlerFunc
	RevokeKeyHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "No route for "+r.URL.Path, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" is not supported here", nil)
	})

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/me", orNotImplemented(deps.MeHandler))
		r.Post("/api/v1/uploads", orNotImplemented(deps.UploadsHandler))

		r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJob))
		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobs))
		r.Get("/api/v1/jobs/active", orNotImplemented(deps.ActiveJob))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))

		// Training worker callbacks
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeWorker))

			r.Post("/api/v1/jobs/{jobID}/progress", orNotImplemented(deps.ReportProgress))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAdmin))

			r.Post("/api/v1/admin/users", orNotImplemented(deps.CreateUserHandler))
			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
