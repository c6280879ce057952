package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/clearops/internal/api/middleware"
	"github.com/kiranshivaraju/clearops/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler        http.HandlerFunc
	UrgencyLevelsHandler http.HandlerFunc

	CreateDraft  http.HandlerFunc
	GetDraft     http.HandlerFunc
	ConfirmDraft http.HandlerFunc

	CreateJob    http.HandlerFunc
	ListJobs     http.HandlerFunc
	GetJob       http.HandlerFunc
	JobStatus    http.HandlerFunc
	TrackJob     http.HandlerFunc
	ListPayments http.HandlerFunc
	CancelJob    http.HandlerFunc
	RateJob      http.HandlerFunc
	ApproveQuote http.HandlerFunc
	DeclineQuote http.HandlerFunc

	DispatchJob   http.HandlerFunc
	SendQuote     http.HandlerFunc
	AssignCrew    http.HandlerFunc
	AdvanceJob    http.HandlerFunc
	CompleteJob   http.HandlerFunc
	RecordPayment http.HandlerFunc

	UpsertCrew       http.HandlerFunc
	ListCrews        http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(mw.ClientIdentity)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/urgency-levels", orNotImplemented(deps.UrgencyLevelsHandler))

		r.Post("/api/v1/drafts", orNotImplemented(deps.CreateDraft))
		r.Get("/api/v1/drafts/{jobID}", orNotImplemented(deps.GetDraft))
		r.Post("/api/v1/drafts/{jobID}/confirm", orNotImplemented(deps.ConfirmDraft))

		// Client or staff; handlers scope by X-Client-ID
		r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJob))
		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobs))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
		r.Get("/api/v1/jobs/{jobID}/status", orNotImplemented(deps.JobStatus))
		r.Get("/api/v1/jobs/{jobID}/tracking", orNotImplemented(deps.TrackJob))
		r.Get("/api/v1/jobs/{jobID}/payments", orNotImplemented(deps.ListPayments))
		r.Post("/api/v1/jobs/{jobID}/cancel", orNotImplemented(deps.CancelJob))
		r.Post("/api/v1/jobs/{jobID}/rating", orNotImplemented(deps.RateJob))
		r.Post("/api/v1/jobs/{jobID}/quote/approve", orNotImplemented(deps.ApproveQuote))
		r.Post("/api/v1/jobs/{jobID}/quote/decline", orNotImplemented(deps.DeclineQuote))

		// Staff routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeStaff))

			r.Post("/api/v1/jobs/{jobID}/dispatch", orNotImplemented(deps.DispatchJob))
			r.Post("/api/v1/jobs/{jobID}/quote", orNotImplemented(deps.SendQuote))
			r.Post("/api/v1/jobs/{jobID}/assign", orNotImplemented(deps.AssignCrew))
			r.Post("/api/v1/jobs/{jobID}/progress", orNotImplemented(deps.AdvanceJob))
			r.Post("/api/v1/jobs/{jobID}/complete", orNotImplemented(deps.CompleteJob))
			r.Post("/api/v1/jobs/{jobID}/payments", orNotImplemented(deps.RecordPayment))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAdmin))

			r.Post("/api/v1/admin/crews", orNotImplemented(deps.UpsertCrew))
			r.Get("/api/v1/admin/crews", orNotImplemented(deps.ListCrews))

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
