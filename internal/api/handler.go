package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rajasatyajit/ResumeCore/internal/deliveries"
	"github.com/rajasatyajit/ResumeCore/internal/dispatch"
	"github.com/rajasatyajit/ResumeCore/internal/entitlement"
	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/ledger"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
	middlewares "github.com/rajasatyajit/ResumeCore/internal/middleware"
	"github.com/rajasatyajit/ResumeCore/internal/plans"
	"github.com/rajasatyajit/ResumeCore/internal/store"
	"github.com/rajasatyajit/ResumeCore/internal/webhook"
)

// Receiver authenticates and decodes deliveries from one provider
type Receiver interface {
	Source() webhook.Source
	Receive(ctx context.Context, h http.Header, body []byte) (webhook.Envelope, error)
}

// Endpoint pairs a provider's receiver with its dispatch table
type Endpoint struct {
	Receiver   Receiver
	Dispatcher *dispatch.Dispatcher
}

// Deps are the collaborators the handler serves
type Deps struct {
	Store      store.Store
	Ledger     *ledger.Ledger
	Guard      *entitlement.Guard
	Resolver   *plans.Resolver
	Deliveries deliveries.Tracker

	Identity Endpoint
	Billing  Endpoint
	// Stripe is optional; without it the route is not mounted
	Stripe *Endpoint

	AdminSecret  string
	MaxBodyBytes int64
	RateLimiter  *middlewares.RateLimiter

	Version   string
	BuildTime string
	GitCommit string
}

// Endpoints lists the mounted webhook endpoints
func (d Deps) Endpoints() []Endpoint {
	out := []Endpoint{d.Identity, d.Billing}
	if d.Stripe != nil {
		out = append(out, *d.Stripe)
	}
	return out
}

// Handler handles HTTP requests for the API
type Handler struct {
	Deps
	startTime time.Time
}

// NewHandler creates a new API handler
func NewHandler(d Deps) *Handler {
	if d.Deliveries == nil {
		d.Deliveries = deliveries.NewMemoryTracker(0, 0)
	}
	if d.RateLimiter == nil {
		d.RateLimiter = middlewares.NewRateLimiter(0, 0)
	}
	return &Handler{Deps: d, startTime: time.Now()}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.healthHandler)
		r.Get("/health/ready", h.readinessHandler)
		r.Get("/health/live", h.livenessHandler)
		r.Get("/version", h.versionHandler)
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(h.RateLimiter.Middleware)
		r.Use(middlewares.MaxBody(h.MaxBodyBytes))
		r.Post("/identity/users", h.webhookHandler(h.Identity))
		r.Post("/billing/events", h.webhookHandler(h.Billing))
		if h.Stripe != nil {
			r.Post("/billing/stripe", h.webhookHandler(*h.Stripe))
		}
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(middlewares.AdminSecret(h.AdminSecret))
		r.Get("/users/{externalID}", h.adminGetUser)
		r.Get("/users/{externalID}/transactions", h.adminListTransactions)
		r.Get("/users/{externalID}/entitlements", h.adminEntitlements)
		r.Post("/users/{externalID}/grants", h.adminGrant)
		r.Put("/users/{externalID}/ai", h.adminSetAI)
		r.Get("/plans/{productID}", h.adminResolvePlan)
	})

	r.Get("/health", h.healthHandler)
}

// healthHandler provides basic health check
func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   h.Version,
	})
}

// readinessHandler checks if the application is ready to serve traffic
func (h *Handler) readinessHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "ok"}
	statusCode, status := http.StatusOK, "ready"
	if err := h.Store.Health(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		statusCode, status = http.StatusServiceUnavailable, apperrors.ErrServiceUnavailable.Error()
	}
	h.writeJSONResponse(w, statusCode, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// livenessHandler checks if the application is alive
func (h *Handler) livenessHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
	})
}

func (h *Handler) versionHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"version":    h.Version,
		"build_time": h.BuildTime,
		"git_commit": h.GitCommit,
	})
}

// writeJSONResponse writes a JSON response
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse writes a standardized error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeDomainError maps typed errors onto status codes
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve apperrors.ValidationError
	var me apperrors.MultiError
	var ic apperrors.InsufficientCreditsError
	var ai apperrors.InvalidAIConfigError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeErrorResponse(w, r, http.StatusNotFound, "user not found")
	case errors.As(err, &ve), errors.As(err, &me), errors.Is(err, apperrors.ErrInvalidInput):
		h.writeErrorResponse(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &ai):
		h.writeErrorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &ic):
		h.writeErrorResponse(w, r, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		h.writeErrorResponse(w, r, http.StatusConflict, "conflict")
	default:
		logger.WithContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
