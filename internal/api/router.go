/**
 * @description
 * HTTP router setup using go-chi/chi. Defines the webhook intake routes and
 * the internally-authenticated admin surface.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new Chi router and registers all routes.
func NewRouter(h *Handler, internalAPIKey string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Billing webhook service is healthy"))
	})

	// Webhook intake. Authenticity is enforced per-endpoint via HMAC
	// signatures, not middleware, because each source has its own secret.
	r.Post("/webhooks/order", h.HandleOrderWebhook)
	r.Post("/webhooks/booking", h.HandleBookingWebhook)

	// Operational endpoints for server-to-server and operator use.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/admin/usage-billing/run", h.HandleUsageRun)
		r.Get("/admin/failed-webhooks", h.HandleListFailures)
		r.Post("/admin/failed-webhooks/{id}/retry", h.HandleRetryFailure)
	})

	return r
}
