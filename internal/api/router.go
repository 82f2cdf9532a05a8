/**
 * @description
 * HTTP router for the checkout-service using go-chi. Applies logging,
 * recovery, timeout and CORS middleware, and groups the session routes
 * behind bearer-token authentication. The webhook endpoint stays outside
 * the auth group; it is authenticated by its HMAC signature instead.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the Chi router and registers the checkout routes.
func NewRouter(h *Handler, webhooks *WebhookHandler, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Checkout service is healthy"))
	})

	r.Post("/webhooks/billing", webhooks.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/checkout/sessions", h.handleCreateSession)
		r.Get("/checkout/sessions/{sessionID}", h.handleGetSession)
		r.Post("/checkout/sessions/{sessionID}/intents", h.handleDispatch)
		r.Delete("/checkout/sessions/{sessionID}", h.handleDeleteSession)
	})

	return r
}
