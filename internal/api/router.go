/**
 * @description
 * This file sets up the HTTP router for the payment settlement core. It
 * defines the API endpoints, associates them with their handlers, and applies
 * middleware. The webhook endpoint is intentionally outside the
 * authenticated group; its security comes from signature verification.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PaymentRoutes creates and returns the router for the settlement core.
func PaymentRoutes(h *PaymentHandlers, webhook *WebhookHandler, jwksURL, issuer, audience string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Gateway deliveries authenticate via payload signature, not bearer tokens.
	r.Post("/webhook", webhook.ServeHTTP)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL, issuer, audience))

		r.Post("/connect/accounts", h.CreateAccountHandler)
		r.Post("/connect/onboarding-link", h.OnboardingLinkHandler)
		r.Post("/intents", h.CreateChargeHandler)
	})

	return r
}
