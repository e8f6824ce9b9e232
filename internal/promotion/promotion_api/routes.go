package promotion_api

import (
	"fmt"
	"net/http"
	"time"

	"ms-promotion/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the promotion API. authMiddleware guards every route that needs a payer.
func NewRouter(h *Handler, sseHandler *SSEHandler, authMiddleware func(http.Handler) http.Handler, log *logger.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health", h.Health)

	r.Route("/api/promotions", func(r chi.Router) {
		r.Get("/tiers", h.GetTiers)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/checkout", h.Checkout)
			r.Get("/orders/{orderId}", h.GetOrder)
			r.Get("/events/{eventId}/stream", sseHandler.HandleEventStream)
		})
	})

	// Stripe signs its requests; no bearer token here.
	r.Post("/api/payments/stripe/events", h.StripeWebhook)

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprint(ww.Status()), time.Since(start).String())
		})
	}
}
