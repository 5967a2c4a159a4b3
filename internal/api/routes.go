package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the HTTP surface: health probes, provider
// webhooks, and the operational /api group.
func SetupRoutes(h *Handlers, hc *HealthChecker) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health checks (no auth required)
	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)

	// Provider webhooks are open at the HTTP layer; payload signatures
	// are verified inside the pipeline.
	r.Post("/webhooks/{provider}", h.HandleProviderWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Route("/queue", func(r chi.Router) {
			r.Get("/stats", h.QueueStats)
			r.Post("/emails", h.EnqueueEmail)
			r.Get("/emails/{id}", h.GetQueueEntry)
			r.Post("/process", h.ProcessPending)
			r.Post("/process-retries", h.ProcessRetries)
			r.Post("/bounce-retry", h.BounceRetry)
		})

		r.Route("/breaker", func(r chi.Router) {
			r.Get("/", h.BreakerStatus)
			r.Post("/reset", h.ResetBreaker)
		})

		r.Route("/leads", func(r chi.Router) {
			r.Post("/", h.RegisterLead)
			r.Post("/status/batch", h.UpdateLeadStatusBatch)
			r.Get("/{id}", h.GetLead)
			r.Post("/{id}/status", h.UpdateLeadStatus)
			r.Get("/{id}/history", h.LeadHistory)
		})

		r.Get("/campaigns/{id}/metrics", h.CampaignMetrics)
	})

	return r
}
