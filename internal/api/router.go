package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/salessupport/salesagent/internal/api/handlers"
	"github.com/salessupport/salesagent/internal/api/middleware"
	"github.com/salessupport/salesagent/internal/hub"
)

// Deps are the collaborators the router exposes over HTTP.
type Deps struct {
	Handlers *handlers.Handlers
	Hub      *hub.Hub
	Auth     *middleware.APIKeyAuth
	// Gatherer serves /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
}

// NewRouter creates the HTTP router with all API routes.
func NewRouter(d Deps) http.Handler {
	h := d.Handlers
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if d.Auth != nil {
		r.Use(d.Auth.Middleware)
	}

	// Health & info
	r.Get("/health", h.Health)
	r.Get("/version", h.VersionInfo)

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// Real-time dashboard streams. Not compressed so frames flush immediately.
	if d.Hub != nil {
		r.Get("/hubs/observability", d.Hub.ServeWS)
		r.Get("/hubs/observability/sse", d.Hub.ServeSSE)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Post("/messages", h.Messages)
		r.Post("/sales-summary", h.SalesSummary)

		r.Route("/observability", func(r chi.Router) {
			r.Get("/metrics", h.Metrics)
			r.Get("/traces", h.Traces)
			r.Get("/agents", h.Agents)
			r.Get("/sessions", h.Sessions)
			r.Get("/sessions/{sessionId}", h.Session)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/history", h.NotificationHistory)
			r.Get("/operation/{operationId}", h.OperationNotifications)
		})

		r.Route("/transcript", func(r chi.Router) {
			r.Get("/conversations", h.Conversations)
			r.Get("/statistics", h.TranscriptStatistics)
			r.Get("/history/{conversationId}", h.ConversationHistory)
			r.Delete("/history/{conversationId}", h.DeleteConversation)
		})
	})

	return r
}
