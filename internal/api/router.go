package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/wecom-relay/internal/dlq"
	"github.com/sungwon/wecom-relay/internal/history"
	"github.com/sungwon/wecom-relay/internal/relay"
)

// NewRouter creates a chi.Mux with all routes, middleware, and handlers
// configured. dlqStore and historyStore may be nil-valued; their endpoints
// then serve empty results.
func NewRouter(
	pipeline *relay.Pipeline,
	dlqStore *dlq.Store,
	historyStore *history.Store,
	log zerolog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	// Health and metrics endpoints
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(historyStore))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Inbound events from the source-platform gateway collector
		r.Post("/events", EventsHandler(pipeline.Ingestor))

		// Operator surface
		r.Get("/dlq", DLQListHandler(dlqStore))
		r.Post("/dlq/reprocess", DLQReprocessHandler(dlqStore, pipeline))
		r.Get("/deliveries", DeliveriesHandler(historyStore))
	})

	return r
}
