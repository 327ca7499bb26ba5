package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/bodymorph/bodymorph/internal/database"
	"github.com/bodymorph/bodymorph/internal/web/handlers"
)

func (s *Server) setupRoutes(reader database.MeasurementReader, searcher database.SimilaritySearcher) {
	sessionsHandler := handlers.NewSessionsHandler(s.pipeline)
	measurementsHandler := handlers.NewMeasurementsHandler(s.pipeline, reader, searcher)
	planHandler := handlers.NewPlanHandler(s.pipeline.Plan, s.pipeline.Mesh)
	statsHandler := handlers.NewStatsHandler()

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Capture sessions
		r.Post("/sessions", sessionsHandler.Start)
		r.Get("/sessions/{id}", sessionsHandler.Get)
		r.Post("/sessions/{id}/frames", sessionsHandler.AddFrame)
		r.Post("/sessions/{id}/finish", sessionsHandler.Finish)
		r.Post("/sessions/{id}/accept", sessionsHandler.Accept)
		r.Post("/sessions/{id}/reject", sessionsHandler.Reject)
		r.Post("/sessions/{id}/abandon", sessionsHandler.Abandon)
		r.Get("/sessions/{id}/events", sessionsHandler.Events)

		// Accepted measurements
		r.Get("/users/{uid}/measurements", measurementsHandler.ListByUser)
		r.Get("/measurements/{id}", measurementsHandler.Get)
		r.Get("/measurements/{id}/mesh", measurementsHandler.Mesh)
		r.Post("/measurements/similar", measurementsHandler.FindSimilar)

		// Configuration and operations
		r.Get("/plan", planHandler.Get)
		r.Get("/stats", statsHandler.Get)
		r.Post("/stats/rebuild-index", statsHandler.RebuildIndex)
	})
}
