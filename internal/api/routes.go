package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	// Analysis calls a paid upstream model: burst of 10, then one every 6s.
	analyzeLimiter := NewRateLimiter(10, 6*time.Second)
	// Deletes: burst of 100, then 10 per second.
	deleteLimiter := NewRateLimiter(100, 100*time.Millisecond)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Get("/projects", h.ListProjects)
			r.Post("/projects", h.CreateProject)

			r.Route("/projects/{projectID}", func(r chi.Router) {
				r.Use(ProjectMiddleware(h.store))
				r.Get("/", h.GetProject)
				r.With(deleteLimiter.Middleware).Delete("/", h.DeleteProject)
				r.Post("/screens", h.AddScreen)
				r.With(deleteLimiter.Middleware).Delete("/screens/{screenID}", h.DeleteScreen)
				r.Post("/screens/{screenID}/results", h.SaveResult)
				r.Get("/screens/{screenID}/results/latest", h.LatestResult)
				r.Get("/screens/{screenID}/results/latest/export.csv", h.ExportLatestCSV)
			})

			r.Post("/uploads", h.Upload)
			r.Get("/uploads/{ref}/url", h.UploadURL)
			r.With(analyzeLimiter.Middleware).Post("/analyze", h.Analyze)
		})
	})

	return r
}
