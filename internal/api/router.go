package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/goodpapers/goodpapers/internal/api/handlers"
	"github.com/goodpapers/goodpapers/internal/ingest"
	"github.com/goodpapers/goodpapers/internal/storage"
)

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(store *storage.Store, service *ingest.Service) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(RequestLogger)
	r.Use(Recovery)
	r.Use(CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", handlers.Health(store))

		api.Route("/papers", func(papers chi.Router) {
			papers.Get("/", handlers.GetPapers(store))
			papers.Post("/", handlers.CreatePaper(service))
			papers.Post("/fetch-arxiv", handlers.FetchArxiv(service))
			papers.Post("/import-url", handlers.ImportFromURL(service))
			papers.Get("/reading/current", handlers.GetCurrentlyReading(store))
			papers.Get("/slug/{slug}", handlers.GetPaperBySlug(store))
			papers.Get("/{id}", handlers.GetPaper(store))
			papers.Patch("/{id}/reading-status", handlers.UpdateReadingStatus(service))
			papers.Delete("/{id}", handlers.DeletePaper(store))
		})

		api.Get("/updates", handlers.GetUpdates(store))
	})

	return r
}
