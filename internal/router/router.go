package router

import (
	"greencart-sync-api/internal/handler"
	"greencart-sync-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler         *handler.Handler
	GoalHandler     *handler.GoalHandler
	SyncHandler     *handler.SyncHandler
	ProgressHandler *handler.ProgressHandler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Unified status for monitoring
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
		}

		if cfg.GoalHandler != nil {
			r.Route("/goals", func(r chi.Router) {
				r.Get("/", cfg.GoalHandler.List)
				r.Post("/", cfg.GoalHandler.Create)
				r.Put("/{id}", cfg.GoalHandler.Update)
				r.Delete("/{id}", cfg.GoalHandler.Delete)
				if cfg.ProgressHandler != nil {
					r.Get("/{id}/progress", cfg.ProgressHandler.GoalProgress)
				}
			})
		}

		if cfg.ProgressHandler != nil {
			r.Route("/progress", func(r chi.Router) {
				r.Put("/history", cfg.ProgressHandler.SetHistory)
				r.Post("/batch", cfg.ProgressHandler.Batch)
			})
		}

		if cfg.SyncHandler != nil {
			r.Route("/sync", func(r chi.Router) {
				r.Post("/", cfg.SyncHandler.TriggerSync)
				r.Get("/status", cfg.SyncHandler.Status)
				r.Get("/debug", cfg.SyncHandler.Debug)
			})
			r.Post("/lifecycle/foreground", cfg.SyncHandler.Foreground)
		}
	})

	return r
}
