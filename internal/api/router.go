package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ndewijer/brokerage-sync/internal/api/handlers"
	custommiddleware "github.com/ndewijer/brokerage-sync/internal/api/middleware"
	"github.com/ndewijer/brokerage-sync/internal/config"
	"github.com/ndewijer/brokerage-sync/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	systemService *service.SystemService,
	syncService *service.SyncService,
	coordinator *service.Coordinator,
	cfg *config.Config,
	log zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(log))
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Route("/sync", func(r chi.Router) {
			syncHandler := handlers.NewSyncHandler(syncService, coordinator)
			r.Get("/latest", syncHandler.Latest)
			r.Get("/history", syncHandler.History)
			r.With(custommiddleware.APIKeyMiddleware(cfg.Server.APIKey)).Post("/", syncHandler.Trigger)

			r.Route("/{uuid}", func(r chi.Router) {
				r.Use(custommiddleware.ValidateUUIDMiddleware)
				r.Get("/", syncHandler.Run)
			})
		})
	})

	return r
}
