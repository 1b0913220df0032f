package server

import (
	"net/http"

	"github.com/cloo-solutions/draftdesk/internal/api/handlers"
	"github.com/cloo-solutions/draftdesk/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

const defaultMaxBodyBytes int64 = 25 * 1024 * 1024

type RouterConfig struct {
	AuthValidator   middleware.AuthValidator
	HealthHandler   *handlers.HealthHandler
	DocumentHandler *handlers.DocumentHandler
	AnswerHandler   *handlers.AnswerHandler
	DraftHandler    *handlers.DraftHandler
	AuthHandler     *handlers.AuthHandler
	MaxBodyBytes    int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	health := cfg.HealthHandler
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}
	r.Get("/health", health.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Create)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
			r.Get("/{id}/source", cfg.DocumentHandler.SourceURL)
		})

		r.Post("/answers", cfg.AnswerHandler.Ask)

		r.Route("/drafts", func(r chi.Router) {
			r.Post("/", cfg.DraftHandler.Create)
			r.Get("/", cfg.DraftHandler.List)
			r.Get("/{id}", cfg.DraftHandler.Get)
			r.Delete("/{id}", cfg.DraftHandler.Delete)
		})

		r.Route("/apikeys", func(r chi.Router) {
			r.Post("/", cfg.AuthHandler.CreateAPIKey)
			r.Get("/", cfg.AuthHandler.ListAPIKeys)
			r.Delete("/{id}", cfg.AuthHandler.RevokeAPIKey)
		})
	})

	return r
}
