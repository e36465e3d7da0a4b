package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tabula-sync/tabula/internal/httpserver/deps"
	"github.com/tabula-sync/tabula/internal/httpserver/handlers"
)

func init() { Register(registerStatus) }

func registerStatus(r chi.Router, d deps.Deps) {
	r.Get("/api/status", handlers.Status(d))
	r.Get("/healthz", handlers.Healthz(d))
	r.Get("/readyz", handlers.Readyz(d))
}
