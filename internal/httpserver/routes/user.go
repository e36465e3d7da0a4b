package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tabula-sync/tabula/internal/httpserver/deps"
	"github.com/tabula-sync/tabula/internal/httpserver/handlers"
)

func init() { Register(registerUser) }

func registerUser(r chi.Router, d deps.Deps) {
	r.Get("/api/user", handlers.GetUser(d))
	r.Put("/api/user", handlers.SetUser(d))
}
