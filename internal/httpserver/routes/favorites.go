package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tabula-sync/tabula/internal/httpserver/deps"
	"github.com/tabula-sync/tabula/internal/httpserver/handlers"
)

func init() { Register(registerFavorites) }

func registerFavorites(r chi.Router, d deps.Deps) {
	r.Route("/api/favorites", func(r chi.Router) {
		r.Get("/", handlers.ListFavorites(d))
		r.Post("/", handlers.AddFavorite(d))
		r.Get("/find", handlers.FindFavorite(d))
		r.Put("/{id}", handlers.UpdateFavorite(d))
		r.Delete("/{id}", handlers.DeleteFavorite(d))
	})
	r.Post("/api/sync", handlers.SyncFavorites(d))
}
