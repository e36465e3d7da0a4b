package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tabula-sync/tabula/internal/httpserver/deps"
	"github.com/tabula-sync/tabula/internal/httpserver/handlers"
)

func init() { Register(registerEvents) }

func registerEvents(r chi.Router, d deps.Deps) {
	r.Post("/api/events/online", handlers.OnlineEvent(d))
	r.Post("/api/events/offline", handlers.OfflineEvent(d))
}
