package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tabula-sync/tabula/internal/httpserver/deps"
	"github.com/tabula-sync/tabula/internal/httpserver/handlers"
)

func init() { Register(registerSettings) }

func registerSettings(r chi.Router, d deps.Deps) {
	r.Get("/api/settings/{key}", handlers.GetSetting(d))
	r.Put("/api/settings/{key}", handlers.SetSetting(d))
}
