package handlers

import (
	"net/http"

	"github.com/tabula-sync/tabula/internal/httpserver/deps"
)

// Status reports the sync subsystem: connectivity booleans, pending queue
// depth, last sync time and the configured endpoint.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Favorites.Status())
	}
}
