package handlers

import (
	"net/http"

	"github.com/tabula-sync/tabula/internal/httpserver/deps"
)

// OnlineEvent handles the browser's "online" transition: schedule an
// immediate probe and queue-drain attempt.
func OnlineEvent(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Monitor.NotifyOnline()
		w.WriteHeader(http.StatusAccepted)
	}
}

// OfflineEvent deliberately changes nothing. The browser's offline signal
// is unreliable; only a failed probe moves the connectivity state.
func OfflineEvent(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Logger.Debug("browser reports offline, ignoring")
		w.WriteHeader(http.StatusAccepted)
	}
}
