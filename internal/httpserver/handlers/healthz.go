package handlers

import (
	"net/http"
	"time"

	"github.com/tabula-sync/tabula/internal/httpserver/deps"
)

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version,omitempty"`
	Commit        string  `json:"commit,omitempty"`
	BuildDate     string  `json:"build_date,omitempty"`
	GoVersion     string  `json:"go_version,omitempty"`
}

func Healthz(d deps.Deps) http.HandlerFunc {
	start := d.StartTime
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, healthzResponse{
			Status:        "ok",
			Version:       d.Version,
			Commit:        d.Commit,
			BuildDate:     d.BuildDate,
			GoVersion:     d.GoVersion,
			UptimeSeconds: time.Since(start).Seconds(),
		})
	}
}

type readyzResponse struct {
	Ready     bool `json:"ready"`
	Online    bool `json:"isOnline"`
	Connected bool `json:"isConnected"`
}

// Readyz reports whether the daemon can currently reach the store. The
// daemon stays useful offline, so "not ready" only means sync is degraded.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := d.Prober.Status()
		writeJSON(w, http.StatusOK, readyzResponse{
			Ready:     st.Connected,
			Online:    st.Online,
			Connected: st.Connected,
		})
	}
}
