package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tabula-sync/tabula/internal/httpserver/deps"
	"github.com/tabula-sync/tabula/internal/store"
)

// Each setting belongs to one of the two storage scopes: theme and
// per-tab metadata describe this installation, language follows the
// user across installations.
var settingScopes = map[string]struct {
	key   string
	local bool
}{
	"theme":       {store.KeyTheme, true},
	"tabMetadata": {store.KeyTabMetadata, true},
	"language":    {store.KeyLanguage, false},
}

func settingStore(d deps.Deps, r *http.Request) (store.KV, string, bool) {
	s, ok := settingScopes[chi.URLParam(r, "key")]
	if !ok {
		return nil, "", false
	}
	if s.local {
		return d.Local, s.key, true
	}
	return d.Synced, s.key, true
}

// GetSetting returns the raw stored value for a setting.
func GetSetting(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kv, key, ok := settingStore(d, r)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown setting")
			return
		}

		var v json.RawMessage
		err := kv.Get(r.Context(), key, &v)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "setting not set")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(v)
	}
}

// SetSetting stores an arbitrary JSON value under a setting.
func SetSetting(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kv, key, ok := settingStore(d, r)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown setting")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil || !json.Valid(body) {
			writeError(w, http.StatusBadRequest, "body must be valid JSON")
			return
		}

		if err := kv.Set(r.Context(), key, json.RawMessage(body)); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
