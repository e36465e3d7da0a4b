package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tabula-sync/tabula/internal/couch"
	"github.com/tabula-sync/tabula/internal/domain"
	"github.com/tabula-sync/tabula/internal/httpserver/deps"
)

// ListFavorites returns the locally cached collection; it never blocks on
// the network.
func ListFavorites(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		favs := d.Favorites.Cached(r.Context())
		if favs == nil {
			favs = []domain.Favorite{}
		}
		writeJSON(w, http.StatusOK, favs)
	}
}

func AddFavorite(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fav domain.Favorite
		if err := json.NewDecoder(r.Body).Decode(&fav); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		created, err := d.Favorites.Add(r.Context(), fav)
		if err != nil {
			if domain.IsValidation(err) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			// The mutation is queued for replay; surface the failure anyway.
			writeQueuedError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

type updateRequest struct {
	Updates   domain.FavoriteUpdate `json:"updates"`
	CachedRev string                `json:"cachedRev,omitempty"`
	CachedDoc couch.Document        `json:"cachedDoc,omitempty"`
}

func UpdateFavorite(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := d.Favorites.Update(r.Context(), id, req.Updates, req.CachedRev, req.CachedDoc)
		if err != nil {
			if domain.IsValidation(err) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeQueuedError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func DeleteFavorite(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, err := d.Favorites.Delete(r.Context(), id)
		if err != nil {
			writeQueuedError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func FindFavorite(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := strings.TrimSpace(r.URL.Query().Get("url"))
		if url == "" {
			writeError(w, http.StatusBadRequest, "missing url parameter")
			return
		}

		fav, ok := d.Favorites.FindByURL(r.Context(), url)
		if !ok {
			writeError(w, http.StatusNotFound, "favorite not found")
			return
		}
		writeJSON(w, http.StatusOK, fav)
	}
}

type syncResponse struct {
	Synced    bool              `json:"synced"`
	Favorites []domain.Favorite `json:"favorites"`
}

// SyncFavorites runs a full reconciliation pass. When the store is
// unreachable the caller's list comes back unchanged with synced=false; the
// UI keeps operating on its local state.
func SyncFavorites(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var local []domain.Favorite
		if err := json.NewDecoder(r.Body).Decode(&local); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		// A user-invoked sync also flushes the pending queue, so queued
		// mutations land before the collections are reconciled.
		d.Favorites.Drain(r.Context())

		synced, err := d.Favorites.Sync(r.Context(), local)
		if err != nil {
			writeJSON(w, http.StatusOK, syncResponse{Synced: false, Favorites: local})
			return
		}
		writeJSON(w, http.StatusOK, syncResponse{Synced: true, Favorites: synced})
	}
}
