package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tabula-sync/tabula/internal/domain"
	"github.com/tabula-sync/tabula/internal/httpserver/deps"
)

type userResponse struct {
	UserID string `json:"userId"`
}

type setUserRequest struct {
	UserID string `json:"userId"`
}

type setUserResponse struct {
	Changed bool `json:"changed"`
}

// GetUser returns the stored identity, generating one on first use.
func GetUser(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := d.Identity.GetUserID(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, userResponse{UserID: id})
	}
}

// SetUser replaces the identity. Changing it does not resync by itself;
// the UI issues its own sync call afterwards.
func SetUser(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		changed, err := d.Identity.SetUserID(r.Context(), req.UserID)
		if err != nil {
			if domain.IsValidation(err) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, setUserResponse{Changed: changed})
	}
}
