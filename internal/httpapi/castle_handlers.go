package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"prosite.org/internal/audit"
	"prosite.org/internal/auth"
	"prosite.org/internal/castle"
	"prosite.org/internal/obs"
)

type castleResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Settings  castle.Settings `json:"settings"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// handleCastle serves /v1/castles/{id}: GET returns the castle, PUT replaces
// its settings. Both require an authenticated tenant owning the castle.
func (a *API) handleCastle(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.RequireVariant(r.Context(), auth.VariantTenant)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/castles/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getCastle(w, r, id, identity)
	case http.MethodPut:
		a.updateCastleSettings(w, r, id, identity)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) getCastle(w http.ResponseWriter, r *http.Request, id string, identity auth.Identity) {
	c, err := a.castles.Get(r.Context(), id, identity.AccountID)
	if err != nil {
		handleCastleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, castleResponse{
		ID:        c.ID,
		Name:      c.Name,
		Settings:  c.Settings,
		UpdatedAt: c.UpdatedAt,
	})
}

func (a *API) updateCastleSettings(w http.ResponseWriter, r *http.Request, id string, identity auth.Identity) {
	var settings castle.Settings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	changes, err := a.castles.UpdateSettings(r.Context(), id, identity.AccountID, settings)
	if err != nil {
		handleCastleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "castle.settings.updated", map[string]any{
		"castle_id":      id,
		"changed_fields": changedFields(changes),
	})
	// The local write has committed; the agent push proceeds independently.
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "castle settings updated",
	})
}

func handleCastleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, castle.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "castle not found")
	case errors.Is(err, castle.ErrInvalidSettings):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		obs.Error("castle operation failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func changedFields(changes []castle.Change) []string {
	fields := make([]string, 0, len(changes))
	for _, c := range changes {
		fields = append(fields, c.Field)
	}
	return fields
}
