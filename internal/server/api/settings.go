package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/handwheel/internal/store"
)

// Validator checks a full set of overrides before it is persisted.
type Validator func(settings map[string]string) error

// SettingsHandler serves the tuning overrides. Changes take effect on the next start.
//
//	GET    /api/settings        list overrides
//	PUT    /api/settings        merge {"key": "value", ...} into the overrides
//	DELETE /api/settings/{key}  drop one override
type SettingsHandler struct {
	store    *store.Store
	validate Validator
}

// NewSettingsHandler creates a SettingsHandler. A nil validate accepts everything.
func NewSettingsHandler(s *store.Store, validate Validator) *SettingsHandler {
	return &SettingsHandler{store: s, validate: validate}
}

type listSettingsResponse struct {
	Settings []store.Setting `json:"settings"`
}

func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/settings"), "/")

	if key == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPut:
			h.update(w, r)
		default:
			WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if r.Method != http.MethodDelete {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	h.delete(w, r, key)
}

func (h *SettingsHandler) list(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Settings().List()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list settings")
		return
	}
	if settings == nil {
		settings = []store.Setting{}
	}
	WriteJSON(w, http.StatusOK, listSettingsResponse{Settings: settings})
}

func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req) == 0 {
		WriteError(w, http.StatusBadRequest, "No settings given")
		return
	}

	current, err := h.store.Settings().All()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to read settings")
		return
	}
	for k, v := range req {
		current[k] = v
	}

	if h.validate != nil {
		if err := h.validate(current); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.store.Settings().SetAll(req); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	h.list(w, r)
}

func (h *SettingsHandler) delete(w http.ResponseWriter, r *http.Request, key string) {
	if err := h.store.Settings().Delete(key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Setting not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to delete setting")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
