package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"TrackForge/config"
	"TrackForge/core/mix"
	"TrackForge/logger"
	"TrackForge/repository"
	"TrackForge/storage"

	"github.com/gorilla/mux"
)

// APIHandler handles all API requests.
type APIHandler struct {
	trackRepo   repository.TrackRepository
	versionRepo repository.VersionRepository
	coordinator *mix.Coordinator
	blobStore   storage.BlobStore
	hub         *mix.EventHub
	cfg         *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	versionRepo repository.VersionRepository,
	coordinator *mix.Coordinator,
	blobStore storage.BlobStore,
	hub *mix.EventHub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo:   trackRepo,
		versionRepo: versionRepo,
		coordinator: coordinator,
		blobStore:   blobStore,
		hub:         hub,
		cfg:         cfg,
	}
}

// RegisterRoutes registers all API routes.
func (h *APIHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/upload", h.UploadTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks", h.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", h.ClearTracksHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/tracks/{id}", h.GetTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/extend", h.SubmitHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/status", h.StatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/versions", h.ListVersionsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/versions/{index}", h.GetVersionHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/events", h.EventsHandler).Methods(http.MethodGet)
}

// ownerIDFromRequest reads the opaque owner reference. No auth semantics,
// equality filtering only.
func ownerIDFromRequest(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-Owner-ID")
	if raw == "" {
		raw = r.URL.Query().Get("ownerId")
	}
	return strconv.ParseInt(raw, 10, 64)
}

// trackIDFromRequest parses the {id} route variable.
func trackIDFromRequest(r *http.Request) (int64, error) {
	vars := mux.Vars(r)
	return strconv.ParseInt(vars["id"], 10, 64)
}

// respondJSON writes a JSON body with the given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("Failed to encode response", logger.ErrorField(err))
		}
	}
}

// respondError writes a JSON error body.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
