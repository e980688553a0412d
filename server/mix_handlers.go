package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"TrackForge/cache"
	"TrackForge/logger"
	"TrackForge/model"

	"github.com/gorilla/mux"
)

// submitResponse is the body of the submit surface: accepted plus an
// optional machine-readable rejection reason.
type submitResponse struct {
	Accepted bool   `json:"accepted"`
	TrackID  int64  `json:"trackId"`
	Reason   string `json:"reason,omitempty"`
}

// SubmitHandler requests a new extended-mix generation. The generation runs
// asynchronously; the caller observes the outcome through the status poll.
func (h *APIHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := trackIDFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	settings := model.DefaultMixSettings()
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil && err != io.EOF {
			respondError(w, http.StatusBadRequest, "Invalid settings payload")
			return
		}
	}
	if err := settings.Normalize(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.coordinator.Submit(r.Context(), trackID, settings)
	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, submitResponse{Accepted: true, TrackID: trackID})
	case errors.Is(err, model.ErrTrackNotFound):
		respondError(w, http.StatusNotFound, "Track not found")
	case errors.Is(err, model.ErrAlreadyProcessing):
		respondJSON(w, http.StatusConflict, submitResponse{
			Accepted: false, TrackID: trackID, Reason: "alreadyProcessing",
		})
	case errors.Is(err, model.ErrCapacityExceeded):
		respondJSON(w, http.StatusConflict, submitResponse{
			Accepted: false, TrackID: trackID, Reason: "capacityExceeded",
		})
	default:
		logger.Error("Submit failed",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to submit generation")
	}
}

// statusResponse is one poll observation.
type statusResponse struct {
	TrackID      int64             `json:"trackId"`
	Status       model.TrackStatus `json:"status"`
	VersionCount int               `json:"versionCount"`
}

// StatusHandler is the poll surface: a pure read of track store and version
// ledger. Safe to call arbitrarily often and arbitrarily late; the response
// always reflects current truth.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := trackIDFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	if entry, err := cache.GetStatus(r.Context(), trackID); err == nil && entry != nil {
		respondJSON(w, http.StatusOK, statusResponse{
			TrackID:      trackID,
			Status:       entry.Status,
			VersionCount: entry.VersionCount,
		})
		return
	} else if err != nil {
		logger.Warn("Status cache read failed",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}

	track, err := h.trackRepo.GetByID(r.Context(), trackID)
	if err != nil {
		if errors.Is(err, model.ErrTrackNotFound) {
			respondError(w, http.StatusNotFound, "Track not found")
			return
		}
		logger.Error("Failed to read track status",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to read track status")
		return
	}

	count, err := h.versionRepo.CountByTrack(r.Context(), trackID)
	if err != nil {
		logger.Error("Failed to count versions",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to read track status")
		return
	}

	if err := cache.FillStatus(r.Context(), trackID, cache.StatusEntry{
		Status:       track.Status,
		VersionCount: count,
	}); err != nil {
		logger.Warn("Status cache write failed",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}

	respondJSON(w, http.StatusOK, statusResponse{
		TrackID:      trackID,
		Status:       track.Status,
		VersionCount: count,
	})
}

// ListVersionsHandler returns the full mix history of a track, oldest first.
func (h *APIHandler) ListVersionsHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := trackIDFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	if _, err := h.trackRepo.GetByID(r.Context(), trackID); err != nil {
		if errors.Is(err, model.ErrTrackNotFound) {
			respondError(w, http.StatusNotFound, "Track not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to get track")
		return
	}

	versions, err := h.versionRepo.List(r.Context(), trackID)
	if err != nil {
		logger.Error("Failed to list versions",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to list versions")
		return
	}

	respondJSON(w, http.StatusOK, versions)
}

// GetVersionHandler returns the mix version at one index.
func (h *APIHandler) GetVersionHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := trackIDFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	vars := mux.Vars(r)
	idx, err := strconv.Atoi(vars["index"])
	if err != nil || idx < 0 {
		respondError(w, http.StatusBadRequest, "Invalid version index")
		return
	}

	version, err := h.versionRepo.Get(r.Context(), trackID, idx)
	if err != nil {
		if errors.Is(err, model.ErrVersionNotFound) {
			respondError(w, http.StatusNotFound, "Mix version not found")
			return
		}
		logger.Error("Failed to get version",
			logger.Int64("trackId", trackID),
			logger.Int("index", idx),
			logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to get version")
		return
	}

	respondJSON(w, http.StatusOK, version)
}
