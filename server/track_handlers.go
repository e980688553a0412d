package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"TrackForge/cache"
	"TrackForge/logger"
	"TrackForge/model"

	"github.com/google/uuid"
)

const maxUploadSize = 100 << 20 // 100MB

var allowedAudioTypes = []string{
	"audio/mpeg", "audio/mp3", // MP3
	"audio/wav", "audio/x-wav", // WAV
	"audio/flac", "audio/x-flac", // FLAC
	"audio/aac",  // AAC
	"audio/mp4",  // M4A
	"audio/ogg",  // OGG
}

// UploadTrackHandler accepts an audio file and creates the track record in
// the uploaded state. Metadata stays unknown until the first generation.
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	logger.Info("Handling upload request",
		logger.String("remoteAddr", r.RemoteAddr),
		logger.Int64("contentLength", r.ContentLength))

	if r.ContentLength > maxUploadSize {
		respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Request too large. Maximum size is %d MB", maxUploadSize>>20))
		return
	}

	ownerID, err := ownerIDFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing or invalid X-Owner-ID header")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		logger.Error("Failed to parse upload form", logger.ErrorField(err))
		respondError(w, http.StatusBadRequest, "Failed to parse upload form")
		return
	}

	trackFile, trackHeader, err := r.FormFile("trackFile")
	if err != nil {
		if err == http.ErrMissingFile {
			respondError(w, http.StatusBadRequest, "Missing audio file. Please select a file to upload.")
		} else {
			respondError(w, http.StatusBadRequest, "Failed to process uploaded file.")
		}
		return
	}
	defer trackFile.Close()

	if trackHeader.Size > maxUploadSize {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("File too large. Maximum size is %d MB", maxUploadSize>>20))
		return
	}

	contentType := trackHeader.Header.Get("Content-Type")
	validType := false
	for _, t := range allowedAudioTypes {
		if contentType == t {
			validType = true
			break
		}
	}
	if !validType {
		logger.Warn("Unsupported upload content type",
			logger.String("contentType", contentType),
			logger.String("filename", trackHeader.Filename))
		respondError(w, http.StatusBadRequest, "Invalid file type. Supported formats: MP3, WAV, FLAC, AAC, M4A, OGG.")
		return
	}

	ext := strings.ToLower(filepath.Ext(trackHeader.Filename))
	if ext == "" {
		ext = ".mp3"
	}
	objectPath := "audio/" + uuid.New().String() + ext

	if err := h.blobStore.Upload(r.Context(), objectPath, trackFile, trackHeader.Size, contentType); err != nil {
		logger.Error("Failed to store uploaded audio",
			logger.String("objectPath", objectPath),
			logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to store uploaded audio")
		return
	}

	track := &model.AudioTrack{
		OwnerID:          ownerID,
		OriginalPath:     objectPath,
		OriginalFilename: trackHeader.Filename,
		Format:           model.MetadataUnknown,
		MusicalKey:       model.MetadataUnknown,
		Settings:         model.DefaultMixSettings(),
	}

	trackID, err := h.trackRepo.Create(r.Context(), track)
	if err != nil {
		logger.Error("Failed to create track record", logger.ErrorField(err))
		// Best effort: don't leave an orphaned blob behind.
		if rmErr := h.blobStore.Remove(r.Context(), objectPath); rmErr != nil {
			logger.Warn("Failed to remove orphaned upload",
				logger.String("objectPath", objectPath),
				logger.ErrorField(rmErr))
		}
		respondError(w, http.StatusInternalServerError, "Failed to create track entry")
		return
	}

	logger.Info("Track uploaded",
		logger.Int64("trackId", trackID),
		logger.Int64("ownerId", ownerID),
		logger.String("filename", trackHeader.Filename))

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Track uploaded",
		"trackId": trackID,
		"track":   track,
	})
}

// GetTracksHandler lists all tracks for the requesting owner.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing or invalid X-Owner-ID header")
		return
	}

	tracks, err := h.trackRepo.ListByOwner(r.Context(), ownerID)
	if err != nil {
		logger.Error("Failed to list tracks",
			logger.Int64("ownerId", ownerID),
			logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to retrieve tracks")
		return
	}

	respondJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler returns one track record.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := trackIDFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	track, err := h.trackRepo.GetByID(r.Context(), trackID)
	if err != nil {
		if errors.Is(err, model.ErrTrackNotFound) {
			respondError(w, http.StatusNotFound, "Track not found")
			return
		}
		logger.Error("Failed to get track",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to get track")
		return
	}

	respondJSON(w, http.StatusOK, track)
}

// ClearTracksHandler removes every track and mix version from the store.
func (h *APIHandler) ClearTracksHandler(w http.ResponseWriter, r *http.Request) {
	versionCount, err := h.versionRepo.ClearAll(r.Context())
	if err != nil {
		logger.Error("Failed to clear version ledger", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to clear version ledger")
		return
	}

	trackCount, err := h.trackRepo.ClearAll(r.Context())
	if err != nil {
		logger.Error("Failed to clear tracks", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to clear tracks")
		return
	}

	if err := cache.InvalidateAll(r.Context()); err != nil {
		logger.Warn("Failed to invalidate status cache after clear", logger.ErrorField(err))
	}

	logger.Info("Store cleared",
		logger.Int64("tracks", trackCount),
		logger.Int64("versions", versionCount))

	respondJSON(w, http.StatusOK, map[string]int64{
		"removedTracks":   trackCount,
		"removedVersions": versionCount,
	})
}
