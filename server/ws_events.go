package server

import (
	"errors"
	"net/http"
	"time"

	"TrackForge/core/mix"
	"TrackForge/logger"
	"TrackForge/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventsHandler streams status transitions for one track over a websocket.
// The stream is a convenience on top of the poll contract: the first frame
// is the current state, so a late subscriber still sees the truth, and a
// dropped connection loses nothing that a poll can't recover.
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
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
		respondError(w, http.StatusInternalServerError, "Failed to get track")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Websocket upgrade failed",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		return
	}
	defer conn.Close()

	events := h.hub.Subscribe(trackID)
	defer h.hub.Unsubscribe(trackID, events)

	count, err := h.versionRepo.CountByTrack(r.Context(), trackID)
	if err != nil {
		count = 0
	}

	// Snapshot frame first.
	if err := conn.WriteJSON(mix.StatusEvent{
		TrackID:      trackID,
		Status:       track.Status,
		VersionCount: count,
	}); err != nil {
		return
	}

	// Reader goroutine: we never expect client frames, but reading is how
	// the close handshake is noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug("Websocket write failed, dropping subscriber",
					logger.Int64("trackId", trackID),
					logger.ErrorField(err))
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
