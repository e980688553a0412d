package mix

import (
	"sync"

	"TrackForge/logger"
	"TrackForge/model"
)

// StatusEvent mirrors one poll response: a state transition a poller could
// also observe by reading the track store. The push channel is a convenience
// on top of the poll contract, never a replacement for it.
type StatusEvent struct {
	TrackID      int64             `json:"trackId"`
	Status       model.TrackStatus `json:"status"`
	VersionCount int               `json:"versionCount"`
}

// EventHub fans status transitions out to per-track subscribers. Sends never
// block: a slow subscriber misses events and is expected to fall back to
// polling, which always reflects current truth.
type EventHub struct {
	mu   sync.RWMutex
	subs map[int64]map[chan StatusEvent]struct{}
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[int64]map[chan StatusEvent]struct{})}
}

// Subscribe registers interest in one track's transitions.
func (h *EventHub) Subscribe(trackID int64) chan StatusEvent {
	ch := make(chan StatusEvent, 8)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[trackID] == nil {
		h.subs[trackID] = make(map[chan StatusEvent]struct{})
	}
	h.subs[trackID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *EventHub) Unsubscribe(trackID int64, ch chan StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[trackID]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subs, trackID)
		}
	}
}

// Publish delivers an event to every subscriber of the track.
func (h *EventHub) Publish(event StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[event.TrackID] {
		select {
		case ch <- event:
		default:
			logger.Debug("Dropping status event for slow subscriber",
				logger.Int64("trackId", event.TrackID))
		}
	}
}

// SubscriberCount reports how many subscribers a track has.
func (h *EventHub) SubscriberCount(trackID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[trackID])
}
