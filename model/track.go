package model

import "time"

// TrackStatus is the single authoritative processing state of a track.
// Transitions happen only through the mix coordinator.
type TrackStatus string

const (
	StatusUploaded   TrackStatus = "uploaded"
	StatusProcessing TrackStatus = "processing"
	StatusCompleted  TrackStatus = "completed"
	StatusFailed     TrackStatus = "failed"
)

// Valid reports whether s is one of the four known states.
func (s TrackStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// MetadataUnknown is the placeholder for descriptive fields the audio engine
// has not reported yet.
const MetadataUnknown = "unknown"

// AudioTrack represents one uploaded source file and its derived state.
type AudioTrack struct {
	ID               int64       `json:"id"`
	OwnerID          int64       `json:"ownerId"`
	OriginalPath     string      `json:"-"` // object path of the source audio, not exposed in API directly
	OriginalFilename string      `json:"originalFilename"`
	Format           string      `json:"format"`  // "unknown" until the engine reports it
	Bitrate          int         `json:"bitrate"` // bits per second, 0 until reported
	DurationSeconds  float64     `json:"durationSeconds"`
	BPM              int         `json:"bpm"`
	MusicalKey       string      `json:"musicalKey"`
	Settings         MixSettings `json:"settings"` // last accepted generation parameters
	Status           TrackStatus `json:"status"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// TrackPatch is a partial update of an AudioTrack. Nil fields are left
// untouched. The repository applies the whole patch in one statement so a
// concurrent reader never observes it half-applied.
type TrackPatch struct {
	Format          *string
	Bitrate         *int
	DurationSeconds *float64
	BPM             *int
	MusicalKey      *string
	Settings        *MixSettings
	Status          *TrackStatus
}

// Empty reports whether the patch would change nothing.
func (p *TrackPatch) Empty() bool {
	return p.Format == nil && p.Bitrate == nil && p.DurationSeconds == nil &&
		p.BPM == nil && p.MusicalKey == nil && p.Settings == nil && p.Status == nil
}
