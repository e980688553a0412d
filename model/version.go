package model

import "time"

// MaxVersions caps the extended-mix history kept per track. The fifth
// generation attempt is rejected before the engine runs.
const MaxVersions = 4

// MixVersion is one historical extended-mix artifact. Versions are append
// only: indices are 0-based, dense and stable, and an entry is immutable once
// written. Removal happens only through the whole-store clear.
type MixVersion struct {
	ID              int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	TrackID         int64     `json:"trackId" gorm:"index:idx_track_version,unique;not null"`
	Idx             int       `json:"index" gorm:"column:idx;index:idx_track_version,unique;not null"`
	ArtifactPath    string    `json:"artifactPath" gorm:"size:512;not null"`
	SidecarPath     string    `json:"sidecarPath,omitempty" gorm:"size:512"` // shuffle-order metadata, if produced
	DurationSeconds float64   `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TableName keeps the legacy table name.
func (MixVersion) TableName() string {
	return "mix_versions"
}
