package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Beat detection methods understood by the audio engine.
const (
	BeatDetectionAuto    = "auto"
	BeatDetectionLibrosa = "librosa"
	BeatDetectionMadmom  = "madmom"
)

// MixSettings are the tunable parameters of one extended-mix generation.
// A Submit overwrites the track's settings whole, never field by field, and
// the generation itself runs against a snapshot taken at Submit time.
type MixSettings struct {
	IntroLengthBars int    `json:"introLengthBars"`
	OutroLengthBars int    `json:"outroLengthBars"`
	PreserveVocals  bool   `json:"preserveVocals"`
	BeatDetection   string `json:"beatDetection"`
}

// DefaultMixSettings mirrors the engine's own defaults.
func DefaultMixSettings() MixSettings {
	return MixSettings{
		IntroLengthBars: 16,
		OutroLengthBars: 16,
		PreserveVocals:  true,
		BeatDetection:   BeatDetectionAuto,
	}
}

// Normalize fills zero values with defaults and validates the rest.
func (s *MixSettings) Normalize() error {
	if s.IntroLengthBars == 0 {
		s.IntroLengthBars = 16
	}
	if s.OutroLengthBars == 0 {
		s.OutroLengthBars = 16
	}
	if s.BeatDetection == "" {
		s.BeatDetection = BeatDetectionAuto
	}
	if s.IntroLengthBars < 1 || s.IntroLengthBars > 64 {
		return fmt.Errorf("introLengthBars out of range: %d", s.IntroLengthBars)
	}
	if s.OutroLengthBars < 1 || s.OutroLengthBars > 64 {
		return fmt.Errorf("outroLengthBars out of range: %d", s.OutroLengthBars)
	}
	switch s.BeatDetection {
	case BeatDetectionAuto, BeatDetectionLibrosa, BeatDetectionMadmom:
	default:
		return fmt.Errorf("unknown beat detection method: %s", s.BeatDetection)
	}
	return nil
}

// Value implements driver.Valuer so settings persist as a JSON column.
func (s MixSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *MixSettings) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = DefaultMixSettings()
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into MixSettings", src)
	}
}
