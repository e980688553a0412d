package engine

import (
	"context"

	"TrackForge/model"
)

// Result is what a successful generation reports back. The descriptive
// metadata fields are optional; zero values mean the engine did not report
// them for this run.
type Result struct {
	ArtifactPath    string  // local path of the generated mix
	DurationSeconds float64 // duration of the generated mix
	BPM             int
	MusicalKey      string
	Format          string
	Bitrate         int
}

// Engine is the external audio collaborator: given a source file and
// settings it produces an extended mix plus derived metadata. It may run
// arbitrarily long; callers must not hold locks across Generate.
type Engine interface {
	Generate(ctx context.Context, sourcePath, outputPath string, settings model.MixSettings) (*Result, error)
}
