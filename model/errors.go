package model

import "errors"

// Sentinel errors shared across the repository, coordinator and HTTP layers.
// Handlers pick response codes with errors.Is; nothing here is swallowed on
// the way up.
var (
	// ErrTrackNotFound means the track id is unknown. Not retryable.
	ErrTrackNotFound = errors.New("track not found")

	// ErrVersionNotFound means no mix version exists at the requested index.
	ErrVersionNotFound = errors.New("mix version not found")

	// ErrAlreadyProcessing means a generation is already in flight for the
	// track. The caller may retry after the current run finishes.
	ErrAlreadyProcessing = errors.New("generation already in progress")

	// ErrCapacityExceeded means the track already holds MaxVersions mixes.
	// Permanent until versions can be deleted; user-actionable, not transient.
	ErrCapacityExceeded = errors.New("version capacity exceeded")

	// ErrEngineFailure wraps an audio engine error. The track is marked
	// failed and never retried automatically; a new Submit retries.
	ErrEngineFailure = errors.New("audio engine failure")

	// ErrStoreUnavailable wraps an I/O failure of the underlying store.
	// Fatal to the current operation; the prior record stays intact.
	ErrStoreUnavailable = errors.New("store unavailable")
)
