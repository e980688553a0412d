package mix

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"TrackForge/cache"
	"TrackForge/core/engine"
	"TrackForge/logger"
	"TrackForge/model"
	"TrackForge/repository"
	"TrackForge/storage"

	"github.com/google/uuid"
)

// Coordinator owns the track state machine. It is the only writer of the
// status field: Submit flips uploaded/completed/failed to processing behind a
// compare-and-set, and the completion path flips processing to its outcome.
// At most one generation is ever in flight per track.
type Coordinator struct {
	tracks   repository.TrackRepository
	versions repository.VersionRepository
	engine   engine.Engine
	store    storage.BlobStore
	hub      *EventHub
	sidecars *SidecarWatcher // nil disables sidecar collection
	workDir  string

	wg sync.WaitGroup
}

// NewCoordinator wires the coordinator to its collaborators.
func NewCoordinator(
	tracks repository.TrackRepository,
	versions repository.VersionRepository,
	eng engine.Engine,
	store storage.BlobStore,
	hub *EventHub,
	sidecars *SidecarWatcher,
	workDir string,
) *Coordinator {
	return &Coordinator{
		tracks:   tracks,
		versions: versions,
		engine:   eng,
		store:    store,
		hub:      hub,
		sidecars: sidecars,
		workDir:  workDir,
	}
}

// Submit requests a new extended-mix generation for a track. On acceptance
// the engine is launched asynchronously and Submit returns immediately; the
// outcome is written back to the store and ledger exactly once.
//
// Rejections: model.ErrTrackNotFound, model.ErrCapacityExceeded (checked
// before the engine is invoked), model.ErrAlreadyProcessing.
func (c *Coordinator) Submit(ctx context.Context, trackID int64, settings model.MixSettings) error {
	if err := settings.Normalize(); err != nil {
		return err
	}

	track, err := c.tracks.GetByID(ctx, trackID)
	if err != nil {
		return err
	}

	count, err := c.versions.CountByTrack(ctx, trackID)
	if err != nil {
		return err
	}
	if count >= model.MaxVersions {
		return model.ErrCapacityExceeded
	}

	// The guard: status check and flip to processing in one indivisible
	// operation, with the settings snapshot stored alongside.
	won, err := c.tracks.CompareAndSetProcessing(ctx, trackID, settings)
	if err != nil {
		return err
	}
	if !won {
		return model.ErrAlreadyProcessing
	}

	logger.Info("Generation accepted",
		logger.Int64("trackId", trackID),
		logger.Int("existingVersions", count),
		logger.Int("introBars", settings.IntroLengthBars))

	c.notify(trackID, model.StatusProcessing, count)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// The generation outlives the submitting request.
		c.run(context.Background(), track, settings, count)
	}()

	return nil
}

// Wait blocks until every in-flight generation has committed its outcome.
// Used on shutdown; generations are never cancelled mid-run.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// run drives one generation to its terminal state. It holds no locks: the
// processing status on the row is the per-track mutual exclusion.
func (c *Coordinator) run(ctx context.Context, track *model.AudioTrack, settings model.MixSettings, priorCount int) {
	runDir := filepath.Join(c.workDir, fmt.Sprintf("mix-%d-%s", track.ID, uuid.New().String()))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		c.fail(ctx, track.ID, fmt.Errorf("failed to create engine workdir: %w", err))
		return
	}
	defer os.RemoveAll(runDir)

	ext := filepath.Ext(track.OriginalFilename)
	if ext == "" {
		ext = ".mp3"
	}

	sourcePath := filepath.Join(runDir, "source"+ext)
	if err := c.store.Download(ctx, track.OriginalPath, sourcePath); err != nil {
		c.fail(ctx, track.ID, fmt.Errorf("failed to fetch source audio: %w", err))
		return
	}

	// The _v<N> suffix seeds the engine's per-version stem shuffle, so two
	// generations of the same track don't produce identical intros.
	outputPath := filepath.Join(runDir, fmt.Sprintf("extended_v%d%s", priorCount+1, ext))
	objectPrefix := fmt.Sprintf("mixes/%d/", track.ID)

	var handle *WatchHandle
	if c.sidecars != nil {
		var err error
		handle, err = c.sidecars.Watch(ctx, runDir, objectPrefix)
		if err != nil {
			logger.Warn("Sidecar watcher unavailable for this run",
				logger.Int64("trackId", track.ID),
				logger.ErrorField(err))
			handle = nil
		}
	}

	result, genErr := c.engine.Generate(ctx, sourcePath, outputPath, settings)

	var sidecarPaths []string
	if handle != nil {
		sidecarPaths = handle.Stop()
	}

	if genErr != nil {
		c.fail(ctx, track.ID, genErr)
		return
	}

	artifactObject := objectPrefix + uuid.New().String() + ext
	if err := c.store.UploadFile(ctx, artifactObject, result.ArtifactPath, contentTypeForExt(ext)); err != nil {
		c.fail(ctx, track.ID, fmt.Errorf("failed to store artifact: %w", err))
		return
	}

	version := &model.MixVersion{
		ArtifactPath:    artifactObject,
		DurationSeconds: result.DurationSeconds,
	}
	if len(sidecarPaths) > 0 {
		version.SidecarPath = sidecarPaths[0]
	}

	// Ledger first, status second: a poller must never observe completed
	// before the version is durably appended.
	idx, err := c.versions.Append(ctx, track.ID, version)
	if err != nil {
		c.fail(ctx, track.ID, fmt.Errorf("failed to commit version: %w", err))
		return
	}

	patch := c.metadataPatch(track, result)
	status := model.StatusCompleted
	patch.Status = &status
	if err := c.tracks.Update(ctx, track.ID, patch); err != nil {
		// The version is committed; the row keeps its prior state and the
		// error surfaces in the log rather than being swallowed.
		logger.Error("Failed to commit completion status",
			logger.Int64("trackId", track.ID),
			logger.ErrorField(err))
		return
	}

	logger.Info("Generation completed",
		logger.Int64("trackId", track.ID),
		logger.Int("versionIndex", idx),
		logger.String("artifact", artifactObject),
		logger.Float64("durationSeconds", result.DurationSeconds))

	c.notify(track.ID, model.StatusCompleted, idx+1)
}

// metadataPatch fills descriptive fields the engine newly reported. Fields
// already analyzed on a previous run stay as they are.
func (c *Coordinator) metadataPatch(track *model.AudioTrack, result *engine.Result) *model.TrackPatch {
	patch := &model.TrackPatch{}
	if result.DurationSeconds > 0 {
		patch.DurationSeconds = &result.DurationSeconds
	}
	if track.BPM == 0 && result.BPM > 0 {
		patch.BPM = &result.BPM
	}
	if keyUnknown(track.MusicalKey) && result.MusicalKey != "" {
		patch.MusicalKey = &result.MusicalKey
	}
	if keyUnknown(track.Format) && result.Format != "" {
		patch.Format = &result.Format
	}
	if track.Bitrate == 0 && result.Bitrate > 0 {
		patch.Bitrate = &result.Bitrate
	}
	return patch
}

func keyUnknown(v string) bool {
	return v == "" || strings.EqualFold(v, model.MetadataUnknown)
}

// fail records the failed outcome. The ledger is never touched on failure.
func (c *Coordinator) fail(ctx context.Context, trackID int64, cause error) {
	logger.Error("Generation failed",
		logger.Int64("trackId", trackID),
		logger.ErrorField(cause))

	status := model.StatusFailed
	if err := c.tracks.Update(ctx, trackID, &model.TrackPatch{Status: &status}); err != nil {
		logger.Error("Failed to record failed status",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		return
	}

	count, err := c.versions.CountByTrack(ctx, trackID)
	if err != nil {
		count = 0
	}
	c.notify(trackID, model.StatusFailed, count)
}

// notify writes the fresh poll response to the cache and pushes the
// transition to listeners. Writing rather than invalidating means a poller
// that read the store just before the commit cannot pin stale state.
func (c *Coordinator) notify(trackID int64, status model.TrackStatus, versionCount int) {
	if err := cache.SetStatus(context.Background(), trackID, cache.StatusEntry{
		Status:       status,
		VersionCount: versionCount,
	}); err != nil {
		logger.Warn("Failed to update status cache",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}
	if c.hub != nil {
		c.hub.Publish(StatusEvent{TrackID: trackID, Status: status, VersionCount: versionCount})
	}
}

func contentTypeForExt(ext string) string {
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "audio/mpeg"
}
