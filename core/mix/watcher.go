package mix

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"TrackForge/logger"
	"TrackForge/storage"

	"github.com/fsnotify/fsnotify"
)

// SidecarWatcher watches an engine workdir during a generation and ships
// sidecar files (the shuffle-order JSON the processor writes next to the
// mix) to the blob store as they appear, through a small worker pool.
// The main artifact is uploaded by the coordinator itself after the engine
// reports success; the watcher only handles the auxiliary files.
type SidecarWatcher struct {
	store       storage.BlobStore
	workerCount int
}

// NewSidecarWatcher creates a watcher uploading through the given store.
func NewSidecarWatcher(store storage.BlobStore, workers int) *SidecarWatcher {
	if workers <= 0 {
		workers = 2
	}
	return &SidecarWatcher{store: store, workerCount: workers}
}

// sidecarTask is one file to upload.
type sidecarTask struct {
	localPath  string
	objectPath string
}

// WatchHandle controls one running watch session.
type WatchHandle struct {
	watcher  *fsnotify.Watcher
	taskChan chan sidecarTask
	done     chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	uploaded []string
	seen     map[string]bool

	workDir      string
	objectPrefix string
}

// isSidecar reports whether a file in the workdir is an engine sidecar.
func isSidecar(name string) bool {
	return strings.HasSuffix(name, "_shuffle_order.json")
}

// Watch starts watching workDir. Sidecars are uploaded under objectPrefix.
// Call Stop once the engine run has finished.
func (w *SidecarWatcher) Watch(ctx context.Context, workDir, objectPrefix string) (*WatchHandle, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(workDir); err != nil {
		watcher.Close()
		return nil, err
	}

	h := &WatchHandle{
		watcher:      watcher,
		taskChan:     make(chan sidecarTask, 16),
		done:         make(chan struct{}),
		seen:         make(map[string]bool),
		workDir:      workDir,
		objectPrefix: objectPrefix,
	}

	for i := 0; i < w.workerCount; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for task := range h.taskChan {
				if err := w.store.UploadFile(ctx, task.objectPath, task.localPath, "application/json"); err != nil {
					logger.Warn("Failed to upload sidecar",
						logger.String("path", task.localPath),
						logger.ErrorField(err))
					continue
				}
				h.mu.Lock()
				h.uploaded = append(h.uploaded, task.objectPath)
				h.mu.Unlock()
				logger.Debug("Sidecar uploaded", logger.String("objectPath", task.objectPath))
			}
		}()
	}

	go h.watchLoop(ctx)

	return h, nil
}

// watchLoop forwards stable sidecar files to the worker pool.
func (h *WatchHandle) watchLoop(ctx context.Context) {
	defer close(h.done)

	pendingFiles := make(map[string]time.Time)
	checkTicker := time.NewTicker(100 * time.Millisecond)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && isSidecar(event.Name) {
				pendingFiles[event.Name] = time.Now()
			}

		case <-checkTicker.C:
			now := time.Now()
			for filePath, lastMod := range pendingFiles {
				// Skip files that may still be written.
				if now.Sub(lastMod) < 200*time.Millisecond {
					continue
				}
				delete(pendingFiles, filePath)
				h.enqueue(filePath)
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Sidecar watcher error", logger.ErrorField(err))
		}
	}
}

// enqueue hands a file to the workers once.
func (h *WatchHandle) enqueue(filePath string) {
	name := filepath.Base(filePath)

	h.mu.Lock()
	if h.seen[name] {
		h.mu.Unlock()
		return
	}
	h.seen[name] = true
	h.mu.Unlock()

	select {
	case h.taskChan <- sidecarTask{localPath: filePath, objectPath: h.objectPrefix + name}:
	default:
		logger.Warn("Sidecar upload queue full, skipping", logger.String("file", name))
	}
}

// Stop does a final scan for files the events missed, drains the workers and
// returns the object paths uploaded during the session.
func (h *WatchHandle) Stop() []string {
	h.watcher.Close()
	<-h.done

	// Final sweep: the engine may have written the sidecar between the last
	// event and Close.
	entries, err := os.ReadDir(h.workDir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && isSidecar(entry.Name()) {
				h.enqueue(filepath.Join(h.workDir, entry.Name()))
			}
		}
	}

	close(h.taskChan)
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.uploaded...)
}
