package mix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSidecarWatcherCollectsShuffleOrder(t *testing.T) {
	store := newFakeBlobStore()
	watcher := NewSidecarWatcher(store, 2)

	workDir := t.TempDir()
	handle, err := watcher.Watch(context.Background(), workDir, "mixes/3/")
	require.NoError(t, err)

	sidecar := filepath.Join(workDir, "extended_v1_shuffle_order.json")
	require.NoError(t, os.WriteFile(sidecar, []byte(`{"order":[2,0,1]}`), 0644))
	// Files the engine also writes but which are not sidecars.
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "extended_v1.mp3"), []byte("audio"), 0644))

	uploaded := handle.Stop()

	require.Len(t, uploaded, 1)
	assert.Equal(t, "mixes/3/extended_v1_shuffle_order.json", uploaded[0])
	assert.True(t, store.objects[uploaded[0]])
}

func TestSidecarWatcherNothingToCollect(t *testing.T) {
	store := newFakeBlobStore()
	watcher := NewSidecarWatcher(store, 1)

	workDir := t.TempDir()
	handle, err := watcher.Watch(context.Background(), workDir, "mixes/4/")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(workDir, "extended_v2.mp3"), []byte("audio"), 0644))

	assert.Empty(t, handle.Stop())
}

func TestSidecarUploadedOnce(t *testing.T) {
	store := newFakeBlobStore()
	watcher := NewSidecarWatcher(store, 2)

	workDir := t.TempDir()
	handle, err := watcher.Watch(context.Background(), workDir, "mixes/5/")
	require.NoError(t, err)

	sidecar := filepath.Join(workDir, "take_shuffle_order.json")
	require.NoError(t, os.WriteFile(sidecar, []byte(`{}`), 0644))
	// Rewrite to trigger another event for the same file.
	require.NoError(t, os.WriteFile(sidecar, []byte(`{"order":[]}`), 0644))

	assert.Len(t, handle.Stop(), 1)
}
