package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/internal/identity"
)

func startTestWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()

	w, err := New(Options{Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, dir)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register its watches.
	time.Sleep(100 * time.Millisecond)
	return w
}

func waitForBatch(t *testing.T, w *Watcher) []Event {
	t.Helper()
	select {
	case batch := <-w.Events():
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher events")
		return nil
	}
}

func TestWatcher_DetectsNewFile(t *testing.T) {
	dir := t.TempDir()
	w := startTestWatcher(t, dir)

	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	batch := waitForBatch(t, w)
	require.NotEmpty(t, batch)

	want := identity.MustNormalize(path)
	found := false
	for _, e := range batch {
		if e.Identity == want {
			found = true
			assert.Equal(t, OpCreate, e.Op)
		}
	}
	assert.True(t, found, "expected event for %s", want)
}

func TestWatcher_DetectsDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	w := startTestWatcher(t, dir)
	require.NoError(t, os.Remove(path))

	batch := waitForBatch(t, w)
	require.NotEmpty(t, batch)
	assert.Equal(t, identity.MustNormalize(path), batch[0].Identity)
	assert.Equal(t, OpDelete, batch[0].Op)
}

func TestWatcher_IgnoresHiddenDirectories(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, ".localrag")
	require.NoError(t, os.MkdirAll(hidden, 0o755))

	w := startTestWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(hidden, "state.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("hi"), 0o644))

	batch := waitForBatch(t, w)
	for _, e := range batch {
		assert.NotContains(t, string(e.Identity), ".localrag")
	}
}

func TestWatcher_DetectsFilesInNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w := startTestWatcher(t, dir)

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	// Small delay so the directory create is processed before the file.
	time.Sleep(50 * time.Millisecond)
	path := filepath.Join(sub, "inner.txt")
	require.NoError(t, os.WriteFile(path, []byte("nested content"), 0o644))

	deadline := time.After(5 * time.Second)
	want := identity.MustNormalize(path)
	for {
		select {
		case batch := <-w.Events():
			for _, e := range batch {
				if e.Identity == want {
					return
				}
			}
		case <-deadline:
			t.Fatalf("never saw event for %s", want)
		}
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(Options{}, nil)
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
}
