// Package watcher detects changes in the documents folder and emits
// debounced, coalesced batches of file events.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/localrag/localrag/internal/identity"
)

// Op represents a file system operation type.
type Op int

const (
	// OpCreate indicates a new file was created.
	OpCreate Op = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is a single file change, keyed by document identity.
type Event struct {
	// Identity is the canonical identity of the changed file.
	Identity identity.Identity

	// Op is the type of change.
	Op Op

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// Debounce is the time to wait before emitting coalesced events.
	// Default: 2s.
	Debounce time.Duration

	// BufferSize is the size of the event channel buffer. Default: 1000.
	BufferSize int
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.Debounce == 0 {
		o.Debounce = 2 * time.Second
	}
	if o.BufferSize == 0 {
		o.BufferSize = 1000
	}
	return o
}

// Watcher watches a directory tree with fsnotify and emits debounced
// event batches. Hidden files and directories (dot-prefixed) are
// ignored, which also covers the data directory.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *slog.Logger
	events    chan []Event
	errors    chan error
	stopCh    chan struct{}
	rootPath  string
	opts      Options

	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// New creates a watcher with the given options.
func New(opts Options, logger *slog.Logger) (*Watcher, error) {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.Debounce),
		logger:    logger.With("component", "watcher"),
		events:    make(chan []Event, opts.BufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}, nil
}

// Start begins watching the given directory recursively. It blocks
// until the context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.rootPath = absPath

	if err := w.addRecursive(absPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	go w.forwardDebouncedEvents(ctx)

	w.logger.Info("watching for changes", "path", absPath, "debounce", w.opts.Debounce.String())

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handleFsnotifyEvent converts and filters fsnotify events.
func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}
	if w.shouldIgnore(relPath) {
		return
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		// New directories need a watch, and files already inside them
		// were created before the watch existed.
		if isDir {
			if err := w.addRecursive(event.Name); err != nil {
				w.emitError(err)
			}
			w.emitExistingFiles(event.Name)
			return
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		// A rename away from the watched tree looks like a delete. If
		// the file reappears elsewhere a create event follows.
		op = OpDelete
	case event.Op&fsnotify.Chmod != 0:
		return
	default:
		return
	}

	if isDir {
		return
	}

	id, err := identity.Normalize(event.Name)
	if err != nil {
		w.emitError(err)
		return
	}

	w.debouncer.Add(Event{
		Identity:  id,
		Op:        op,
		Timestamp: time.Now(),
	})
}

// emitExistingFiles queues create events for files already present in a
// newly watched directory.
func (w *Watcher) emitExistingFiles(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(w.rootPath, path)
		if relErr == nil && w.shouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		id, idErr := identity.Normalize(path)
		if idErr != nil {
			return nil
		}
		w.debouncer.Add(Event{Identity: id, Op: OpCreate, Timestamp: time.Now()})
		return nil
	})
}

// forwardDebouncedEvents forwards debounced batches to the output channel.
func (w *Watcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			w.emitEvents(events)
		}
	}
}

// addRecursive adds all non-hidden directories under root to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip directories we cannot access
		}
		if !d.IsDir() {
			return nil
		}

		relPath, _ := filepath.Rel(w.rootPath, path)
		if relPath == "." {
			return w.fsWatcher.Add(path)
		}
		if w.shouldIgnore(relPath) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// shouldIgnore returns true for hidden paths (any dot-prefixed segment).
func (w *Watcher) shouldIgnore(relPath string) bool {
	if relPath == "." || relPath == "" {
		return false
	}
	for _, segment := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

// emitEvents sends a batch to the output channel without blocking.
func (w *Watcher) emitEvents(events []Event) {
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case w.events <- events:
	default:
		count := w.droppedBatches.Add(1)
		w.logger.Warn("event buffer full, dropping batch",
			"batch_size", len(events),
			"total_dropped_batches", count)
	}
}

// emitError sends an error to the error channel without blocking.
func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources. Safe to call multiple
// times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()
	_ = w.fsWatcher.Close()

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of batched file events. The channel is
// closed when the watcher stops.
func (w *Watcher) Events() <-chan []Event {
	return w.events
}

// Errors returns the channel of watcher errors. Non-fatal errors are
// sent here and the watcher keeps running.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// DroppedBatches returns the number of batches dropped due to buffer
// overflow.
func (w *Watcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}
