// Package reconcile keeps the search index consistent with the
// documents directory. A reconciliation pass diffs the filesystem
// against the persisted state snapshot and processes the difference;
// between passes, watcher events drive incremental updates through the
// same processing path.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/localrag/localrag/internal/errors"
	"github.com/localrag/localrag/internal/extract"
	"github.com/localrag/localrag/internal/identity"
	"github.com/localrag/localrag/internal/state"
	"github.com/localrag/localrag/internal/watcher"
)

// Indexer is the slice of the index the reconciler needs.
type Indexer interface {
	Upsert(ctx context.Context, id identity.Identity, text string) (int, error)
	Remove(ctx context.Context, id identity.Identity) error
	Persist() error
}

// Options configures the reconciler.
type Options struct {
	// Workers is the number of files processed concurrently.
	Workers int

	// BatchSize is how many files are processed between snapshot saves,
	// bounding lost work if the process dies mid-pass.
	BatchSize int

	// Signature configures content signature computation.
	Signature state.SignatureOptions
}

// WithDefaults fills zero fields with defaults.
func (o Options) WithDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	o.Signature = o.Signature.WithDefaults()
	return o
}

// Reconciler drives reconciliation passes and incremental updates.
// Passes are serialized: a full pass and an event batch never run
// concurrently.
type Reconciler struct {
	docsRoot string
	store    *state.Store
	index    Indexer
	opts     Options
	logger   *slog.Logger

	// runMu serializes passes; stateMu guards the store, which is not
	// safe for concurrent use by the worker pool.
	runMu   sync.Mutex
	stateMu sync.Mutex

	statusMu    sync.RWMutex
	phase       Phase
	tracked     int
	lastRun     time.Time
	lastSummary Summary
}

// New creates a reconciler for the given documents directory.
func New(docsRoot string, store *state.Store, index Indexer, opts Options, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		docsRoot: docsRoot,
		store:    store,
		index:    index,
		opts:     opts.WithDefaults(),
		logger:   logger.With("component", "reconcile"),
		phase:    PhaseStarting,
	}
}

// Reconcile runs one full pass: scan, diff, clean, process, persist.
func (r *Reconciler) Reconcile(ctx context.Context) (Summary, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := time.Now()
	r.setPhase(PhaseLoading)

	present, err := Scan(r.docsRoot)
	if err != nil {
		r.setPhase(PhaseSteady)
		return Summary{}, err
	}

	diff := r.store.ComputeDiff(present, r.opts.Signature)

	summary := Summary{
		Scanned:   len(present),
		Deleted:   len(diff.Deleted),
		Unchanged: len(diff.Unchanged),
	}

	r.logger.Info("reconciliation pass",
		"scanned", len(present),
		"new", len(diff.New),
		"changed", len(diff.Changed),
		"deleted", len(diff.Deleted),
		"unchanged", len(diff.Unchanged),
		"errored", len(diff.Errored))

	r.setPhase(PhaseCleaning)
	for _, id := range diff.Deleted {
		if err := r.removeDocument(ctx, id); err != nil {
			r.logger.Warn("failed to remove deleted document, will retry",
				"identity", string(id), "error", err)
			summary.Failed++
			summary.Deleted--
		}
	}

	// Unchanged files with a recorded extraction failure stay skipped
	// until their content changes.
	for _, id := range diff.Unchanged {
		if rec, ok := r.store.Get(id); ok && rec.LastError != "" {
			summary.Skipped++
			summary.Unchanged--
		}
	}

	for id, err := range diff.Errored {
		r.logger.Warn("cannot read file, will retry next pass",
			"identity", string(id), "error", err)
		summary.Failed++
	}

	r.setPhase(PhaseProcessing)
	r.processAll(ctx, &summary, diff)

	if err := r.saveState(); err != nil {
		r.logger.Error("failed to save state snapshot", "error", err)
	}
	if err := r.index.Persist(); err != nil {
		r.logger.Error("failed to persist index", "error", err)
	}

	summary.Duration = time.Since(start)
	r.recordRun(summary, r.store.Len())
	r.setPhase(PhaseSteady)

	return summary, ctx.Err()
}

// processAll runs the worker pool over new and changed files, saving
// the snapshot every BatchSize processed files.
func (r *Reconciler) processAll(ctx context.Context, summary *Summary, diff state.Diff) {
	pending := make([]identity.Identity, 0, len(diff.New)+len(diff.Changed))
	pending = append(pending, diff.New...)
	pending = append(pending, diff.Changed...)
	if len(pending) == 0 {
		return
	}

	newSet := make(map[identity.Identity]bool, len(diff.New))
	for _, id := range diff.New {
		newSet[id] = true
	}

	var mu sync.Mutex
	sinceLastSave := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for _, id := range pending {
		id := id
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			outcome := r.processOne(gctx, id, diff.Signatures[id])

			mu.Lock()
			switch outcome {
			case outcomeIndexed:
				if newSet[id] {
					summary.New++
				} else {
					summary.Changed++
				}
			case outcomePermanent:
				summary.Skipped++
			case outcomeTransient:
				summary.Failed++
			}
			sinceLastSave++
			shouldSave := sinceLastSave >= r.opts.BatchSize
			if shouldSave {
				sinceLastSave = 0
			}
			mu.Unlock()

			if shouldSave {
				if err := r.saveState(); err != nil {
					r.logger.Warn("batch snapshot save failed", "error", err)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		r.logger.Warn("processing interrupted", "error", err)
	}
}

type outcome int

const (
	outcomeIndexed outcome = iota
	outcomePermanent
	outcomeTransient
)

// processOne extracts, chunks, and indexes a single file.
//
// Failure handling follows the error taxonomy: transient errors leave
// the state record untouched so the file is retried next pass;
// permanent extraction errors record the signature with LastError so
// the file is skipped until its content changes.
func (r *Reconciler) processOne(ctx context.Context, id identity.Identity, sig state.Signature) outcome {
	text, err := extract.Text(id)
	if err != nil {
		if errors.IsRetryable(err) {
			r.logger.Warn("cannot read document, will retry",
				"identity", string(id), "error", err)
			return outcomeTransient
		}

		// Permanent for this content: drop any stale chunks from a
		// previous version and record the failure.
		if rmErr := r.index.Remove(ctx, id); rmErr != nil {
			r.logger.Warn("failed to remove stale chunks",
				"identity", string(id), "error", rmErr)
			return outcomeTransient
		}
		r.putRecord(state.FileRecord{
			Identity:  id,
			Signature: sig,
			LastError: err.Error(),
		})
		r.logger.Warn("extraction failed, skipping until content changes",
			"identity", string(id), "code", errors.CodeOf(err), "error", err)
		return outcomePermanent
	}

	chunks, err := r.index.Upsert(ctx, id, text)
	if err != nil {
		// The state record stays stale, so the next pass sees the file
		// as changed and retries the whole operation.
		r.logger.Warn("index write failed, will retry",
			"identity", string(id), "error", err)
		return outcomeTransient
	}

	r.putRecord(state.FileRecord{
		Identity:    id,
		Signature:   sig,
		ProcessedAt: time.Now().UTC(),
	})
	r.logger.Debug("document processed", "identity", string(id), "chunks", chunks)
	return outcomeIndexed
}

// removeDocument removes a document from the index and the state store.
func (r *Reconciler) removeDocument(ctx context.Context, id identity.Identity) error {
	if err := r.index.Remove(ctx, id); err != nil {
		return err
	}
	r.stateMu.Lock()
	r.store.Delete(id)
	r.stateMu.Unlock()
	return nil
}

func (r *Reconciler) putRecord(rec state.FileRecord) {
	r.stateMu.Lock()
	r.store.Put(rec)
	r.stateMu.Unlock()
}

// saveState persists the snapshot, retrying transient write failures so
// a briefly busy disk does not cost a pass's worth of progress.
func (r *Reconciler) saveState() error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return errors.Retry(context.Background(), errors.DefaultRetryConfig(), r.store.Save)
}

// HandleEvents applies one debounced watcher batch. Events flow through
// the same processing path as a full pass, so the error taxonomy and
// snapshot behavior are identical.
func (r *Reconciler) HandleEvents(ctx context.Context, events []watcher.Event) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.setPhase(PhaseProcessing)
	defer r.setPhase(PhaseSteady)

	changed := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			return
		}

		if ev.Op == watcher.OpDelete {
			if err := r.removeDocument(ctx, ev.Identity); err != nil {
				r.logger.Warn("failed to remove document, will retry next pass",
					"identity", string(ev.Identity), "error", err)
			}
			changed++
			continue
		}

		if !extract.IsSupported(ev.Identity) {
			continue
		}

		// The file may have vanished between the event and now.
		sig, err := state.ComputeSignature(ev.Identity.Path(), r.opts.Signature)
		if err != nil {
			if errors.CodeOf(err) == errors.ErrCodeFileNotFound {
				if rmErr := r.removeDocument(ctx, ev.Identity); rmErr != nil {
					r.logger.Warn("failed to remove vanished document",
						"identity", string(ev.Identity), "error", rmErr)
				}
				changed++
				continue
			}
			r.logger.Warn("cannot read file, will retry next pass",
				"identity", string(ev.Identity), "error", err)
			continue
		}

		// Same content means nothing to do, whether the last attempt
		// succeeded or recorded a permanent extraction failure.
		if rec, ok := r.store.Get(ev.Identity); ok && state.SameContent(rec.Signature, sig) {
			continue
		}

		r.processOne(ctx, ev.Identity, sig)
		changed++
	}

	if changed > 0 {
		if err := r.saveState(); err != nil {
			r.logger.Warn("snapshot save failed", "error", err)
		}
		if err := r.index.Persist(); err != nil {
			r.logger.Warn("index persist failed", "error", err)
		}
		r.statusMu.Lock()
		r.tracked = r.store.Len()
		r.statusMu.Unlock()
	}
}

// Run performs an initial full pass and then applies watcher batches
// until the context is cancelled or the channel closes.
func (r *Reconciler) Run(ctx context.Context, events <-chan []watcher.Event) error {
	if _, err := r.Reconcile(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			r.HandleEvents(ctx, batch)
		}
	}
}
