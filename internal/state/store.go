// Package state tracks which files have been processed and detects
// changes between the filesystem and the last persisted snapshot.
package state

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio"

	"github.com/localrag/localrag/internal/errors"
	"github.com/localrag/localrag/internal/identity"
)

// FileRecord is the persisted processing state of one file.
type FileRecord struct {
	// Identity is the canonical normalized path, the join key across
	// the snapshot, the index, and watcher events.
	Identity identity.Identity `json:"identity"`

	// Signature is the content signature at the time of processing.
	Signature Signature `json:"signature"`

	// ProcessedAt is when the file was last successfully processed.
	// Zero when the last attempt failed.
	ProcessedAt time.Time `json:"processed_at,omitempty"`

	// LastError records a permanent extraction failure for this
	// signature. The file is skipped until its content changes.
	LastError string `json:"last_error,omitempty"`
}

// Snapshot is the serialized form of the store.
type snapshot struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"saved_at"`
	Files   []FileRecord `json:"files"`
}

const snapshotVersion = 1

// Store holds the processed-state snapshot in memory and persists it
// atomically to a JSON file. Store is not safe for concurrent use; the
// reconciler serializes access.
type Store struct {
	path    string
	records map[identity.Identity]FileRecord
	logger  *slog.Logger
}

// NewStore creates a store persisting to the given snapshot path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:    path,
		records: make(map[identity.Identity]FileRecord),
		logger:  logger,
	}
}

// Load reads the snapshot from disk. A missing file yields an empty
// store. A corrupt file is logged and also yields an empty store: the
// system degrades to reprocessing everything rather than failing startup.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.records = make(map[identity.Identity]FileRecord)
			return nil
		}
		return errors.IOError("cannot read state snapshot", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("state snapshot is corrupt, starting from empty state",
			"path", s.path, "error", err)
		s.records = make(map[identity.Identity]FileRecord)
		return nil
	}

	s.records = make(map[identity.Identity]FileRecord, len(snap.Files))
	for _, rec := range snap.Files {
		s.records[rec.Identity] = rec
	}

	s.logger.Debug("state snapshot loaded", "path", s.path, "files", len(s.records))
	return nil
}

// Save persists the snapshot atomically. The snapshot on disk is always
// either the previous complete state or the new complete state.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.New(errors.ErrCodeSnapshotWrite, "cannot create data directory", err)
	}

	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Files:   make([]FileRecord, 0, len(s.records)),
	}
	for _, rec := range s.records {
		snap.Files = append(snap.Files, rec)
	}
	// Stable output keeps snapshots diffable.
	sort.Slice(snap.Files, func(i, j int) bool {
		return snap.Files[i].Identity < snap.Files[j].Identity
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.New(errors.ErrCodeSnapshotWrite, "cannot marshal state snapshot", err)
	}

	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return errors.New(errors.ErrCodeSnapshotWrite, "cannot write state snapshot", err)
	}

	return nil
}

// Get returns the record for an identity.
func (s *Store) Get(id identity.Identity) (FileRecord, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// Put inserts or replaces a record.
func (s *Store) Put(rec FileRecord) {
	s.records[rec.Identity] = rec
}

// Delete removes a record. Deleting an absent identity is a no-op.
func (s *Store) Delete(id identity.Identity) {
	delete(s.records, id)
}

// Len returns the number of tracked files.
func (s *Store) Len() int {
	return len(s.records)
}

// Identities returns all tracked identities in sorted order.
func (s *Store) Identities() []identity.Identity {
	ids := make([]identity.Identity, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Records returns a copy of all records.
func (s *Store) Records() []FileRecord {
	recs := make([]FileRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Identity < recs[j].Identity })
	return recs
}

// Diff partitions the current filesystem contents against the snapshot.
type Diff struct {
	// New are present on disk but not in the snapshot.
	New []identity.Identity
	// Changed are present in both but with different content.
	Changed []identity.Identity
	// Deleted are in the snapshot but gone from disk.
	Deleted []identity.Identity
	// Unchanged are present in both with identical content.
	Unchanged []identity.Identity
	// Errored maps identities whose signature could not be computed to
	// the error. They appear in no other set and are retried next cycle.
	Errored map[identity.Identity]error
	// Signatures holds the freshly computed signature per identity, so
	// callers do not recompute them when processing.
	Signatures map[identity.Identity]Signature
}

// ComputeDiff compares the given on-disk identities against the snapshot.
// Every identity lands in exactly one of New, Changed, Unchanged, or
// Errored; Deleted holds snapshot entries absent from present.
func (s *Store) ComputeDiff(present []identity.Identity, opts SignatureOptions) Diff {
	diff := Diff{
		Errored:    make(map[identity.Identity]error),
		Signatures: make(map[identity.Identity]Signature),
	}

	seen := make(map[identity.Identity]bool, len(present))
	for _, id := range present {
		seen[id] = true

		sig, err := ComputeSignature(id.Path(), opts)
		if err != nil {
			diff.Errored[id] = err
			continue
		}
		diff.Signatures[id] = sig

		rec, ok := s.records[id]
		switch {
		case !ok:
			diff.New = append(diff.New, id)
		case SameContent(rec.Signature, sig):
			diff.Unchanged = append(diff.Unchanged, id)
		default:
			diff.Changed = append(diff.Changed, id)
		}
	}

	for id := range s.records {
		if !seen[id] {
			diff.Deleted = append(diff.Deleted, id)
		}
	}

	sortIdentities(diff.New)
	sortIdentities(diff.Changed)
	sortIdentities(diff.Deleted)
	sortIdentities(diff.Unchanged)

	return diff
}

func sortIdentities(ids []identity.Identity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
