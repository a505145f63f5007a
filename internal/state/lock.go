package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/localrag/localrag/internal/errors"
)

// DirLock guards a data directory against concurrent localrag instances.
// Two processes reconciling the same snapshot and index files would
// corrupt both, so the lock is acquired before any state is touched.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for the given lock file path.
func NewDirLock(path string) *DirLock {
	return &DirLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Acquire takes the lock without blocking. If another process holds it,
// a fatal ERR_205_LOCK_HELD error is returned.
func (l *DirLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.IOError("cannot create data directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return errors.IOError("cannot acquire data directory lock", err)
	}
	if !acquired {
		return errors.New(errors.ErrCodeLockHeld,
			fmt.Sprintf("data directory is locked by another instance: %s", l.path), nil)
	}

	l.locked = true
	return nil
}

// Release releases the lock. Safe to call on an unlocked DirLock.
func (l *DirLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return errors.IOError("cannot release data directory lock", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}
