// Package identity provides the canonical file identity used as the join
// key between the state store and the search index.
//
// Every component that names a file MUST go through Normalize. The index
// keys chunks by identity and the state store keys records by identity;
// if one side normalizes differently than the other, removals silently
// miss their target and stale chunks survive updates.
package identity

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Identity is the canonical, absolute, normalized reference to a file.
// Two references to the same on-disk file normalize to byte-identical
// Identity values regardless of how the path was spelled (relative,
// absolute, redundant separators, "." or ".." segments).
type Identity string

// Normalize converts any path form into its canonical Identity.
// It never touches the file system beyond resolving the working directory,
// so it works identically for files that no longer exist: deletions must
// produce the same identity that indexing produced.
func Normalize(path string) (Identity, error) {
	if path == "" {
		return "", fmt.Errorf("normalize: empty path")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("normalize %q: %w", path, err)
	}

	// Abs already calls Clean; ToSlash makes the result byte-identical
	// across separator styles on Windows.
	return Identity(filepath.ToSlash(abs)), nil
}

// MustNormalize is Normalize for inputs known to be valid (tests, constants).
// It panics on error.
func MustNormalize(path string) Identity {
	id, err := Normalize(path)
	if err != nil {
		panic(err)
	}
	return id
}

// Path returns the identity as an OS-native file path.
func (id Identity) Path() string {
	return filepath.FromSlash(string(id))
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return string(id)
}

// Base returns the final path element of the identity.
func (id Identity) Base() string {
	return filepath.Base(id.Path())
}

// Ext returns the lowercase file extension of the identity, including the dot.
func (id Identity) Ext() string {
	return strings.ToLower(filepath.Ext(string(id)))
}
