package reconcile

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/localrag/localrag/internal/errors"
	"github.com/localrag/localrag/internal/extract"
	"github.com/localrag/localrag/internal/identity"
)

// Scan walks the documents directory and returns the identities of all
// supported files. Hidden files and directories (dot-prefixed) are
// skipped, which also excludes the data directory.
func Scan(root string) ([]identity.Identity, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.IOError("cannot resolve documents directory", err)
	}

	var ids []identity.Identity
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return errors.IOError("cannot read documents directory", err)
			}
			return nil // skip entries we cannot access
		}

		name := d.Name()
		if path != absRoot && strings.HasPrefix(name, ".") {
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
		if !extract.IsSupported(id) {
			return nil
		}

		ids = append(ids, id)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return ids, nil
}
