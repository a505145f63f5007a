package state

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/localrag/localrag/internal/errors"
)

// Signature identifies a file's content as "mtime_size_hash".
// Files up to FullHashLimit hash their entire content; larger files hash
// a head window and a tail window so signature cost stays bounded.
type Signature string

// SignatureOptions controls signature computation.
type SignatureOptions struct {
	// FullHashLimit is the size in bytes up to which the whole file is hashed.
	FullHashLimit int64
	// WindowSize is the head/tail window size for files above the limit.
	WindowSize int64
}

// DefaultSignatureOptions matches the documented signature scheme:
// full hash up to 1 MiB, 64 KiB head and tail windows above.
func DefaultSignatureOptions() SignatureOptions {
	return SignatureOptions{
		FullHashLimit: 1 << 20,
		WindowSize:    64 << 10,
	}
}

// WithDefaults fills zero fields with defaults.
func (o SignatureOptions) WithDefaults() SignatureOptions {
	def := DefaultSignatureOptions()
	if o.FullHashLimit <= 0 {
		o.FullHashLimit = def.FullHashLimit
	}
	if o.WindowSize <= 0 {
		o.WindowSize = def.WindowSize
	}
	return o
}

// ComputeSignature computes the content signature of the file at path.
// Failures are transient IO errors: callers skip the file this cycle and
// retry on the next one.
func ComputeSignature(path string, opts SignatureOptions) (Signature, error) {
	opts = opts.WithDefaults()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New(errors.ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path), err)
		}
		return "", errors.IOError(fmt.Sprintf("cannot open %s", path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.IOError(fmt.Sprintf("cannot stat %s", path), err)
	}

	size := info.Size()
	h := xxhash.New()

	if size <= opts.FullHashLimit {
		if _, err := io.Copy(h, f); err != nil {
			return "", errors.IOError(fmt.Sprintf("cannot read %s", path), err)
		}
	} else {
		// Head window.
		if _, err := io.CopyN(h, f, opts.WindowSize); err != nil {
			return "", errors.IOError(fmt.Sprintf("cannot read head of %s", path), err)
		}
		// Tail window.
		if _, err := f.Seek(-opts.WindowSize, io.SeekEnd); err != nil {
			return "", errors.IOError(fmt.Sprintf("cannot seek in %s", path), err)
		}
		if _, err := io.CopyN(h, f, opts.WindowSize); err != nil && err != io.EOF {
			return "", errors.IOError(fmt.Sprintf("cannot read tail of %s", path), err)
		}
	}

	sig := fmt.Sprintf("%d_%d_%016x", info.ModTime().UnixNano(), size, h.Sum64())
	return Signature(sig), nil
}

// SameContent reports whether two signatures describe the same content.
// The mtime component is ignored: a touch without a content change must
// not trigger reprocessing.
func SameContent(a, b Signature) bool {
	if a == "" || b == "" {
		return false
	}
	aSize, aHash, okA := splitSignature(a)
	bSize, bHash, okB := splitSignature(b)
	if !okA || !okB {
		// Malformed signatures compare by full string.
		return a == b
	}
	return aSize == bSize && aHash == bHash
}

// splitSignature returns the size and hash components of a signature.
func splitSignature(s Signature) (size, hash string, ok bool) {
	parts := strings.SplitN(string(s), "_", 3)
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[1], parts[2], true
}
