package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestComputeSignature_Format(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", []byte("hello"))

	sig, err := ComputeSignature(path, SignatureOptions{})
	require.NoError(t, err)

	parts := strings.SplitN(string(sig), "_", 3)
	require.Len(t, parts, 3, "signature must be mtime_size_hash")
	assert.Equal(t, "5", parts[1])
	assert.Len(t, parts[2], 16)
}

func TestComputeSignature_SameContentSameHash(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", []byte("identical content"))
	b := writeFile(t, dir, "b.txt", []byte("identical content"))

	sigA, err := ComputeSignature(a, SignatureOptions{})
	require.NoError(t, err)
	sigB, err := ComputeSignature(b, SignatureOptions{})
	require.NoError(t, err)

	assert.True(t, SameContent(sigA, sigB))
}

func TestComputeSignature_DifferentContent(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", []byte("one"))
	b := writeFile(t, dir, "b.txt", []byte("two"))

	sigA, err := ComputeSignature(a, SignatureOptions{})
	require.NoError(t, err)
	sigB, err := ComputeSignature(b, SignatureOptions{})
	require.NoError(t, err)

	assert.False(t, SameContent(sigA, sigB))
}

func TestSameContent_IgnoresMtime(t *testing.T) {
	// Given: a file whose mtime changes but content does not
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", []byte("stable"))

	before, err := ComputeSignature(path, SignatureOptions{})
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	after, err := ComputeSignature(path, SignatureOptions{})
	require.NoError(t, err)

	// Then: the raw signatures differ but the content comparison matches
	assert.NotEqual(t, before, after)
	assert.True(t, SameContent(before, after), "a touch must not look like a content change")
}

func TestComputeSignature_LargeFileUsesWindows(t *testing.T) {
	// Given: two files above the full-hash limit that differ only in the
	// middle, outside both windows
	dir := t.TempDir()
	opts := SignatureOptions{FullHashLimit: 1024, WindowSize: 128}

	content := make([]byte, 4096)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	a := writeFile(t, dir, "a.bin", content)

	modified := make([]byte, len(content))
	copy(modified, content)
	modified[2048] = 'X'
	b := writeFile(t, dir, "b.bin", modified)

	sigA, err := ComputeSignature(a, opts)
	require.NoError(t, err)
	sigB, err := ComputeSignature(b, opts)
	require.NoError(t, err)

	// Then: windowed hashing cannot see the middle edit
	assert.True(t, SameContent(sigA, sigB))

	// And: an edit inside the tail window is detected
	tailEdit := make([]byte, len(content))
	copy(tailEdit, content)
	tailEdit[len(tailEdit)-1] = 'X'
	c := writeFile(t, dir, "c.bin", tailEdit)

	sigC, err := ComputeSignature(c, opts)
	require.NoError(t, err)
	assert.False(t, SameContent(sigA, sigC))
}

func TestComputeSignature_MissingFile(t *testing.T) {
	_, err := ComputeSignature(filepath.Join(t.TempDir(), "gone.txt"), SignatureOptions{})
	assert.Error(t, err)
}

func TestSameContent_EmptySignatures(t *testing.T) {
	assert.False(t, SameContent("", "1_2_3"))
	assert.False(t, SameContent("1_2_3", ""))
}
