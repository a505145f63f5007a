package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_EquivalentFormsAreIdentical(t *testing.T) {
	// Given: a file referenced through several equivalent path spellings
	dir := t.TempDir()
	target := filepath.Join(dir, "docs", "a.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	forms := []string{
		target,
		filepath.Join("docs", "a.txt"),
		filepath.Join(dir, "docs", "..", "docs", "a.txt"),
		"./docs/a.txt",
	}

	// When: each form is normalized
	first, err := Normalize(forms[0])
	require.NoError(t, err)

	// Then: all forms produce byte-identical identities
	for _, form := range forms[1:] {
		id, err := Normalize(form)
		require.NoError(t, err)
		assert.Equal(t, first, id, "form %q should normalize like %q", form, forms[0])
	}
}

func TestNormalize_DoesNotRequireFileToExist(t *testing.T) {
	// Deletion events arrive after the file is gone; the identity must
	// still match the one produced at indexing time.
	dir := t.TempDir()
	missing := filepath.Join(dir, "gone.txt")

	id, err := Normalize(missing)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	again, err := Normalize(filepath.Join(dir, ".", "gone.txt"))
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestNormalize_EmptyPath(t *testing.T) {
	_, err := Normalize("")
	assert.Error(t, err)
}

func TestIdentity_Ext(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/docs/readme.MD", ".md"},
		{"/data/docs/report.PDF", ".pdf"},
		{"/data/docs/noext", ""},
	}

	for _, tt := range tests {
		id := MustNormalize(tt.path)
		assert.Equal(t, tt.want, id.Ext(), tt.path)
	}
}

func TestIdentity_PathRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "notes.txt")

	id, err := Normalize(p)
	require.NoError(t, err)
	assert.Equal(t, p, id.Path())
}
