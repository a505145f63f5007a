package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCommand executes the CLI with the given args and captures stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Keep log files out of the real home directory.
	t.Setenv("HOME", t.TempDir())

	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "localrag")

	out, err = runCommand(t, "version", "--short")
	require.NoError(t, err)
	assert.Contains(t, out, "dev")

	out, err = runCommand(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])
}

func TestIndexCommand_IndexesDocuments(t *testing.T) {
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "a.txt"), []byte("alpha document"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "b.md"), []byte("# bravo\n\ncontent"), 0o644))

	out, err := runCommand(t, "index", "--docs", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "2 new")

	// The data directory is created alongside the documents.
	_, err = os.Stat(filepath.Join(docs, ".localrag", "state.json"))
	assert.NoError(t, err)

	// A second pass finds nothing to do.
	out, err = runCommand(t, "index", "--docs", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "0 new")
	assert.Contains(t, out, "2 unchanged")
}

func TestSearchCommand_FindsIndexedContent(t *testing.T) {
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "notes.txt"),
		[]byte("the quarterly revenue targets were exceeded"), 0o644))

	_, err := runCommand(t, "index", "--docs", docs)
	require.NoError(t, err)

	out, err := runCommand(t, "search", "quarterly revenue", "--docs", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")

	out, err = runCommand(t, "search", "quarterly revenue", "--docs", docs, "--json")
	require.NoError(t, err)
	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	assert.Contains(t, results[0]["path"], "notes.txt")
}

func TestSearchCommand_NoResults(t *testing.T) {
	docs := t.TempDir()
	_, err := runCommand(t, "index", "--docs", docs)
	require.NoError(t, err)

	out, err := runCommand(t, "search", "nonexistent topic", "--docs", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "No results")
}

func TestStatsCommand(t *testing.T) {
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "a.txt"), []byte("some content"), 0o644))

	_, err := runCommand(t, "index", "--docs", docs)
	require.NoError(t, err)

	out, err := runCommand(t, "stats", "--docs", docs, "--json")
	require.NoError(t, err)

	var stats statsJSON
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Tracked)
	assert.GreaterOrEqual(t, stats.Chunks, 1)
}

func TestRootCommand_UnknownSubcommand(t *testing.T) {
	_, err := runCommand(t, "bogus")
	require.Error(t, err)
}
