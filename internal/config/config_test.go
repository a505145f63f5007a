package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, int64(1<<20), cfg.Signature.FullHashLimit)
	assert.Equal(t, int64(64<<10), cfg.Signature.WindowSize)
	assert.Equal(t, "2s", cfg.Reconcile.Debounce)
	assert.Equal(t, 5, cfg.Reconcile.BatchSize)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.InDelta(t, 1.0, cfg.Search.KeywordWeight+cfg.Search.VectorWeight, 0.001)
	assert.Equal(t, "stdio", cfg.Server.Transport)
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Paths.Documents)
	assert.Equal(t, filepath.Join(dir, ".localrag"), cfg.Paths.Data)
	assert.Equal(t, 1000, cfg.Chunking.Size)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	// Given: a config file tuning chunking and search
	dir := t.TempDir()
	yaml := `
chunking:
  size: 500
  overlap: 50
search:
  keyword_weight: 0.7
  vector_weight: 0.3
  max_results: 25
reconcile:
  debounce: 500ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	// When: configuration is loaded
	cfg, err := Load(dir, "")
	require.NoError(t, err)

	// Then: file values override defaults, untouched values remain
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 0.7, cfg.Search.KeywordWeight)
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDuration())
	assert.Equal(t, 60, cfg.Search.RRFConstant, "unset values keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "server:\n  log_level: info\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	t.Setenv("LOCALRAG_LOG_LEVEL", "debug")
	t.Setenv("LOCALRAG_RRF_CONSTANT", "90")

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 90, cfg.Search.RRFConstant)
}

func TestLoad_ExplicitConfigPathMustExist(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("{{{not yaml"), 0o644))

	_, err := Load(dir, "")
	assert.Error(t, err)
}

func TestValidate_WeightSum(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.KeywordWeight = 0.9
	cfg.Search.VectorWeight = 0.3

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must equal 1.0")
}

func TestValidate_OverlapMustBeSmallerThanSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunking.Size = 100
	cfg.Chunking.Overlap = 100

	assert.Error(t, cfg.Validate())
}

func TestValidate_BadDebounce(t *testing.T) {
	cfg := NewConfig()
	cfg.Reconcile.Debounce = "soon"

	assert.Error(t, cfg.Validate())
}

func TestValidate_Transport(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.Transport = "sse"

	assert.Error(t, cfg.Validate())
}

func TestDataPaths(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.Paths.Data, "state.json"), cfg.SnapshotPath())
	assert.Equal(t, filepath.Join(cfg.Paths.Data, "keyword.db"), cfg.KeywordIndexPath())
	assert.Equal(t, filepath.Join(cfg.Paths.Data, "vector.hnsw"), cfg.VectorIndexPath())
	assert.Equal(t, filepath.Join(cfg.Paths.Data, ".lock"), cfg.LockPath())
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Chunking.Size = 750

	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 750, loaded.Chunking.Size)
}
