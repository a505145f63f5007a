// Package config loads and validates localrag configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Config file (localrag.yaml in the documents directory, or an
//     explicit path)
//  3. Environment variables (LOCALRAG_*)
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/localrag/localrag/internal/errors"
)

// Config represents the complete localrag configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Signature SignatureConfig `yaml:"signature" json:"signature"`
	Reconcile ReconcileConfig `yaml:"reconcile" json:"reconcile"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// PathsConfig configures the watched documents directory and the data
// directory holding the state snapshot and index files.
type PathsConfig struct {
	// Documents is the directory tree to watch and index.
	Documents string `yaml:"documents" json:"documents"`
	// Data is where the state snapshot, keyword index, and vector index live.
	// Defaults to <documents>/.localrag.
	Data string `yaml:"data" json:"data"`
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	// Size is the target chunk size in characters.
	Size int `yaml:"size" json:"size"`
	// Overlap is the number of characters shared between adjacent chunks.
	Overlap int `yaml:"overlap" json:"overlap"`
}

// SignatureConfig configures content signature computation.
type SignatureConfig struct {
	// FullHashLimit is the file size in bytes up to which the whole
	// content is hashed. Larger files hash head and tail windows only.
	FullHashLimit int64 `yaml:"full_hash_limit" json:"full_hash_limit"`
	// WindowSize is the size in bytes of the head and tail windows
	// hashed for files above FullHashLimit.
	WindowSize int64 `yaml:"window_size" json:"window_size"`
}

// ReconcileConfig configures the reconciliation loop.
type ReconcileConfig struct {
	// Workers is the number of files processed concurrently.
	Workers int `yaml:"workers" json:"workers"`
	// Debounce is how long the watcher waits for a file to settle
	// before emitting an event (e.g., "2s").
	Debounce string `yaml:"debounce" json:"debounce"`
	// BatchSize is how many files are processed between snapshot saves.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// SearchConfig configures hybrid search parameters.
type SearchConfig struct {
	// KeywordWeight is the weight for BM25 keyword matching (0.0-1.0).
	// Must sum to 1.0 with VectorWeight.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	// VectorWeight is the weight for vector similarity (0.0-1.0).
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	// RRFConstant is the RRF fusion smoothing parameter (k).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// MaxResults caps the number of results returned per query.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedder: "static" is the only built-in.
	Provider string `yaml:"provider" json:"provider"`
	// Dimensions is the embedding vector size.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// CacheSize is the number of embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// BatchSize is the number of texts embedded per batch.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Documents: ".",
			Data:      "",
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Signature: SignatureConfig{
			FullHashLimit: 1 << 20, // 1 MiB
			WindowSize:    64 << 10,
		},
		Reconcile: ReconcileConfig{
			Workers:   runtime.NumCPU(),
			Debounce:  "2s",
			BatchSize: 5,
		},
		Search: SearchConfig{
			KeywordWeight: 0.5,
			VectorWeight:  0.5,
			// k=60 is the standard RRF smoothing constant.
			RRFConstant: 60,
			MaxResults:  10,
		},
		Embedding: EmbeddingConfig{
			Provider:   "static",
			Dimensions: 256,
			CacheSize:  2048,
			BatchSize:  32,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// ConfigFileName is the per-directory config file name.
const ConfigFileName = "localrag.yaml"

// Load loads configuration for the given documents directory.
// explicit, when non-empty, points at a config file and must exist.
func Load(dir, explicit string) (*Config, error) {
	cfg := NewConfig()
	cfg.Paths.Documents = dir

	if explicit != "" {
		if err := cfg.loadYAML(explicit); err != nil {
			return nil, err
		}
	} else {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		}
		// No config file is fine, defaults apply.
	}

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.ErrCodeConfigNotFound,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.Documents != "" {
		c.Paths.Documents = other.Paths.Documents
	}
	if other.Paths.Data != "" {
		c.Paths.Data = other.Paths.Data
	}

	if other.Chunking.Size != 0 {
		c.Chunking.Size = other.Chunking.Size
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	if other.Signature.FullHashLimit != 0 {
		c.Signature.FullHashLimit = other.Signature.FullHashLimit
	}
	if other.Signature.WindowSize != 0 {
		c.Signature.WindowSize = other.Signature.WindowSize
	}

	if other.Reconcile.Workers != 0 {
		c.Reconcile.Workers = other.Reconcile.Workers
	}
	if other.Reconcile.Debounce != "" {
		c.Reconcile.Debounce = other.Reconcile.Debounce
	}
	if other.Reconcile.BatchSize != 0 {
		c.Reconcile.BatchSize = other.Reconcile.BatchSize
	}

	// 0 is not a practical weight, so only non-zero values merge.
	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies LOCALRAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LOCALRAG_DOCUMENTS"); v != "" {
		c.Paths.Documents = v
	}
	if v := os.Getenv("LOCALRAG_DATA_DIR"); v != "" {
		c.Paths.Data = v
	}
	if v := os.Getenv("LOCALRAG_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("LOCALRAG_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("LOCALRAG_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("LOCALRAG_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Reconcile.Workers = n
		}
	}
	if v := os.Getenv("LOCALRAG_DEBOUNCE"); v != "" {
		c.Reconcile.Debounce = v
	}
	if v := os.Getenv("LOCALRAG_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("LOCALRAG_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// normalize resolves relative paths and fills derived defaults.
func (c *Config) normalize() error {
	docs, err := filepath.Abs(c.Paths.Documents)
	if err != nil {
		return errors.New(errors.ErrCodeInvalidPath, "failed to resolve documents directory", err)
	}
	c.Paths.Documents = docs

	if c.Paths.Data == "" {
		c.Paths.Data = filepath.Join(docs, ".localrag")
	} else {
		data, err := filepath.Abs(c.Paths.Data)
		if err != nil {
			return errors.New(errors.ErrCodeInvalidPath, "failed to resolve data directory", err)
		}
		c.Paths.Data = data
	}

	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight), nil)
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight), nil)
	}

	sum := c.Search.KeywordWeight + c.Search.VectorWeight
	if math.Abs(sum-1.0) > 0.01 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("keyword_weight + vector_weight must equal 1.0, got %.2f", sum), nil)
	}

	if c.Search.MaxResults <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("max_results must be positive, got %d", c.Search.MaxResults), nil)
	}

	if c.Chunking.Size <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("chunking.size must be positive, got %d", c.Chunking.Size), nil)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap), nil)
	}

	if c.Signature.FullHashLimit <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("signature.full_hash_limit must be positive, got %d", c.Signature.FullHashLimit), nil)
	}
	if c.Signature.WindowSize <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("signature.window_size must be positive, got %d", c.Signature.WindowSize), nil)
	}

	if c.Reconcile.Workers <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("reconcile.workers must be positive, got %d", c.Reconcile.Workers), nil)
	}
	if _, err := time.ParseDuration(c.Reconcile.Debounce); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("reconcile.debounce is not a valid duration: %s", c.Reconcile.Debounce), err)
	}
	if c.Reconcile.BatchSize <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("reconcile.batch_size must be positive, got %d", c.Reconcile.BatchSize), nil)
	}

	if c.Embedding.Provider != "" && strings.ToLower(c.Embedding.Provider) != "static" {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("embedding.provider must be 'static', got %s", c.Embedding.Provider), nil)
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions), nil)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("server.transport must be 'stdio', got %s", c.Server.Transport), nil)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel), nil)
	}

	return nil
}

// DebounceDuration returns the parsed debounce interval.
// Validate guarantees the value parses.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Reconcile.Debounce)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.New(errors.ErrCodeInternal, "failed to marshal config", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid, "failed to write config file", err)
	}

	return nil
}

// SnapshotPath returns the path of the state snapshot file.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Paths.Data, "state.json")
}

// KeywordIndexPath returns the path of the SQLite FTS index.
func (c *Config) KeywordIndexPath() string {
	return filepath.Join(c.Paths.Data, "keyword.db")
}

// VectorIndexPath returns the path of the HNSW vector index.
func (c *Config) VectorIndexPath() string {
	return filepath.Join(c.Paths.Data, "vector.hnsw")
}

// LockPath returns the path of the data-dir ownership lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.Data, ".lock")
}
