package cmd

import (
	"log/slog"
	"os"

	"github.com/localrag/localrag/internal/config"
	"github.com/localrag/localrag/internal/embed"
	"github.com/localrag/localrag/internal/index"
	"github.com/localrag/localrag/internal/logging"
	"github.com/localrag/localrag/internal/reconcile"
	"github.com/localrag/localrag/internal/state"
	"github.com/localrag/localrag/internal/store"
)

// app holds the wired-up application components shared by the
// subcommands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	logCleanup func()
	lock       *state.DirLock
	state      *state.Store
	index      *index.Index
	reconciler *reconcile.Reconciler
}

// openApp loads config, acquires the data directory lock, and opens the
// state store and both indexes. logToStderr should be false when stdout
// and stderr belong to an MCP client.
func openApp(flags *rootFlags, logToStderr bool) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = logToStderr
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, logCleanup: logCleanup}

	a.lock = state.NewDirLock(cfg.LockPath())
	if err := a.lock.Acquire(); err != nil {
		a.close()
		return nil, err
	}

	a.state = state.NewStore(cfg.SnapshotPath(), logger)
	if err := a.state.Load(); err != nil {
		a.close()
		return nil, err
	}

	keyword, err := store.NewSQLiteKeywordIndex(cfg.KeywordIndexPath())
	if err != nil {
		a.close()
		return nil, err
	}

	embedder := embed.NewCachedEmbedder(embed.NewStaticEmbedder(), cfg.Embedding.CacheSize)

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		_ = keyword.Close()
		a.close()
		return nil, err
	}
	if _, statErr := os.Stat(cfg.VectorIndexPath()); statErr == nil {
		if err := vector.Load(cfg.VectorIndexPath()); err != nil {
			// A broken vector index is rebuilt from the keyword index
			// contents on the next full pass.
			logger.Warn("vector index unreadable, starting empty", "error", err)
		}
	}

	a.index = index.New(keyword, vector, embedder, index.Options{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
		Weights: index.Weights{
			Keyword: cfg.Search.KeywordWeight,
			Vector:  cfg.Search.VectorWeight,
		},
		RRFConstant: cfg.Search.RRFConstant,
		MaxResults:  cfg.Search.MaxResults,
		VectorPath:  cfg.VectorIndexPath(),
	}, logger)

	a.reconciler = reconcile.New(cfg.Paths.Documents, a.state, a.index, reconcile.Options{
		Workers:   cfg.Reconcile.Workers,
		BatchSize: cfg.Reconcile.BatchSize,
		Signature: state.SignatureOptions{
			FullHashLimit: cfg.Signature.FullHashLimit,
			WindowSize:    cfg.Signature.WindowSize,
		},
	}, logger)

	return a, nil
}

// close releases everything openApp acquired, in reverse order.
func (a *app) close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.logger.Warn("index close failed", "error", err)
		}
	}
	if a.lock != nil {
		_ = a.lock.Release()
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
}
