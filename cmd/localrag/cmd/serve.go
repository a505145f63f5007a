package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/localrag/localrag/internal/mcp"
	"github.com/localrag/localrag/internal/watcher"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server with continuous reconciliation",
		Long: `Serve runs localrag as an MCP server over stdio.

On startup it reconciles the index with the documents directory, then
watches for file changes and keeps the index in sync while serving
search, stats, and status tools to MCP clients.

Stdout carries the MCP JSON-RPC stream; all logs go to the log file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	return cmd
}

func runServe(ctx context.Context, flags *rootFlags) error {
	// Stdout belongs to the MCP client; keep stderr quiet too so
	// misbehaving clients that merge streams stay usable.
	a, err := openApp(flags, false)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := watcher.New(watcher.Options{
		Debounce: a.cfg.DebounceDuration(),
	}, a.logger)
	if err != nil {
		return err
	}

	watcherDone := make(chan error, 1)
	go func() {
		watcherDone <- w.Start(ctx, a.cfg.Paths.Documents)
	}()
	go func() {
		for err := range w.Errors() {
			a.logger.Warn("watcher error", "error", err)
		}
	}()

	reconcilerDone := make(chan error, 1)
	go func() {
		reconcilerDone <- a.reconciler.Run(ctx, w.Events())
	}()

	server, err := mcp.NewServer(a.index, a.reconciler, a.logger)
	if err != nil {
		return err
	}

	serveErr := server.Serve(ctx, a.cfg.Server.Transport)

	// Shut down the background loops before closing the stores.
	cancel()
	_ = w.Stop()
	<-watcherDone
	if err := <-reconcilerDone; err != nil && err != context.Canceled {
		a.logger.Warn("reconciler stopped with error", "error", err)
	}

	if serveErr == context.Canceled {
		return nil
	}
	return serveErr
}
