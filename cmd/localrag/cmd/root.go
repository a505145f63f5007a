// Package cmd provides the CLI commands for localrag.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localrag/localrag/internal/config"
	"github.com/localrag/localrag/pkg/version"
)

// rootFlags are shared across subcommands.
type rootFlags struct {
	docs       string
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command for the localrag CLI.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "localrag",
		Short: "Local document search over a watched folder",
		Long: `localrag watches a folder of documents, keeps a hybrid keyword and
semantic index in sync with it, and serves search to MCP clients.

Run 'localrag serve' in your documents directory to get started.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("localrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&flags.docs, "docs", "d", ".", "Documents directory to index")
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to config file (default <docs>/localrag.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newIndexCmd(flags))
	cmd.AddCommand(newSearchCmd(flags))
	cmd.AddCommand(newStatsCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with signal-aware context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig loads configuration for the shared flags, applying the
// --log-level override last.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.docs, flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Server.LogLevel = flags.logLevel
	}
	return cfg, nil
}
