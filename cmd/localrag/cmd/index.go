package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run one reconciliation pass and exit",
		Long: `Index runs a single reconciliation pass: it scans the documents
directory, indexes new and changed files, removes deleted ones, and
persists the state snapshot and indexes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(flags, true)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.reconciler.Reconcile(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"Indexed %d files in %s: %d new, %d changed, %d deleted, %d unchanged, %d skipped, %d failed\n",
				summary.Scanned, summary.Duration.Round(time.Millisecond),
				summary.New, summary.Changed, summary.Deleted,
				summary.Unchanged, summary.Skipped, summary.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the summary as JSON")
	return cmd
}
