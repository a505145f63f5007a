package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// statsJSON is the JSON shape for the stats command output.
type statsJSON struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Vectors   int `json:"vectors"`
	Tracked   int `json:"tracked"`
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(flags, true)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.index.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := statsJSON{
				Documents: stats.Documents,
				Chunks:    stats.Chunks,
				Vectors:   stats.Vectors,
				Tracked:   a.state.Len(),
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Documents: %d\n", out.Documents)
			fmt.Fprintf(w, "Chunks:    %d\n", out.Chunks)
			fmt.Fprintf(w, "Vectors:   %d\n", out.Vectors)
			fmt.Fprintf(w, "Tracked:   %d\n", out.Tracked)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")
	return cmd
}
