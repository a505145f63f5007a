package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localrag/localrag/internal/index"
)

// searchResultJSON is the JSON shape for one CLI search result.
type searchResultJSON struct {
	Path        string  `json:"path"`
	Content     string  `json:"content"`
	Score       float64 `json:"score"`
	ChunkIndex  int     `json:"chunk_index"`
	ChunkCount  int     `json:"chunk_count"`
	InBothLists bool    `json:"in_both_lists"`
}

func newSearchCmd(flags *rootFlags) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search combines keyword (BM25) and semantic matching with
Reciprocal Rank Fusion.

Examples:
  localrag search "quarterly revenue targets"
  localrag search "deployment checklist" --limit 5 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			a, err := openApp(flags, true)
			if err != nil {
				return err
			}
			defer a.close()

			results, err := a.index.Search(cmd.Context(), query, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				out := make([]searchResultJSON, 0, len(results))
				for _, r := range results {
					out = append(out, searchResultJSON{
						Path:        r.Chunk.Source.Path(),
						Content:     r.Chunk.Content,
						Score:       r.Score,
						ChunkIndex:  r.Chunk.Index,
						ChunkCount:  r.Chunk.Count,
						InBothLists: r.InBothLists,
					})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			return printSearchResults(cmd, query, results)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func printSearchResults(cmd *cobra.Command, query string, results []index.Result) error {
	w := cmd.OutOrStdout()

	if len(results) == 0 {
		fmt.Fprintf(w, "No results for %q\n", query)
		return nil
	}

	fmt.Fprintf(w, "Results for %q:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s (chunk %d/%d, score %.3f)\n",
			i+1, r.Chunk.Source.Path(), r.Chunk.Index+1, r.Chunk.Count, r.Score)
		fmt.Fprintf(w, "   %s\n\n", snippet(r.Chunk.Content, 200))
	}
	return nil
}

// snippet trims content to a single line of at most n characters.
func snippet(content string, n int) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) > n {
		content = content[:n] + "..."
	}
	return content
}
