package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/localrag/localrag/internal/index"
	"github.com/localrag/localrag/internal/reconcile"
	"github.com/localrag/localrag/pkg/version"
)

// Searcher is the slice of the index the server needs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]index.Result, error)
	Stats(ctx context.Context) (index.Stats, error)
}

// StatusReporter reports reconciler state.
type StatusReporter interface {
	Status() reconcile.Status
}

// Server bridges MCP clients with the local document index.
// Stdout carries JSON-RPC, so all logging goes to stderr or a file.
type Server struct {
	mcp    *mcp.Server
	index  Searcher
	status StatusReporter
	logger *slog.Logger
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to execute"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"list of search results"`
}

// SearchResultOutput defines a single search result.
type SearchResultOutput struct {
	Path        string  `json:"path" jsonschema:"path of the source document"`
	Content     string  `json:"content" jsonschema:"matched content snippet"`
	Score       float64 `json:"score" jsonschema:"relevance score between 0 and 1"`
	ChunkIndex  int     `json:"chunk_index" jsonschema:"position of the chunk within the document"`
	ChunkCount  int     `json:"chunk_count" jsonschema:"total chunks in the document"`
	InBothLists bool    `json:"in_both_lists,omitempty" jsonschema:"true if matched by both keyword and vector search"`
}

// StatsInput is the (empty) input schema for the stats tool.
type StatsInput struct{}

// StatsOutput defines the output schema for the stats tool.
type StatsOutput struct {
	Documents int `json:"documents" jsonschema:"number of indexed documents"`
	Chunks    int `json:"chunks" jsonschema:"number of indexed chunks"`
	Vectors   int `json:"vectors" jsonschema:"number of stored vectors"`
}

// StatusInput is the (empty) input schema for the status tool.
type StatusInput struct{}

// StatusOutput defines the output schema for the status tool.
type StatusOutput struct {
	Phase     string `json:"phase" jsonschema:"reconciler phase: starting, loading, cleaning, processing, or steady"`
	Tracked   int    `json:"tracked" jsonschema:"number of tracked files"`
	LastRun   string `json:"last_run,omitempty" jsonschema:"when the last reconciliation pass finished, RFC3339"`
	Scanned   int    `json:"scanned" jsonschema:"files scanned in the last pass"`
	New       int    `json:"new" jsonschema:"files indexed for the first time in the last pass"`
	Changed   int    `json:"changed" jsonschema:"files reindexed in the last pass"`
	Deleted   int    `json:"deleted" jsonschema:"files removed in the last pass"`
	Unchanged int    `json:"unchanged" jsonschema:"files untouched in the last pass"`
	Skipped   int    `json:"skipped" jsonschema:"files skipped due to permanent extraction failures"`
	Failed    int    `json:"failed" jsonschema:"files that failed transiently and will be retried"`
}

// NewServer creates an MCP server over the given index and reconciler.
func NewServer(searcher Searcher, status StatusReporter, logger *slog.Logger) (*Server, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		index:  searcher,
		status: status,
		logger: logger.With("component", "mcp"),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "localrag",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search the indexed documents with hybrid keyword and semantic matching. Returns the most relevant chunks with their source paths and scores.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "stats",
		Description: "Get index statistics: how many documents, chunks, and vectors are currently indexed.",
	}, s.statsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "status",
		Description: "Get the reconciler status: current phase and counts from the last reconciliation pass. Use this to check whether indexing is complete.",
	}, s.statusHandler)

	s.logger.Info("MCP tools registered", "count", 3)
}

// searchHandler is the MCP SDK handler for the search tool.
func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must be non-empty")
	}

	limit := clampLimit(input.Limit, 10, 1, 50)

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("search started",
		"request_id", requestID, "query", input.Query, "limit", limit)

	results, err := s.index.Search(ctx, input.Query, limit)
	if err != nil {
		s.logger.Error("search failed",
			"request_id", requestID, "duration", time.Since(start), "error", err)
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		"request_id", requestID, "duration", time.Since(start), "result_count", len(results))

	output := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		output.Results = append(output.Results, SearchResultOutput{
			Path:        r.Chunk.Source.Path(),
			Content:     r.Chunk.Content,
			Score:       r.Score,
			ChunkIndex:  r.Chunk.Index,
			ChunkCount:  r.Chunk.Count,
			InBothLists: r.InBothLists,
		})
	}

	return nil, output, nil
}

// statsHandler is the MCP SDK handler for the stats tool.
func (s *Server) statsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	StatsOutput,
	error,
) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, MapError(err)
	}
	return nil, StatsOutput{
		Documents: stats.Documents,
		Chunks:    stats.Chunks,
		Vectors:   stats.Vectors,
	}, nil
}

// statusHandler is the MCP SDK handler for the status tool.
func (s *Server) statusHandler(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	if s.status == nil {
		return nil, StatusOutput{Phase: string(reconcile.PhaseSteady)}, nil
	}

	st := s.status.Status()
	out := StatusOutput{
		Phase:     string(st.Phase),
		Tracked:   st.Tracked,
		Scanned:   st.LastSummary.Scanned,
		New:       st.LastSummary.New,
		Changed:   st.LastSummary.Changed,
		Deleted:   st.LastSummary.Deleted,
		Unchanged: st.LastSummary.Unchanged,
		Skipped:   st.LastSummary.Skipped,
		Failed:    st.LastSummary.Failed,
	}
	if !st.LastRun.IsZero() {
		out.LastRun = st.LastRun.Format(time.RFC3339)
	}
	return nil, out, nil
}

// Serve runs the server on the given transport until the context is
// cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", "transport", transport)

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", "error", err)
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// clampLimit clamps a requested limit to [min, max], using def when the
// request is zero or negative.
func clampLimit(requested, def, min, max int) int {
	if requested <= 0 {
		return def
	}
	if requested < min {
		return min
	}
	if requested > max {
		return max
	}
	return requested
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
