// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes gleaner tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/batch"
	"github.com/starford/gleaner/internal/enrich"
	"github.com/starford/gleaner/internal/index"
	"github.com/starford/gleaner/internal/ingest"
	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/recordstore"
	"github.com/starford/gleaner/internal/services/arxiv"
)

// Service is the ingestion surface exposed as tools.
type Service interface {
	Capture(ctx context.Context, item enrich.Item) (models.Record, error)
	CapturePaper(ctx context.Context, channel, id, note string) (models.Record, error)
	Document(id string) (string, error)
	Recent(limit int, channel string) []models.Record
	Search(query string, limit int) ([]index.SearchResult, error)
	Stats() recordstore.Stats
	SearchPapers(ctx context.Context, channel, query string) ([]arxiv.Paper, error)
	SavePapers(ctx context.Context, channel, expr string, progress func(batch.Item)) (batch.Outcome, error)
}

var _ Service = (*ingest.Service)(nil)

// DefaultChannel receives captures that name no channel.
const DefaultChannel = "mcp"

const recordFormatURI = "gleaner://record-format"

// Server wraps the MCP server with gleaner tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all gleaner tools registered.
func New(svc Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"gleaner",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Full-text search through rendered record documents."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.searchRecords)

	s.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Read the rendered Markdown document of a record."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record ID, e.g. 007")),
	), s.getRecord)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List the newest records, optionally for one channel."),
		mcp.WithString("channel", mcp.Description("Channel to filter by (empty for all)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 10)")),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("capture_note",
		mcp.WithDescription("Capture text, or an article when url is given, as a new record. "+
			"Inline #hashtags become tags. See the gleaner://record-format resource for the stored layout."),
		mcp.WithString("text", mcp.Description("Note text")),
		mcp.WithString("url", mcp.Description("Article URL to fetch and summarize")),
		mcp.WithString("channel", mcp.Description("Channel to file the record under (default mcp)")),
	), s.captureNote)

	s.mcp.AddTool(mcp.NewTool("record_stats",
		mcp.WithDescription("Count records by kind and by channel."),
	), s.recordStats)

	s.mcp.AddTool(mcp.NewTool("search_papers",
		mcp.WithDescription("Search arXiv. Results are numbered from 1 and remembered for save_papers."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
		mcp.WithString("channel", mcp.Description("Channel that owns the result list (default mcp)")),
	), s.searchPapers)

	s.mcp.AddTool(mcp.NewTool("save_papers",
		mcp.WithDescription("Save papers from the last search_papers result. "+
			"The selection lists positions and ranges, e.g. \"1,3-5\"."),
		mcp.WithString("selection", mcp.Required(), mcp.Description("Selection expression")),
		mcp.WithString("channel", mcp.Description("Channel of the earlier search (default mcp)")),
	), s.savePapers)

	s.mcp.AddResource(
		mcp.NewResource(recordFormatURI, "Record Document Format",
			mcp.WithResourceDescription("Layout of the Markdown documents rendered for records."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	if k := apperr.Kind(err); k != "Unknown" {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", k, err.Error()))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func channelArg(req mcp.CallToolRequest) string {
	if ch := strings.TrimSpace(req.GetString("channel", "")); ch != "" {
		return ch
	}
	return DefaultChannel
}

func (s *Server) searchRecords(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(query, req.GetInt("limit", 20))
	if err != nil {
		return toolError(err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getRecord(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.Document(id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(doc), nil
}

func (s *Server) listRecords(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs := s.svc.Recent(req.GetInt("limit", 10), req.GetString("channel", ""))
	if len(recs) == 0 {
		return mcp.NewToolResultText("no records"), nil
	}
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = fmt.Sprintf("%s\t%s\t%s\t%s", r.ID, r.Channel, r.Kind, models.Truncate(r.Title(), 80))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) captureNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	url := strings.TrimSpace(req.GetString("url", ""))
	if strings.TrimSpace(text) == "" && url == "" {
		return mcp.NewToolResultError("text or url is required"), nil
	}
	item := enrich.Item{Kind: models.KindText, Channel: channelArg(req), Text: text}
	if url != "" {
		item.Kind = models.KindArticle
		item.URL = url
	}
	rec, err := s.svc.Capture(ctx, item)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved %s %s: %s", rec.Kind, rec.ID, rec.RenderedPath)), nil
}

func (s *Server) recordStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Stats()), nil
}

func (s *Server) searchPapers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	papers, err := s.svc.SearchPapers(ctx, channelArg(req), query)
	if err != nil {
		return toolError(err), nil
	}
	if len(papers) == 0 {
		return mcp.NewToolResultText("no papers found"), nil
	}
	var b strings.Builder
	for i, p := range papers {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, p.ID, p.Title)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) savePapers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := req.RequireString("selection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.SavePapers(ctx, channelArg(req), expr, nil)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(ingest.FormatOutcome(out)), nil
}

func (s *Server) readRecordFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      recordFormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormat,
		},
	}, nil
}
