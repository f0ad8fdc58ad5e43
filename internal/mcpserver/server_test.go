package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/gleaner/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t, testutil.SamplePapers(3))
	return New(env.Service, "test"), env
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct call helper; dispatch to the handlers.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_records":
		result, err = srv.searchRecords(ctx, req)
	case "get_record":
		result, err = srv.getRecord(ctx, req)
	case "list_records":
		result, err = srv.listRecords(ctx, req)
	case "capture_note":
		result, err = srv.captureNote(ctx, req)
	case "record_stats":
		result, err = srv.recordStats(ctx, req)
	case "search_papers":
		result, err = srv.searchPapers(ctx, req)
	case "save_papers":
		result, err = srv.savePapers(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCaptureAndGetRecord(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "capture_note", map[string]any{
		"text":    "Idea: index everything #search",
		"channel": "ideas",
	})
	text := resultText(r)
	if r.IsError || !strings.HasPrefix(text, "saved text 001: ideas/001-") {
		t.Fatalf("capture result = %q", text)
	}

	r = callTool(t, srv, "get_record", map[string]any{"id": "001"})
	text = resultText(r)
	if !strings.Contains(text, "Idea: index everything #search") || !strings.Contains(text, "channel: ideas") {
		t.Errorf("get result = %q", text)
	}
}

func TestCaptureNote_DefaultChannelAndValidation(t *testing.T) {
	srv, env := testServer(t)

	r := callTool(t, srv, "capture_note", map[string]any{"text": "no channel given"})
	if r.IsError {
		t.Fatalf("capture error: %s", resultText(r))
	}
	rec, err := env.Store.Get("001")
	if err != nil || rec.Channel != DefaultChannel {
		t.Errorf("record = %+v, %v", rec, err)
	}

	r = callTool(t, srv, "capture_note", map[string]any{"text": "  "})
	if !r.IsError {
		t.Error("expected error for empty capture")
	}
}

func TestGetRecordMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_record", map[string]any{"id": "999"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "NotFound:") {
		t.Errorf("missing record = %q (error %v)", resultText(r), r.IsError)
	}
}

func TestListSearchAndStats(t *testing.T) {
	srv, _ := testServer(t)
	for _, text := range []string{"alpha centauri", "beta release"} {
		callTool(t, srv, "capture_note", map[string]any{"text": text, "channel": "space"})
	}

	text := resultText(callTool(t, srv, "list_records", map[string]any{"channel": "space"}))
	lines := strings.Split(text, "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "002\tspace\ttext\tbeta release") {
		t.Errorf("list = %q", text)
	}

	text = resultText(callTool(t, srv, "search_records", map[string]any{"query": "centauri"}))
	if !strings.Contains(text, `"record_id": "001"`) {
		t.Errorf("search = %q", text)
	}
	text = resultText(callTool(t, srv, "search_records", map[string]any{"query": "zzzz"}))
	if text != "no matches" {
		t.Errorf("empty search = %q", text)
	}

	text = resultText(callTool(t, srv, "record_stats", nil))
	if !strings.Contains(text, `"total": 2`) {
		t.Errorf("stats = %q", text)
	}
}

func TestSearchAndSavePapers(t *testing.T) {
	srv, env := testServer(t)

	r := callTool(t, srv, "save_papers", map[string]any{"selection": "1"})
	if !r.IsError {
		t.Error("save before search should fail")
	}

	text := resultText(callTool(t, srv, "search_papers", map[string]any{"query": "graphs"}))
	if !strings.HasPrefix(text, "1. [2401.00001] Paper A") {
		t.Errorf("search = %q", text)
	}

	r = callTool(t, srv, "save_papers", map[string]any{"selection": "3,1"})
	if r.IsError || !strings.HasPrefix(resultText(r), "Saved 2 of 2") {
		t.Errorf("save = %q", resultText(r))
	}
	if env.Store.Len() != 2 {
		t.Errorf("store len = %d", env.Store.Len())
	}

	r = callTool(t, srv, "save_papers", map[string]any{"selection": "0,9"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "NoValidSelection") {
		t.Errorf("invalid save = %q", resultText(r))
	}
}

func TestMissingRequiredArgs(t *testing.T) {
	srv, _ := testServer(t)
	for _, name := range []string{"search_records", "get_record", "search_papers", "save_papers"} {
		if r := callTool(t, srv, name, map[string]any{}); !r.IsError {
			t.Errorf("%s without args should fail", name)
		}
	}
}

func TestRecordFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readRecordFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != recordFormatURI || !strings.Contains(tc.Text, "kind: paper") {
		t.Errorf("resource = %+v", contents[0])
	}
}
