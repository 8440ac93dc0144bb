package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/xiang66/ccls/internal/config"
	"github.com/xiang66/ccls/internal/indexer"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.CacheDir = ""
	cfg.Workers = 2

	p, err := indexer.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	s, err := newServer(p)
	require.NoError(t, err)
	return s
}

func setupProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"h.h":  "void f();\n",
		"a.cc": "#include \"h.h\"\nvoid f() {}\nint main() { f(); return 0; }\n",
		"b.cc": "#include \"h.h\"\nvoid g() { f(); }\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return root
}

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func call(t *testing.T, h handler, args map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		return nil, err
	}
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out, nil
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code, mcpErr.Message)
}

func locations(t *testing.T, out map[string]interface{}) []protocol.Location {
	t.Helper()
	raw, err := json.Marshal(out["locations"])
	require.NoError(t, err)
	var locs []protocol.Location
	require.NoError(t, json.Unmarshal(raw, &locs))
	return locs
}

func TestServerInitialization(t *testing.T) {
	s := newTestServer(t)
	assert.NotNil(t, s.mcp, "MCP server should be initialized")
	assert.NotNil(t, s.storage, "Storage should be initialized")
	assert.NotNil(t, s.pipeline, "Pipeline should be initialized")
}

func TestNewServerOnDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "db", "index.db")
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.Workers = 1

	s, err := NewServer(cfg)
	require.NoError(t, err)
	defer func() { _ = s.pipeline.Close() }()
	assert.FileExists(t, cfg.DBPath)
	assert.DirExists(t, cfg.CacheDir)
}

func TestNavigationBeforeIndexing(t *testing.T) {
	s := newTestServer(t)
	_, err := call(t, s.handleFindDefinition, map[string]interface{}{"path": "/src/a.cc", "line": 0, "column": 0})
	requireCode(t, err, ErrorCodeNotIndexed)

	_, err = call(t, s.handleIndexFile, map[string]interface{}{"path": "/src/a.cc"})
	requireCode(t, err, ErrorCodeNotIndexed)
}

func TestIndexProjectValidation(t *testing.T) {
	s := newTestServer(t)

	_, err := call(t, s.handleIndexProject, map[string]interface{}{})
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = call(t, s.handleIndexProject, map[string]interface{}{"path": "relative/dir"})
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = call(t, s.handleIndexProject, map[string]interface{}{"path": filepath.Join(t.TempDir(), "missing")})
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = call(t, s.handleIndexProject, map[string]interface{}{"path": t.TempDir()})
	requireCode(t, err, ErrorCodeProjectNotFound)
}

func TestIndexAndNavigate(t *testing.T) {
	s := newTestServer(t)
	root := setupProject(t)
	a, b := filepath.Join(root, "a.cc"), filepath.Join(root, "b.cc")

	out, err := call(t, s.handleIndexProject, map[string]interface{}{"path": root})
	require.NoError(t, err)
	assert.Equal(t, true, out["indexed"])
	assert.EqualValues(t, 2, out["files_indexed"])
	assert.EqualValues(t, 3, out["files_written"])

	// f() called from g
	out, err = call(t, s.handleFindDefinition, map[string]interface{}{"path": b, "line": 1, "column": 11})
	require.NoError(t, err)
	assert.Equal(t, "c:@F@f#", out["usr"])
	assert.Equal(t, "f", out["name"], "the call site row in b.cc has no name of its own")
	defs := locations(t, out)
	require.Len(t, defs, 1)
	assert.Equal(t, protocol.DocumentURI(uri.File(a)), defs[0].URI)
	assert.Equal(t, protocol.Position{Line: 1, Character: 5}, defs[0].Range.Start)

	out, err = call(t, s.handleFindReferences, map[string]interface{}{"path": b, "line": 1, "column": 11})
	require.NoError(t, err)
	assert.EqualValues(t, 2, out["count"])
	assert.Equal(t, "f", out["name"])

	out, err = call(t, s.handleFindReferences, map[string]interface{}{
		"path": b, "line": 1, "column": 11, "include_declaration": true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, out["count"], "two calls, the definition and the header declaration")

	_, err = call(t, s.handleFindDefinition, map[string]interface{}{"path": b, "line": 5, "column": 0})
	requireCode(t, err, ErrorCodeSymbolNotFound)

	_, err = call(t, s.handleFindDefinition, map[string]interface{}{"path": b})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestOpenFileIndexesSources(t *testing.T) {
	s := newTestServer(t)
	root := setupProject(t)
	b := filepath.Join(root, "b.cc")

	_, err := call(t, s.handleIndexProject, map[string]interface{}{"path": root})
	require.NoError(t, err)

	out, err := call(t, s.handleOpenFile, map[string]interface{}{
		"path":    b,
		"content": "#include \"h.h\"\nvoid g() { f(); }\nvoid k() { g(); }\n",
		"args":    []interface{}{"-std=c++17"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out["indexed"])
	require.Len(t, out["updates"], 1)

	args, ok := s.pipeline.WorkingFiles().Args(b)
	require.True(t, ok)
	assert.Equal(t, []string{"-std=c++17"}, args)

	// k() now calls g()
	out, err = call(t, s.handleFindReferences, map[string]interface{}{"path": b, "line": 1, "column": 5})
	require.NoError(t, err)
	assert.EqualValues(t, 1, out["count"])

	out, err = call(t, s.handleOpenFile, map[string]interface{}{"path": filepath.Join(root, "h.h")})
	require.NoError(t, err)
	assert.Equal(t, false, out["indexed"], "headers are not translation units")
	assert.Equal(t, true, out["claimed"])
	wf, ok := s.pipeline.WorkingFiles().Get(filepath.Join(root, "h.h"))
	require.True(t, ok)
	assert.Equal(t, "void f();\n", wf.Content)

	_, err = call(t, s.handleOpenFile, map[string]interface{}{"path": b, "args": []interface{}{1}})
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = call(t, s.handleCloseFile, map[string]interface{}{"path": b})
	require.NoError(t, err)
	_, ok = s.pipeline.WorkingFiles().Get(b)
	assert.False(t, ok)
}

func TestIndexFileWithContent(t *testing.T) {
	s := newTestServer(t)
	root := setupProject(t)
	a := filepath.Join(root, "a.cc")

	_, err := call(t, s.handleIndexProject, map[string]interface{}{"path": root})
	require.NoError(t, err)

	out, err := call(t, s.handleIndexFile, map[string]interface{}{
		"path":    a,
		"content": "#include \"h.h\"\nvoid f() {}\nint other;\nint main() { f(); return 0; }\n",
	})
	require.NoError(t, err)
	assert.Equal(t, true, out["indexed"])
	wf, ok := s.pipeline.WorkingFiles().Get(a)
	require.True(t, ok)
	assert.Contains(t, wf.Content, "int other;")
}

func TestSearchSymbols(t *testing.T) {
	s := newTestServer(t)
	root := setupProject(t)
	a := filepath.Join(root, "a.cc")

	_, err := call(t, s.handleSearchSymbols, map[string]interface{}{"query": "f"})
	requireCode(t, err, ErrorCodeNotIndexed)

	_, err = call(t, s.handleIndexProject, map[string]interface{}{"path": root})
	require.NoError(t, err)

	_, err = call(t, s.handleSearchSymbols, map[string]interface{}{"query": " "})
	requireCode(t, err, ErrorCodeInvalidParams)
	_, err = call(t, s.handleSearchSymbols, map[string]interface{}{"query": "f", "kinds": []interface{}{"macro"}})
	requireCode(t, err, ErrorCodeInvalidParams)

	out, err := call(t, s.handleSearchSymbols, map[string]interface{}{"query": "f", "kinds": []interface{}{"func"}})
	require.NoError(t, err)
	assert.Equal(t, false, out["cache_hit"])
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	first, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "c:@F@f#", first["usr"])
	assert.Equal(t, "definition", first["role"])
	loc, ok := first["location"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(uri.File(a)), loc["uri"])

	out, err = call(t, s.handleSearchSymbols, map[string]interface{}{"query": "f", "kinds": []interface{}{"func"}})
	require.NoError(t, err)
	assert.Equal(t, true, out["cache_hit"])

	// reindexing drops cached answers
	_, err = call(t, s.handleIndexFile, map[string]interface{}{
		"path":    a,
		"content": "#include \"h.h\"\nvoid f() {}\nvoid fresh() {}\nint main() { f(); return 0; }\n",
	})
	require.NoError(t, err)
	out, err = call(t, s.handleSearchSymbols, map[string]interface{}{"query": "f", "kinds": []interface{}{"func"}})
	require.NoError(t, err)
	assert.Equal(t, false, out["cache_hit"])
	assert.EqualValues(t, 2, out["count"], "f and fresh")
}

func TestGetStatus(t *testing.T) {
	s := newTestServer(t)
	root := setupProject(t)

	out, err := call(t, s.handleGetStatus, map[string]interface{}{"path": root})
	require.NoError(t, err)
	assert.Equal(t, false, out["indexed"])

	_, err = call(t, s.handleIndexProject, map[string]interface{}{"path": root})
	require.NoError(t, err)

	out, err = call(t, s.handleGetStatus, map[string]interface{}{"path": root})
	require.NoError(t, err)
	assert.Equal(t, true, out["indexed"])
	stats, ok := out["statistics"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, stats["files_count"])
	assert.EqualValues(t, 0, stats["failed_files"])
	assert.EqualValues(t, 1, stats["claimed_files"], "h.h")
	health, ok := out["health"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, health["database_accessible"])
}

func TestOpenFileReportsSkippedRanges(t *testing.T) {
	s := newTestServer(t)
	root := setupProject(t)
	b := filepath.Join(root, "b.cc")

	_, err := call(t, s.handleIndexProject, map[string]interface{}{"path": root})
	require.NoError(t, err)

	out, err := call(t, s.handleOpenFile, map[string]interface{}{
		"path":    b,
		"content": "#include \"h.h\"\n#if 0\nvoid dead() {}\n#endif\nvoid g() { f(); }\n",
	})
	require.NoError(t, err)
	assert.Equal(t, true, out["indexed"])

	raw, err := json.Marshal(out["skipped_ranges"])
	require.NoError(t, err)
	var skipped []protocol.Range
	require.NoError(t, json.Unmarshal(raw, &skipped))
	require.Len(t, skipped, 1)
	assert.Equal(t, protocol.Position{Line: 1, Character: 0}, skipped[0].Start)
	assert.Greater(t, skipped[0].End.Line, uint32(2), "the region covers the dead definition")

	out, err = call(t, s.handleOpenFile, map[string]interface{}{
		"path":    b,
		"content": "#include \"h.h\"\nvoid g() { f(); }\n",
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{}, out["skipped_ranges"])
}

func callItems(t *testing.T, out map[string]interface{}, key string) []callItem {
	t.Helper()
	raw, err := json.Marshal(out[key])
	require.NoError(t, err)
	var items []callItem
	require.NoError(t, json.Unmarshal(raw, &items))
	return items
}

func TestCallHierarchy(t *testing.T) {
	s := newTestServer(t)
	root := setupProject(t)
	a, b := filepath.Join(root, "a.cc"), filepath.Join(root, "b.cc")

	_, err := call(t, s.handleCallHierarchy, map[string]interface{}{"path": b, "line": 1, "column": 11})
	requireCode(t, err, ErrorCodeNotIndexed)

	_, err = call(t, s.handleIndexProject, map[string]interface{}{"path": root})
	require.NoError(t, err)

	// f() called from g
	out, err := call(t, s.handleCallHierarchy, map[string]interface{}{"path": b, "line": 1, "column": 11})
	require.NoError(t, err)
	assert.Equal(t, "c:@F@f#", out["usr"])
	assert.Equal(t, "f", out["name"])
	assert.Empty(t, callItems(t, out, "callees"))

	callers := callItems(t, out, "callers")
	require.Len(t, callers, 2)
	byUsr := make(map[string]callItem)
	for _, c := range callers {
		byUsr[c.Usr] = c
	}

	mainCaller, ok := byUsr["c:@F@main#"]
	require.True(t, ok)
	assert.Equal(t, "main", mainCaller.Name)
	assert.Equal(t, protocol.DocumentURI(uri.File(a)), mainCaller.FromURI)
	require.Len(t, mainCaller.FromRanges, 1)
	assert.Equal(t, protocol.Position{Line: 2, Character: 13}, mainCaller.FromRanges[0].Start)
	require.NotNil(t, mainCaller.Location)
	assert.Equal(t, protocol.Position{Line: 2, Character: 4}, mainCaller.Location.Range.Start)

	gCaller, ok := byUsr["c:@F@g#"]
	require.True(t, ok)
	assert.Equal(t, protocol.DocumentURI(uri.File(b)), gCaller.FromURI)
	require.Len(t, gCaller.FromRanges, 1)
	assert.Equal(t, protocol.Position{Line: 1, Character: 11}, gCaller.FromRanges[0].Start)

	// main() calls f
	out, err = call(t, s.handleCallHierarchy, map[string]interface{}{
		"path": a, "line": 2, "column": 5, "direction": "outgoing",
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "callers")
	callees := callItems(t, out, "callees")
	require.Len(t, callees, 1)
	assert.Equal(t, "c:@F@f#", callees[0].Usr)
	assert.Equal(t, "f", callees[0].Name)
	require.NotNil(t, callees[0].Location)
	assert.Equal(t, protocol.DocumentURI(uri.File(a)), callees[0].Location.URI)
	assert.Equal(t, protocol.Position{Line: 1, Character: 5}, callees[0].Location.Range.Start)
	require.Len(t, callees[0].FromRanges, 1)
	assert.Equal(t, protocol.Position{Line: 2, Character: 13}, callees[0].FromRanges[0].Start)

	out, err = call(t, s.handleCallHierarchy, map[string]interface{}{
		"path": a, "line": 2, "column": 5, "direction": "incoming",
	})
	require.NoError(t, err)
	assert.Empty(t, callItems(t, out, "callers"))
	assert.NotContains(t, out, "callees")

	_, err = call(t, s.handleCallHierarchy, map[string]interface{}{
		"path": a, "line": 2, "column": 5, "direction": "sideways",
	})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestCallHierarchyRejectsNonFunctions(t *testing.T) {
	s := newTestServer(t)
	root := setupProject(t)
	a := filepath.Join(root, "a.cc")

	_, err := call(t, s.handleIndexProject, map[string]interface{}{"path": root})
	require.NoError(t, err)
	_, err = call(t, s.handleIndexFile, map[string]interface{}{
		"path":    a,
		"content": "#include \"h.h\"\nvoid f() {}\nint other;\nint main() { f(); return 0; }\n",
	})
	require.NoError(t, err)

	_, err = call(t, s.handleCallHierarchy, map[string]interface{}{"path": a, "line": 2, "column": 5})
	requireCode(t, err, ErrorCodeInvalidParams)
}
