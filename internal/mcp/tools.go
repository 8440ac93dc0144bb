package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/mark3labs/mcp-go/mcp"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/internal/indexer"
	"github.com/xiang66/ccls/internal/searcher"
	"github.com/xiang66/ccls/internal/storage"
	"github.com/xiang66/ccls/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path does not contain C/C++ sources
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Project not indexed
	ErrorCodeSymbolNotFound     = -32004 // No symbol at the requested position
)

// maxListed caps the number of errors and updates echoed back
const maxListed = 20

// handleIndexProject handles the index_project tool invocation
func (s *Server) handleIndexProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}
	if err := s.validateProject(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrNoSources) {
			code = ErrorCodeProjectNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	stats, err := s.pipeline.IndexProject(ctx, path, nil)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if project := s.pipeline.Project(); project != nil {
		s.searcher.InvalidateCache(project.ID)
	}

	response := map[string]interface{}{
		"indexed":         true,
		"files_indexed":   stats.FilesIndexed,
		"files_skipped":   stats.FilesSkipped,
		"files_failed":    stats.FilesFailed,
		"files_written":   stats.FilesWritten,
		"files_removed":   stats.FilesRemoved,
		"symbols_indexed": stats.SymbolsIndexed,
		"duration_ms":     stats.Duration.Milliseconds(),
	}
	if len(stats.Updates) > 0 {
		response["updates"] = summarizeUpdates(stats.Updates)
	}
	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxListed {
			response["errors"] = stats.ErrorMessages[:maxListed]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexFile handles the index_file tool invocation
func (s *Server) handleIndexFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	work := s.pipeline.WorkingFiles()
	if content, ok := args["content"].(string); ok {
		if _, err := work.Update(path, content); err != nil {
			work.Open(path, content, nil)
		}
	}

	response, err := s.reindex(ctx, path)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleOpenFile handles the open_file tool invocation
func (s *Server) handleOpenFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	content, ok := args["content"].(string)
	if !ok {
		if content, ok = s.pipeline.Cache().LoadContent(path); !ok {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, newMCPError(ErrorCodeInvalidParams, "file is not readable", map[string]interface{}{
					"param":  "path",
					"reason": err.Error(),
				})
			}
			content = string(data)
		}
	}

	var fileArgs []string
	if raw, ok := args["args"].([]interface{}); ok {
		for _, a := range raw {
			str, ok := a.(string)
			if !ok {
				return nil, newMCPError(ErrorCodeInvalidParams, "args must be strings", map[string]interface{}{
					"param": "args",
					"value": a,
				})
			}
			fileArgs = append(fileArgs, str)
		}
	}

	wf := s.pipeline.WorkingFiles().Open(path, content, fileArgs)

	response := map[string]interface{}{
		"opened":  true,
		"version": wf.Version,
		"indexed": false,
	}
	switch {
	case types.IsHeader(path):
		// Indexed through the translation unit that includes it
		response["claimed"] = s.pipeline.Shared().Claimed(path)
	case s.pipeline.Project() != nil:
		indexed, err := s.reindex(ctx, path)
		if err != nil {
			return nil, err
		}
		maps.Copy(response, indexed)
	}
	response["skipped_ranges"] = s.skippedRanges(path)
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// skippedRanges lists the preprocessor-inactive regions of the last good
// index of path
func (s *Server) skippedRanges(path string) []protocol.Range {
	out := []protocol.Range{}
	f, err := s.pipeline.Cache().Load(path)
	if err != nil || f == nil {
		return out
	}
	for _, r := range f.SkippedByPreprocessor {
		if rng, err := toProtocolRange(r); err == nil {
			out = append(out, rng)
		}
	}
	return out
}

// handleCloseFile handles the close_file tool invocation
func (s *Server) handleCloseFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}
	s.pipeline.WorkingFiles().Close(path)
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"closed": true})), nil
}

// reindex parses path with the current working files and reports the updates
func (s *Server) reindex(ctx context.Context, path string) (map[string]interface{}, error) {
	if s.pipeline.Project() == nil {
		return nil, newMCPError(ErrorCodeNotIndexed, "no project indexed. Use index_project first.", nil)
	}

	start := time.Now()
	updates, err := s.pipeline.IndexFile(ctx, path, s.pipeline.WorkingFiles().Snapshot())
	if errors.Is(err, indexer.ErrStaleResult) {
		return map[string]interface{}{
			"indexed":     false,
			"reason":      "superseded by a newer request",
			"path":        path,
			"duration_ms": time.Since(start).Milliseconds(),
		}, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotIndexed, "file is not part of the index", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.searcher.InvalidateCache(s.pipeline.Project().ID)

	return map[string]interface{}{
		"indexed":     true,
		"path":        path,
		"updates":     summarizeUpdates(updates),
		"duration_ms": time.Since(start).Milliseconds(),
	}, nil
}

// handleFindDefinition handles the find_definition tool invocation
func (s *Server) handleFindDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sym, occurrences, err := s.symbolAtRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	var defs, decls []*storage.Symbol
	for _, o := range occurrences {
		switch o.Role {
		case storage.RoleDefinition:
			defs = append(defs, o)
		case storage.RoleDeclaration:
			decls = append(decls, o)
		}
	}
	if len(defs) == 0 {
		defs = decls
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"usr":       sym.Usr,
		"name":      displayName(sym, occurrences),
		"kind":      sym.Kind,
		"locations": toLocations(defs),
	})), nil
}

// handleFindReferences handles the find_references tool invocation
func (s *Server) handleFindReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sym, occurrences, err := s.symbolAtRequest(ctx, request)
	if err != nil {
		return nil, err
	}
	args, _ := request.Params.Arguments.(map[string]interface{})
	includeDecl := getBoolDefault(args, "include_declaration", false)

	refs := make([]*storage.Symbol, 0, len(occurrences))
	for _, o := range occurrences {
		if o.Role == storage.RoleReference || includeDecl {
			refs = append(refs, o)
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"usr":       sym.Usr,
		"name":      displayName(sym, occurrences),
		"kind":      sym.Kind,
		"count":     len(refs),
		"locations": toLocations(refs),
	})), nil
}

// callItem is the other end of a call edge and the call sites linking it
type callItem struct {
	Usr        string               `json:"usr"`
	Name       string               `json:"name"`
	Kind       string               `json:"kind"`
	Location   *protocol.Location   `json:"location,omitempty"`
	FromURI    protocol.DocumentURI `json:"from_uri"`
	FromRanges []protocol.Range     `json:"from_ranges"`
}

// handleCallHierarchy handles the call_hierarchy tool invocation
func (s *Server) handleCallHierarchy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sym, occurrences, err := s.symbolAtRequest(ctx, request)
	if err != nil {
		return nil, err
	}
	args, _ := request.Params.Arguments.(map[string]interface{})
	direction, _ := args["direction"].(string)
	if direction == "" {
		direction = "both"
	}
	if direction != "incoming" && direction != "outgoing" && direction != "both" {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid direction", map[string]interface{}{
			"param": "direction",
			"value": direction,
		})
	}
	if sym.Kind != types.KindFunc.String() {
		return nil, newMCPError(ErrorCodeInvalidParams, "symbol is not a function", map[string]interface{}{
			"usr":  sym.Usr,
			"kind": sym.Kind,
		})
	}

	project := s.pipeline.Project()
	if project == nil {
		return nil, newMCPError(ErrorCodeNotIndexed, "no project indexed. Use index_project first.", nil)
	}
	projectID := project.ID
	response := map[string]interface{}{
		"usr":  sym.Usr,
		"name": displayName(sym, occurrences),
		"kind": sym.Kind,
	}
	if direction != "outgoing" {
		callers, err := s.incomingCalls(ctx, projectID, types.Usr(sym.Usr), occurrences)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "lookup failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["callers"] = callers
	}
	if direction != "incoming" {
		callees, err := s.outgoingCalls(ctx, projectID, types.Usr(sym.Usr), occurrences)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "lookup failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["callees"] = callees
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// incomingCalls groups the call-role references to usr by the entity
// enclosing each call
func (s *Server) incomingCalls(ctx context.Context, projectID int64, usr types.Usr, occurrences []*storage.Symbol) ([]*callItem, error) {
	var files []string
	for _, o := range occurrences {
		if o.Role == storage.RoleReference && types.Role(o.RoleBits).Has(types.RoleCall) && !slices.Contains(files, o.FilePath) {
			files = append(files, o.FilePath)
		}
	}

	items := []*callItem{}
	for _, path := range files {
		fn, f, err := s.cachedFunc(path, usr)
		if err != nil {
			return nil, err
		}
		if fn == nil {
			continue
		}
		byCaller := make(map[types.Usr]*callItem)
		for _, u := range fn.Uses {
			if !u.Role.Has(types.RoleCall) {
				continue
			}
			caller, ok := entityUsr(f, u.Idx())
			if !ok {
				continue
			}
			item, ok := byCaller[caller]
			if !ok {
				if item, err = s.newCallItem(ctx, projectID, caller, path); err != nil {
					return nil, err
				}
				byCaller[caller] = item
				items = append(items, item)
			}
			if rng, err := toProtocolRange(u.Range); err == nil {
				item.FromRanges = append(item.FromRanges, rng)
			}
		}
	}
	return items, nil
}

// outgoingCalls groups the callees recorded in the definitions of usr
func (s *Server) outgoingCalls(ctx context.Context, projectID int64, usr types.Usr, occurrences []*storage.Symbol) ([]*callItem, error) {
	var files []string
	for _, o := range occurrences {
		if o.Role == storage.RoleDefinition && !slices.Contains(files, o.FilePath) {
			files = append(files, o.FilePath)
		}
	}

	items := []*callItem{}
	for _, path := range files {
		fn, f, err := s.cachedFunc(path, usr)
		if err != nil {
			return nil, err
		}
		if fn == nil {
			continue
		}
		byCallee := make(map[types.Usr]*callItem)
		for _, ref := range fn.Def.Callees {
			callee, ok := entityUsr(f, ref.Idx())
			if !ok {
				continue
			}
			item, ok := byCallee[callee]
			if !ok {
				if item, err = s.newCallItem(ctx, projectID, callee, path); err != nil {
					return nil, err
				}
				byCallee[callee] = item
				items = append(items, item)
			}
			if rng, err := toProtocolRange(ref.Range); err == nil {
				item.FromRanges = append(item.FromRanges, rng)
			}
		}
	}
	return items, nil
}

// cachedFunc finds usr in the last good index of path. A missing entry or
// function returns nil.
func (s *Server) cachedFunc(path string, usr types.Usr) (*index.IndexFunc, *index.IndexFile, error) {
	f, err := s.pipeline.Cache().Load(path)
	if err != nil || f == nil {
		return nil, nil, err
	}
	idx, ok := f.Lookup(usr)
	if !ok {
		return nil, nil, nil
	}
	id, ok := index.Assume[index.IndexFunc](idx)
	if !ok {
		return nil, nil, nil
	}
	return f.Func(id), f, nil
}

// entityUsr resolves a handle minted by f. File scopes have no usr.
func entityUsr(f *index.IndexFile, idx index.SymbolIdx) (types.Usr, bool) {
	if !idx.ID.Valid() {
		return "", false
	}
	return f.IDCache.Usr(idx)
}

// newCallItem describes usr by its definition, or its first declaration
func (s *Server) newCallItem(ctx context.Context, projectID int64, usr types.Usr, fromPath string) (*callItem, error) {
	occurrences, err := s.storage.FindSymbolsByUsr(ctx, projectID, string(usr))
	if err != nil {
		return nil, err
	}
	item := &callItem{
		Usr:        string(usr),
		FromURI:    protocol.DocumentURI(uri.File(fromPath)),
		FromRanges: []protocol.Range{},
	}
	var def, decl *storage.Symbol
	for _, o := range occurrences {
		switch {
		case o.Role == storage.RoleDefinition && def == nil:
			def = o
		case o.Role == storage.RoleDeclaration && decl == nil:
			decl = o
		}
	}
	if def == nil {
		def = decl
	}
	if def == nil && len(occurrences) > 0 {
		def = occurrences[0]
	}
	if def == nil {
		return item, nil
	}
	item.Name = displayName(def, occurrences)
	item.Kind = def.Kind
	if def.Role != storage.RoleReference {
		if locs := toLocations([]*storage.Symbol{def}); len(locs) == 1 {
			item.Location = &locs[0]
		}
	}
	return item, nil
}

// displayName is the qualified name of sym. Rows for symbols declared in
// another file carry no name, so one is taken from a declaring occurrence.
func displayName(sym *storage.Symbol, occurrences []*storage.Symbol) string {
	if sym.QualifiedName != "" {
		return sym.QualifiedName
	}
	for _, o := range occurrences {
		if o.Role != storage.RoleReference && o.QualifiedName != "" {
			return o.QualifiedName
		}
	}
	for _, o := range occurrences {
		if o.QualifiedName != "" {
			return o.QualifiedName
		}
	}
	return ""
}

// symbolAtRequest resolves the symbol under the requested position and
// every occurrence of its USR in the open project
func (s *Server) symbolAtRequest(ctx context.Context, request mcp.CallToolRequest) (*storage.Symbol, []*storage.Symbol, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	path, err := requirePath(args)
	if err != nil {
		return nil, nil, err
	}
	line, col := getIntDefault(args, "line", -1), getIntDefault(args, "column", -1)
	if line < 0 || col < 0 {
		return nil, nil, newMCPError(ErrorCodeInvalidParams, "line and column are required", map[string]interface{}{
			"line":   line,
			"column": col,
		})
	}

	project := s.pipeline.Project()
	if project == nil {
		return nil, nil, newMCPError(ErrorCodeNotIndexed, "no project indexed. Use index_project first.", nil)
	}

	sym, err := s.storage.SymbolAt(ctx, project.ID, path, line, col)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, newMCPError(ErrorCodeSymbolNotFound, "no symbol at position", map[string]interface{}{
			"path":   path,
			"line":   line,
			"column": col,
		})
	}
	if err != nil {
		return nil, nil, newMCPError(ErrorCodeInternalError, "lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	occurrences, err := s.storage.FindSymbolsByUsr(ctx, project.ID, sym.Usr)
	if err != nil {
		return nil, nil, newMCPError(ErrorCodeInternalError, "lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return sym, occurrences, nil
}

// handleSearchSymbols handles the search_symbols tool invocation
func (s *Server) handleSearchSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param": "query",
		})
	}
	var kinds []string
	if raw, ok := args["kinds"].([]interface{}); ok {
		for _, k := range raw {
			str, ok := k.(string)
			if !ok {
				return nil, newMCPError(ErrorCodeInvalidParams, "kinds must be strings", map[string]interface{}{
					"param": "kinds",
				})
			}
			kinds = append(kinds, str)
		}
	}

	project := s.pipeline.Project()
	if project == nil {
		return nil, newMCPError(ErrorCodeNotIndexed, "no project indexed. Use index_project first.", nil)
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		ProjectID: project.ID,
		Query:     query,
		Kinds:     kinds,
		Limit:     getIntDefault(args, "limit", 0),
		UseCache:  true,
	})
	if errors.Is(err, searcher.ErrInvalidRequest) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search request", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		locs := toLocations([]*storage.Symbol{r.Symbol})
		if len(locs) == 0 {
			continue
		}
		results = append(results, map[string]interface{}{
			"usr":      r.Symbol.Usr,
			"name":     r.Symbol.QualifiedName,
			"kind":     r.Symbol.Kind,
			"role":     r.Symbol.Role,
			"location": locs[0],
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":       query,
		"count":       len(results),
		"total":       resp.TotalResults,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
		"results":     results,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	project, err := s.storage.GetProject(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"indexed": false,
			"path":    path,
			"message": "Project not indexed. Use index_project tool to index this project.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get project status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	status, err := s.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed": true,
		"project": map[string]interface{}{
			"path":            project.RootPath,
			"index_version":   project.IndexVersion,
			"last_indexed_at": project.LastIndexedAt.Format(time.RFC3339),
		},
		"statistics": map[string]interface{}{
			"files_count":    status.FilesCount,
			"failed_files":   status.FailedFiles,
			"symbols_count":  status.SymbolsCount,
			"defs_count":     status.DefsCount,
			"includes_count": status.IncludesCount,
			"index_size_mb":  fmt.Sprintf("%.2f", status.IndexSizeMB),
			"working_files":  s.pipeline.WorkingFiles().Len(),
			"cached_files":   s.pipeline.Cache().Len(),
			"claimed_files":  s.pipeline.Shared().Len(),
		},
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"build_mode":          status.Health.BuildMode,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requirePath extracts the absolute path parameter
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(path) {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}
	return filepath.Clean(path), nil
}

// validateProject checks that path is a readable directory holding at
// least one translation unit
func (s *Server) validateProject(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	cfg := s.pipeline.Config()
	found := false
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != path && cfg.Excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if cfg.IsSource(p) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	if !found {
		return ErrNoSources
	}
	return nil
}

// toLocations renders occurrences as LSP locations
func toLocations(symbols []*storage.Symbol) []protocol.Location {
	out := make([]protocol.Location, 0, len(symbols))
	for _, s := range symbols {
		rng, err := toRange(s)
		if err != nil {
			continue
		}
		out = append(out, protocol.Location{
			URI:   protocol.DocumentURI(uri.File(s.FilePath)),
			Range: rng,
		})
	}
	return out
}

func toRange(s *storage.Symbol) (protocol.Range, error) {
	return lspRange(s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

func toProtocolRange(r types.Range) (protocol.Range, error) {
	return lspRange(r.Start.Line, r.Start.Column, r.End.Line, r.End.Column)
}

func lspRange(startLine, startCol, endLine, endCol int) (protocol.Range, error) {
	var (
		coords [4]uint32
		err    error
	)
	for i, v := range []int{startLine, startCol, endLine, endCol} {
		if coords[i], err = safecast.Conv[uint32](v); err != nil {
			return protocol.Range{}, err
		}
	}
	return protocol.Range{
		Start: protocol.Position{Line: coords[0], Character: coords[1]},
		End:   protocol.Position{Line: coords[2], Character: coords[3]},
	}, nil
}

// summarizeUpdates renders at most maxListed updates
func summarizeUpdates(updates []index.FileUpdate) []string {
	out := make([]string, 0, min(len(updates), maxListed))
	for i, u := range updates {
		if i == maxListed {
			break
		}
		out = append(out, u.String())
	}
	return out
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNoSources       = errors.New("directory does not contain C/C++ sources")
)
