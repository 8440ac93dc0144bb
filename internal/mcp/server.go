package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/xiang66/ccls/internal/config"
	"github.com/xiang66/ccls/internal/indexer"
	"github.com/xiang66/ccls/internal/searcher"
	"github.com/xiang66/ccls/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "ccindex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	pipeline *indexer.Pipeline
	storage  storage.Storage
	searcher *searcher.Searcher
}

// NewServer creates a new MCP server instance backed by the database and
// cache named in cfg
func NewServer(cfg *config.Config) (*Server, error) {
	p, err := indexer.Open(cfg)
	if err != nil {
		return nil, err
	}
	s, err := newServer(p)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return s, nil
}

func newServer(p *indexer.Pipeline) (*Server, error) {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		pipeline: p,
		storage:  p.Storage(),
		searcher: searcher.NewSearcher(p.Storage()),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.pipeline.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(indexProjectTool(), s.handleIndexProject)
	s.mcp.AddTool(indexFileTool(), s.handleIndexFile)
	s.mcp.AddTool(openFileTool(), s.handleOpenFile)
	s.mcp.AddTool(closeFileTool(), s.handleCloseFile)
	s.mcp.AddTool(findDefinitionTool(), s.handleFindDefinition)
	s.mcp.AddTool(findReferencesTool(), s.handleFindReferences)
	s.mcp.AddTool(callHierarchyTool(), s.handleCallHierarchy)
	s.mcp.AddTool(searchSymbolsTool(), s.handleSearchSymbols)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	return nil
}
