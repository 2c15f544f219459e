package mcp

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/codequery/internal/cache"
	"github.com/dshills/codequery/internal/dispatch"
	"github.com/dshills/codequery/internal/semindex"
)

const (
	// ServerName is the MCP server name
	ServerName = "codequery"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the dispatcher and its shared cache
type Server struct {
	mcp        *server.MCPServer
	cache      *cache.Cache
	dispatcher *dispatch.Dispatcher
	logger     *log.Logger
}

// NewServer creates an MCP server rooted at the given project directory.
// The fingerprint cache lives in a project-local directory; the semantic
// backend is resolved from the environment once, here.
func NewServer(root string) (*Server, error) {
	if root == "" {
		root = "."
	}

	store, err := cache.Open(cache.DefaultPath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	sem := semindex.NewFromEnv()
	dispatcher := dispatch.New(store, sem)

	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion),
		cache:      store,
		dispatcher: dispatcher,
		logger:     log.New(io.Discard, "", 0),
	}
	s.registerTools()
	return s, nil
}

// SetLogger installs a logger on the server and every index
func (s *Server) SetLogger(logger *log.Logger) {
	if logger == nil {
		return
	}
	s.logger = logger
	s.cache.SetLogger(logger)
	s.dispatcher.SetLogger(logger)
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()
	return server.ServeStdio(s.mcp)
}

// Close releases the cache and the semantic backend
func (s *Server) Close() error {
	_ = s.dispatcher.Semantic().Close()
	return s.cache.Close()
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(searchFilesTool(), s.handleSearchFiles)
	s.mcp.AddTool(searchDepsTool(), s.handleSearchDeps)
	s.mcp.AddTool(searchLogsTool(), s.handleSearchLogs)
	s.mcp.AddTool(searchSemanticTool(), s.handleSearchSemantic)
	s.mcp.AddTool(searchAllTool(), s.handleSearchAll)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
}
