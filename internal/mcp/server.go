package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/newsdigest-mcp/internal/app"
	"github.com/dshills/newsdigest-mcp/internal/indexer"
	"github.com/dshills/newsdigest-mcp/internal/logger"
)

const (
	// ServerName is the MCP server name
	ServerName = "newsdigest-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server exposes the pipeline as MCP tools
type Server struct {
	mcp  *server.MCPServer
	app  *app.App
	log  logger.Logger
	lock indexer.IndexLock // one composition at a time
}

// NewServer creates a new MCP server over a wired App. The App stays owned
// by the caller.
func NewServer(a *app.App) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
		),
		app: a,
		log: logger.OrNop(a.Log),
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until stdin closes
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("mcp server listening on stdio", "name", ServerName, "version", ServerVersion)
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(composeIndustryNewsTool(), s.handleComposeIndustryNews)
	s.mcp.AddTool(retrieveNewsTool(), s.handleRetrieveNews)
	s.mcp.AddTool(getSessionTool(), s.handleGetSession)
	s.mcp.AddTool(getIndexStatusTool(), s.handleGetIndexStatus)
}
