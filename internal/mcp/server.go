package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fbromtl/gouvernance-sub001/internal/adp"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server exposes the protocol tools and resources over MCP.
type Server struct {
	svc    *adp.Service
	creds  adp.Credentials
	logger *slog.Logger
	mcp    *server.MCPServer
}

// NewServer creates an MCP server over svc. creds are used whenever a tool
// call carries no credential of its own, and for every resource read.
func NewServer(svc *adp.Service, creds adp.Credentials, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, creds: creds, logger: logger}

	s.mcp = server.NewMCPServer(
		"adp",
		Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.registerTools()
	s.registerResources()

	return s
}

func (s *Server) registerTools() {
	for _, tool := range allTools {
		s.mcp.AddTool(tool, s.handleTool(tool.Name))
	}
}

func (s *Server) registerResources() {
	for _, name := range adp.ResourceNames {
		s.mcp.AddResource(mcp.NewResource(resourceURI(name), name,
			mcp.WithResourceDescription(resourceDescriptions[name]),
			mcp.WithMIMEType("application/json"),
		), s.handleResource)
	}
	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(resourceURI(adp.ResourceTraces)+"{?limit}", "traces-limited",
		mcp.WithTemplateDescription(resourceDescriptions[adp.ResourceTraces]),
		mcp.WithTemplateMIMEType("application/json"),
	), s.handleResource)
}

// Serve starts the MCP server on stdio. Stdout carries protocol messages;
// all logging must go to stderr.
func (s *Server) Serve() error {
	s.logger.Info("mcp server listening on stdio", "tools", len(allTools), "resources", len(adp.ResourceNames))
	return server.ServeStdio(s.mcp)
}
