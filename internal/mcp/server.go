// Package mcp exposes scanning over the Model Context Protocol so coding
// agents can run checks and read normalized results without parsing
// terminal output.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/config"
	"github.com/lucidscan/lucidscan/internal/pipeline"
	"github.com/lucidscan/lucidscan/internal/registry"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name.
	Name string

	// Version is the server version.
	Version string

	Logger *zap.Logger
}

// Server serves scan tools on the stdio transport.
type Server struct {
	mcp      *mcp.Server
	runner   *pipeline.Runner
	registry *registry.Registry
	cfg      *config.Config
	logger   *zap.Logger
}

// NewServer creates an MCP server wired to a scan runner.
func NewServer(cfg Config, runner *pipeline.Runner, reg *registry.Registry, scanCfg *config.Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("scan runner is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("plugin registry is required")
	}
	if scanCfg == nil {
		return nil, fmt.Errorf("scan configuration is required")
	}
	if cfg.Name == "" {
		cfg.Name = "lucidscan"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		runner:   runner,
		registry: reg,
		cfg:      scanCfg,
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the server on the stdio transport and blocks until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
