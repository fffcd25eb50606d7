package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/gosum-mcp/internal/engine"
	"github.com/dshills/gosum-mcp/internal/registry"
	"github.com/dshills/gosum-mcp/internal/storage"
	"github.com/dshills/gosum-mcp/internal/summarizer"
	"github.com/dshills/gosum-mcp/internal/syncer"
	"github.com/dshills/gosum-mcp/internal/tracker"
)

const (
	// ServerName is the MCP server name
	ServerName = "gosum-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the database
	DefaultDBPath = "~/.gosum"
	// EnvDBPath overrides the database location
	EnvDBPath = "GOSUM_DB_PATH"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	storage storage.Storage
	tracker *tracker.Tracker
	engine  *engine.Engine
	syncer  *syncer.Syncer
}

// NewServer creates a new MCP server instance. An empty dbPath falls back to
// GOSUM_DB_PATH, then to ~/.gosum.
func NewServer(dbPath string) (*Server, error) {
	if dbPath == "" {
		dbPath = os.Getenv(EnvDBPath)
	}
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".gosum")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dbFile := filepath.Join(dbPath, "gosum.db")

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	provider, err := summarizer.NewFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize summarizer: %w", err)
	}

	tr := tracker.New(store, registry.NewInMemory())

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		storage: store,
		tracker: tr,
		engine:  engine.New(tr, provider),
		syncer:  syncer.New(store),
	}

	if err := s.registerTools(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(syncProjectTool(), s.handleSyncProject)
	s.mcp.AddTool(identifyUnsummarizedTool(), s.handleIdentifyUnsummarized)
	s.mcp.AddTool(identifyStaleTool(), s.handleIdentifyStale)
	s.mcp.AddTool(groupFilesTool(), s.handleGroupFiles)
	s.mcp.AddTool(summarizeBatchTool(), s.handleSummarizeBatch)
	s.mcp.AddTool(getProgressTool(), s.handleGetProgress)
	s.mcp.AddTool(cancelBatchTool(), s.handleCancelBatch)
	s.mcp.AddTool(getSummaryStatsTool(), s.handleGetSummaryStats)
	s.mcp.AddTool(removeSummariesTool(), s.handleRemoveSummaries)
	return nil
}
