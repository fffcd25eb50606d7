package storage

import (
	"context"
	"time"

	"github.com/dshills/gosum-mcp/pkg/types"
)

// Storage defines the interface for persisting projects and tracked file
// summary records
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, rootPath string) (*Project, error)
	GetProjectByID(ctx context.Context, projectID int64) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	// File operations
	UpsertFile(ctx context.Context, file *types.FileRecord, content string) error
	GetFile(ctx context.Context, projectID int64, path string) (*types.FileRecord, error)
	GetFileByID(ctx context.Context, fileID int64) (*types.FileRecord, error)
	ListFiles(ctx context.Context, projectID int64) ([]*types.FileRecord, error)
	ListFilesByStatus(ctx context.Context, projectID int64, statuses ...types.SummaryStatus) ([]*types.FileRecord, error)
	GetFileContent(ctx context.Context, fileID int64) (string, error)

	// Summary operations
	UpdateFileSummary(ctx context.Context, fileID int64, summary string, updatedAt time.Time, summarizedHash [32]byte) error
	UpdateFileStatus(ctx context.Context, fileID int64, status types.SummaryStatus) error
	RemoveFileSummaries(ctx context.Context, projectID int64, fileIDs []int64) (int, error)
	DeleteFiles(ctx context.Context, projectID int64, fileIDs []int64) (int, error)

	// Aggregate queries
	SummaryStats(ctx context.Context, projectID int64) (*SummaryStats, error)
	SetLastBatchAt(ctx context.Context, projectID int64, at time.Time) error

	// Database operations
	Close() error
}

// Project represents a tracked project root
type Project struct {
	ID          int64
	RootPath    string
	Name        string
	TotalFiles  int
	LastBatchAt *time.Time // Nil until the first batch finishes
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SummaryStats aggregates summarization state for a project
type SummaryStats struct {
	ProjectID        int64
	TotalFiles       int
	ByStatus         map[types.SummaryStatus]int
	AvgSummaryTokens float64 // Heuristic tokens per summarized file
	LastBatchAt      *time.Time
}
