// Package syncer walks a project tree and reconciles it with the tracked
// file records: new files are registered, changed files have their content
// fingerprint refreshed, files whose summary predates the current content
// are marked stale, and records for files removed from disk are deleted.
package syncer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/gosum-mcp/internal/storage"
	"github.com/dshills/gosum-mcp/pkg/types"
)

// Syncer coordinates the sync pipeline: discover -> fingerprint -> upsert
type Syncer struct {
	storage storage.Storage
	workers int
}

// Config contains configuration for a sync run
type Config struct {
	Workers      int  // Concurrent file readers (default: runtime.NumCPU())
	IncludeTests bool // Whether to track test files (default: true)
	MaxFileBytes int64
}

// DefaultMaxFileBytes bounds stored file content. Larger files are recorded
// but skipped for summarization.
const DefaultMaxFileBytes = 1 << 20

// Result reports what one sync run changed
type Result struct {
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Deleted   int
	Failed    int
	Errors    []string
	Duration  time.Duration
}

// New creates a new Syncer over the given storage
func New(store storage.Storage) *Syncer {
	return &Syncer{
		storage: store,
		workers: runtime.NumCPU(),
	}
}

// SyncProject reconciles the tree under rootPath with the project's tracked
// files and returns the project plus a change report
func (s *Syncer) SyncProject(ctx context.Context, rootPath string, config *Config) (*storage.Project, *Result, error) {
	if config == nil {
		config = &Config{IncludeTests: true}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.MaxFileBytes <= 0 {
		config.MaxFileBytes = DefaultMaxFileBytes
	}

	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("project root is not a directory: %s", absRoot)
	}

	project, err := s.getOrCreateProject(ctx, absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get or create project: %w", err)
	}

	paths, err := discoverFiles(absRoot, config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover files: %w", err)
	}

	start := time.Now()
	result := &Result{Errors: []string{}}

	if err := s.syncFiles(ctx, project, paths, config, result); err != nil {
		return nil, nil, err
	}

	deleted, err := s.pruneDeleted(ctx, project, paths)
	if err != nil {
		return nil, nil, err
	}
	result.Deleted = deleted

	files, err := s.storage.ListFiles(ctx, project.ID)
	if err != nil {
		return nil, nil, err
	}
	project.TotalFiles = len(files)
	if err := s.storage.UpdateProject(ctx, project); err != nil {
		return nil, nil, fmt.Errorf("failed to update project stats: %w", err)
	}

	result.Duration = time.Since(start)
	return project, result, nil
}

// getOrCreateProject retrieves an existing project or registers a new one
func (s *Syncer) getOrCreateProject(ctx context.Context, rootPath string) (*storage.Project, error) {
	project, err := s.storage.GetProject(ctx, rootPath)
	if err == nil {
		return project, nil
	}
	if err != storage.ErrNotFound {
		return nil, err
	}

	project = &storage.Project{
		RootPath: rootPath,
		Name:     filepath.Base(rootPath),
	}
	if err := s.storage.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// discoverFiles finds all trackable source files under the root
func discoverFiles(rootPath string, config *Config) ([]string, error) {
	var paths []string

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			name := info.Name()
			if path != rootPath && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			switch name {
			case "vendor", "node_modules", "__pycache__", "dist", "build", "target":
				return filepath.SkipDir
			}
			return nil
		}

		if !isSourceFile(path) {
			return nil
		}
		if !config.IncludeTests && isTestFile(path) {
			return nil
		}

		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

// syncFiles fingerprints and upserts files through a bounded worker pool.
// Per-file errors are collected, never fatal.
func (s *Syncer) syncFiles(ctx context.Context, project *storage.Project, paths []string,
	config *Config, result *Result) error {

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)

	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		path := path
		g.Go(func() error {
			outcome, err := s.syncFile(gctx, project, path, config)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
				return nil
			}
			switch outcome {
			case outcomeCreated:
				result.Created++
			case outcomeUpdated:
				result.Updated++
			case outcomeUnchanged:
				result.Unchanged++
			case outcomeSkipped:
				result.Skipped++
			}
			return nil
		})
	}
	return g.Wait()
}

// pruneDeleted removes tracked records whose files are no longer on disk
func (s *Syncer) pruneDeleted(ctx context.Context, project *storage.Project, discovered []string) (int, error) {
	onDisk := make(map[string]bool, len(discovered))
	for _, path := range discovered {
		rel, err := filepath.Rel(project.RootPath, path)
		if err != nil {
			return 0, err
		}
		onDisk[filepath.ToSlash(rel)] = true
	}

	tracked, err := s.storage.ListFiles(ctx, project.ID)
	if err != nil {
		return 0, err
	}

	var gone []int64
	for _, f := range tracked {
		if !onDisk[f.Path] {
			gone = append(gone, f.ID)
		}
	}
	return s.storage.DeleteFiles(ctx, project.ID, gone)
}

type syncOutcome int

const (
	outcomeCreated syncOutcome = iota
	outcomeUpdated
	outcomeUnchanged
	outcomeSkipped
)

// syncFile reconciles one file on disk with its tracked record
func (s *Syncer) syncFile(ctx context.Context, project *storage.Project, path string, config *Config) (syncOutcome, error) {
	relPath, err := filepath.Rel(project.RootPath, path)
	if err != nil {
		return 0, err
	}
	relPath = filepath.ToSlash(relPath)

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	existing, err := s.storage.GetFile(ctx, project.ID, relPath)
	if err != nil && err != storage.ErrNotFound {
		return 0, err
	}

	// Oversize files are tracked but never fed to a provider. They are still
	// fingerprinted (streamed, not loaded) so unchanged ones are not
	// re-upserted and a prior summary is correctly flagged stale on change.
	if info.Size() > config.MaxFileBytes {
		hash, err := hashFile(path)
		if err != nil {
			return 0, err
		}
		if existing != nil && existing.ContentHash == hash {
			return outcomeUnchanged, nil
		}
		status := types.StatusSkipped
		if existing != nil && existing.HasSummary() {
			status = types.StatusStale
		}
		return s.upsertRecord(ctx, project.ID, relPath, info, existing, hash, status)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	content := string(raw)
	hash := sha256.Sum256(raw)

	if existing != nil && existing.ContentHash == hash {
		return outcomeUnchanged, nil
	}

	status := nextStatus(existing, len(raw))

	file := &types.FileRecord{
		ProjectID:   project.ID,
		Path:        relPath,
		SizeBytes:   info.Size(),
		ContentHash: hash,
		ModTime:     info.ModTime(),
		Status:      status,
		Imports:     extractImports(content),
		Identifiers: extractIdentifiers(content),
	}
	if err := s.storage.UpsertFile(ctx, file, content); err != nil {
		return 0, err
	}

	if existing == nil {
		return outcomeCreated, nil
	}
	return outcomeUpdated, nil
}

// upsertRecord stores a record without content, used for oversize files
func (s *Syncer) upsertRecord(ctx context.Context, projectID int64, relPath string,
	info os.FileInfo, existing *types.FileRecord, hash [32]byte, status types.SummaryStatus) (syncOutcome, error) {

	file := &types.FileRecord{
		ProjectID:   projectID,
		Path:        relPath,
		SizeBytes:   info.Size(),
		ContentHash: hash,
		ModTime:     info.ModTime(),
		Status:      status,
		Imports:     []string{},
		Identifiers: []string{},
	}
	if err := s.storage.UpsertFile(ctx, file, ""); err != nil {
		return 0, err
	}
	if existing == nil {
		return outcomeCreated, nil
	}
	return outcomeSkipped, nil
}

// hashFile fingerprints a file without loading it into memory
func hashFile(path string) ([32]byte, error) {
	var hash [32]byte

	f, err := os.Open(path)
	if err != nil {
		return hash, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return hash, err
	}
	copy(hash[:], h.Sum(nil))
	return hash, nil
}

// nextStatus decides the summary status for a new or changed file. A file
// with a live summary whose content changed goes stale; empty files are
// skipped; everything else needs summarization.
func nextStatus(existing *types.FileRecord, size int) types.SummaryStatus {
	if size == 0 {
		return types.StatusSkipped
	}
	if existing != nil && existing.HasSummary() {
		return types.StatusStale
	}
	return types.StatusUnsummarized
}
