// Package tracker is the authoritative query and state layer for file
// summarization. It answers which files need work, serves batch progress and
// aggregate statistics, relays cooperative cancellation, and provides the
// write path the batch engine uses to record results.
package tracker

import (
	"context"
	"time"

	"github.com/dshills/gosum-mcp/internal/registry"
	"github.com/dshills/gosum-mcp/internal/storage"
	"github.com/dshills/gosum-mcp/pkg/types"
)

// Tracker combines persistent file records with the in-memory batch registry
type Tracker struct {
	store   storage.Storage
	batches registry.Registry
}

// New creates a tracker over the given storage and batch registry
func New(store storage.Storage, batches registry.Registry) *Tracker {
	return &Tracker{store: store, batches: batches}
}

// UnsummarizedOptions widens the unsummarized query
type UnsummarizedOptions struct {
	IncludeSkipped bool
	IncludeEmpty   bool
	IncludeFailed  bool
}

// UnsummarizedFiles returns files with status unsummarized. Skipped, empty,
// and failed files are excluded unless explicitly requested, so a file that
// exhausted its retries stays out of later candidate sets.
func (t *Tracker) UnsummarizedFiles(ctx context.Context, projectID int64, opts UnsummarizedOptions) ([]*types.FileRecord, error) {
	statuses := []types.SummaryStatus{types.StatusUnsummarized}
	if opts.IncludeSkipped {
		statuses = append(statuses, types.StatusSkipped)
	}
	if opts.IncludeFailed {
		statuses = append(statuses, types.StatusFailed)
	}

	files, err := t.store.ListFilesByStatus(ctx, projectID, statuses...)
	if err != nil {
		return nil, err
	}

	result := make([]*types.FileRecord, 0, len(files))
	for _, f := range files {
		if f.SizeBytes == 0 && !opts.IncludeEmpty {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}

// StaleFiles returns files whose summary exists but is older than the
// threshold, or whose content changed after the summary was produced
func (t *Tracker) StaleFiles(ctx context.Context, projectID int64, threshold time.Duration) ([]*types.FileRecord, error) {
	files, err := t.store.ListFilesByStatus(ctx, projectID, types.StatusSummarized, types.StatusStale)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-threshold)
	result := make([]*types.FileRecord, 0, len(files))
	for _, f := range files {
		if !f.HasSummary() {
			continue
		}
		if f.Status == types.StatusStale || f.ContentChangedSinceSummary() || f.SummaryUpdatedAt.Before(cutoff) {
			result = append(result, f)
		}
	}
	return result, nil
}

// ActiveBatches returns all running batch jobs, across projects
func (t *Tracker) ActiveBatches() []*types.BatchJob {
	var active []*types.BatchJob
	for _, job := range t.batches.List() {
		if job.Status == types.BatchRunning {
			active = append(active, job)
		}
	}
	return active
}

// Progress returns the latest snapshot for the project's current or most
// recent batch. Running batches win over finished ones.
func (t *Tracker) Progress(projectID int64) (*types.BatchProgress, bool) {
	var latest *types.BatchJob
	for _, job := range t.batches.List() {
		if job.ProjectID != projectID {
			continue
		}
		if latest == nil {
			latest = job
			continue
		}
		if job.Status == types.BatchRunning && latest.Status != types.BatchRunning {
			latest = job
			continue
		}
		if (job.Status == types.BatchRunning) == (latest.Status == types.BatchRunning) &&
			job.StartTime.After(latest.StartTime) {
			latest = job
		}
	}
	if latest == nil {
		return nil, false
	}
	snap := latest.Snapshot()
	return &snap, true
}

// BatchProgress returns the snapshot for one batch by id
func (t *Tracker) BatchProgress(batchID string) (*types.BatchProgress, bool) {
	job, ok := t.batches.Get(batchID)
	if !ok {
		return nil, false
	}
	snap := job.Snapshot()
	return &snap, true
}

// CancelBatch sets the cooperative cancellation flag for a batch. Idempotent.
// Returns false, never an error, when no matching batch exists.
func (t *Tracker) CancelBatch(batchID string) bool {
	return t.batches.Cancel(batchID)
}

// Stats returns counts by status and summary token averages. Fails with
// storage.ErrNotFound only when the project itself is unknown; a valid empty
// project yields zero-valued stats.
func (t *Tracker) Stats(ctx context.Context, projectID int64) (*storage.SummaryStats, error) {
	return t.store.SummaryStats(ctx, projectID)
}

// Engine write path

// PublishBatch stores a fresh snapshot of the job in the registry
func (t *Tracker) PublishBatch(job *types.BatchJob) {
	t.batches.Put(job)
}

// BatchCancelled reports whether cancellation was requested for the batch
func (t *Tracker) BatchCancelled(batchID string) bool {
	return t.batches.Cancelled(batchID)
}

// TryAcquireProject takes the single-active-batch lock for a project
func (t *Tracker) TryAcquireProject(projectID int64) bool {
	return t.batches.TryAcquireProject(projectID)
}

// ReleaseProject releases the single-active-batch lock
func (t *Tracker) ReleaseProject(projectID int64) {
	t.batches.ReleaseProject(projectID)
}

// FileContent loads the stored content for a file
func (t *Tracker) FileContent(ctx context.Context, fileID int64) (string, error) {
	return t.store.GetFileContent(ctx, fileID)
}

// RecordSummary stores a successful summary and marks the file summarized.
// The file's current content hash is pinned as the summarized hash so later
// content changes flag the summary stale.
func (t *Tracker) RecordSummary(ctx context.Context, file *types.FileRecord, summary string) error {
	return t.store.UpdateFileSummary(ctx, file.ID, summary, time.Now(), file.ContentHash)
}

// MarkFileFailed records that a file exhausted its retry budget
func (t *Tracker) MarkFileFailed(ctx context.Context, fileID int64) error {
	return t.store.UpdateFileStatus(ctx, fileID, types.StatusFailed)
}

// RecordBatchFinished stamps the project's last-batch time
func (t *Tracker) RecordBatchFinished(ctx context.Context, projectID int64, at time.Time) error {
	return t.store.SetLastBatchAt(ctx, projectID, at)
}

// RemoveSummaries clears summaries from the given files, resetting them to
// unsummarized. Returns how many files were cleared.
func (t *Tracker) RemoveSummaries(ctx context.Context, projectID int64, fileIDs []int64) (int, error) {
	return t.store.RemoveFileSummaries(ctx, projectID, fileIDs)
}
