package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/gosum-mcp/internal/grouping"
	"github.com/dshills/gosum-mcp/internal/summarizer"
	"github.com/dshills/gosum-mcp/internal/tracker"
	"github.com/dshills/gosum-mcp/pkg/types"
)

// Engine errors
var (
	// ErrBatchAlreadyRunning is returned when the project's single-active-batch
	// lock is held by another run
	ErrBatchAlreadyRunning = errors.New("a batch is already running for this project")
)

// groupFunc matches grouping.GroupFilesByStrategy; injectable for tests
type groupFunc func(files []*types.FileRecord, strategy types.Strategy, opts grouping.Options) ([]*types.FileGroup, error)

// Engine runs batch summarization jobs. One Engine run owns one BatchJob;
// external queriers observe it only through tracker snapshots.
type Engine struct {
	tracker    *tracker.Tracker
	summarizer summarizer.Summarizer
	group      groupFunc
}

// New creates a batch engine over the given tracker and summarization provider
func New(tr *tracker.Tracker, sum summarizer.Summarizer) *Engine {
	return &Engine{
		tracker:    tr,
		summarizer: sum,
		group:      grouping.GroupFilesByStrategy,
	}
}

// failedFile records a per-file failure pending retry or finalization
type failedFile struct {
	file *types.FileRecord
	err  error
}

// groupResult accumulates the outcome of one group run
type groupResult struct {
	succeeded int
	tokens    int
	failures  []failedFile
}

// BatchSummarizeWithProgress resolves candidate files, partitions them, and
// dispatches groups through a bounded worker pool, emitting a finite ordered
// sequence of progress snapshots on the returned channel.
//
// Validation failures (unknown strategy, missing project) return an error
// before any BatchJob is created. An empty candidate set returns a closed
// channel that yields zero snapshots. Per-file failures never abort the
// batch; they retry per options and surface in the final snapshot's errors.
func (e *Engine) BatchSummarizeWithProgress(ctx context.Context, projectID int64, opts types.BatchOptions) (<-chan types.BatchProgress, error) {
	if projectID <= 0 {
		return nil, types.ErrProjectRequired
	}
	if err := opts.Normalize(); err != nil {
		return nil, err
	}

	candidates, err := e.resolveCandidates(ctx, projectID, opts)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		// Nothing to do: a finished, empty sequence
		ch := make(chan types.BatchProgress)
		close(ch)
		return ch, nil
	}

	if !e.tracker.TryAcquireProject(projectID) {
		return nil, ErrBatchAlreadyRunning
	}

	groups, err := e.group(candidates, opts.Strategy, grouping.Options{
		MaxGroupSize:      opts.MaxGroupSize,
		MaxTokensPerGroup: opts.MaxTokensPerGroup,
		PriorityThreshold: opts.PriorityThreshold,
	})
	if err != nil {
		e.tracker.ReleaseProject(projectID)
		return nil, err
	}

	job := &types.BatchJob{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Status:      types.BatchPending,
		TotalFiles:  len(candidates),
		TotalGroups: len(groups),
		Errors:      []string{},
		StartTime:   time.Now(),
	}
	e.tracker.PublishBatch(job)

	// Snapshot budget: running + one per group + one per retry round + final.
	// The buffer covers every emission so the producer never blocks on an
	// abandoned consumer and the sequence always terminates.
	ch := make(chan types.BatchProgress, len(groups)+opts.MaxRetries+4)

	if len(groups) == 0 {
		// Non-empty candidate set producing zero groups means the grouping
		// configuration is broken; nothing can start.
		e.failBatch(ctx, job, ch)
		return ch, nil
	}

	filesByID := make(map[int64]*types.FileRecord, len(candidates))
	for _, f := range candidates {
		filesByID[f.ID] = f
	}

	go e.run(ctx, job, filesByID, groups, opts, ch)
	return ch, nil
}

// PreviewGroups runs candidate resolution and grouping without starting a
// batch. Used for dry-run inspection of what a batch would dispatch.
func (e *Engine) PreviewGroups(ctx context.Context, projectID int64, opts types.BatchOptions) ([]*types.FileRecord, []*types.FileGroup, error) {
	if projectID <= 0 {
		return nil, nil, types.ErrProjectRequired
	}
	if err := opts.Normalize(); err != nil {
		return nil, nil, err
	}
	candidates, err := e.resolveCandidates(ctx, projectID, opts)
	if err != nil {
		return nil, nil, err
	}
	groups, err := e.group(candidates, opts.Strategy, grouping.Options{
		MaxGroupSize:      opts.MaxGroupSize,
		MaxTokensPerGroup: opts.MaxTokensPerGroup,
		PriorityThreshold: opts.PriorityThreshold,
	})
	if err != nil {
		return nil, nil, err
	}
	return candidates, groups, nil
}

// resolveCandidates returns unsummarized plus optionally stale files, deduped
// and path-sorted
func (e *Engine) resolveCandidates(ctx context.Context, projectID int64, opts types.BatchOptions) ([]*types.FileRecord, error) {
	candidates, err := e.tracker.UnsummarizedFiles(ctx, projectID, tracker.UnsummarizedOptions{})
	if err != nil {
		return nil, err
	}

	if opts.IncludeStaleFiles {
		stale, err := e.tracker.StaleFiles(ctx, projectID, opts.StaleThreshold())
		if err != nil {
			return nil, err
		}
		seen := make(map[int64]bool, len(candidates))
		for _, f := range candidates {
			seen[f.ID] = true
		}
		for _, f := range stale {
			if !seen[f.ID] {
				candidates = append(candidates, f)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })
	return candidates, nil
}

// failBatch terminates a batch that could not start any group
func (e *Engine) failBatch(ctx context.Context, job *types.BatchJob, ch chan types.BatchProgress) {
	end := time.Now()
	job.Status = types.BatchFailed
	job.EndTime = &end
	job.Errors = append(job.Errors, "grouping produced no groups from a non-empty candidate set")
	e.tracker.PublishBatch(job)
	_ = e.tracker.RecordBatchFinished(ctx, job.ProjectID, end)
	ch <- job.Snapshot()
	close(ch)
	e.tracker.ReleaseProject(job.ProjectID)
}

// run executes the batch: bounded-concurrency group dispatch, retry rounds,
// and terminal snapshot. Runs on its own goroutine; closing ch ends the
// progress sequence.
func (e *Engine) run(ctx context.Context, job *types.BatchJob, filesByID map[int64]*types.FileRecord,
	groups []*types.FileGroup, opts types.BatchOptions, ch chan types.BatchProgress) {

	defer close(ch)
	defer e.tracker.ReleaseProject(job.ProjectID)

	// Single synchronized update path for all shared job counters
	var mu sync.Mutex
	var pending []failedFile

	// The send happens under the same lock as the snapshot so concurrent
	// group completions cannot enqueue snapshots out of order. The channel
	// buffer covers every emission, so the send never blocks.
	emit := func() {
		mu.Lock()
		defer mu.Unlock()
		e.tracker.PublishBatch(job)
		ch <- job.Snapshot()
	}

	mu.Lock()
	job.Status = types.BatchRunning
	mu.Unlock()
	emit()

	cancelled := false

	pool, poolCtx := errgroup.WithContext(ctx)
	pool.SetLimit(opts.MaxConcurrentGroups)

	for _, group := range groups {
		// Cooperative cancellation is checked only at dispatch boundaries;
		// in-flight groups always run to completion
		if e.tracker.BatchCancelled(job.ID) || poolCtx.Err() != nil {
			cancelled = true
			break
		}
		group := group
		pool.Go(func() error {
			res := e.runGroup(poolCtx, group, filesByID)
			mu.Lock()
			job.ProcessedFiles += res.succeeded
			job.ProcessedGroups++
			job.CurrentGroup = group.Name
			job.EstimatedTokensUsed += res.tokens
			pending = append(pending, res.failures...)
			mu.Unlock()
			emit()
			return nil
		})
	}
	_ = pool.Wait()
	if ctx.Err() != nil {
		cancelled = true
	}

	// Residual retry rounds: each pending file is attempted once per round,
	// so a repeatedly failing file sees at most MaxRetries+1 attempts
	if opts.RetryFailedFiles {
		for round := 1; round <= opts.MaxRetries && len(pending) > 0 && !cancelled; round++ {
			if e.tracker.BatchCancelled(job.ID) || ctx.Err() != nil {
				cancelled = true
				break
			}
			retryGroup := residualGroup(pending, round)
			res := e.runGroup(ctx, retryGroup, filesByID)
			mu.Lock()
			job.ProcessedFiles += res.succeeded
			job.CurrentGroup = retryGroup.Name
			job.EstimatedTokensUsed += res.tokens
			mu.Unlock()
			pending = res.failures
			emit()
		}
	}

	// Exhausted failures are finalized; a failed file still counts processed
	// so a completed batch always reaches ProcessedFiles == TotalFiles
	if !cancelled {
		mu.Lock()
		for _, ff := range pending {
			_ = e.tracker.MarkFileFailed(ctx, ff.file.ID)
			job.ProcessedFiles++
			job.Errors = append(job.Errors, fmt.Sprintf("%s: %v", ff.file.Path, ff.err))
		}
		mu.Unlock()
	}

	end := time.Now()
	mu.Lock()
	if cancelled {
		job.Status = types.BatchCancelled
	} else {
		job.Status = types.BatchCompleted
	}
	job.EndTime = &end
	job.CurrentGroup = ""
	mu.Unlock()
	_ = e.tracker.RecordBatchFinished(ctx, job.ProjectID, end)
	emit()
}

// runGroup summarizes each file in the group sequentially on its worker
func (e *Engine) runGroup(ctx context.Context, group *types.FileGroup, filesByID map[int64]*types.FileRecord) groupResult {
	var res groupResult

	for _, fileID := range group.FileIDs {
		file, ok := filesByID[fileID]
		if !ok {
			// Grouping only ever returns candidate files; don't drop one silently
			res.failures = append(res.failures, failedFile{
				file: &types.FileRecord{ID: fileID, Path: fmt.Sprintf("file:%d", fileID)},
				err:  errors.New("file not in candidate set"),
			})
			continue
		}

		content, err := e.tracker.FileContent(ctx, file.ID)
		if err != nil {
			res.failures = append(res.failures, failedFile{file: file, err: err})
			continue
		}

		summary, err := e.summarizer.Summarize(ctx, summarizer.Request{
			Path:    file.Path,
			Content: content,
			Context: group.Name,
		})
		if err != nil {
			res.failures = append(res.failures, failedFile{file: file, err: err})
			continue
		}

		if err := e.tracker.RecordSummary(ctx, file, summary.Text); err != nil {
			res.failures = append(res.failures, failedFile{file: file, err: err})
			continue
		}

		res.succeeded++
		res.tokens += file.EstimateTokens()
	}

	return res
}

// residualGroup builds the retry group for one round, path-ordered
func residualGroup(pending []failedFile, round int) *types.FileGroup {
	sorted := append([]failedFile(nil), pending...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].file.Path < sorted[j].file.Path })

	ids := make([]int64, len(sorted))
	tokens := 0
	for i, ff := range sorted {
		ids[i] = ff.file.ID
		tokens += ff.file.EstimateTokens()
	}
	return &types.FileGroup{
		Name:            fmt.Sprintf("retry-%d", round),
		FileIDs:         ids,
		EstimatedTokens: tokens,
	}
}
