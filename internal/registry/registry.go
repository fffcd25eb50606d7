// Package registry provides the injected store for active and recent batch
// jobs. The engine publishes snapshots here; the tracker reads them. Keeping
// the store behind an interface (rather than a package-level singleton) lets
// tests run with isolated instances.
package registry

import (
	"sort"
	"sync"

	"github.com/dshills/gosum-mcp/pkg/types"
)

// Registry stores batch jobs and their cancellation flags
type Registry interface {
	// Put stores or replaces the snapshot for a batch
	Put(job *types.BatchJob)
	// Get returns a copy of the batch, or false if the id is unknown
	Get(batchID string) (*types.BatchJob, bool)
	// List returns copies of all known batches, ordered by start time then id
	List() []*types.BatchJob
	// Cancel sets the cooperative cancellation flag. Idempotent; returns
	// whether a matching batch was found.
	Cancel(batchID string) bool
	// Cancelled reports whether cancellation was requested for the batch
	Cancelled(batchID string) bool

	// TryAcquireProject takes the single-active-batch lock for a project
	// without blocking. Returns false if a batch already holds it.
	TryAcquireProject(projectID int64) bool
	// ReleaseProject releases the project lock
	ReleaseProject(projectID int64)
}

// InMemory is the default Registry implementation
type InMemory struct {
	mu        sync.RWMutex
	jobs      map[string]*types.BatchJob
	cancelled map[string]bool
	projects  map[int64]bool
}

// NewInMemory creates an empty in-memory registry
func NewInMemory() *InMemory {
	return &InMemory{
		jobs:      make(map[string]*types.BatchJob),
		cancelled: make(map[string]bool),
		projects:  make(map[int64]bool),
	}
}

func (r *InMemory) Put(job *types.BatchJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Clone()
}

func (r *InMemory) Get(batchID string) (*types.BatchJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[batchID]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

func (r *InMemory) List() []*types.BatchJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*types.BatchJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].StartTime.Equal(jobs[j].StartTime) {
			return jobs[i].StartTime.Before(jobs[j].StartTime)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

func (r *InMemory) Cancel(batchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[batchID]; !ok {
		return false
	}
	r.cancelled[batchID] = true
	return true
}

func (r *InMemory) Cancelled(batchID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelled[batchID]
}

func (r *InMemory) TryAcquireProject(projectID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.projects[projectID] {
		return false
	}
	r.projects[projectID] = true
	return true
}

func (r *InMemory) ReleaseProject(projectID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, projectID)
}
