package types

import (
	"math"
	"time"
)

// BatchStatus represents the lifecycle state of a batch job.
// Transitions: pending -> running -> {completed, cancelled, failed}.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
	BatchFailed    BatchStatus = "failed"
)

// Terminal reports whether the status is a terminal state
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchCompleted, BatchCancelled, BatchFailed:
		return true
	default:
		return false
	}
}

// Default batch option values
const (
	DefaultMaxGroupSize        = 10
	DefaultMaxTokensPerGroup   = 8000
	DefaultMaxConcurrentGroups = 3
	DefaultStaleThresholdDays  = 30
	DefaultMaxRetries          = 2
)

// BatchOptions configures one invocation of the batch engine
type BatchOptions struct {
	Strategy            Strategy
	MaxGroupSize        int
	MaxTokensPerGroup   int
	MaxConcurrentGroups int
	PriorityThreshold   float64
	IncludeStaleFiles   bool
	StaleThresholdDays  int
	RetryFailedFiles    bool
	MaxRetries          int
}

// DefaultBatchOptions returns the options used when a caller leaves fields unset
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		Strategy:            StrategyMixed,
		MaxGroupSize:        DefaultMaxGroupSize,
		MaxTokensPerGroup:   DefaultMaxTokensPerGroup,
		MaxConcurrentGroups: DefaultMaxConcurrentGroups,
		IncludeStaleFiles:   true,
		StaleThresholdDays:  DefaultStaleThresholdDays,
		RetryFailedFiles:    true,
		MaxRetries:          DefaultMaxRetries,
	}
}

// Normalize validates the strategy and replaces non-positive numeric fields
// with their defaults. Returns an error for an unknown strategy.
func (o *BatchOptions) Normalize() error {
	if o.Strategy == "" {
		o.Strategy = StrategyMixed
	}
	if err := o.Strategy.Validate(); err != nil {
		return err
	}
	if o.MaxGroupSize <= 0 {
		o.MaxGroupSize = DefaultMaxGroupSize
	}
	if o.MaxTokensPerGroup <= 0 {
		o.MaxTokensPerGroup = DefaultMaxTokensPerGroup
	}
	if o.MaxConcurrentGroups <= 0 {
		o.MaxConcurrentGroups = DefaultMaxConcurrentGroups
	}
	if o.StaleThresholdDays <= 0 {
		o.StaleThresholdDays = DefaultStaleThresholdDays
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return nil
}

// StaleThreshold returns the stale threshold as a duration
func (o *BatchOptions) StaleThreshold() time.Duration {
	return time.Duration(o.StaleThresholdDays) * 24 * time.Hour
}

// BatchJob tracks one invocation of the batch engine. It is owned
// exclusively by the engine; external queriers only ever see copies.
type BatchJob struct {
	ID                  string // Unique per engine lifetime
	ProjectID           int64
	Status              BatchStatus
	TotalFiles          int
	TotalGroups         int
	ProcessedFiles      int
	ProcessedGroups     int
	CurrentGroup        string
	EstimatedTokensUsed int
	Errors              []string
	StartTime           time.Time
	EndTime             *time.Time
}

// Clone returns a deep copy safe to hand to concurrent readers
func (j *BatchJob) Clone() *BatchJob {
	c := *j
	c.Errors = append([]string(nil), j.Errors...)
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	return &c
}

// Snapshot converts the job into an immutable progress snapshot
func (j *BatchJob) Snapshot() BatchProgress {
	c := j.Clone()
	return BatchProgress{
		BatchID:             c.ID,
		ProjectID:           c.ProjectID,
		Status:              c.Status,
		TotalFiles:          c.TotalFiles,
		TotalGroups:         c.TotalGroups,
		ProcessedFiles:      c.ProcessedFiles,
		ProcessedGroups:     c.ProcessedGroups,
		CurrentGroup:        c.CurrentGroup,
		EstimatedTokensUsed: c.EstimatedTokensUsed,
		Errors:              c.Errors,
		StartTime:           c.StartTime,
		EndTime:             c.EndTime,
	}
}

// BatchProgress is one point-in-time snapshot of a batch job, emitted on the
// engine's progress sequence and served to queriers
type BatchProgress struct {
	BatchID             string
	ProjectID           int64
	Status              BatchStatus
	TotalFiles          int
	TotalGroups         int
	ProcessedFiles      int
	ProcessedGroups     int
	CurrentGroup        string
	EstimatedTokensUsed int
	Errors              []string
	StartTime           time.Time
	EndTime             *time.Time
}

// PercentComplete returns the rounded completion percentage.
// A zero-file batch reports 0% rather than dividing by zero.
func (p *BatchProgress) PercentComplete() int {
	if p.TotalFiles == 0 {
		return 0
	}
	return int(math.Round(float64(p.ProcessedFiles) / float64(p.TotalFiles) * 100))
}
