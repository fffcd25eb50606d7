package types

import "time"

// SummaryStatus represents the summarization state of a tracked file
type SummaryStatus string

const (
	StatusUnsummarized SummaryStatus = "unsummarized"
	StatusStale        SummaryStatus = "stale"
	StatusSummarized   SummaryStatus = "summarized"
	StatusFailed       SummaryStatus = "failed"
	StatusSkipped      SummaryStatus = "skipped"
)

// ValidateStatus checks if the status is one of the known summary states
func ValidateStatus(s SummaryStatus) bool {
	switch s {
	case StatusUnsummarized, StatusStale, StatusSummarized, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// FileRecord represents a tracked project file and its summary state
type FileRecord struct {
	// Identification
	ID        int64
	ProjectID int64
	Path      string // Relative to project root

	// Content fingerprint
	SizeBytes   int64
	ContentHash [32]byte
	ModTime     time.Time

	// Summary state
	Summary          string
	SummaryUpdatedAt *time.Time // Nil when never summarized
	SummarizedHash   [32]byte   // Content hash at the time the summary was produced
	Status           SummaryStatus

	// Static references extracted at sync time, used by the grouping service
	Imports     []string
	Identifiers []string
}

// EstimateTokens returns a heuristic token estimate for the file content.
// Uses the characters/4 approximation; summaries don't need exact counts.
func (f *FileRecord) EstimateTokens() int {
	return int(f.SizeBytes / 4)
}

// HasSummary reports whether the file carries a summary of any age
func (f *FileRecord) HasSummary() bool {
	return f.Summary != "" && f.SummaryUpdatedAt != nil
}

// ContentChangedSinceSummary reports whether the file content was modified
// after the current summary was produced
func (f *FileRecord) ContentChangedSinceSummary() bool {
	if !f.HasSummary() {
		return false
	}
	return f.SummarizedHash != f.ContentHash
}
