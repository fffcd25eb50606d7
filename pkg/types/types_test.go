package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	t.Run("accepts all known strategies", func(t *testing.T) {
		for _, name := range []string{"directory", "imports", "semantic", "mixed"} {
			s, err := ParseStrategy(name)
			require.NoError(t, err)
			assert.Equal(t, Strategy(name), s)
		}
	})

	t.Run("rejects unknown strategy", func(t *testing.T) {
		_, err := ParseStrategy("alphabetical")
		assert.ErrorIs(t, err, ErrUnknownStrategy)
	})

	t.Run("rejects empty strategy", func(t *testing.T) {
		_, err := ParseStrategy("")
		assert.ErrorIs(t, err, ErrUnknownStrategy)
	})
}

func TestBatchStatusTerminal(t *testing.T) {
	assert.False(t, BatchPending.Terminal())
	assert.False(t, BatchRunning.Terminal())
	assert.True(t, BatchCompleted.Terminal())
	assert.True(t, BatchCancelled.Terminal())
	assert.True(t, BatchFailed.Terminal())
}

func TestBatchOptionsNormalize(t *testing.T) {
	t.Run("fills defaults for zero values", func(t *testing.T) {
		opts := BatchOptions{}
		require.NoError(t, opts.Normalize())
		assert.Equal(t, StrategyMixed, opts.Strategy)
		assert.Equal(t, DefaultMaxGroupSize, opts.MaxGroupSize)
		assert.Equal(t, DefaultMaxTokensPerGroup, opts.MaxTokensPerGroup)
		assert.Equal(t, DefaultMaxConcurrentGroups, opts.MaxConcurrentGroups)
		assert.Equal(t, DefaultStaleThresholdDays, opts.StaleThresholdDays)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		opts := BatchOptions{
			Strategy:          StrategyDirectory,
			MaxGroupSize:      5,
			MaxTokensPerGroup: 2000,
		}
		require.NoError(t, opts.Normalize())
		assert.Equal(t, StrategyDirectory, opts.Strategy)
		assert.Equal(t, 5, opts.MaxGroupSize)
		assert.Equal(t, 2000, opts.MaxTokensPerGroup)
	})

	t.Run("rejects unknown strategy", func(t *testing.T) {
		opts := BatchOptions{Strategy: "random"}
		assert.ErrorIs(t, opts.Normalize(), ErrUnknownStrategy)
	})

	t.Run("clamps negative retries to zero", func(t *testing.T) {
		opts := BatchOptions{MaxRetries: -1}
		require.NoError(t, opts.Normalize())
		assert.Equal(t, 0, opts.MaxRetries)
	})
}

func TestPercentComplete(t *testing.T) {
	t.Run("rounds to nearest integer", func(t *testing.T) {
		p := BatchProgress{TotalFiles: 3, ProcessedFiles: 1}
		assert.Equal(t, 33, p.PercentComplete())

		p = BatchProgress{TotalFiles: 3, ProcessedFiles: 2}
		assert.Equal(t, 67, p.PercentComplete())
	})

	t.Run("zero files reports zero percent", func(t *testing.T) {
		p := BatchProgress{TotalFiles: 0, ProcessedFiles: 0}
		assert.Equal(t, 0, p.PercentComplete())
	})

	t.Run("full batch reports one hundred", func(t *testing.T) {
		p := BatchProgress{TotalFiles: 25, ProcessedFiles: 25}
		assert.Equal(t, 100, p.PercentComplete())
	})
}

func TestBatchJobSnapshot(t *testing.T) {
	t.Run("snapshot is independent of later mutation", func(t *testing.T) {
		job := &BatchJob{
			ID:         "b1",
			Status:     BatchRunning,
			TotalFiles: 10,
			Errors:     []string{"a.go: timeout"},
		}
		snap := job.Snapshot()

		job.ProcessedFiles = 7
		job.Errors = append(job.Errors, "b.go: timeout")
		job.Status = BatchCompleted

		assert.Equal(t, 0, snap.ProcessedFiles)
		assert.Equal(t, BatchRunning, snap.Status)
		assert.Len(t, snap.Errors, 1)
	})

	t.Run("end time is deep copied", func(t *testing.T) {
		end := time.Now()
		job := &BatchJob{ID: "b2", EndTime: &end}
		clone := job.Clone()
		require.NotNil(t, clone.EndTime)
		assert.NotSame(t, job.EndTime, clone.EndTime)
		assert.True(t, clone.EndTime.Equal(end))
	})
}

func TestFileRecord(t *testing.T) {
	t.Run("token estimate uses quarter of size", func(t *testing.T) {
		f := FileRecord{SizeBytes: 4000}
		assert.Equal(t, 1000, f.EstimateTokens())
	})

	t.Run("content changed since summary", func(t *testing.T) {
		now := time.Now()
		f := FileRecord{
			Summary:          "does things",
			SummaryUpdatedAt: &now,
			ContentHash:      [32]byte{1},
			SummarizedHash:   [32]byte{1},
		}
		assert.False(t, f.ContentChangedSinceSummary())

		f.ContentHash = [32]byte{2}
		assert.True(t, f.ContentChangedSinceSummary())
	})

	t.Run("never summarized is not changed", func(t *testing.T) {
		f := FileRecord{ContentHash: [32]byte{9}}
		assert.False(t, f.ContentChangedSinceSummary())
	})
}

func TestValidateStatus(t *testing.T) {
	for _, s := range []SummaryStatus{StatusUnsummarized, StatusStale, StatusSummarized, StatusFailed, StatusSkipped} {
		assert.True(t, ValidateStatus(s))
	}
	assert.False(t, ValidateStatus("archived"))
}
