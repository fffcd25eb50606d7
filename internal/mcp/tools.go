package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/gosum-mcp/internal/engine"
	"github.com/dshills/gosum-mcp/internal/storage"
	"github.com/dshills/gosum-mcp/internal/syncer"
	"github.com/dshills/gosum-mcp/internal/tracker"
	"github.com/dshills/gosum-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound = -32001 // Project has not been synced
	ErrorCodeBatchRunning    = -32002 // A batch is already running for the project
)

// handleSyncProject handles the sync_project tool invocation
func (s *Server) handleSyncProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	config := &syncer.Config{
		IncludeTests: getBoolDefault(args, "include_tests", true),
	}

	project, result, err := s.syncer.SyncProject(ctx, path, config)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "sync failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"path":        project.RootPath,
		"project_id":  project.ID,
		"total_files": project.TotalFiles,
		"created":     result.Created,
		"updated":     result.Updated,
		"unchanged":   result.Unchanged,
		"skipped":     result.Skipped,
		"deleted":     result.Deleted,
		"failed":      result.Failed,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if len(result.Errors) > 0 {
		response["error_count"] = len(result.Errors)
		if len(result.Errors) > 5 {
			response["errors"] = result.Errors[:5]
		} else {
			response["errors"] = result.Errors
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIdentifyUnsummarized handles the identify_unsummarized tool invocation
func (s *Server) handleIdentifyUnsummarized(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := s.resolveProject(ctx, args)
	if err != nil {
		return nil, err
	}

	files, err := s.tracker.UnsummarizedFiles(ctx, project.ID, tracker.UnsummarizedOptions{
		IncludeSkipped: getBoolDefault(args, "include_skipped", false),
		IncludeEmpty:   getBoolDefault(args, "include_empty", false),
		IncludeFailed:  getBoolDefault(args, "include_failed", false),
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list files", map[string]interface{}{
			"error": err.Error(),
		})
	}

	entries := make([]map[string]interface{}, 0, len(files))
	for _, f := range files {
		entries = append(entries, map[string]interface{}{
			"path":             f.Path,
			"status":           string(f.Status),
			"size_bytes":       f.SizeBytes,
			"estimated_tokens": f.EstimateTokens(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count": len(files),
		"files": entries,
	})), nil
}

// handleIdentifyStale handles the identify_stale tool invocation
func (s *Server) handleIdentifyStale(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := s.resolveProject(ctx, args)
	if err != nil {
		return nil, err
	}

	days := getIntDefault(args, "stale_threshold_days", types.DefaultStaleThresholdDays)
	if days < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "stale_threshold_days must be positive", map[string]interface{}{
			"param": "stale_threshold_days",
			"value": days,
		})
	}

	files, err := s.tracker.StaleFiles(ctx, project.ID, time.Duration(days)*24*time.Hour)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list files", map[string]interface{}{
			"error": err.Error(),
		})
	}

	entries := make([]map[string]interface{}, 0, len(files))
	for _, f := range files {
		entry := map[string]interface{}{
			"path":            f.Path,
			"status":          string(f.Status),
			"content_changed": f.ContentChangedSinceSummary(),
		}
		if f.SummaryUpdatedAt != nil {
			entry["summary_updated_at"] = f.SummaryUpdatedAt.Format(time.RFC3339)
		}
		entries = append(entries, entry)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count": len(files),
		"files": entries,
	})), nil
}

// handleGroupFiles handles the group_files tool invocation
func (s *Server) handleGroupFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := s.resolveProject(ctx, args)
	if err != nil {
		return nil, err
	}

	opts, err := parseBatchOptions(args)
	if err != nil {
		return nil, err
	}

	candidates, groups, err := s.engine.PreviewGroups(ctx, project.ID, opts)
	if err != nil {
		if errors.Is(err, types.ErrUnknownStrategy) {
			return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), map[string]interface{}{
				"param": "strategy",
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "grouping failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	pathsByID := make(map[int64]string, len(candidates))
	for _, f := range candidates {
		pathsByID[f.ID] = f.Path
	}

	groupEntries := make([]map[string]interface{}, 0, len(groups))
	for _, g := range groups {
		paths := make([]string, 0, len(g.FileIDs))
		for _, id := range g.FileIDs {
			paths = append(paths, pathsByID[id])
		}
		groupEntries = append(groupEntries, map[string]interface{}{
			"name":             g.Name,
			"priority":         g.Priority,
			"estimated_tokens": g.EstimatedTokens,
			"files":            paths,
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"strategy":     string(opts.Strategy),
		"total_files":  len(candidates),
		"total_groups": len(groups),
		"groups":       groupEntries,
	})), nil
}

// handleSummarizeBatch handles the summarize_batch tool invocation. It
// returns as soon as the batch is registered; progress is polled through
// get_progress.
func (s *Server) handleSummarizeBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := s.resolveProject(ctx, args)
	if err != nil {
		return nil, err
	}

	opts, err := parseBatchOptions(args)
	if err != nil {
		return nil, err
	}
	opts.MaxConcurrentGroups = getIntDefault(args, "max_concurrent_groups", types.DefaultMaxConcurrentGroups)
	opts.RetryFailedFiles = getBoolDefault(args, "retry_failed", true)
	opts.MaxRetries = getIntDefault(args, "max_retries", types.DefaultMaxRetries)

	// The batch outlives this request; detach it from the request context
	progress, err := s.engine.BatchSummarizeWithProgress(context.Background(), project.ID, opts)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrBatchAlreadyRunning):
			return nil, newMCPError(ErrorCodeBatchRunning, "a batch is already running for this project", map[string]interface{}{
				"project_id": project.ID,
			})
		case errors.Is(err, types.ErrUnknownStrategy):
			return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), map[string]interface{}{
				"param": "strategy",
			})
		default:
			return nil, newMCPError(ErrorCodeInternalError, "failed to start batch", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	first, ok := <-progress
	if !ok {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"total_files": 0,
			"message":     "No files need summarization.",
		})), nil
	}

	// Drain the remaining snapshots so the engine's sequence completes
	go func() {
		for range progress {
		}
	}()

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"batch_id":     first.BatchID,
		"status":       string(first.Status),
		"total_files":  first.TotalFiles,
		"total_groups": first.TotalGroups,
	})), nil
}

// handleGetProgress handles the get_progress tool invocation
func (s *Server) handleGetProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	if batchID := getStringDefault(args, "batch_id", ""); batchID != "" {
		snap, found := s.tracker.BatchProgress(batchID)
		if !found {
			return mcp.NewToolResultText(formatJSON(map[string]interface{}{
				"found":    false,
				"batch_id": batchID,
				"message":  "No batch with this id.",
			})), nil
		}
		return mcp.NewToolResultText(formatJSON(progressResponse(snap))), nil
	}

	project, err := s.resolveProject(ctx, args)
	if err != nil {
		return nil, err
	}
	snap, found := s.tracker.Progress(project.ID)
	if !found {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"found":   false,
			"path":    project.RootPath,
			"message": "No batches have run for this project.",
		})), nil
	}
	return mcp.NewToolResultText(formatJSON(progressResponse(snap))), nil
}

// handleCancelBatch handles the cancel_batch tool invocation. An unknown
// batch id is a negative result, not an error.
func (s *Server) handleCancelBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	batchID, ok := args["batch_id"].(string)
	if !ok || batchID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "batch_id parameter is required", map[string]interface{}{
			"param":  "batch_id",
			"reason": "missing or empty",
		})
	}

	cancelled := s.tracker.CancelBatch(batchID)
	response := map[string]interface{}{
		"batch_id":  batchID,
		"cancelled": cancelled,
	}
	if !cancelled {
		response["message"] = "No batch with this id."
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetSummaryStats handles the get_summary_stats tool invocation
func (s *Server) handleGetSummaryStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := s.resolveProject(ctx, args)
	if err != nil {
		return nil, err
	}

	stats, err := s.tracker.Stats(ctx, project.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to compute stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}

	response := map[string]interface{}{
		"path":               project.RootPath,
		"total_files":        stats.TotalFiles,
		"by_status":          byStatus,
		"avg_summary_tokens": stats.AvgSummaryTokens,
	}
	if stats.LastBatchAt != nil {
		response["last_batch_at"] = stats.LastBatchAt.Format(time.RFC3339)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRemoveSummaries handles the remove_summaries tool invocation
func (s *Server) handleRemoveSummaries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, err := s.resolveProject(ctx, args)
	if err != nil {
		return nil, err
	}

	paths := getStringSlice(args, "files")
	if len(paths) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "files parameter is required", map[string]interface{}{
			"param":  "files",
			"reason": "missing or empty",
		})
	}

	var fileIDs []int64
	var unknown []string
	for _, p := range paths {
		file, err := s.storage.GetFile(ctx, project.ID, p)
		if err == storage.ErrNotFound {
			unknown = append(unknown, p)
			continue
		}
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to look up file", map[string]interface{}{
				"error": err.Error(),
			})
		}
		fileIDs = append(fileIDs, file.ID)
	}

	removed, err := s.tracker.RemoveSummaries(ctx, project.ID, fileIDs)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to remove summaries", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"removed": removed,
	}
	if len(unknown) > 0 {
		response["unknown_files"] = unknown
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// resolveProject validates the path argument and looks up its synced project
func (s *Server) resolveProject(ctx context.Context, args map[string]interface{}) (*storage.Project, error) {
	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	project, err := s.storage.GetProject(ctx, path)
	if err == storage.ErrNotFound {
		return nil, newMCPError(ErrorCodeProjectNotFound, "project not synced", map[string]interface{}{
			"path":   path,
			"reason": "Run sync_project first.",
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load project", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return project, nil
}

// requirePath extracts and validates the path argument
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return path, nil
}

// parseBatchOptions builds BatchOptions from the shared tool arguments
func parseBatchOptions(args map[string]interface{}) (types.BatchOptions, error) {
	opts := types.DefaultBatchOptions()
	opts.Strategy = types.Strategy(getStringDefault(args, "strategy", string(types.StrategyMixed)))
	opts.MaxGroupSize = getIntDefault(args, "max_group_size", types.DefaultMaxGroupSize)
	opts.MaxTokensPerGroup = getIntDefault(args, "max_tokens_per_group", types.DefaultMaxTokensPerGroup)
	opts.IncludeStaleFiles = getBoolDefault(args, "include_stale", true)
	opts.StaleThresholdDays = getIntDefault(args, "stale_threshold_days", types.DefaultStaleThresholdDays)
	opts.PriorityThreshold = getFloatDefault(args, "priority_threshold", 0)

	if opts.MaxGroupSize < 1 {
		return opts, newMCPError(ErrorCodeInvalidParams, "max_group_size must be positive", map[string]interface{}{
			"param": "max_group_size",
			"value": opts.MaxGroupSize,
		})
	}
	if opts.MaxTokensPerGroup < 1 {
		return opts, newMCPError(ErrorCodeInvalidParams, "max_tokens_per_group must be positive", map[string]interface{}{
			"param": "max_tokens_per_group",
			"value": opts.MaxTokensPerGroup,
		})
	}
	return opts, nil
}

// progressResponse formats a progress snapshot for tool output
func progressResponse(snap *types.BatchProgress) map[string]interface{} {
	response := map[string]interface{}{
		"found":                 true,
		"batch_id":              snap.BatchID,
		"status":                string(snap.Status),
		"total_files":           snap.TotalFiles,
		"processed_files":       snap.ProcessedFiles,
		"total_groups":          snap.TotalGroups,
		"processed_groups":      snap.ProcessedGroups,
		"percent_complete":      snap.PercentComplete(),
		"estimated_tokens_used": snap.EstimatedTokensUsed,
		"start_time":            snap.StartTime.Format(time.RFC3339),
	}
	if snap.CurrentGroup != "" {
		response["current_group"] = snap.CurrentGroup
	}
	if len(snap.Errors) > 0 {
		response["errors"] = snap.Errors
	}
	if snap.EndTime != nil {
		response["end_time"] = snap.EndTime.Format(time.RFC3339)
	}
	return response
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is an accessible directory
func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	if val, ok := args[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an array-of-strings parameter
func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
