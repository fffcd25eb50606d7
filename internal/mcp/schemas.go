package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// pathProperty is the shared project path parameter schema
func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the project root",
	}
}

// syncProjectTool returns the tool definition for sync_project
func syncProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "sync_project",
		Description: "Scan a project tree and register or refresh its tracked source files",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"include_tests": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, track test files",
					"default":     true,
				},
			},
			Required: []string{"path"},
		},
	}
}

// identifyUnsummarizedTool returns the tool definition for identify_unsummarized
func identifyUnsummarizedTool() mcp.Tool {
	return mcp.Tool{
		Name:        "identify_unsummarized",
		Description: "List tracked files that have no usable summary",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"include_skipped": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include files previously skipped",
					"default":     false,
				},
				"include_empty": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include zero-byte files",
					"default":     false,
				},
				"include_failed": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include files whose summarization permanently failed",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// identifyStaleTool returns the tool definition for identify_stale
func identifyStaleTool() mcp.Tool {
	return mcp.Tool{
		Name:        "identify_stale",
		Description: "List files whose summary is outdated by age or content change",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"stale_threshold_days": map[string]interface{}{
					"type":        "integer",
					"description": "Summaries older than this many days count as stale",
					"default":     30,
					"minimum":     1,
				},
			},
			Required: []string{"path"},
		},
	}
}

// batchOptionProperties returns the option parameters shared by group_files
// and summarize_batch
func batchOptionProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": pathProperty(),
		"strategy": map[string]interface{}{
			"type":        "string",
			"description": "How to cluster files into groups",
			"enum":        []string{"directory", "imports", "semantic", "mixed"},
			"default":     "mixed",
		},
		"max_group_size": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum files per group",
			"default":     10,
			"minimum":     1,
		},
		"max_tokens_per_group": map[string]interface{}{
			"type":        "integer",
			"description": "Estimated token budget per group",
			"default":     8000,
			"minimum":     1,
		},
		"include_stale": map[string]interface{}{
			"type":        "boolean",
			"description": "If true, include files with outdated summaries",
			"default":     true,
		},
		"stale_threshold_days": map[string]interface{}{
			"type":        "integer",
			"description": "Summaries older than this many days count as stale",
			"default":     30,
			"minimum":     1,
		},
		"priority_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Reference count below which a file counts as rarely referenced",
			"minimum":     0.0,
		},
	}
}

// groupFilesTool returns the tool definition for group_files
func groupFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "group_files",
		Description: "Preview how pending files would be grouped for batch summarization, without running one",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: batchOptionProperties(),
			Required:   []string{"path"},
		},
	}
}

// summarizeBatchTool returns the tool definition for summarize_batch
func summarizeBatchTool() mcp.Tool {
	props := batchOptionProperties()
	props["max_concurrent_groups"] = map[string]interface{}{
		"type":        "integer",
		"description": "Groups summarized in parallel",
		"default":     3,
		"minimum":     1,
	}
	props["retry_failed"] = map[string]interface{}{
		"type":        "boolean",
		"description": "If true, failed files are retried before the batch finishes",
		"default":     true,
	}
	props["max_retries"] = map[string]interface{}{
		"type":        "integer",
		"description": "Retry rounds for failed files",
		"default":     2,
		"minimum":     0,
	}
	return mcp.Tool{
		Name:        "summarize_batch",
		Description: "Start a batch summarization run over all pending files; returns the batch id for progress polling",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"path"},
		},
	}
}

// getProgressTool returns the tool definition for get_progress
func getProgressTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_progress",
		Description: "Query progress of a batch by id, or of a project's latest batch by path",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"batch_id": map[string]interface{}{
					"type":        "string",
					"description": "Batch id returned by summarize_batch",
				},
				"path": pathProperty(),
			},
		},
	}
}

// cancelBatchTool returns the tool definition for cancel_batch
func cancelBatchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cancel_batch",
		Description: "Request cooperative cancellation of a running batch",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"batch_id": map[string]interface{}{
					"type":        "string",
					"description": "Batch id returned by summarize_batch",
				},
			},
			Required: []string{"batch_id"},
		},
	}
}

// getSummaryStatsTool returns the tool definition for get_summary_stats
func getSummaryStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_summary_stats",
		Description: "Aggregate summarization statistics for a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
			},
			Required: []string{"path"},
		},
	}
}

// removeSummariesTool returns the tool definition for remove_summaries
func removeSummariesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_summaries",
		Description: "Clear stored summaries from the given files so they are summarized fresh next batch",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"files": map[string]interface{}{
					"type":        "array",
					"description": "Project-relative file paths to clear",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"path", "files"},
		},
	}
}
