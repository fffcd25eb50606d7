// Package mcp implements the Model Context Protocol (MCP) server for gosum.
//
// The server exposes summarization tools to AI coding assistants:
//   - sync_project: Register or refresh a project's tracked source files
//   - identify_unsummarized: List files with no usable summary
//   - identify_stale: List files whose summary is outdated
//   - group_files: Preview how pending files would be grouped
//   - summarize_batch: Start a batch summarization run
//   - get_progress: Poll progress of a running or finished batch
//   - cancel_batch: Request cooperative cancellation of a batch
//   - get_summary_stats: Aggregate summarization statistics
//   - remove_summaries: Clear stored summaries for selected files
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Standard output carries protocol messages only; all logging goes to
// standard error.
//
// # Typical Flow
//
// A client first syncs the project, then starts a batch and polls it:
//
//	sync_project      {"path": "/path/to/project"}
//	summarize_batch   {"path": "/path/to/project", "strategy": "mixed"}
//	  → {"batch_id": "3f2a...", "total_files": 25, "total_groups": 3}
//	get_progress      {"batch_id": "3f2a..."}
//	  → {"status": "running", "processed_files": 10, "percent_complete": 40}
//
// summarize_batch returns immediately after the batch is registered; the
// run continues in the background and is observed through get_progress.
// A second summarize_batch for the same project while one is running fails
// with error code -32002.
//
// # Error Codes
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  project not synced
//	-32002  a batch is already running for the project
//
// cancel_batch and get_progress treat an unknown batch id as a negative
// result, not an error.
package mcp
