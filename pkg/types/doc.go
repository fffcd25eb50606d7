// Package types provides shared type definitions for the gosum MCP server.
//
// This package defines the domain types used across components: tracked file
// records and their summary status, token-bounded file groups, batch jobs with
// their lifecycle states, and the options that configure a batch run.
//
// # Batch lifecycle
//
// A BatchJob moves through a fixed state machine:
//
//	pending -> running -> {completed, cancelled, failed}
//
// The engine owns the live BatchJob; everything exported to queriers is a
// BatchProgress snapshot produced by Snapshot, so concurrent readers never
// observe partial updates.
//
// # Token estimates
//
// Token counts are heuristic (characters / 4) and used only to keep groups
// under the per-group token budget submitted to the summarization provider.
package types
