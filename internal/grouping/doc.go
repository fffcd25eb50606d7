// Package grouping partitions a project's candidate files into token-bounded,
// priority-ordered groups for batch summarization.
//
// Four strategies are supported:
//
//   - directory: files sharing a containing directory
//   - imports: connected components of the static import graph
//   - semantic: deterministic buckets keyed on extension + dominant identifier
//   - mixed: imports, then directory, then semantic, over unassigned files
//
// After clustering, groups are chunked to the size cap and repacked by a
// greedy first-fit-decreasing pass so no group's token estimate exceeds the
// per-group budget.
//
// The service is a pure function of its inputs: for identical file sets and
// options it returns identical group composition and ordering. All iteration
// happens over sorted slices; map iteration order never leaks into results.
package grouping
