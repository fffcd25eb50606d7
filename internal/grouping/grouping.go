package grouping

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dshills/gosum-mcp/pkg/types"
)

// Options configures the grouping service
type Options struct {
	MaxGroupSize      int
	MaxTokensPerGroup int
	PriorityThreshold float64
}

func (o *Options) normalize() {
	if o.MaxGroupSize <= 0 {
		o.MaxGroupSize = types.DefaultMaxGroupSize
	}
	if o.MaxTokensPerGroup <= 0 {
		o.MaxTokensPerGroup = types.DefaultMaxTokensPerGroup
	}
}

// cluster is an intermediate named set of files, prior to size and token
// splitting
type cluster struct {
	name  string
	files []*types.FileRecord
}

// GroupFilesByStrategy partitions files into token-bounded, priority-ordered
// groups. Every input file lands in exactly one group; output composition and
// ordering are reproducible for identical inputs.
func GroupFilesByStrategy(files []*types.FileRecord, strategy types.Strategy, opts Options) ([]*types.FileGroup, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	opts.normalize()
	if len(files) == 0 {
		return nil, nil
	}

	// Stable input order: everything downstream iterates slices, never maps
	sorted := make([]*types.FileRecord, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	graph := buildImportGraph(sorted)

	var clusters []cluster
	switch strategy {
	case types.StrategyDirectory:
		clusters = directoryClusters(sorted, indexRange(len(sorted)))
	case types.StrategyImports:
		clusters = importsClusters(sorted, graph, opts.MaxGroupSize)
	case types.StrategySemantic:
		clusters = semanticClusters(sorted, indexRange(len(sorted)))
	case types.StrategyMixed:
		clusters = mixedClusters(sorted, graph, opts.MaxGroupSize)
	}

	clusters = splitBySize(clusters, opts.MaxGroupSize)
	clusters = packByTokens(clusters, opts.MaxGroupSize, opts.MaxTokensPerGroup)

	now := time.Now()
	groups := make([]*types.FileGroup, 0, len(clusters))
	for _, c := range clusters {
		ids := make([]int64, len(c.files))
		for i, f := range c.files {
			ids[i] = f.ID
		}
		groups = append(groups, &types.FileGroup{
			Name:            c.name,
			FileIDs:         ids,
			Priority:        computePriority(c.files, graph.refs, opts.PriorityThreshold, now),
			EstimatedTokens: estimateTokens(c.files),
		})
	}

	// Higher priority dispatches first; name breaks ties for reproducibility
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Priority != groups[j].Priority {
			return groups[i].Priority > groups[j].Priority
		}
		return groups[i].Name < groups[j].Name
	})
	for i := range groups {
		groups[i].ID = i + 1
	}
	return groups, nil
}

func indexRange(n int) []int {
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}
	return idxs
}

func estimateTokens(files []*types.FileRecord) int {
	total := 0
	for _, f := range files {
		total += f.EstimateTokens()
	}
	return total
}

// directoryClusters buckets the given files (by index) on their containing
// directory
func directoryClusters(files []*types.FileRecord, idxs []int) []cluster {
	buckets := make(map[string][]*types.FileRecord)
	for _, i := range idxs {
		dir := path.Dir(files[i].Path)
		buckets[dir] = append(buckets[dir], files[i])
	}

	dirs := make([]string, 0, len(buckets))
	for dir := range buckets {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	clusters := make([]cluster, 0, len(dirs))
	for _, dir := range dirs {
		clusters = append(clusters, cluster{name: "dir:" + dir, files: buckets[dir]})
	}
	return clusters
}

// importsClusters builds connected components over the static import graph.
// Components over MaxGroupSize are split by peeling the least-connected files
// first, keeping the densest core together.
func importsClusters(files []*types.FileRecord, graph *importGraph, maxGroupSize int) []cluster {
	components := graph.components()

	var clusters []cluster
	for _, comp := range components {
		for _, chunk := range splitComponent(files, graph, comp, maxGroupSize) {
			members := make([]*types.FileRecord, len(chunk))
			for i, idx := range chunk {
				members[i] = files[idx]
			}
			name := "imports:" + strings.TrimSuffix(members[0].Path, path.Ext(members[0].Path))
			clusters = append(clusters, cluster{name: name, files: members})
		}
	}
	return clusters
}

// splitComponent returns index chunks of at most maxGroupSize. Files with the
// fewest edges inside the component are peeled off first so cross-chunk
// context loss stays low.
func splitComponent(files []*types.FileRecord, graph *importGraph, comp []int, maxGroupSize int) [][]int {
	if len(comp) <= maxGroupSize {
		return [][]int{comp}
	}

	inComp := make(map[int]bool, len(comp))
	for _, idx := range comp {
		inComp[idx] = true
	}
	degree := func(idx int) int {
		d := 0
		for _, peer := range graph.adj[idx] {
			if inComp[peer] {
				d++
			}
		}
		return d
	}

	order := append([]int(nil), comp...)
	sort.Slice(order, func(i, j int) bool {
		di, dj := degree(order[i]), degree(order[j])
		if di != dj {
			return di < dj
		}
		return files[order[i]].Path < files[order[j]].Path
	})

	var chunks [][]int
	for start := 0; start < len(order); start += maxGroupSize {
		end := start + maxGroupSize
		if end > len(order) {
			end = len(order)
		}
		chunk := append([]int(nil), order[start:end]...)
		sort.Slice(chunk, func(i, j int) bool { return files[chunk[i]].Path < files[chunk[j]].Path })
		chunks = append(chunks, chunk)
	}
	return chunks
}

// semanticClusters buckets files by a deterministic content-similarity key:
// file extension plus the dominant identifier token. Ties on token frequency
// resolve to the lexicographically smallest token.
func semanticClusters(files []*types.FileRecord, idxs []int) []cluster {
	buckets := make(map[string][]*types.FileRecord)
	for _, i := range idxs {
		key := semanticKey(files[i])
		buckets[key] = append(buckets[key], files[i])
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clusters := make([]cluster, 0, len(keys))
	for _, key := range keys {
		clusters = append(clusters, cluster{name: "sem:" + key, files: buckets[key]})
	}
	return clusters
}

func semanticKey(f *types.FileRecord) string {
	ext := strings.TrimPrefix(path.Ext(f.Path), ".")
	if ext == "" {
		ext = "none"
	}
	token := dominantToken(f.Identifiers)
	if token == "" {
		return ext
	}
	return ext + ":" + token
}

// dominantToken splits identifiers into lowercase sub-tokens and returns the
// most frequent one, smallest-first on ties
func dominantToken(identifiers []string) string {
	counts := make(map[string]int)
	for _, ident := range identifiers {
		for _, tok := range subTokens(ident) {
			counts[tok]++
		}
	}

	best, bestCount := "", 0
	for tok, count := range counts {
		if count > bestCount || (count == bestCount && (best == "" || tok < best)) {
			best, bestCount = tok, count
		}
	}
	return best
}

// subTokens splits an identifier on case boundaries, underscores, and digits
func subTokens(ident string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() >= 3 {
			tokens = append(tokens, strings.ToLower(cur.String()))
		}
		cur.Reset()
	}
	for _, r := range ident {
		switch {
		case r == '_' || r == '-' || (r >= '0' && r <= '9'):
			flush()
		case r >= 'A' && r <= 'Z':
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// mixedClusters applies imports, then directory, then semantic, in that
// precedence order, to any file not yet assigned. Residual singletons are
// merged up to MaxGroupSize.
func mixedClusters(files []*types.FileRecord, graph *importGraph, maxGroupSize int) []cluster {
	assigned := make([]bool, len(files))
	var clusters []cluster

	// Imports pass: only multi-file components carry real import signal
	for _, comp := range graph.components() {
		if len(comp) < 2 {
			continue
		}
		for _, chunk := range splitComponent(files, graph, comp, maxGroupSize) {
			members := make([]*types.FileRecord, len(chunk))
			for i, idx := range chunk {
				members[i] = files[idx]
				assigned[idx] = true
			}
			name := "imports:" + strings.TrimSuffix(members[0].Path, path.Ext(members[0].Path))
			clusters = append(clusters, cluster{name: name, files: members})
		}
	}

	// Directory pass over the remainder
	rest := unassigned(assigned)
	for _, c := range directoryClusters(files, rest) {
		if len(c.files) < 2 {
			continue
		}
		clusters = append(clusters, c)
		markAssigned(files, assigned, c.files)
	}

	// Semantic pass over whatever is left
	rest = unassigned(assigned)
	var singles []*types.FileRecord
	for _, c := range semanticClusters(files, rest) {
		if len(c.files) < 2 {
			singles = append(singles, c.files...)
			continue
		}
		clusters = append(clusters, c)
	}

	// Merge residual singletons up to the group size cap
	sort.Slice(singles, func(i, j int) bool { return singles[i].Path < singles[j].Path })
	for start := 0; start < len(singles); start += maxGroupSize {
		end := start + maxGroupSize
		if end > len(singles) {
			end = len(singles)
		}
		clusters = append(clusters, cluster{
			name:  fmt.Sprintf("mixed:residual-%d", start/maxGroupSize+1),
			files: singles[start:end],
		})
	}

	return clusters
}

func unassigned(assigned []bool) []int {
	var idxs []int
	for i, done := range assigned {
		if !done {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func markAssigned(files []*types.FileRecord, assigned []bool, members []*types.FileRecord) {
	byPath := make(map[string]bool, len(members))
	for _, m := range members {
		byPath[m.Path] = true
	}
	for i, f := range files {
		if byPath[f.Path] {
			assigned[i] = true
		}
	}
}

// splitBySize chunks oversize clusters in a stable, order-preserving way
func splitBySize(clusters []cluster, maxGroupSize int) []cluster {
	var out []cluster
	for _, c := range clusters {
		if len(c.files) <= maxGroupSize {
			out = append(out, c)
			continue
		}
		part := 1
		for start := 0; start < len(c.files); start += maxGroupSize {
			end := start + maxGroupSize
			if end > len(c.files) {
				end = len(c.files)
			}
			out = append(out, cluster{
				name:  fmt.Sprintf("%s#%d", c.name, part),
				files: c.files[start:end],
			})
			part++
		}
	}
	return out
}
