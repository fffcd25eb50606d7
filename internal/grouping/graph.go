package grouping

import (
	"path"
	"sort"
	"strings"

	"github.com/dshills/gosum-mcp/pkg/types"
)

// importGraph holds the undirected file-level dependency graph and the
// incoming reference count per file, both derived from the static import
// strings recorded at sync time
type importGraph struct {
	files []*types.FileRecord
	adj   [][]int       // Undirected adjacency in sorted-input index space
	refs  map[int64]int // Incoming references per file ID
}

// buildImportGraph resolves each file's import strings against the other
// files' paths. An import matches a file when one of its trailing segment
// sequences equals a trailing segment sequence of the file's path without
// extension; single-segment matches are only honored for single-segment
// imports to avoid accidental fan-out.
func buildImportGraph(files []*types.FileRecord) *importGraph {
	index := make(map[string][]int)
	for i, f := range files {
		noExt := strings.TrimSuffix(f.Path, path.Ext(f.Path))
		parts := strings.Split(noExt, "/")
		for k := range parts {
			suffix := strings.Join(parts[k:], "/")
			index[suffix] = append(index[suffix], i)
		}
	}

	edges := make(map[[2]int]bool)
	refs := make(map[int64]int)

	for i, f := range files {
		targets := make(map[int]bool)
		for _, imp := range f.Imports {
			for _, j := range resolveImport(imp, index) {
				if j != i {
					targets[j] = true
				}
			}
		}
		for j := range targets {
			refs[files[j].ID]++
			a, b := i, j
			if a > b {
				a, b = b, a
			}
			edges[[2]int{a, b}] = true
		}
	}

	adj := make([][]int, len(files))
	for e := range edges {
		adj[e[0]] = append(adj[e[0]], e[1])
		adj[e[1]] = append(adj[e[1]], e[0])
	}
	for i := range adj {
		sort.Ints(adj[i])
	}

	return &importGraph{files: files, adj: adj, refs: refs}
}

// resolveImport finds file indexes matching an import string, preferring the
// longest matching suffix
func resolveImport(imp string, index map[string][]int) []int {
	norm := normalizeImport(imp)
	if norm == "" {
		return nil
	}
	parts := strings.Split(norm, "/")
	for k := 0; k < len(parts); k++ {
		if len(parts) > 1 && len(parts)-k == 1 {
			break // No single-segment fallback for multi-segment imports
		}
		if js, ok := index[strings.Join(parts[k:], "/")]; ok {
			return js
		}
	}
	return nil
}

// normalizeImport converts an import string into slash-separated path form
func normalizeImport(imp string) string {
	s := strings.TrimSpace(imp)
	s = strings.Trim(s, `"'`)
	s = strings.ReplaceAll(s, "\\", "/")
	if !strings.Contains(s, "/") {
		// Dotted module paths (python-style) become path segments
		s = strings.ReplaceAll(s, ".", "/")
	}
	s = strings.TrimPrefix(s, "./")
	s = strings.TrimPrefix(s, "/")
	return s
}

// components returns the connected components of the graph, each sorted by
// index, ordered by their smallest member
func (g *importGraph) components() [][]int {
	n := len(g.adj)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if ra > rb {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for i := range g.adj {
		for _, j := range g.adj[i] {
			union(i, j)
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := 0; i < n; i++ {
		root := find(i)
		if len(members[root]) == 0 {
			roots = append(roots, root)
		}
		members[root] = append(members[root], i)
	}
	sort.Ints(roots)

	comps := make([][]int, 0, len(roots))
	for _, root := range roots {
		comps = append(comps, members[root])
	}
	return comps
}
