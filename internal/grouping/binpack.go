package grouping

import (
	"fmt"
	"sort"

	"github.com/dshills/gosum-mcp/pkg/types"
)

// packByTokens repacks clusters whose token estimate exceeds the per-group
// budget. Files are placed greedily in descending token order (first-fit
// decreasing), producing possibly more groups than the size cap alone
// implies. A single file over the budget still gets its own group; files are
// never dropped.
func packByTokens(clusters []cluster, maxGroupSize, maxTokensPerGroup int) []cluster {
	var out []cluster
	for _, c := range clusters {
		if estimateTokens(c.files) <= maxTokensPerGroup {
			out = append(out, c)
			continue
		}
		out = append(out, packCluster(c, maxGroupSize, maxTokensPerGroup)...)
	}
	return out
}

func packCluster(c cluster, maxGroupSize, maxTokensPerGroup int) []cluster {
	ordered := append([]*types.FileRecord(nil), c.files...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := ordered[i].EstimateTokens(), ordered[j].EstimateTokens()
		if ti != tj {
			return ti > tj
		}
		return ordered[i].Path < ordered[j].Path
	})

	var bins [][]*types.FileRecord
	var binTokens []int

	for _, f := range ordered {
		tokens := f.EstimateTokens()
		placed := false
		for b := range bins {
			if len(bins[b]) < maxGroupSize && binTokens[b]+tokens <= maxTokensPerGroup {
				bins[b] = append(bins[b], f)
				binTokens[b] += tokens
				placed = true
				break
			}
		}
		if !placed {
			bins = append(bins, []*types.FileRecord{f})
			binTokens = append(binTokens, tokens)
		}
	}

	packed := make([]cluster, 0, len(bins))
	for b, files := range bins {
		name := c.name
		if len(bins) > 1 {
			name = fmt.Sprintf("%s#%d", c.name, b+1)
		}
		packed = append(packed, cluster{name: name, files: files})
	}
	return packed
}
