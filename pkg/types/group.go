package types

// FileGroup is a token-bounded subset of a project's files summarized
// together. Groups are created fresh per batch invocation and never persist
// beyond the batch's lifetime.
type FileGroup struct {
	ID              int
	Name            string
	FileIDs         []int64 // Ordered, no duplicates across groups within one batch
	Priority        float64 // Higher values dispatch sooner
	EstimatedTokens int
}

// Size returns the number of files in the group
func (g *FileGroup) Size() int {
	return len(g.FileIDs)
}
