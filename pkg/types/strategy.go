package types

import "fmt"

// Strategy selects how the grouping service partitions files into groups
type Strategy string

const (
	// StrategyDirectory clusters files sharing a common path prefix
	StrategyDirectory Strategy = "directory"
	// StrategyImports clusters files connected by static import references
	StrategyImports Strategy = "imports"
	// StrategySemantic buckets files by a deterministic content-similarity key
	StrategySemantic Strategy = "semantic"
	// StrategyMixed applies imports, then directory, then semantic in order
	StrategyMixed Strategy = "mixed"
)

// ParseStrategy converts a string into a Strategy, rejecting unknown values
func ParseStrategy(s string) (Strategy, error) {
	strategy := Strategy(s)
	if err := strategy.Validate(); err != nil {
		return "", err
	}
	return strategy, nil
}

// Validate checks that the strategy is one of the closed set of variants
func (s Strategy) Validate() error {
	switch s {
	case StrategyDirectory, StrategyImports, StrategySemantic, StrategyMixed:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, string(s))
	}
}
