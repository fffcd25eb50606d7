package types

import "errors"

// Domain errors shared across components
var (
	// ErrUnknownStrategy is returned for a grouping strategy outside the closed set
	ErrUnknownStrategy = errors.New("unknown grouping strategy")
	// ErrProjectRequired is returned when an operation is missing a project reference
	ErrProjectRequired = errors.New("project is required")
)
