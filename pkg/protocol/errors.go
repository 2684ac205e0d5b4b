package protocol

import "fmt"

// PackageNotFoundError represents a work package lookup failure.
// It enables typed error discrimination via errors.As.
type PackageNotFoundError struct {
	PackageID string
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("work package %s not found", e.PackageID)
}

// TransitionError reports an attempt to move a package backwards in its
// lifecycle or out of a terminal state.
type TransitionError struct {
	PackageID string
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("work package %s: illegal status transition %s -> %s", e.PackageID, e.From, e.To)
}
