package state

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a lookup against an unknown id.
// It is surfaced to callers unchanged; the orchestrator does not retry lookups.
type NotFoundError struct {
	// Kind names the record type (execution, task, squad member).
	Kind string
	// ID is the identifier that was looked up.
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound returns true if err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
