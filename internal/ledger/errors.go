package ledger

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("ledger: invalid source record")

// ValidationError reports a source record whose required field is missing or
// malformed. It aborts the whole rebuild.
type ValidationError struct {
	Source   SourceKind
	RecordID string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	id := e.RecordID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("ledger: %s %s: %s %s", e.Source, id, e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
