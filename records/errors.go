package records

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("record already exists")
	ErrInvalidRecord = errors.New("invalid record")
	// ErrUnavailable wraps failures of the underlying database.
	ErrUnavailable = errors.New("record store unavailable")
)

// RowError describes why an imported row was rejected. Line is 1-based and
// counts the header; Column is the zero-based field index, or -1 when the
// row as a whole is wrong.
type RowError struct {
	Line   int
	Column int
	Field  string
	Reason string
}

func (e *RowError) Error() string {
	if e.Column < 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d column %d (%s): %s", e.Line, e.Column, e.Field, e.Reason)
}

func (e *RowError) Unwrap() error {
	return ErrInvalidRecord
}

func invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidRecord, field, reason)
}
