package school

import (
	"errors"
	"fmt"

	"github.com/maxmusicschool/schoolauth"
	"github.com/maxmusicschool/schoolauth/records"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("already exists")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRequestResolved = errors.New("request already resolved")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// storeError maps record-store failures onto the service error set.
// Unavailable stores surface as schoolauth.ErrUpstreamUnavailable.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, records.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, records.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case errors.Is(err, records.ErrInvalidRecord):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, records.ErrUnavailable):
		return fmt.Errorf("%w: %v", schoolauth.ErrUpstreamUnavailable, err)
	}
	return err
}
