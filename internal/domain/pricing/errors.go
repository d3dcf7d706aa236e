package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrEmptyCart is wrapped by the ValidationError returned for a cart without lines.
var ErrEmptyCart = errors.New("cart is empty")

// ValidationError reports malformed or out-of-range input. The caller must
// correct the request before retrying.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a referenced entity that is absent or belongs to
// another business.
type NotFoundError struct {
	Entity string
	ID     string
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ConflictError reports a lost race on a shared resource. The caller may
// retry after a fresh preview.
type ConflictError struct {
	Resource string
	ID       string
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Resource, e.ID)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Kind classifies errors for transports.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Classify maps err to its Kind. Errors outside the taxonomy are internal.
func Classify(err error) Kind {
	var (
		vErr *ValidationError
		nErr *NotFoundError
		cErr *ConflictError
	)
	switch {
	case errors.As(err, &vErr):
		return KindValidation
	case errors.As(err, &nErr):
		return KindNotFound
	case errors.As(err, &cErr):
		return KindConflict
	default:
		return KindInternal
	}
}
