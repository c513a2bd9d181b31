package waiter

import "github.com/cockroachdb/errors"

var (
	// ErrNotFound is returned when an order or patient does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks input that failed validation. Wrapped errors carry the detail.
	ErrInvalid = errors.New("invalid input")
)
