package apperr

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrValidation occurs when user input is malformed. Nothing is mutated.
	ErrValidation = errors.New("validation failed")
	// ErrStorage occurs when the external store could not be read or written.
	// In-memory state is kept as is.
	ErrStorage = errors.New("storage failure")
	// ErrPermission occurs when a notification channel is not permitted or
	// not configured for a user
	ErrPermission = errors.New("permission denied")
	// ErrNotFound occurs when an id does not exist
	ErrNotFound = errors.New("not found")
)

// Invalid creates a validation error for a single field
func Invalid(field, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, fmt.Sprintf(format, args...))
}

// Storage wraps err as a storage failure
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// Validator collects field problems so a form reports all of them at once
type Validator struct {
	result *multierror.Error
}

// Check records a problem for field when ok is false
func (v *Validator) Check(ok bool, field, format string, args ...interface{}) {
	if !ok {
		v.Add(Invalid(field, format, args...))
	}
}

// Add records an already built error, which should wrap ErrValidation
func (v *Validator) Add(err error) {
	if err != nil {
		v.result = multierror.Append(v.result, err)
	}
}

// Err returns nil when every check passed
func (v *Validator) Err() error {
	return v.result.ErrorOrNil()
}
