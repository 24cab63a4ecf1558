// Package apperr holds error kinds shared by more than one service package.
package apperr

import (
	"errors"
	"fmt"
)

// ErrValidation is returned for malformed caller input (short password, bad email, negative TTL).
// Services wrap it with a detail message; match with errors.Is.
var ErrValidation = errors.New("validation failed")

// Validation returns an error wrapping ErrValidation with the formatted detail.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
