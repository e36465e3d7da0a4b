package domain

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed input. It is never retried or queued;
// replaying garbage input later would fail the same way.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
