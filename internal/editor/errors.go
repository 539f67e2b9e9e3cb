package editor

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned when a processed subject arrives after a newer upload started.
var ErrSuperseded = errors.New("subject superseded by a newer upload")

// ValidationError rejects user input before any state is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
