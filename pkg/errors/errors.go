// Package errors provides error wrapping helpers for context-aware error
// messages.
package errors

import "fmt"

// Wrap wraps an error with additional context.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with formatted context.
// If err is nil, it returns nil without wrapping.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
