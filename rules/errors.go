package rules

import (
	"errors"
	"fmt"
)

// ErrValidation is the sentinel wrapped by every ValidationError so callers
// can match the whole class with errors.Is.
var ErrValidation = errors.New("rule validation failed")

// ValidationError describes a malformed rule definition: empty attribute
// paths, unknown operators, operand shape mismatches, out-of-range rollout
// percentages, or excessive nesting. It aborts compilation of the rule set.
type ValidationError struct {
	Field   string // dotted location of the problem, e.g. "rules[2].rule.conditions[0].value"
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule validation failed [%s]: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
