package engine

import (
	"errors"
	"fmt"

	"github.com/targetkit/targetkit/rules"
)

// ErrType is the sentinel wrapped by every TypeError.
var ErrType = errors.New("type error")

// TypeError reports that a context value's runtime type is incompatible with
// an operator. It is contained per condition: the evaluator downgrades the
// condition to false and records the error in the result metadata instead of
// aborting the evaluation.
type TypeError struct {
	Attribute string
	Operator  rules.Operator
	Message   string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("type error [%s %s]: %s", e.Attribute, e.Operator, e.Message)
}

// Unwrap lets errors.Is(err, ErrType) match.
func (e *TypeError) Unwrap() error { return ErrType }

func newTypeError(cond rules.Condition, format string, args ...any) *TypeError {
	return &TypeError{
		Attribute: cond.Attribute,
		Operator:  rules.Normalize(cond.Operator),
		Message:   fmt.Sprintf(format, args...),
	}
}
