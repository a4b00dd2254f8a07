package availability

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the sentinel every *InvalidInputError unwraps to.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports a structurally invalid argument, such as an
// unparsable "HH:mm" clock.
type InvalidInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

func IsErrInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
