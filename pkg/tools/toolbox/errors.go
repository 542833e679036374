package toolbox

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is returned when a call names a tool the box does not hold.
	ErrToolNotFound = errors.New("toolbox: tool not found")
	// ErrDuplicateTool is returned when a tool name is registered twice.
	ErrDuplicateTool = errors.New("toolbox: duplicate tool name")
)

// InvalidArgumentError reports arguments that do not match a tool's schema.
// Field names the offending parameter; it is empty when the whole argument
// object is malformed.
type InvalidArgumentError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("toolbox: invalid arguments for %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("toolbox: invalid argument %q for %s: %s", e.Field, e.Tool, e.Reason)
}

// ExecutionError wraps a failure raised by a tool handler, or a result that
// does not match the declared output type.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("toolbox: %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
