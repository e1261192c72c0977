package buildsys

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrTaskNotFound is returned when a task name isn't registered.
	ErrTaskNotFound = eris.New("task not found")
	// ErrDuplicateTask is returned when a name is registered twice.
	ErrDuplicateTask = eris.New("task already registered")
)

// CommandError reports a command that exited with a non-zero status under the
// abort policy. It travels up through every enclosing task unchanged.
type CommandError struct {
	Invocation Invocation
	Status     int
	Err        error
}

var _ error = (*CommandError)(nil)

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q in %s failed: returncode: %d", e.Invocation.Command, e.Invocation.Dir, e.Status)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
