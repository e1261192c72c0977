package buildsys

import (
	"context"
	"fmt"
)

// Body is the work a task performs. It takes no domain arguments; the context
// only carries the logger and cancellation.
type Body func(ctx context.Context) error

// Task is a named, registered operation.
type Task struct {
	Name   string
	Desc   string
	Hidden bool
	body   Body
}

// String returns a string representation of the task
func (t *Task) String() string {
	return fmt.Sprintf("<Task %s: %s>", t.Name, t.Desc)
}

// Run executes the task's body. Every call runs the full body again; composite
// tasks call the Run method of their sub-tasks directly.
func (t *Task) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx = withTaskLogger(ctx, t.Name)
	Log(ctx).Debug().Msg("started")

	err := t.body(ctx)
	if err != nil {
		Log(ctx).Debug().Msg("aborted")
		return err
	}

	Log(ctx).Debug().Msg("finished")
	return nil
}

// TaskOption customizes a task during registration.
type TaskOption func(*Task)

// Hidden excludes the task from the usage listing. It can still be run by name.
func Hidden() TaskOption {
	return func(t *Task) {
		t.Hidden = true
	}
}
