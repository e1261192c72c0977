package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rotisserie/eris"

	"github.com/Zakki0925224/kombu/build-tools/pkg/buildsys"
)

// Dispatch runs the task named by the single element of args and returns the
// process exit code. Any other number of arguments prints the usage listing.
//
// Failures exit with 0 unless strict is set; scripts that only check the exit
// code can't tell a failed build from a successful one in the default mode.
func Dispatch(ctx context.Context, reg *buildsys.Registry, args []string, out io.Writer, strict bool) int {
	if len(args) != 1 {
		PrintUsage(out, reg)
		return 0
	}

	name := args[0]
	found, err := reg.Run(ctx, name)
	if !found {
		buildsys.Log(ctx).Error().
			Err(eris.Wrapf(buildsys.ErrTaskNotFound, "%s", name)).
			Msg("Invalid task name.")
		return 0
	}

	if err == nil {
		return 0
	}

	status := 1
	var cmdErr *buildsys.CommandError
	if errors.As(err, &cmdErr) {
		buildsys.Log(ctx).Error().
			Str("cmd", cmdErr.Invocation.Command).
			Str("dir", cmdErr.Invocation.Dir).
			Msgf("returncode: %d", cmdErr.Status)
		status = cmdErr.Status
	} else {
		buildsys.Log(ctx).Error().Err(err).Msgf("Failed task %s", name)
	}

	if !strict {
		return 0
	}

	if status == 0 {
		status = 1
	}
	return status
}

// PrintUsage lists the visible tasks in registration order.
func PrintUsage(out io.Writer, reg *buildsys.Registry) {
	tasks := reg.Tasks()
	fmt.Fprintln(out, "Usage: task <name>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Available tasks:")

	maxNameLen := 0
	for _, task := range tasks {
		if len(task.Name) > maxNameLen {
			maxNameLen = len(task.Name)
		}
	}

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, task := range tasks {
		fmt.Fprintf(out, lineFmt, task.Name+":", task.Desc)
	}
}
