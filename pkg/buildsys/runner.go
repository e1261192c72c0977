package buildsys

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/Zakki0925224/kombu/build-tools/pkg/posix"
)

// Policy decides what happens when a command exits with a non-zero status.
type Policy int

const (
	// Abort stops the whole pipeline.
	Abort Policy = iota
	// Ignore discards the failure and lets the caller continue.
	Ignore
)

func (p Policy) String() string {
	if p == Ignore {
		return "ignore"
	}
	return "abort"
}

// Invocation is a single shell command run in a working directory.
type Invocation struct {
	Command string
	Dir     string
	Policy  Policy
}

// RunOption adjusts an Invocation built by Runner.Run.
type RunOption func(*Invocation)

// InDir sets the working directory. Relative paths are resolved against the runner's root.
func InDir(dir string) RunOption {
	return func(inv *Invocation) {
		inv.Dir = dir
	}
}

// IgnoreFailure switches the invocation to the Ignore policy.
func IgnoreFailure() RunOption {
	return func(inv *Invocation) {
		inv.Policy = Ignore
	}
}

// Runner executes shell commands. The child's output goes straight to Stdout
// and Stderr; nothing is captured.
type Runner struct {
	// Root is the directory relative working directories are resolved against.
	Root string
	// Env holds extra KEY=value pairs on top of the process environment.
	Env    map[string]string
	DryRun bool
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner creates a runner rooted at root that uses the process' stdio.
func NewRunner(root string) *Runner {
	return &Runner{
		Root:   root,
		Env:    map[string]string{},
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes command with the default Abort policy in the root directory
// unless overridden by opts.
func (r *Runner) Run(ctx context.Context, command string, opts ...RunOption) error {
	inv := Invocation{Command: command, Dir: ".", Policy: Abort}
	for _, opt := range opts {
		opt(&inv)
	}

	return r.Exec(ctx, inv)
}

// Exec executes the invocation and blocks until the command has finished.
// Under the Abort policy a non-zero status is returned as *CommandError.
func (r *Runner) Exec(ctx context.Context, inv Invocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := r.resolveDir(inv.Dir)
	Log(ctx).Info().
		Bool("command", true).
		Str("dir", inv.Dir).
		Msg(inv.Command)

	file, err := syntax.NewParser().Parse(strings.NewReader(inv.Command), inv.Command)
	if err != nil {
		if inv.Policy == Ignore {
			Log(ctx).Debug().
				Str("cmd", inv.Command).
				Err(err).
				Msg("ignoring unparsable command")
			return nil
		}
		return eris.Wrapf(err, "failed to parse command %s", inv.Command)
	}

	if r.DryRun {
		return nil
	}

	shell, err := interp.New(
		interp.Dir(dir),
		interp.Env(r.environ()),
		interp.ExecHandlers(builtinTools),
		interp.OpenHandler(openHandler),
		interp.StdIO(r.Stdin, r.Stdout, r.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	err = shell.Run(ctx, file)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	status := 1
	if code, ok := interp.IsExitStatus(err); ok {
		status = int(code)
	}

	if inv.Policy == Ignore {
		Log(ctx).Debug().
			Str("cmd", inv.Command).
			Int("status", status).
			Msg("ignoring failed command")
		return nil
	}

	return &CommandError{Invocation: inv, Status: status, Err: err}
}

func (r *Runner) resolveDir(dir string) string {
	root := r.Root
	if root == "" {
		root = "."
	}

	if dir == "" {
		return filepath.Clean(root)
	}

	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}

	return filepath.Join(root, dir)
}

func (r *Runner) environ() expand.Environ {
	envVars := os.Environ()
	for name, value := range r.Env {
		envVars = append(envVars, name+"="+value)
	}

	return expand.ListEnviron(envVars...)
}

// builtinTools routes rm, mkdir, mv and cp to the in-process implementations
// so they behave the same on every platform.
func builtinTools(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if len(args) == 0 || !posix.Handles(args[0]) {
			return next(ctx, args)
		}

		hc := interp.HandlerCtx(ctx)
		err := posix.Run(ctx, hc.Dir, hc.Stdout, hc.Stderr, args)
		if err != nil {
			return interp.NewExitStatus(1)
		}
		return nil
	}
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}
