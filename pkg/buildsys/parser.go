package buildsys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

const (
	scriptCtxKey = "scriptCtx"
	runCtxKey    = "runCtx"
	abortKey     = "abort"
)

type scriptCtx struct {
	ctx         context.Context
	registry    *Registry
	runner      *Runner
	yamlCache   map[string]interface{}
	filepath    string
	projectRoot string
}

// * Helpers

func getCtx(thread *starlark.Thread) *scriptCtx {
	return thread.Local(scriptCtxKey).(*scriptCtx)
}

// runContext returns the context of the task execution the thread belongs to.
// While the script is loaded, that's the load context.
func runContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(runCtxKey).(context.Context); ok {
		return ctx
	}
	return getCtx(thread).ctx
}

// propagate remembers a command failure on the thread so the task body can
// return it unchanged, no matter how Starlark wraps the error on its way up.
func propagate(thread *starlark.Thread, err error) error {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && thread.Local(abortKey) == nil {
		thread.SetLocal(abortKey, cmdErr)
	}
	return err
}

func (s *scriptCtx) newThread(ctx context.Context, name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(thread *starlark.Thread, msg string) {
			Log(runContext(thread)).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	thread.SetLocal(scriptCtxKey, s)
	thread.SetLocal(runCtxKey, ctx)
	return thread
}

func (s *scriptCtx) scriptError(err error) error {
	var evalError *starlark.EvalError
	if errors.As(err, &evalError) {
		return eris.Errorf("failed to execute %s:\n%s", simplifyPath(s, s.filepath), evalError.Backtrace())
	}
	return eris.Wrapf(err, "failed to execute %s", simplifyPath(s, s.filepath))
}

// makeBody wraps a Starlark callable as a task body. Each execution gets a
// fresh thread; calls to other functions inside the script happen on it.
func (s *scriptCtx) makeBody(name string, fn starlark.Callable) Body {
	return func(ctx context.Context) error {
		thread := s.newThread(ctx, name)
		stop := context.AfterFunc(ctx, func() {
			thread.Cancel("context cancelled")
		})
		defer stop()

		_, err := starlark.Call(thread, fn, nil, nil)
		if err == nil {
			return nil
		}

		if cmdErr, ok := thread.Local(abortKey).(*CommandError); ok {
			return cmdErr
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return s.scriptError(err)
	}
}

// taskValue exposes an already registered task to scripts as a zero-argument function.
func taskValue(task *Task) *starlark.Builtin {
	return starlark.NewBuiltin(task.Name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0)
		if err != nil {
			return nil, err
		}

		err = task.Run(runContext(thread))
		if err != nil {
			return nil, propagate(thread, err)
		}

		return starlark.None, nil
	})
}

// * Builtin functions

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var body starlark.Callable
	var name string
	var desc string
	var hidden bool

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "fn", &body, "name?", &name, "desc?", &desc, "hidden?", &hidden)
	if err != nil {
		return nil, err
	}

	if function, ok := body.(*starlark.Function); ok {
		if function.NumParams() > 0 {
			return nil, eris.Errorf("%s: task functions must not take parameters but %s takes %d", fn.Name(), function.Name(), function.NumParams())
		}

		if name == "" && function.Name() != "lambda" {
			name = function.Name()
		}
	}

	if name == "" {
		hidden = true
		name = "auto#" + nanoid.New()
	}

	ctx := getCtx(thread)
	opts := []TaskOption{}
	if hidden {
		opts = append(opts, Hidden())
	}

	_, err = ctx.registry.Register(name, desc, ctx.makeBody(name, body), opts...)
	if err != nil {
		return nil, err
	}

	return body, nil
}

// LoadScript executes a Starlark task script and registers the tasks it declares.
// The runner's root is the project root that // paths refer to. Tasks already
// present in the registry are available to the script as functions (unless
// their name clashes with a builtin).
func LoadScript(ctx context.Context, filename string, registry *Registry, runner *Runner) error {
	projectRoot := runner.Root
	if projectRoot == "" {
		projectRoot = "."
	}

	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return err
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return err
	}

	script, err := os.ReadFile(filename)
	if err != nil {
		return eris.Wrapf(err, "failed to read file")
	}

	builtins := starlark.StringDict{
		"OS":        starlark.String(runtime.GOOS),
		"ARCH":      starlark.String(runtime.GOARCH),
		"info":      starlark.NewBuiltin("info", starInfo),
		"warn":      starlark.NewBuiltin("warn", starWarn),
		"error":     starlark.NewBuiltin("error", starError),
		"getenv":    starlark.NewBuiltin("getenv", getenv),
		"read_yaml": starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":     starlark.NewBuiltin("isdir", starIsdir),
		"isfile":    starlark.NewBuiltin("isfile", starIsfile),
		"specimens": starlark.NewBuiltin("specimens", starSpecimens),
		"run_cmd":   starlark.NewBuiltin("run_cmd", runCmd),
		"task":      starlark.NewBuiltin("task", task),
	}

	for _, registered := range registry.tasks {
		if !isIdentifier(registered.Name) {
			continue
		}

		if _, taken := builtins[registered.Name]; taken {
			continue
		}

		if _, taken := starlark.Universe[registered.Name]; taken {
			continue
		}

		builtins[registered.Name] = taskValue(registered)
	}

	sctx := &scriptCtx{
		ctx:         ctx,
		registry:    registry,
		runner:      runner,
		yamlCache:   make(map[string]interface{}),
		filepath:    filename,
		projectRoot: projectRoot,
	}
	thread := sctx.newThread(ctx, "main")

	_, err = starlark.ExecFile(thread, simplifyPath(sctx, filename), script, builtins)
	if err != nil {
		return sctx.scriptError(err)
	}

	Log(ctx).Debug().
		Str("path", filename).
		Msgf("loaded %s", simplifyPath(sctx, filename))
	return nil
}
