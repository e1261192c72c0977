package buildsys

import (
	"os"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
)

func info(thread *starlark.Thread, msg string) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	Log(runContext(thread)).Info().
		Msgf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, msg)
}

func warn(thread *starlark.Thread, msg string) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	Log(runContext(thread)).Warn().
		Msgf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, msg)
}

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	info(thread, message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	warn(thread, message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var fallback starlark.Value = starlark.None

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "key", &key, "default?", &fallback)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if value, ok := ctx.runner.Env[key]; ok {
		return starlark.String(value), nil
	}

	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	return starlark.String(value), nil
}

func starIsdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(normalizePath(getCtx(thread), path))
	return starlark.Bool(err == nil && info.IsDir()), nil
}

func starIsfile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(normalizePath(getCtx(thread), path))
	return starlark.Bool(err == nil && info.Mode().IsRegular()), nil
}

func readYaml(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &path)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	path = normalizePath(ctx, path)

	data, cached := ctx.yamlCache[path]
	if !cached {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read %s", path)
		}

		err = yaml.Unmarshal(content, &data)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse %s", path)
		}

		ctx.yamlCache[path] = data
	}

	return interfaceToStarlark(data)
}

// specimens(root) returns the sub-directories of root, relative to the project root.
// The directory is read again on every call.
func starSpecimens(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var root string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &root)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	paths, err := DiscoverSpecimens(normalizePath(ctx, root))
	if err != nil {
		return nil, err
	}

	items := make([]starlark.Value, len(paths))
	for idx, path := range paths {
		items[idx] = starlark.String(rootRelative(ctx, path))
	}

	return starlark.NewList(items), nil
}

// run_cmd(cmd, dir=".", ignore_error=False) runs a shell command. dir is relative
// to the script unless it starts with //.
func runCmd(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var command string
	dir := "."
	ignoreError := false

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "cmd", &command, "dir?", &dir, "ignore_error?", &ignoreError)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	inv := Invocation{
		Command: command,
		Dir:     rootRelative(ctx, normalizePath(ctx, dir)),
		Policy:  Abort,
	}
	if ignoreError {
		inv.Policy = Ignore
	}

	err = ctx.runner.Exec(runContext(thread), inv)
	if err != nil {
		return nil, propagate(thread, err)
	}

	return starlark.None, nil
}
