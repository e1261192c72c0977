package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zakki0925224/kombu/build-tools/pkg/buildsys"
)

func testRegistry(t *testing.T, calls *[]string) *buildsys.Registry {
	t.Helper()

	reg := buildsys.NewRegistry()
	reg.MustRegister("clear", "delete the output", func(context.Context) error {
		*calls = append(*calls, "clear")
		return nil
	})
	reg.MustRegister("build", "build everything", func(context.Context) error {
		*calls = append(*calls, "build")
		return &buildsys.CommandError{
			Invocation: buildsys.Invocation{Command: "cargo build", Dir: "yaminabe"},
			Status:     101,
		}
	})
	reg.MustRegister("broken_script", "", func(context.Context) error {
		return assert.AnError
	})
	return reg
}

func logContext(buf *bytes.Buffer) context.Context {
	logger := zerolog.New(buf)
	return buildsys.WithLogger(context.Background(), &logger)
}

func TestDispatchUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"clear", "build"}} {
		calls := []string{}
		out := &bytes.Buffer{}

		code := Dispatch(context.Background(), testRegistry(t, &calls), args, out, true)
		assert.Equal(t, 0, code)
		assert.Empty(t, calls)

		usage := out.String()
		assert.Contains(t, usage, "Usage:")
		assert.Less(t, strings.Index(usage, "clear:"), strings.Index(usage, "build:"))
		assert.Contains(t, usage, "delete the output")
	}
}

func TestDispatchUnknownTask(t *testing.T) {
	calls := []string{}
	logs := &bytes.Buffer{}

	code := Dispatch(logContext(logs), testRegistry(t, &calls), []string{"deploy"}, &bytes.Buffer{}, true)
	assert.Equal(t, 0, code)
	assert.Empty(t, calls)
	assert.Contains(t, logs.String(), "Invalid task name.")
}

func TestDispatchRunsTask(t *testing.T) {
	calls := []string{}

	code := Dispatch(context.Background(), testRegistry(t, &calls), []string{"clear"}, &bytes.Buffer{}, false)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"clear"}, calls)
}

func TestDispatchFailureExitsZeroByDefault(t *testing.T) {
	calls := []string{}
	logs := &bytes.Buffer{}

	code := Dispatch(logContext(logs), testRegistry(t, &calls), []string{"build"}, &bytes.Buffer{}, false)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"build"}, calls)
	assert.Contains(t, logs.String(), "returncode: 101")
	assert.Contains(t, logs.String(), "cargo build")
}

func TestDispatchStrictExitUsesStatus(t *testing.T) {
	calls := []string{}

	code := Dispatch(context.Background(), testRegistry(t, &calls), []string{"build"}, &bytes.Buffer{}, true)
	assert.Equal(t, 101, code)

	code = Dispatch(context.Background(), testRegistry(t, &calls), []string{"broken_script"}, &bytes.Buffer{}, true)
	assert.Equal(t, 1, code)

	code = Dispatch(context.Background(), testRegistry(t, &calls), []string{"broken_script"}, &bytes.Buffer{}, false)
	assert.Equal(t, 0, code)
}

func TestPrintUsageHidesHiddenTasks(t *testing.T) {
	reg := buildsys.NewRegistry()
	reg.MustRegister("visible", "shown", func(context.Context) error { return nil })
	reg.MustRegister("secret", "not shown", func(context.Context) error { return nil }, buildsys.Hidden())

	out := &bytes.Buffer{}
	PrintUsage(out, reg)
	require.Contains(t, out.String(), "visible:")
	assert.NotContains(t, out.String(), "secret")
}
