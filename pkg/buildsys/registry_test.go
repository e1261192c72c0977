package buildsys

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterLookup(t *testing.T) {
	reg := NewRegistry()
	hit := 0
	task, err := reg.Register("sample", "a sample", func(ctx context.Context) error {
		hit++
		return nil
	})
	require.NoError(t, err)

	found, ok := reg.Lookup("sample")
	require.True(t, ok)
	assert.Same(t, task, found)

	ran, err := reg.Run(context.Background(), "sample")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, hit)
}

func TestRegistryDuplicateName(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("dup", "", func(context.Context) error { return nil })

	_, err := reg.Register("dup", "", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicateTask))

	assert.Panics(t, func() {
		reg.MustRegister("dup", "", func(context.Context) error { return nil })
	})
	assert.Equal(t, []string{"dup"}, reg.Names())
}

func TestRegistryRejectsEmptyNameAndBody(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Register(" ", "", func(context.Context) error { return nil })
	assert.Error(t, err)

	_, err = reg.Register("nobody", "", nil)
	assert.Error(t, err)
	assert.Empty(t, reg.Names())
}

func TestRegistryUnknownNameRunsNothing(t *testing.T) {
	reg := NewRegistry()
	hit := false
	reg.MustRegister("build", "", func(context.Context) error {
		hit = true
		return nil
	})

	found, err := reg.Run(context.Background(), "buil")
	assert.False(t, found)
	assert.NoError(t, err)
	assert.False(t, hit)

	found, err = reg.Run(context.Background(), "")
	assert.False(t, found)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestRegistryNamesKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context) error { return nil }
	reg.MustRegister("zeta", "", noop)
	reg.MustRegister("alpha", "", noop)
	reg.MustRegister("internal", "", noop, Hidden())
	reg.MustRegister("mid", "", noop)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, reg.Names())

	// hidden tasks stay runnable
	found, err := reg.Run(context.Background(), "internal")
	assert.True(t, found)
	assert.NoError(t, err)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	a.MustRegister("clear", "", func(context.Context) error { return nil })

	_, ok := b.Lookup("clear")
	assert.False(t, ok)
	_, err := b.Register("clear", "", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestCompositeRunsSubTasksInOrderWithoutDedup(t *testing.T) {
	reg := NewRegistry()
	calls := []string{}
	record := func(name string) Body {
		return func(context.Context) error {
			calls = append(calls, name)
			return nil
		}
	}

	clear := reg.MustRegister("clear", "", record("clear"))
	buildA := reg.MustRegister("build_a", "", record("build_a"))
	buildB := reg.MustRegister("build_b", "", record("build_b"))
	all := reg.MustRegister("build_all", "", func(ctx context.Context) error {
		for _, task := range []*Task{clear, buildA, buildB} {
			if err := task.Run(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	reg.MustRegister("twice", "", func(ctx context.Context) error {
		if err := clear.Run(ctx); err != nil {
			return err
		}
		return all.Run(ctx)
	})

	found, err := reg.Run(context.Background(), "build_all")
	require.True(t, found)
	require.NoError(t, err)
	assert.Equal(t, []string{"clear", "build_a", "build_b"}, calls)

	calls = calls[:0]
	_, err = reg.Run(context.Background(), "twice")
	require.NoError(t, err)
	assert.Equal(t, []string{"clear", "clear", "build_a", "build_b"}, calls)
}

func TestCompositeStopsAtFirstError(t *testing.T) {
	reg := NewRegistry()
	calls := []string{}
	failure := &CommandError{Invocation: Invocation{Command: "false"}, Status: 1}

	first := reg.MustRegister("first", "", func(context.Context) error {
		calls = append(calls, "first")
		return nil
	})
	second := reg.MustRegister("second", "", func(context.Context) error {
		calls = append(calls, "second")
		return failure
	})
	third := reg.MustRegister("third", "", func(context.Context) error {
		calls = append(calls, "third")
		return nil
	})
	reg.MustRegister("all", "", func(ctx context.Context) error {
		for _, task := range []*Task{first, second, third} {
			if err := task.Run(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	found, err := reg.Run(context.Background(), "all")
	assert.True(t, found)
	assert.Same(t, failure, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestTaskRunHonorsCancelledContext(t *testing.T) {
	reg := NewRegistry()
	hit := false
	task := reg.MustRegister("slow", "", func(context.Context) error {
		hit = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, task.Run(ctx), context.Canceled)
	assert.False(t, hit)
}
