package buildsys

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Registry is an ordered collection of uniquely named tasks. The order only
// matters for the usage listing.
type Registry struct {
	tasks []*Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make([]*Task, 0)}
}

// Register adds a task. Names must be non-empty and unique.
func (r *Registry) Register(name, desc string, body Body, opts ...TaskOption) (*Task, error) {
	if strings.TrimSpace(name) == "" {
		return nil, eris.New("task name must not be empty")
	}

	if body == nil {
		return nil, eris.Errorf("task %s has no body", name)
	}

	if _, exists := r.Lookup(name); exists {
		return nil, eris.Wrapf(ErrDuplicateTask, "failed to register %s", name)
	}

	task := &Task{Name: name, Desc: desc, body: body}
	for _, opt := range opts {
		opt(task)
	}

	r.tasks = append(r.tasks, task)
	return task, nil
}

// MustRegister is like Register but panics on error. It's meant for tasks
// declared in Go code where a conflict is a programming error.
func (r *Registry) MustRegister(name, desc string, body Body, opts ...TaskOption) *Task {
	task, err := r.Register(name, desc, body, opts...)
	if err != nil {
		panic(err)
	}

	return task
}

// Lookup returns the task with exactly the given name.
func (r *Registry) Lookup(name string) (*Task, bool) {
	for _, task := range r.tasks {
		if task.Name == name {
			return task, true
		}
	}

	return nil, false
}

// Run executes the task with the given name. If no such task exists, found is
// false and nothing runs.
func (r *Registry) Run(ctx context.Context, name string) (found bool, err error) {
	task, ok := r.Lookup(name)
	if !ok {
		return false, nil
	}

	return true, task.Run(ctx)
}

// Tasks returns the visible tasks in registration order.
func (r *Registry) Tasks() []*Task {
	result := make([]*Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		if !task.Hidden {
			result = append(result, task)
		}
	}

	return result
}

// Names returns the names of all visible tasks in registration order.
// Hidden tasks (anonymous script tasks or hidden=True) are left out of the
// listing but can still be run by name.
func (r *Registry) Names() []string {
	tasks := r.Tasks()
	names := make([]string, len(tasks))
	for idx, task := range tasks {
		names[idx] = task.Name
	}

	return names
}
