// Package framework runs the cooperative tasks of one keyboard half.
package framework

import "context"

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Task is a long running unit of work, stopped by canceling ctx.
type Task interface {
	Run(context.Context) error
}

// TaskFunc is the func form of Task.
type TaskFunc func(context.Context) error

// Run implements Task.
func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type namedTask struct {
	Task
	name string
}

func (t *namedTask) Name() string {
	return t.name
}

// NamedTask wraps a Task with a name.
func NamedTask(name string, task Task) Task {
	return &namedTask{name: name, Task: task}
}

// NamedFunc is a shortcut for NamedTask(name, TaskFunc(fn)).
func NamedFunc(name string, fn func(context.Context) error) Task {
	return NamedTask(name, TaskFunc(fn))
}

// TaskName returns the name of a Named task or fallback.
func TaskName(task Task, fallback string) string {
	if named, ok := task.(Named); ok {
		return named.Name()
	}
	return fallback
}
