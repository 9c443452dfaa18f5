package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/panics"
)

// ErrNoTasks is returned by Run when the coordinator has nothing to do
var ErrNoTasks = errors.New("no tasks configured")

// Task is one independent unit of work. Run delivers its output through
// whatever the closure captures and reports failure through its error.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskError identifies the task that failed a join
type TaskError struct {
	Task string
	Err  error
}

// Error implements the error interface
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *TaskError) Unwrap() error {
	return e.Err
}

// result is what each worker goroutine reports back to the coordinator
type result struct {
	name string
	err  error
}

// Coordinator runs a fixed set of independent tasks concurrently and joins them
type Coordinator struct {
	tasks []Task
}

// New creates a new Coordinator with the given tasks
func New(tasks ...Task) *Coordinator {
	return &Coordinator{
		tasks: tasks,
	}
}

// Run starts every task in its own goroutine and waits until all of them have
// succeeded. The first failure is returned as a *TaskError as soon as it
// arrives; the remaining tasks are not waited for and keep running until they
// finish or ctx is canceled. A panicking task counts as a failed task.
//
// Run never abandons the join on its own when ctx ends. Tasks receive ctx and
// decide what its end means, so a task that can still answer (from a cache,
// say) is not overruled; a task that gives up reports ctx.Err() as its error.
func (c *Coordinator) Run(ctx context.Context) error {
	if len(c.tasks) == 0 {
		return ErrNoTasks
	}

	// Buffered so workers never block once the coordinator has returned early
	resultChan := make(chan result, len(c.tasks))

	for _, t := range c.tasks {
		go func(task Task) {
			var err error
			var catcher panics.Catcher
			catcher.Try(func() {
				err = task.Run(ctx)
			})
			if recovered := catcher.Recovered(); recovered != nil {
				err = recovered.AsError()
			}

			resultChan <- result{
				name: task.Name,
				err:  err,
			}
		}(t)
	}

	for remaining := len(c.tasks); remaining > 0; remaining-- {
		res := <-resultChan
		if res.err != nil {
			return &TaskError{Task: res.name, Err: res.err}
		}
	}

	return nil
}
