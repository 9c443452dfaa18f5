package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tasks := []Task{
		{Name: "protocol", Run: func(ctx context.Context) error { return nil }},
		{Name: "prices", Run: func(ctx context.Context) error { return nil }},
	}

	coord := New(tasks...)
	if coord == nil {
		t.Fatal("New() returned nil")
	}

	if len(coord.tasks) != len(tasks) {
		t.Errorf("New() created coordinator with %d tasks, want %d", len(coord.tasks), len(tasks))
	}
}

func TestRun_Success(t *testing.T) {
	var protocol, prices float64

	coord := New(
		Task{Name: "protocol", Run: func(ctx context.Context) error {
			protocol = 6.2e9
			return nil
		}},
		Task{Name: "prices", Run: func(ctx context.Context) error {
			prices = 3050
			return nil
		}},
	)

	if err := coord.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned unexpected error: %v", err)
	}

	// every task has completed once Run returns nil
	if protocol != 6.2e9 || prices != 3050 {
		t.Errorf("task outputs = (%v, %v), want (6.2e9, 3050)", protocol, prices)
	}
}

func TestRun_NoTasks(t *testing.T) {
	coord := New()

	err := coord.Run(context.Background())
	if !errors.Is(err, ErrNoTasks) {
		t.Errorf("Run() error = %v, want ErrNoTasks", err)
	}

	expectedErrMsg := "no tasks configured"
	if err.Error() != expectedErrMsg {
		t.Errorf("Run() error = %q, want %q", err.Error(), expectedErrMsg)
	}
}

func TestRun_FailureIdentifiesTask(t *testing.T) {
	testErr := errors.New("fetch failed")

	coord := New(
		Task{Name: "protocol", Run: func(ctx context.Context) error { return nil }},
		Task{Name: "yields", Run: func(ctx context.Context) error { return testErr }},
	)

	err := coord.Run(context.Background())

	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("Run() error = %T, want *TaskError", err)
	}
	if taskErr.Task != "yields" {
		t.Errorf("Task = %q, want yields", taskErr.Task)
	}
	if !errors.Is(err, testErr) {
		t.Error("errors.Is() did not reach the task error")
	}
}

func TestRun_ReturnsOnFirstFailure(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	coord := New(
		Task{Name: "slow", Run: func(ctx context.Context) error {
			<-release
			return nil
		}},
		Task{Name: "broken", Run: func(ctx context.Context) error {
			return errors.New("upstream down")
		}},
	)

	done := make(chan error, 1)
	go func() {
		done <- coord.Run(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run() expected error, got nil")
		}
	case <-time.After(time.Second):
		t.Fatal("Run() waited for the slow task instead of returning on the first failure")
	}
}

func TestRun_RecoversPanics(t *testing.T) {
	coord := New(Task{Name: "panicky", Run: func(ctx context.Context) error {
		panic("nil summary")
	}})

	err := coord.Run(context.Background())
	if err == nil {
		t.Fatal("Run() expected error for panicking task, got nil")
	}
	if !strings.Contains(err.Error(), "nil summary") {
		t.Errorf("Run() error = %q, want it to mention the panic value", err.Error())
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	coord := New(
		Task{Name: "stuck", Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
		Task{Name: "cached", Run: func(ctx context.Context) error {
			<-ctx.Done()
			// still has an answer after the caller gave up
			return nil
		}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := coord.Run(ctx)

	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Task != "stuck" {
		t.Fatalf("Run() error = %v, want *TaskError from stuck", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want it to wrap context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run() took %v after the deadline", elapsed)
	}
}

func TestRun_TasksOutliveDeadline(t *testing.T) {
	var answered atomic.Int32
	task := func(ctx context.Context) error {
		<-ctx.Done()
		answered.Add(1)
		return nil
	}
	coord := New(
		Task{Name: "protocol", Run: task},
		Task{Name: "prices", Run: task},
		Task{Name: "yields", Run: task},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := coord.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil when every task answers after the deadline", err)
	}
	if got := answered.Load(); got != 3 {
		t.Errorf("answered = %d, want 3", got)
	}
}

func TestRun_ConcurrentExecution(t *testing.T) {
	var running, peak atomic.Int32

	task := func(ctx context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		return nil
	}

	coord := New(
		Task{Name: "protocol", Run: task},
		Task{Name: "prices", Run: task},
		Task{Name: "yields", Run: task},
		Task{Name: "protocols", Run: task},
	)

	start := time.Now()
	if err := coord.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned unexpected error: %v", err)
	}

	if got := peak.Load(); got != 4 {
		t.Errorf("peak concurrency = %d, want 4", got)
	}
	// bounded by the slowest task, not the sum
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("Run() took %v, want close to a single task's duration", elapsed)
	}
}
