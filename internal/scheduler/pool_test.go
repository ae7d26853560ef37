package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPoolSubmitExecutesTask(t *testing.T) {
	pool := NewPool(zap.NewNop(), PoolConfig{Name: "test", NumWorkers: 2, QueueSize: 10, TaskTimeout: time.Second})
	pool.Start()
	defer pool.Stop(time.Second)

	done := make(chan struct{})
	if err := pool.Submit(TaskFunc(func(ctx context.Context) error {
		close(done)
		return nil
	})); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected the submitted task to run")
	}

	time.Sleep(10 * time.Millisecond)
	stats := pool.Stats()
	if stats.Completed != 1 {
		t.Fatalf("expected 1 completed task, got %+v", stats)
	}
}

func TestPoolSubmitBeforeStartFails(t *testing.T) {
	pool := NewPool(zap.NewNop(), PoolConfig{Name: "test", NumWorkers: 1, QueueSize: 1, TaskTimeout: time.Second})
	if err := pool.Submit(TaskFunc(func(ctx context.Context) error { return nil })); err == nil {
		t.Fatalf("expected submit to fail before Start")
	}
}

func TestPoolRecordsFailedTasks(t *testing.T) {
	pool := NewPool(zap.NewNop(), PoolConfig{Name: "test", NumWorkers: 1, QueueSize: 1, TaskTimeout: time.Second})
	pool.Start()
	defer pool.Stop(time.Second)

	done := make(chan struct{})
	if err := pool.Submit(TaskFunc(func(ctx context.Context) error {
		defer close(done)
		return errors.New("boom")
	})); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	<-done
	time.Sleep(10 * time.Millisecond)
	stats := pool.Stats()
	if stats.Failed != 1 {
		t.Fatalf("expected 1 failed task, got %+v", stats)
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	pool := NewPool(zap.NewNop(), PoolConfig{Name: "test", NumWorkers: 1, QueueSize: 1, TaskTimeout: time.Second})
	pool.Start()
	defer pool.Stop(time.Second)

	done := make(chan struct{})
	if err := pool.Submit(TaskFunc(func(ctx context.Context) error {
		defer close(done)
		panic("kaboom")
	})); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	<-done
	time.Sleep(10 * time.Millisecond)
	stats := pool.Stats()
	if stats.Failed != 1 {
		t.Fatalf("expected the panic to be recorded as a failed task, got %+v", stats)
	}
}

func TestPoolStopDrainsRunningWorkers(t *testing.T) {
	pool := NewPool(zap.NewNop(), PoolConfig{Name: "test", NumWorkers: 1, QueueSize: 1, TaskTimeout: time.Second})
	pool.Start()
	if err := pool.Stop(time.Second); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if err := pool.Submit(TaskFunc(func(ctx context.Context) error { return nil })); err == nil {
		t.Fatalf("expected submit to fail after Stop")
	}
}

func TestNewPoolAppliesDefaultsWhenWorkersUnset(t *testing.T) {
	pool := NewPool(zap.NewNop(), PoolConfig{Name: "defaulted"})
	if pool.config.NumWorkers != 8 {
		t.Fatalf("expected the default worker count of 8, got %d", pool.config.NumWorkers)
	}
}
