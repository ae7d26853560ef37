package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/patrickwarner/bidops/internal/observability"
	"go.uber.org/zap"
)

// Handler runs one ScheduledTask to completion.
type Handler func(ctx context.Context, task models.ScheduledTask) error

// Scheduler dispatches due ScheduledTasks onto the pool. One account's
// tasks never overlap each other, while different accounts' tasks may run
// concurrently (spec §5).
type Scheduler struct {
	Pool     *Pool
	Metrics  observability.MetricsRegistry
	Logger   *zap.Logger
	Handlers map[models.TaskType]Handler

	accountLocks sync.Map // accountID -> *sync.Mutex
}

func (s *Scheduler) accountLock(accountID string) *sync.Mutex {
	v, _ := s.accountLocks.LoadOrStore(accountID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// RunDue submits every task whose NextRun has arrived, returning the
// TaskExecution produced by each submitted task once it completes. Tasks
// for the same account run one at a time on a shared per-account lock, in
// whichever order the workers pick them up, which is not necessarily the
// order passed in; tasks for different accounts may overlap.
func (s *Scheduler) RunDue(ctx context.Context, tasks []models.ScheduledTask, now time.Time) []models.TaskExecution {
	var mu sync.Mutex
	var executions []models.TaskExecution
	var wg sync.WaitGroup

	for _, task := range tasks {
		if !task.Enabled || task.NextRun.After(now) {
			continue
		}
		task := task
		wg.Add(1)
		err := s.Pool.Submit(TaskFunc(func(ctx context.Context) error {
			defer wg.Done()
			exec := s.run(ctx, task)
			mu.Lock()
			executions = append(executions, exec)
			mu.Unlock()
			return nil
		}))
		if err != nil {
			wg.Done()
			exec := models.TaskExecution{
				TaskID:    task.ID,
				TaskType:  task.TaskType,
				StartedAt: now,
				EndedAt:   now,
				Outcome:   models.TaskOutcomeSkipped,
				Error:     err.Error(),
			}
			mu.Lock()
			executions = append(executions, exec)
			mu.Unlock()
		}
	}

	wg.Wait()
	return executions
}

// run serializes execution per account and records a TaskExecution.
func (s *Scheduler) run(ctx context.Context, task models.ScheduledTask) models.TaskExecution {
	lock := s.accountLock(task.AccountID)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now().UTC()
	exec := models.TaskExecution{
		TaskID:    task.ID,
		TaskType:  task.TaskType,
		StartedAt: started,
	}

	handler, ok := s.Handlers[task.TaskType]
	if !ok {
		exec.EndedAt = time.Now().UTC()
		exec.Outcome = models.TaskOutcomeSkipped
		exec.Error = "no handler registered for task type " + string(task.TaskType)
		return exec
	}

	err := handler(ctx, task)
	exec.EndedAt = time.Now().UTC()
	if err != nil {
		exec.Outcome = models.TaskOutcomeFailed
		exec.Error = err.Error()
	} else {
		exec.Outcome = models.TaskOutcomeSuccess
	}

	if s.Metrics != nil {
		s.Metrics.IncrementTaskExecution(string(task.TaskType), string(exec.Outcome))
	}
	if s.Logger != nil {
		s.Logger.Info("task execution",
			zap.String("task_id", task.ID),
			zap.String("task_type", string(task.TaskType)),
			zap.String("outcome", string(exec.Outcome)),
			zap.Duration("duration", exec.EndedAt.Sub(exec.StartedAt)))
	}

	return exec
}
