package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/patrickwarner/bidops/internal/models"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, handlers map[models.TaskType]Handler) (*Scheduler, func()) {
	t.Helper()
	pool := NewPool(zap.NewNop(), PoolConfig{Name: "test", NumWorkers: 4, QueueSize: 100, TaskTimeout: time.Second})
	pool.Start()
	sched := &Scheduler{Pool: pool, Logger: zap.NewNop(), Handlers: handlers}
	return sched, func() { pool.Stop(time.Second) }
}

func TestRunDueSkipsNotYetDueAndDisabledTasks(t *testing.T) {
	sched, stop := newTestScheduler(t, map[models.TaskType]Handler{
		models.TaskPacingCheck: func(ctx context.Context, task models.ScheduledTask) error { return nil },
	})
	defer stop()

	now := time.Now().UTC()
	tasks := []models.ScheduledTask{
		{ID: "future", TaskType: models.TaskPacingCheck, Enabled: true, NextRun: now.Add(time.Hour)},
		{ID: "disabled", TaskType: models.TaskPacingCheck, Enabled: false, NextRun: now.Add(-time.Hour)},
	}
	execs := sched.RunDue(context.Background(), tasks, now)
	if len(execs) != 0 {
		t.Fatalf("expected no executions for future/disabled tasks, got %+v", execs)
	}
}

func TestRunDueRecordsMissingHandlerAsSkipped(t *testing.T) {
	sched, stop := newTestScheduler(t, map[models.TaskType]Handler{})
	defer stop()

	now := time.Now().UTC()
	tasks := []models.ScheduledTask{
		{ID: "due", TaskType: models.TaskPacingCheck, Enabled: true, NextRun: now.Add(-time.Minute)},
	}
	execs := sched.RunDue(context.Background(), tasks, now)
	if len(execs) != 1 || execs[0].Outcome != models.TaskOutcomeSkipped {
		t.Fatalf("expected one skipped execution, got %+v", execs)
	}
}

func TestRunDueRecordsSuccessAndFailureOutcomes(t *testing.T) {
	sched, stop := newTestScheduler(t, map[models.TaskType]Handler{
		models.TaskPacingCheck:    func(ctx context.Context, task models.ScheduledTask) error { return nil },
		models.TaskRollbackEval: func(ctx context.Context, task models.ScheduledTask) error { return errors.New("bad") },
	})
	defer stop()

	now := time.Now().UTC()
	tasks := []models.ScheduledTask{
		{ID: "ok", TaskType: models.TaskPacingCheck, AccountID: "acct-1", Enabled: true, NextRun: now.Add(-time.Minute)},
		{ID: "bad", TaskType: models.TaskRollbackEval, AccountID: "acct-2", Enabled: true, NextRun: now.Add(-time.Minute)},
	}
	execs := sched.RunDue(context.Background(), tasks, now)
	if len(execs) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(execs))
	}
	outcomes := map[string]models.TaskOutcome{}
	for _, e := range execs {
		outcomes[e.TaskID] = e.Outcome
	}
	if outcomes["ok"] != models.TaskOutcomeSuccess {
		t.Fatalf("expected 'ok' to succeed, got %s", outcomes["ok"])
	}
	if outcomes["bad"] != models.TaskOutcomeFailed {
		t.Fatalf("expected 'bad' to fail, got %s", outcomes["bad"])
	}
}

func TestRunDueSerializesTasksForSameAccount(t *testing.T) {
	var mu sync.Mutex
	var order []string

	sched, stop := newTestScheduler(t, map[models.TaskType]Handler{
		models.TaskPacingCheck: func(ctx context.Context, task models.ScheduledTask) error {
			mu.Lock()
			order = append(order, task.ID+":start")
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			order = append(order, task.ID+":end")
			mu.Unlock()
			return nil
		},
	})
	defer stop()

	now := time.Now().UTC()
	tasks := []models.ScheduledTask{
		{ID: "first", TaskType: models.TaskPacingCheck, AccountID: "acct-1", Enabled: true, NextRun: now.Add(-time.Minute)},
		{ID: "second", TaskType: models.TaskPacingCheck, AccountID: "acct-1", Enabled: true, NextRun: now.Add(-time.Minute)},
	}
	sched.RunDue(context.Background(), tasks, now)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 4 {
		t.Fatalf("expected 4 ordered events, got %v", order)
	}
	// whichever task starts first must end before the other starts, since
	// both share the same account lock.
	firstTask := order[0][:len(order[0])-len(":start")]
	if order[1] != firstTask+":end" {
		t.Fatalf("expected same-account tasks to run strictly in sequence, got %v", order)
	}
}
