package models

import "time"

// TaskType enumerates the scheduled task kinds this control plane runs.
type TaskType string

const (
	TaskCurveFit         TaskType = "curve_fit"
	TaskDecisionTreeTrain TaskType = "decision_tree_train"
	TaskCoordinatorCycle TaskType = "coordinator_cycle"
	TaskPacingCheck      TaskType = "pacing_check"
	TaskEffectTracking   TaskType = "effect_tracking"
	TaskRollbackEval     TaskType = "rollback_eval"
	TaskConsistencyCheck TaskType = "consistency_check"
	TaskSuggestionCleanup TaskType = "suggestion_cleanup"
)

// TaskParameters is a tagged-union payload, one variant populated per
// TaskType (spec §9: "Dynamic any-typed payloads... become tagged-union
// payloads, one variant per taskType").
type TaskParameters struct {
	AccountID         string
	CampaignIDs       []string
	PerformanceGroupID string
	TrackingHorizon   TrackingHorizon
	WindowDays        int
}

// ScheduledTask is owned by the scheduler; each invocation emits a
// TaskExecution (spec §3).
type ScheduledTask struct {
	ID               string
	TaskType         TaskType
	AccountID        string
	Schedule         string // cron-like expression, interpreted by the scheduler
	RunTime          time.Time
	Enabled          bool
	AutoApply        bool
	RequireApproval  bool
	Parameters       TaskParameters
	NextRun          time.Time
	LastRun          *time.Time
}

// TaskOutcome enumerates terminal states of a TaskExecution.
type TaskOutcome string

const (
	TaskOutcomeSuccess TaskOutcome = "success"
	TaskOutcomeFailed  TaskOutcome = "failed"
	TaskOutcomeSkipped TaskOutcome = "skipped"
)

// TaskExecution is an explicit record of one scheduled task invocation
// (SPEC_FULL supplement, spec §3).
type TaskExecution struct {
	ID        string
	TaskID    string
	TaskType  TaskType
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   TaskOutcome
	Error     string
}
