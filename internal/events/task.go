package events

import "time"

// Event type constants for task lifecycle events.
const (
	TypeTaskStarted   = "task_started"
	TypeTaskProgress  = "task_progress"
	TypeTaskClosed    = "task_closed"
	TypeTaskFailed    = "task_failed"
	TypeTaskSkipped   = "task_skipped"
	TypeTaskRetry     = "task_retry"
)

// TaskStartedEvent is emitted when an iteration begins working a task.
type TaskStartedEvent struct {
	BaseEvent
	TaskID       string `json:"task_id"`
	WorktreePath string `json:"worktree_path,omitempty"`
	AgentID      string `json:"agent_id"`
	Model        string `json:"model"`
}

// NewTaskStartedEvent creates a new task started event.
func NewTaskStartedEvent(sessionID, projectID, taskID, worktreePath, agentID, model string) TaskStartedEvent {
	return TaskStartedEvent{
		BaseEvent:    NewBaseEvent(TypeTaskStarted, sessionID, projectID),
		TaskID:       taskID,
		WorktreePath: worktreePath,
		AgentID:      agentID,
		Model:        model,
	}
}

// TaskProgressEvent is emitted while an agent is streaming output for a task.
type TaskProgressEvent struct {
	BaseEvent
	TaskID  string `json:"task_id"`
	Message string `json:"message,omitempty"`
}

// NewTaskProgressEvent creates a new task progress event.
func NewTaskProgressEvent(sessionID, projectID, taskID, message string) TaskProgressEvent {
	return TaskProgressEvent{
		BaseEvent: NewBaseEvent(TypeTaskProgress, sessionID, projectID),
		TaskID:    taskID,
		Message:   message,
	}
}

// TaskClosedEvent is emitted when the Iteration Engine closes a task via
// the Tracker Adapter at the end of a successful iteration.
type TaskClosedEvent struct {
	BaseEvent
	TaskID   string        `json:"task_id"`
	Duration time.Duration `json:"duration"`
}

// NewTaskClosedEvent creates a new task closed event.
func NewTaskClosedEvent(sessionID, projectID, taskID string, duration time.Duration) TaskClosedEvent {
	return TaskClosedEvent{
		BaseEvent: NewBaseEvent(TypeTaskClosed, sessionID, projectID),
		TaskID:    taskID,
		Duration:  duration,
	}
}

// TaskFailedEvent is emitted when a task's iteration fails.
type TaskFailedEvent struct {
	BaseEvent
	TaskID    string `json:"task_id"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// NewTaskFailedEvent creates a new task failed event.
func NewTaskFailedEvent(sessionID, projectID, taskID string, err error, retryable bool) TaskFailedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return TaskFailedEvent{
		BaseEvent: NewBaseEvent(TypeTaskFailed, sessionID, projectID),
		TaskID:    taskID,
		Error:     errStr,
		Retryable: retryable,
	}
}

// TaskSkippedEvent is emitted when a task is left unattempted this pass
// (e.g. blocked by an unmet dependency, or rejected by the error policy).
type TaskSkippedEvent struct {
	BaseEvent
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
}

// NewTaskSkippedEvent creates a new task skipped event.
func NewTaskSkippedEvent(sessionID, projectID, taskID, reason string) TaskSkippedEvent {
	return TaskSkippedEvent{
		BaseEvent: NewBaseEvent(TypeTaskSkipped, sessionID, projectID),
		TaskID:    taskID,
		Reason:    reason,
	}
}

// TaskRetryEvent is emitted when a task is being retried per the
// error-handling policy's retry strategy.
type TaskRetryEvent struct {
	BaseEvent
	TaskID      string `json:"task_id"`
	AttemptNum  int    `json:"attempt_num"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error"`
}

// NewTaskRetryEvent creates a new task retry event.
func NewTaskRetryEvent(sessionID, projectID, taskID string, attemptNum, maxAttempts int, err error) TaskRetryEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return TaskRetryEvent{
		BaseEvent:   NewBaseEvent(TypeTaskRetry, sessionID, projectID),
		TaskID:      taskID,
		AttemptNum:  attemptNum,
		MaxAttempts: maxAttempts,
		Error:       errStr,
	}
}
