package events

import "time"

// Event type constants for iteration boundary events (§4.9).
const (
	TypeIterationStart = "iteration:start"
	TypeIterationEnd   = "iteration:end"
	TypeAgentStdout    = "agent:stdout"
)

// IterationStartEvent opens one iteration's log file.
type IterationStartEvent struct {
	BaseEvent
	IterationNumber int    `json:"iteration_number"`
	TaskID          string `json:"task_id"`
}

// NewIterationStartEvent creates a new iteration:start event.
func NewIterationStartEvent(sessionID, projectID string, iterationNumber int, taskID string) IterationStartEvent {
	return IterationStartEvent{
		BaseEvent:       NewBaseEvent(TypeIterationStart, sessionID, projectID),
		IterationNumber: iterationNumber,
		TaskID:          taskID,
	}
}

// IterationEndEvent closes one iteration's log file.
type IterationEndEvent struct {
	BaseEvent
	IterationNumber int           `json:"iteration_number"`
	TaskID          string        `json:"task_id"`
	Duration        time.Duration `json:"duration"`
	StopReason      string        `json:"stop_reason,omitempty"`
}

// NewIterationEndEvent creates a new iteration:end event.
func NewIterationEndEvent(sessionID, projectID string, iterationNumber int, taskID string, duration time.Duration, stopReason string) IterationEndEvent {
	return IterationEndEvent{
		BaseEvent:       NewBaseEvent(TypeIterationEnd, sessionID, projectID),
		IterationNumber: iterationNumber,
		TaskID:          taskID,
		Duration:        duration,
		StopReason:      stopReason,
	}
}

// AgentStdoutEvent is one streamed chunk of an agent's stdout, mirrored into
// the iteration log and the event bus simultaneously.
type AgentStdoutEvent struct {
	BaseEvent
	TaskID string `json:"task_id"`
	Chunk  string `json:"chunk"`
}

// NewAgentStdoutEvent creates a new agent:stdout event.
func NewAgentStdoutEvent(sessionID, projectID, taskID, chunk string) AgentStdoutEvent {
	return AgentStdoutEvent{
		BaseEvent: NewBaseEvent(TypeAgentStdout, sessionID, projectID),
		TaskID:    taskID,
		Chunk:     chunk,
	}
}
