package events

// Event type constants for merge-conflict resolution events (§4.4, §4.9).
const (
	TypeConflictDetected   = "conflict:detected"
	TypeConflictAIResolve  = "conflict:ai-resolving"
	TypeConflictResolved   = "conflict:resolved"
	TypeConflictFailed     = "conflict:failed"
)

// ConflictDetectedEvent is emitted when a merge-back hits conflicted files.
type ConflictDetectedEvent struct {
	BaseEvent
	TaskID string   `json:"task_id"`
	Files  []string `json:"files"`
}

// NewConflictDetectedEvent creates a new conflict:detected event.
func NewConflictDetectedEvent(sessionID, projectID, taskID string, files []string) ConflictDetectedEvent {
	return ConflictDetectedEvent{
		BaseEvent: NewBaseEvent(TypeConflictDetected, sessionID, projectID),
		TaskID:    taskID,
		Files:     files,
	}
}

// ConflictAIResolvingEvent is emitted when the fast-path heuristics could
// not resolve a file and the AI-assisted path is being attempted.
type ConflictAIResolvingEvent struct {
	BaseEvent
	TaskID string `json:"task_id"`
	File   string `json:"file"`
}

// NewConflictAIResolvingEvent creates a new conflict:ai-resolving event.
func NewConflictAIResolvingEvent(sessionID, projectID, taskID, file string) ConflictAIResolvingEvent {
	return ConflictAIResolvingEvent{
		BaseEvent: NewBaseEvent(TypeConflictAIResolve, sessionID, projectID),
		TaskID:    taskID,
		File:      file,
	}
}

// ConflictResolvedEvent is emitted when a file's conflict markers are fully
// resolved, whether by the fast path or the AI path.
type ConflictResolvedEvent struct {
	BaseEvent
	TaskID     string  `json:"task_id"`
	File       string  `json:"file"`
	Method     string  `json:"method"` // "fast_path" | "ai"
	Confidence float64 `json:"confidence,omitempty"`
}

// NewConflictResolvedEvent creates a new conflict:resolved event.
func NewConflictResolvedEvent(sessionID, projectID, taskID, file, method string, confidence float64) ConflictResolvedEvent {
	return ConflictResolvedEvent{
		BaseEvent:  NewBaseEvent(TypeConflictResolved, sessionID, projectID),
		TaskID:     taskID,
		File:       file,
		Method:     method,
		Confidence: confidence,
	}
}

// ConflictFailedEvent is emitted when neither path resolves a file and the
// worktree/branch are preserved for manual intervention.
type ConflictFailedEvent struct {
	BaseEvent
	TaskID string `json:"task_id"`
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// NewConflictFailedEvent creates a new conflict:failed event.
func NewConflictFailedEvent(sessionID, projectID, taskID, file, reason string) ConflictFailedEvent {
	return ConflictFailedEvent{
		BaseEvent: NewBaseEvent(TypeConflictFailed, sessionID, projectID),
		TaskID:    taskID,
		File:      file,
		Reason:    reason,
	}
}
