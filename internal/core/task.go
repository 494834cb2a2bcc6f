package core

// TaskID uniquely identifies a task within a tracker.
type TaskID string

// TaskStatus represents the current state of a task as observed through
// the Tracker Adapter. Tasks are authoritatively owned by the tracker; the
// orchestrator holds only read-through views and issues status-change
// commands (close_task, update_task_status).
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusClosed     TaskStatus = "closed"
)

// Task is a unit of work authored outside the orchestrator and observed
// through a TrackerAdapter.
type Task struct {
	ID           TaskID
	Title        string
	Description  string
	Acceptance   string
	Status       TaskStatus
	Priority     int // lower number = more urgent
	Dependencies []TaskID
	Labels       []string
	Model        string // optional per-task model hint
	ParentID     TaskID
	Metadata     map[string]any

	// Position is the task's index in the tracker's natural listing,
	// before dotted-child reordering. Used as the priority tie-break.
	Position int
}

// NewTask creates a new open task with required fields.
func NewTask(id TaskID, title string) *Task {
	return &Task{
		ID:     id,
		Title:  title,
		Status: TaskStatusOpen,
	}
}

// WithDescription sets the task description.
func (t *Task) WithDescription(desc string) *Task {
	t.Description = desc
	return t
}

// WithAcceptance sets the acceptance-criteria text.
func (t *Task) WithAcceptance(acceptance string) *Task {
	t.Acceptance = acceptance
	return t
}

// WithModel sets the per-task model hint.
func (t *Task) WithModel(model string) *Task {
	t.Model = model
	return t
}

// WithDependencies sets the task dependencies.
func (t *Task) WithDependencies(deps ...TaskID) *Task {
	t.Dependencies = deps
	return t
}

// WithPriority sets the task priority (lower = more urgent).
func (t *Task) WithPriority(priority int) *Task {
	t.Priority = priority
	return t
}

// WithLabels sets the task labels.
func (t *Task) WithLabels(labels ...string) *Task {
	t.Labels = labels
	return t
}

// IsOpenForScheduling reports whether the task's own status (independent
// of dependency closure) is eligible for admission: open or in_progress.
func (t *Task) IsOpenForScheduling() bool {
	return t.Status == TaskStatusOpen || t.Status == TaskStatusInProgress
}

// HasLabel reports whether the task carries the given label.
func (t *Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// IsClosed reports whether the task has been closed by the tracker.
func (t *Task) IsClosed() bool {
	return t.Status == TaskStatusClosed
}

// IsDotted reports whether the task id has the form <prefix>.<number>,
// the shape the dotted-child ordering routine reorders (see
// internal/tracker.OrderDottedChildren).
func (t *Task) IsDotted() bool {
	_, _, ok := splitDottedID(string(t.ID))
	return ok
}

// Validate checks task invariants.
func (t *Task) Validate() error {
	if t.ID == "" {
		return &DomainError{
			Category: ErrCatValidation,
			Code:     "TASK_ID_REQUIRED",
			Message:  "task ID cannot be empty",
		}
	}
	if t.Title == "" {
		return &DomainError{
			Category: ErrCatValidation,
			Code:     "TASK_TITLE_REQUIRED",
			Message:  "task title cannot be empty",
		}
	}
	return nil
}

// splitDottedID splits an id of the form "<prefix>.<number>" into its
// prefix and numeric suffix. ok is false for ids without a trailing
// "."-separated non-negative integer component.
func splitDottedID(id string) (prefix string, suffix int, ok bool) {
	idx := -1
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '.' {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(id)-1 {
		return "", 0, false
	}
	numPart := id[idx+1:]
	n := 0
	for _, r := range numPart {
		if r < '0' || r > '9' {
			return "", 0, false
		}
		n = n*10 + int(r-'0')
	}
	return id[:idx], n, true
}
