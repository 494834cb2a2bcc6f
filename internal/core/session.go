package core

import "time"

// TaskCounts tracks the aggregate progress of a session's task set.
type TaskCounts struct {
	Total     int `json:"total"`
	Attempted int `json:"attempted"`
	Closed    int `json:"closed"`
	Failed    int `json:"failed"`
}

// Session is the persisted unit of orchestration state (§3 Session). One
// Session owns at most one lock file inside its working directory.
type Session struct {
	ID              string     `json:"sessionId"`
	CWD             string     `json:"cwd"`
	TrackerPluginID string     `json:"trackerPluginId"`
	AgentPluginID   string     `json:"agentPluginId"`
	Model           string     `json:"model,omitempty"`
	Iteration       int        `json:"iteration"`
	Counts          TaskCounts `json:"tasks"`
	MaxIterations   int        `json:"maxIterations"`
	IterationDelay  time.Duration `json:"iterationDelay"`
	ErrorPolicy     string     `json:"errorPolicy"`
	Parallel        int        `json:"parallel"`

	Worktree *Worktree `json:"worktree,omitempty"`

	ConfigFingerprint string `json:"configFingerprint"`

	Status     string `json:"status"`     // running|paused|interrupted|completed|failed
	StopReason string `json:"stopReason"` // no_tasks|completed|max_iterations|user_quit|user_pause|fatal_error|external_signal

	CreatedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsDone reports whether tasksClosed == tasksTotal, the precondition for
// deleting session.json on a completed stop (§4.8 Shutdown).
func (s *Session) IsDone() bool {
	return s.Status == SessionStatusCompleted &&
		s.StopReason == StopReasonCompleted &&
		s.Counts.Total > 0 &&
		s.Counts.Closed == s.Counts.Total
}

// SessionRegistryEntry is one row of the user-scope session registry kept
// alongside session.json, updated on every status change (§4.8 Registry).
type SessionRegistryEntry struct {
	SessionID       string    `json:"sessionId"`
	CWD             string    `json:"cwd"`
	Status          string    `json:"status"`
	StopReason      string    `json:"stopReason,omitempty"`
	AgentPluginID   string    `json:"agentPluginId"`
	TrackerPluginID string    `json:"trackerPluginId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
