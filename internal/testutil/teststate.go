package testutil

import (
	"time"

	"github.com/ralph-tui/ralph-tui/internal/core"
)

// NewTestSession creates a Session with sensible defaults for tests. Use
// functional options to override specific fields.
func NewTestSession(opts ...func(*core.Session)) *core.Session {
	now := time.Now()
	s := &core.Session{
		ID:              "session-test",
		CWD:             "/tmp/ralph-test",
		TrackerPluginID: core.TrackerJSONPRD,
		AgentPluginID:   core.AgentClaude,
		Status:          core.SessionStatusRunning,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
