package core

import (
	"testing"
	"time"
)

func TestExecuteOptionsDefaultsZeroValue(t *testing.T) {
	var opts ExecuteOptions
	if opts.Timeout != 0 {
		t.Errorf("expected zero-value Timeout, got %v", opts.Timeout)
	}
	if opts.Model != "" {
		t.Errorf("expected zero-value Model, got %q", opts.Model)
	}
}

func TestAgentStatusConstants(t *testing.T) {
	if AgentStatusCompleted != "completed" {
		t.Errorf("expected 'completed', got %s", AgentStatusCompleted)
	}
	if AgentStatusFailed != "failed" {
		t.Errorf("expected 'failed', got %s", AgentStatusFailed)
	}
	if AgentStatusTimeout != "timeout" {
		t.Errorf("expected 'timeout', got %s", AgentStatusTimeout)
	}
	if AgentStatusInterrupted != "interrupted" {
		t.Errorf("expected 'interrupted', got %s", AgentStatusInterrupted)
	}
}

func TestWorktreeCreationModeConstants(t *testing.T) {
	if WorktreeCreated != "created" {
		t.Errorf("expected 'created', got %s", WorktreeCreated)
	}
	if WorktreeReused != "reused" {
		t.Errorf("expected 'reused', got %s", WorktreeReused)
	}
	if WorktreeAttached != "attached" {
		t.Errorf("expected 'attached', got %s", WorktreeAttached)
	}
}

func TestWorktreeStruct(t *testing.T) {
	wt := Worktree{
		Path:         "/tmp/ralph-tui/sess/abc",
		Branch:       "ralph/abc/task-1",
		Commit:       "deadbeef",
		IsMain:       false,
		Locked:       true,
		CreationMode: WorktreeCreated,
	}
	if wt.CreationMode != WorktreeCreated {
		t.Errorf("expected CreationMode created, got %s", wt.CreationMode)
	}
	if !wt.Locked {
		t.Error("expected Locked to be true")
	}
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities{
		SupportsStreaming:       true,
		SupportsInterrupt:       true,
		SupportsFileContext:     false,
		SupportsSubagentTracing: true,
		StructuredOutputFormat:  "jsonl",
		SupportedModels:         []string{"claude-opus-4-6", "sonnet"},
		DefaultModel:            "sonnet",
	}

	if !caps.SupportsStreaming {
		t.Error("expected SupportsStreaming to be true")
	}
	if len(caps.SupportedModels) != 2 {
		t.Errorf("expected 2 models, got %d", len(caps.SupportedModels))
	}
}

func TestExecuteResultFields(t *testing.T) {
	start := time.Now()
	end := start.Add(3 * time.Second)
	r := &ExecuteResult{
		Status:     AgentStatusCompleted,
		ExitCode:   0,
		Stdout:     "done",
		DurationMs: 3000,
		StartedAt:  start,
		EndedAt:    end,
	}
	if r.Status != AgentStatusCompleted {
		t.Errorf("expected completed status, got %s", r.Status)
	}
	if r.EndedAt.Sub(r.StartedAt) != 3*time.Second {
		t.Errorf("expected 3s duration window")
	}
}

func TestLockInfoRoundTripFields(t *testing.T) {
	li := LockInfo{SessionID: "sess-1", PID: 1234, StartedAt: time.Unix(0, 0)}
	if li.SessionID != "sess-1" {
		t.Errorf("expected session id sess-1, got %s", li.SessionID)
	}
	if li.PID != 1234 {
		t.Errorf("expected pid 1234, got %d", li.PID)
	}
}

func TestGitStatusHasConflicts(t *testing.T) {
	s := &GitStatus{
		Branch:       "main",
		Unstaged:     []FileStatus{{Path: "a.go", Status: "M"}},
		HasConflicts: true,
	}
	if !s.HasConflicts {
		t.Error("expected HasConflicts to be true")
	}
	if len(s.Unstaged) != 1 || s.Unstaged[0].Status != "M" {
		t.Errorf("expected one modified file, got %+v", s.Unstaged)
	}
}
