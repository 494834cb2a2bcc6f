package engine_test

import (
	"context"
	"testing"

	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/engine"
	"github.com/ralph-tui/ralph-tui/internal/logging"
	"github.com/ralph-tui/ralph-tui/internal/testutil"
)

func TestRunner_CompletesWhenAllTasksClose(t *testing.T) {
	dir := testutil.TempDir(t)
	tr := testutil.NewMockTrackerAdapter(openTask("t1", "First"), openTask("t2", "Second"))
	agent := testutil.NewMockAgent("claude").WithResponse(engine.CompletionSentinel)
	git := testutil.NewMockGitClient().WithIsClean(false)

	cfg := engine.DefaultConfig()
	cfg.IterationDelay = 0
	e := engine.New(tr, agent, git, nil, nil, logging.NewNop(), cfg, "sess", "proj", "")

	store := testutil.NewMockStateManager()
	sess := &core.Session{ID: "sess", Status: core.SessionStatusRunning}
	r := engine.NewRunner(e, store, dir)

	err := r.Run(context.Background(), sess)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, sess.StopReason, core.StopReasonCompleted)
	testutil.AssertEqual(t, sess.Status, core.SessionStatusCompleted)
	testutil.AssertEqual(t, sess.Counts.Closed, 2)
	testutil.AssertTrue(t, sess.IsDone(), "expected session to report done")
	testutil.AssertFalse(t, store.Exists(), "expected session file deleted once done")
}

func TestRunner_MaxIterationsStopsEarly(t *testing.T) {
	dir := testutil.TempDir(t)
	tr := testutil.NewMockTrackerAdapter(openTask("t1", "First"), openTask("t2", "Second"))
	agent := testutil.NewMockAgent("claude").WithResponse(engine.CompletionSentinel)
	git := testutil.NewMockGitClient().WithIsClean(false)

	cfg := engine.DefaultConfig()
	cfg.IterationDelay = 0
	cfg.MaxIterations = 1
	e := engine.New(tr, agent, git, nil, nil, logging.NewNop(), cfg, "sess", "proj", "")

	store := testutil.NewMockStateManager()
	sess := &core.Session{ID: "sess", Status: core.SessionStatusRunning}
	r := engine.NewRunner(e, store, dir)

	err := r.Run(context.Background(), sess)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, sess.StopReason, core.StopReasonMaxIterations)
	testutil.AssertEqual(t, sess.Counts.Closed, 1)
	testutil.AssertTrue(t, store.Exists(), "expected session file preserved on max_iterations")
}

func TestRunner_FatalErrorStopsWithPolicy(t *testing.T) {
	dir := testutil.TempDir(t)
	tr := testutil.NewMockTrackerAdapter(openTask("t1", "First"))
	agent := testutil.NewMockAgent("claude").WithResponse("never finishes")

	cfg := engine.DefaultConfig()
	cfg.IterationDelay = 0
	cfg.ErrorPolicy = core.ErrorPolicyStop
	e := engine.New(tr, agent, testutil.NewMockGitClient(), nil, nil, logging.NewNop(), cfg, "sess", "proj", "")

	store := testutil.NewMockStateManager()
	sess := &core.Session{ID: "sess", Status: core.SessionStatusRunning}
	r := engine.NewRunner(e, store, dir)

	err := r.Run(context.Background(), sess)
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, sess.StopReason, core.StopReasonFatalError)
	testutil.AssertEqual(t, sess.Status, core.SessionStatusFailed)
	testutil.AssertTrue(t, store.Exists(), "expected session file preserved on fatal_error")
}

func TestRunner_EmptyTrackerStopsWithNoTasks(t *testing.T) {
	dir := testutil.TempDir(t)
	tr := testutil.NewMockTrackerAdapter()
	agent := testutil.NewMockAgent("claude")

	cfg := engine.DefaultConfig()
	cfg.IterationDelay = 0
	e := engine.New(tr, agent, testutil.NewMockGitClient(), nil, nil, logging.NewNop(), cfg, "sess", "proj", "")

	store := testutil.NewMockStateManager()
	sess := &core.Session{ID: "sess", Status: core.SessionStatusRunning}
	r := engine.NewRunner(e, store, dir)

	err := r.Run(context.Background(), sess)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, sess.StopReason, core.StopReasonNoTasks)
}
