// Package engine implements the Iteration Engine (§4.6) and its Parallel
// Executor (§4.7): the per-task loop that turns one open tracker task into
// a commit and a closed task, and the fan-out that runs several of them at
// once across sibling worktrees.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/events"
	"github.com/ralph-tui/ralph-tui/internal/logging"
	"github.com/ralph-tui/ralph-tui/internal/scheduler"
)

// CompletionSentinel is the literal marker an agent's output must contain,
// alongside a zero exit code, for an iteration to count as success.
const CompletionSentinel = "<promise>COMPLETE</promise>"

// ErrNoEligibleTasks is returned by RunIteration when the Scheduler has
// nothing left to admit this round.
var ErrNoEligibleTasks = core.ErrState("NO_ELIGIBLE_TASKS", "no eligible tasks to run")

// Config carries the errorHandling/commit keys that shape one Engine's
// iteration behavior.
type Config struct {
	MaxIterations  int
	IterationDelay time.Duration
	ErrorPolicy    string // core.ErrorPolicyStop|Skip|Retry
	MaxRetries     int
	RetryDelay     time.Duration
	AgentTimeout   time.Duration
	CommitTemplate string // e.g. "feat: [%s] - %s", fed TaskID then Title
	LabelFilter    string
}

// DefaultConfig returns the documented defaults for errorHandling.* and the
// commit template.
func DefaultConfig() Config {
	return Config{
		IterationDelay: 2 * time.Second,
		ErrorPolicy:    core.ErrorPolicyStop,
		MaxRetries:     2,
		RetryDelay:     5 * time.Second,
		AgentTimeout:   15 * time.Minute,
		CommitTemplate: "feat: [%s] - %s",
	}
}

// Outcome is the verdict of one RunIteration call.
type Outcome struct {
	Task         core.Task
	Closed       bool
	Failed       bool
	Skipped      bool
	Retried      bool
	RetryAttempt int
	CommitSHA    string
}

// Engine drives one task at a time through prepare/execute/close (§4.6). A
// single Engine is safe to drive concurrently from several goroutines (the
// Parallel Executor does exactly this) - admission is serialized
// internally so two callers never receive the same task.
type Engine struct {
	tracker   core.TrackerAdapter
	agent     core.Agent
	git       core.GitClient
	scheduler *scheduler.Scheduler
	bus       *events.EventBus
	logger    *logging.Logger
	cfg       Config

	sessionID    string
	projectID    string
	sessionModel string

	mu         sync.Mutex
	running    map[core.TaskID]bool
	skipped    map[core.TaskID]bool
	retryCount map[core.TaskID]int
}

// New creates an Engine. git may be nil for trackers/tests that never stage
// or commit (the commit step is then a no-op). bus may be nil to skip event
// publication.
func New(tracker core.TrackerAdapter, agent core.Agent, git core.GitClient, sched *scheduler.Scheduler, bus *events.EventBus, logger *logging.Logger, cfg Config, sessionID, projectID, sessionModel string) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	if sched == nil {
		sched = scheduler.New(logger)
	}
	if cfg.CommitTemplate == "" {
		cfg.CommitTemplate = "feat: [%s] - %s"
	}
	if cfg.ErrorPolicy == "" {
		cfg.ErrorPolicy = core.ErrorPolicyStop
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = 15 * time.Minute
	}
	return &Engine{
		tracker:      tracker,
		agent:        agent,
		git:          git,
		scheduler:    sched,
		bus:          bus,
		logger:       logger,
		cfg:          cfg,
		sessionID:    sessionID,
		projectID:    projectID,
		sessionModel: sessionModel,
		running:      make(map[core.TaskID]bool),
		skipped:      make(map[core.TaskID]bool),
		retryCount:   make(map[core.TaskID]int),
	}
}

// RunIteration executes exactly one task in workDir: admit, resolve model,
// run the agent, detect completion, commit, close or apply the
// error-handling policy on failure.
func (e *Engine) RunIteration(ctx context.Context, workDir string) (*Outcome, error) {
	task, err := e.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer e.release(task.ID)

	model := e.resolveModel(task)
	e.publish(events.NewTaskStartedEvent(e.sessionID, e.projectID, string(task.ID), workDir, e.agent.Name(), model))

	result, execErr := e.agent.Execute(ctx, core.ExecuteOptions{
		Prompt:  buildTaskPrompt(task, e.tracker.Name()),
		Model:   model,
		WorkDir: workDir,
		Timeout: e.cfg.AgentTimeout,
	})
	if execErr != nil {
		return e.handleFailure(task, fmt.Errorf("agent execution: %w", execErr))
	}
	if !isSuccess(result) {
		return e.handleFailure(task, core.ErrState("TASK_INCOMPLETE",
			fmt.Sprintf("%s: agent exited %d without completion sentinel", task.ID, result.ExitCode)))
	}

	sha, err := e.commit(ctx, workDir, task)
	if err != nil {
		return e.handleFailure(task, fmt.Errorf("committing %s: %w", task.ID, err))
	}

	reason := deriveCloseReason(result.Stdout)
	if err := e.tracker.CloseTask(ctx, task.ID, reason); err != nil {
		return e.handleFailure(task, fmt.Errorf("closing %s: %w", task.ID, err))
	}

	e.mu.Lock()
	delete(e.retryCount, task.ID)
	e.mu.Unlock()

	e.publish(events.NewTaskClosedEvent(e.sessionID, e.projectID, string(task.ID), time.Duration(result.DurationMs)*time.Millisecond))
	return &Outcome{Task: task, Closed: true, CommitSHA: sha}, nil
}

// admit selects the next eligible task (under the engine's own running and
// skipped sets, so concurrent callers never receive the same task) and
// marks it in_progress.
func (e *Engine) admit(ctx context.Context) (core.Task, error) {
	e.mu.Lock()
	tasks, err := e.tracker.ListOpenTasks(ctx)
	if err != nil {
		e.mu.Unlock()
		return core.Task{}, fmt.Errorf("listing open tasks: %w", err)
	}
	inFlight := make(map[core.TaskID]bool, len(e.running)+len(e.skipped))
	for id := range e.running {
		inFlight[id] = true
	}
	for id := range e.skipped {
		inFlight[id] = true
	}
	result := e.scheduler.Select(tasks, 1, inFlight, e.cfg.LabelFilter)
	if len(result.Selected) == 0 {
		e.mu.Unlock()
		return core.Task{}, ErrNoEligibleTasks
	}
	task := result.Selected[0]
	e.running[task.ID] = true
	e.mu.Unlock()

	if err := e.tracker.UpdateTaskStatus(ctx, task.ID, core.TaskStatusInProgress); err != nil {
		e.release(task.ID)
		return core.Task{}, fmt.Errorf("marking %s in_progress: %w", task.ID, err)
	}
	return task, nil
}

func (e *Engine) release(id core.TaskID) {
	e.mu.Lock()
	delete(e.running, id)
	e.mu.Unlock()
}

// handleFailure applies the configured error-handling policy to a failed
// iteration. A non-nil error return means the policy is "stop": the caller
// must end the session with stopReason=fatal_error.
func (e *Engine) handleFailure(task core.Task, cause error) (*Outcome, error) {
	switch e.cfg.ErrorPolicy {
	case core.ErrorPolicyRetry:
		e.mu.Lock()
		e.retryCount[task.ID]++
		attempt := e.retryCount[task.ID]
		e.mu.Unlock()
		if attempt <= e.cfg.MaxRetries {
			e.publish(events.NewTaskRetryEvent(e.sessionID, e.projectID, string(task.ID), attempt, e.cfg.MaxRetries, cause))
			return &Outcome{Task: task, Retried: true, RetryAttempt: attempt}, nil
		}
		fallthrough
	case core.ErrorPolicySkip:
		e.mu.Lock()
		e.skipped[task.ID] = true
		delete(e.retryCount, task.ID)
		e.mu.Unlock()
		e.publish(events.NewTaskFailedEvent(e.sessionID, e.projectID, string(task.ID), cause, false))
		e.publish(events.NewTaskSkippedEvent(e.sessionID, e.projectID, string(task.ID), cause.Error()))
		return &Outcome{Task: task, Failed: true, Skipped: true}, nil
	default: // core.ErrorPolicyStop
		e.publish(events.NewTaskFailedEvent(e.sessionID, e.projectID, string(task.ID), cause, false))
		return &Outcome{Task: task, Failed: true}, cause
	}
}

// resolveModel implements the §4.6 precedence: task.model (validated
// against the agent; on invalid, warn and fall through) → session model →
// agent default.
func (e *Engine) resolveModel(task core.Task) string {
	if task.Model != "" {
		if err := e.agent.ValidateModel(task.Model); err != nil {
			e.logger.Warn("task model rejected by agent, falling back", "task", task.ID, "model", task.Model, "error", err)
		} else {
			return task.Model
		}
	}
	if e.sessionModel != "" {
		return e.sessionModel
	}
	return e.agent.Capabilities().DefaultModel
}

// commit stages and commits all worktree changes; if nothing changed, the
// commit is skipped and an empty sha is returned.
func (e *Engine) commit(ctx context.Context, workDir string, task core.Task) (string, error) {
	if e.git == nil {
		return "", nil
	}
	clean, err := e.git.IsClean(ctx, workDir)
	if err != nil {
		return "", fmt.Errorf("checking worktree status: %w", err)
	}
	if clean {
		return "", nil
	}
	if err := e.git.Add(ctx, workDir, "."); err != nil {
		return "", fmt.Errorf("staging changes: %w", err)
	}
	message := fmt.Sprintf(e.cfg.CommitTemplate, task.ID, task.Title)
	return e.git.Commit(ctx, workDir, message)
}

// TaskCounts snapshots the tracker's current total and closed task counts,
// the ground truth session.json's tasks.{total,closed} mirror (§4.8).
func (e *Engine) TaskCounts(ctx context.Context) (total, closed int, err error) {
	tasks, err := e.tracker.ListOpenTasks(ctx)
	if err != nil {
		return 0, 0, err
	}
	total = len(tasks)
	for _, t := range tasks {
		if t.IsClosed() {
			closed++
		}
	}
	return total, closed, nil
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func isSuccess(r *core.ExecuteResult) bool {
	return r != nil && r.ExitCode == 0 && strings.Contains(r.Stdout, CompletionSentinel)
}

// buildTaskPrompt assembles the §4.6 template: id, title, description,
// acceptance criteria, and a tracker-specific closure note.
func buildTaskPrompt(task core.Task, trackerName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s: %s\n\n", task.ID, task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n\n", task.Description)
	}
	if task.Acceptance != "" {
		fmt.Fprintf(&b, "Acceptance criteria:\n%s\n\n", task.Acceptance)
	}
	b.WriteString(trackerClosureNote(trackerName))
	b.WriteString("\n\nWhen the task is fully complete, output the literal line:\n")
	b.WriteString(CompletionSentinel)
	b.WriteString("\nand exit with status 0. Do not emit it otherwise.\n")
	return b.String()
}

func trackerClosureNote(trackerName string) string {
	switch trackerName {
	case core.TrackerJSONPRD:
		return "This task is tracked in a JSON PRD; its `passes` flag flips once this iteration succeeds."
	case core.TrackerBeads, core.TrackerBeadsRust, core.TrackerBeadsBv:
		return "This task is tracked in beads; it is closed with `bd update <id> --status=closed --close_reason=...` once this iteration succeeds."
	default:
		return "The orchestrator marks this task closed once this iteration succeeds."
	}
}

// deriveCloseReason picks a short close reason from the agent's output: the
// first non-empty line that isn't the completion sentinel itself.
func deriveCloseReason(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == CompletionSentinel {
			continue
		}
		if len(trimmed) > 160 {
			trimmed = trimmed[:160]
		}
		return trimmed
	}
	return "completed by agent"
}
