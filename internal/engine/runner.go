package engine

import (
	"context"
	"errors"
	"time"

	"github.com/ralph-tui/ralph-tui/internal/control"
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/events"
)

// Runner drives a single Engine serially against one working directory
// until the tracker is empty, the iteration budget is spent, or the
// context is canceled. It owns the session-state side of §4.6's state
// reset bug fix: every exit path records an explicit stopReason, and
// session.json is deleted only when the session reports IsDone().
type Runner struct {
	engine  *Engine
	store   core.StateManager
	workDir string
	control *control.ControlPlane
}

// NewRunner creates a Runner over an Engine, a StateManager the session is
// persisted through, and the directory the engine executes in.
func NewRunner(engine *Engine, store core.StateManager, workDir string) *Runner {
	return &Runner{engine: engine, store: store, workDir: workDir}
}

// WithControlPlane attaches a ControlPlane whose cancellation is
// distinguished from an unrelated context cancellation: the session stops
// with stopReason=user_quit instead of external_signal (§4.8, E4).
func (r *Runner) WithControlPlane(cp *control.ControlPlane) *Runner {
	r.control = cp
	return r
}

// Run mutates sess in place (Iteration, Counts, Status, StopReason) across
// iterations, persisting it at every iteration boundary, and returns once
// the session has stopped. A non-nil error means the session stopped on a
// fatal error (stopReason=fatal_error); any other stop is reported via
// sess.StopReason with a nil error.
func (r *Runner) Run(ctx context.Context, sess *core.Session) error {
	for {
		if r.engine.cfg.MaxIterations > 0 && sess.Iteration >= r.engine.cfg.MaxIterations {
			return r.stop(ctx, sess, core.StopReasonMaxIterations)
		}
		select {
		case <-ctx.Done():
			return r.stop(ctx, sess, r.interruptStopReason())
		default:
		}

		iterStart := time.Now()
		sess.Iteration++
		r.engine.publish(events.NewIterationStartEvent(r.engine.sessionID, r.engine.projectID, sess.Iteration, ""))

		outcome, err := r.engine.RunIteration(ctx, r.workDir)
		if errors.Is(err, ErrNoEligibleTasks) {
			reason := r.terminalStopReason(ctx, sess)
			r.engine.publish(events.NewIterationEndEvent(r.engine.sessionID, r.engine.projectID, sess.Iteration, "", time.Since(iterStart), reason))
			return r.stop(ctx, sess, reason)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) && r.control != nil && r.control.IsCancelled() {
				reason := r.interruptStopReason()
				r.engine.publish(events.NewIterationEndEvent(r.engine.sessionID, r.engine.projectID, sess.Iteration, "", time.Since(iterStart), reason))
				return r.stop(ctx, sess, reason)
			}
			r.engine.publish(events.NewIterationEndEvent(r.engine.sessionID, r.engine.projectID, sess.Iteration, "", time.Since(iterStart), core.StopReasonFatalError))
			_ = r.stop(ctx, sess, core.StopReasonFatalError)
			return err
		}

		sess.Counts.Attempted++
		if outcome.Failed {
			sess.Counts.Failed++
		}
		r.refreshCounts(ctx, sess)
		r.engine.publish(events.NewIterationEndEvent(r.engine.sessionID, r.engine.projectID, sess.Iteration, string(outcome.Task.ID), time.Since(iterStart), ""))

		if r.store != nil {
			if saveErr := r.store.Save(ctx, sess); saveErr != nil {
				r.engine.logger.Warn("persisting session state failed", "error", saveErr)
			}
		}

		if outcome.Retried {
			r.sleep(ctx, r.engine.cfg.RetryDelay*time.Duration(outcome.RetryAttempt))
			continue
		}
		r.sleep(ctx, r.engine.cfg.IterationDelay)
	}
}

// terminalStopReason distinguishes "every task closed" from "nothing left
// admissible this session" (cyclic/blocked tasks, or a tracker read error)
// when the Scheduler has nothing to select.
func (r *Runner) terminalStopReason(ctx context.Context, sess *core.Session) string {
	total, closed, err := r.engine.TaskCounts(ctx)
	if err != nil {
		return core.StopReasonNoTasks
	}
	sess.Counts.Total = total
	sess.Counts.Closed = closed
	if total > 0 && closed == total {
		return core.StopReasonCompleted
	}
	return core.StopReasonNoTasks
}

// refreshCounts mirrors the tracker's ground-truth total/closed counts onto
// sess, the session.json tasks.{total,closed} fields (§4.8) - rather than
// trusting purely incremental per-outcome counters, which can drift from a
// retry-then-success sequence or tasks changing out from under the engine.
func (r *Runner) refreshCounts(ctx context.Context, sess *core.Session) {
	total, closed, err := r.engine.TaskCounts(ctx)
	if err != nil {
		r.engine.logger.Warn("refreshing task counts failed", "error", err)
		return
	}
	sess.Counts.Total = total
	sess.Counts.Closed = closed
}

// interruptStopReason distinguishes a user-requested shutdown (first
// SIGINT/SIGTERM, §4.8/E4) from any other source of context cancellation.
func (r *Runner) interruptStopReason() string {
	if r.control != nil && r.control.IsCancelled() {
		return core.StopReasonUserQuit
	}
	return core.StopReasonExternalSignal
}

func (r *Runner) stop(ctx context.Context, sess *core.Session, reason string) error {
	sess.StopReason = reason
	switch reason {
	case core.StopReasonCompleted:
		sess.Status = core.SessionStatusCompleted
	case core.StopReasonFatalError:
		sess.Status = core.SessionStatusFailed
	case core.StopReasonUserQuit, core.StopReasonUserPause:
		sess.Status = core.SessionStatusPaused
	default:
		sess.Status = core.SessionStatusInterrupted
	}
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, sess); err != nil {
		return err
	}
	if sess.IsDone() {
		return r.store.Delete(ctx)
	}
	return nil
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
