package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ralph-tui/ralph-tui/internal/conflict"
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// WorkerResult summarizes one Parallel Executor worker's lifetime.
type WorkerResult struct {
	WorkerIndex int
	Closed      int
	Failed      int
	StopReason  string
	Err         error
}

// ParallelExecutor runs up to N Engine.RunIteration loops concurrently,
// each in its own worktree, merging completed work back into the session
// branch one at a time (§4.7, §5's global merge serialization).
type ParallelExecutor struct {
	engine    *Engine
	worktrees core.WorktreeManager
	git       core.GitClient
	resolver  *conflict.Resolver
	logger    *logging.Logger

	workers       int
	sessionName   string
	sessionDir    string
	sessionBranch string

	mergeMu sync.Mutex // serializes every merge into the session branch
}

// NewParallelExecutor creates a ParallelExecutor. resolver may be nil: a
// merge conflict is then returned as-is, worktree preserved, no AI attempt.
func NewParallelExecutor(engine *Engine, worktrees core.WorktreeManager, git core.GitClient, resolver *conflict.Resolver, logger *logging.Logger, workers int, sessionName, sessionDir, sessionBranch string) *ParallelExecutor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &ParallelExecutor{
		engine:        engine,
		worktrees:     worktrees,
		git:           git,
		resolver:      resolver,
		logger:        logger,
		workers:       workers,
		sessionName:   sessionName,
		sessionDir:    sessionDir,
		sessionBranch: sessionBranch,
	}
}

// Run drives `workers` goroutines to completion and returns once every one
// of them has stopped admitting new tasks. It does not itself decide the
// session's overall stopReason - the caller inspects the returned results
// (a non-nil Err on any worker indicates a fatal error in that worker).
func (p *ParallelExecutor) Run(ctx context.Context) []WorkerResult {
	results := make([]WorkerResult, p.workers)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = p.runWorker(ctx, idx)
		}(i)
	}
	wg.Wait()
	return results
}

func (p *ParallelExecutor) runWorker(ctx context.Context, idx int) WorkerResult {
	wt, err := p.worktrees.CreateWorkerWorktree(ctx, p.sessionName, idx)
	if err != nil {
		return WorkerResult{WorkerIndex: idx, StopReason: core.StopReasonFatalError, Err: fmt.Errorf("creating worker worktree: %w", err)}
	}

	res := WorkerResult{WorkerIndex: idx}
	for {
		select {
		case <-ctx.Done():
			res.StopReason = core.StopReasonExternalSignal
			return res
		default:
		}

		outcome, err := p.engine.RunIteration(ctx, wt.Path)
		if errors.Is(err, ErrNoEligibleTasks) {
			res.StopReason = core.StopReasonNoTasks
			return res
		}
		if err != nil {
			// A worker death or policy=stop failure: preserve the worktree
			// for manual inspection, surface the error, don't merge.
			p.logger.Error("worker iteration failed fatally, preserving worktree", "worker", idx, "worktree", wt.Path, "error", err)
			res.Err = err
			res.StopReason = core.StopReasonFatalError
			return res
		}

		switch {
		case outcome.Closed:
			if mergeErr := p.mergeBack(ctx, wt, outcome); mergeErr != nil {
				p.logger.Warn("merge-back failed, worktree preserved", "worker", idx, "task", outcome.Task.ID, "error", mergeErr)
				res.Failed++
				continue
			}
			res.Closed++
		case outcome.Failed:
			res.Failed++
		}
	}
}

// mergeBack serializes one worktree's commit into the session branch,
// invoking the Conflict Resolver on conflict (§4.4).
func (p *ParallelExecutor) mergeBack(ctx context.Context, wt *core.Worktree, outcome *Outcome) error {
	p.mergeMu.Lock()
	defer p.mergeMu.Unlock()

	err := p.worktrees.MergeBack(ctx, wt, p.sessionDir, p.sessionBranch)
	if err == nil {
		return nil
	}
	if p.resolver == nil || p.git == nil {
		return err
	}

	files, filesErr := p.git.ConflictedFiles(ctx, p.sessionDir)
	if filesErr != nil || len(files) == 0 {
		return err
	}

	if _, resolveErr := p.resolver.Resolve(ctx, p.sessionDir, files, p.engine.sessionID, p.engine.projectID, string(outcome.Task.ID), outcome.Task.Title); resolveErr != nil {
		return fmt.Errorf("merge conflict for %s: %w", outcome.Task.ID, resolveErr)
	}
	message := fmt.Sprintf("Merge worker %s into %s", wt.Branch, p.sessionBranch)
	if _, commitErr := p.resolver.FinishMerge(ctx, p.sessionDir, message); commitErr != nil {
		return fmt.Errorf("finishing resolved merge for %s: %w", outcome.Task.ID, commitErr)
	}
	return nil
}
