package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralph-tui/ralph-tui/internal/adapters/cli"
	"github.com/ralph-tui/ralph-tui/internal/adapters/git"
	"github.com/ralph-tui/ralph-tui/internal/conflict"
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/engine"
	"github.com/ralph-tui/ralph-tui/internal/events"
	"github.com/ralph-tui/ralph-tui/internal/logging"
	"github.com/ralph-tui/ralph-tui/internal/scheduler"
	"github.com/ralph-tui/ralph-tui/internal/session"
	"github.com/ralph-tui/ralph-tui/internal/tracker"
)

var runFlags struct {
	cwd        string
	tracker    string
	prd        string
	epic       string
	agent      string
	model      string
	iterations int
	parallel   int
	worktree   string
	useResume  bool
	headless   bool
	force      bool
	noSetup    bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start or continue a session against the open tasks in a tracker",
	Long: `run resolves the tracker and agent for the current (or --cwd) directory,
acquires the session lock, and drives the agent through the tracker's open
tasks one iteration at a time until the tracker is empty, the iteration
budget is spent, or the user interrupts.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.cwd, "cwd", "", "working directory (default: current directory)")
	runCmd.Flags().StringVar(&runFlags.tracker, "tracker", "", "tracker plugin (json, beads, beads-rust, beads-bv)")
	runCmd.Flags().StringVar(&runFlags.prd, "prd", "", "path to a PRD JSON file (json tracker)")
	runCmd.Flags().StringVar(&runFlags.epic, "epic", "", "epic id (beads trackers)")
	runCmd.Flags().StringVar(&runFlags.agent, "agent", "", "agent CLI to drive (claude, codex, gemini, copilot, opencode, aider)")
	runCmd.Flags().StringVar(&runFlags.model, "model", "", "model name passed to the agent")
	runCmd.Flags().IntVar(&runFlags.iterations, "iterations", 0, "maximum iteration budget (0 = unbounded)")
	runCmd.Flags().IntVar(&runFlags.parallel, "parallel", 1, "number of tasks to run concurrently")
	runCmd.Flags().StringVar(&runFlags.worktree, "worktree", "", "run inside a session worktree, optionally named")
	runCmd.Flags().BoolVar(&runFlags.useResume, "resume", false, "resume the existing session in this directory instead of starting fresh")
	runCmd.Flags().BoolVar(&runFlags.headless, "headless", false, "run without the interactive UI")
	runCmd.Flags().BoolVar(&runFlags.force, "force", false, "override a held session lock")
	runCmd.Flags().BoolVar(&runFlags.noSetup, "no-setup", false, "skip first-run setup checks")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, cp, stopInterrupt := withInterruptHandling(cmd.Context())
	defer stopInterrupt()

	cwd := runFlags.cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		cwd = wd
	}
	absCwd, err := filepath.Abs(cwd)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", cwd, err)
	}

	agentID := runFlags.agent
	if agentID == "" {
		agentID = core.AgentClaude
	}
	if !core.IsValidAgent(agentID) {
		return core.ErrConfig("UNKNOWN_AGENT", fmt.Sprintf("unknown agent %q", agentID))
	}

	logger := logging.New(logging.Config{Level: logLevel, Format: logFormat})
	registry := cli.NewRegistry(logger)
	agent, err := registry.Get(agentID)
	if err != nil {
		return fmt.Errorf("resolving agent %q: %w", agentID, err)
	}
	if err := agent.ValidateModel(runFlags.model); err != nil {
		logger.Warn("requested model not in agent's known list, proceeding", "agent", agentID, "model", runFlags.model, "error", err)
	}
	if err := agent.Ping(ctx); err != nil {
		return core.ErrAgentUnavailable(fmt.Sprintf("%s: %v", agentID, err))
	}

	trackerID := runFlags.tracker
	if trackerID == "" {
		trackerID = core.TrackerJSONPRD
	}
	trackerAdapter, err := tracker.NewRegistry().New(trackerID, absCwd, core.TrackerOptions{
		PRDPath: runFlags.prd,
		EpicID:  runFlags.epic,
	})
	if err != nil {
		return err
	}
	knownTasks, err := trackerAdapter.ListOpenTasks(ctx)
	if err != nil {
		return err
	}
	logger.Info("tracker ready", "tracker", trackerID, "tasks", len(knownTasks))

	mgr := session.New(absCwd)
	if !runFlags.useResume && mgr.Exists() && !runFlags.force {
		return core.ErrState("SESSION_EXISTS", "a session already exists in this directory; pass --resume or --force")
	}

	var sess *core.Session
	if runFlags.useResume && mgr.Exists() {
		loaded, err := mgr.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading existing session: %w", err)
		}
		if loaded.Counts.Total > 0 && len(knownTasks) == 0 {
			logger.Warn("resumed session's task count disagrees with the tracker; session file kept for inspection",
				"session_known_tasks", loaded.Counts.Total, "tracker_tasks", 0)
		}
		sess = loaded
		sess.Status = core.SessionStatusRunning
		sess.StopReason = ""
	} else {
		sess = &core.Session{
			ID:              fmt.Sprintf("ralph-%d", time.Now().UnixNano()),
			CWD:             absCwd,
			TrackerPluginID: trackerID,
			AgentPluginID:   agentID,
			Model:           runFlags.model,
			MaxIterations:   runFlags.iterations,
			Parallel:        maxInt(runFlags.parallel, 1),
			Status:          core.SessionStatusRunning,
			CreatedAt:       time.Now(),
			UpdatedAt:       time.Now(),
		}
	}

	if runFlags.force {
		if err := mgr.ForceRelease(); err != nil {
			return fmt.Errorf("forcing lock release: %w", err)
		}
	}
	if err := mgr.AcquireLock(ctx, sess.ID); err != nil {
		return err
	}
	if err := mgr.Save(ctx, sess); err != nil {
		_ = mgr.ReleaseLock(ctx)
		return fmt.Errorf("persisting session state: %w", err)
	}

	reg := session.NewRegistry(session.DefaultRegistryPath())
	if err := reg.Put(ctx, core.SessionRegistryEntry{
		SessionID:       sess.ID,
		CWD:             sess.CWD,
		Status:          sess.Status,
		AgentPluginID:   sess.AgentPluginID,
		TrackerPluginID: sess.TrackerPluginID,
		CreatedAt:       sess.CreatedAt,
		UpdatedAt:       sess.UpdatedAt,
	}); err != nil {
		logger.Warn("failed to update session registry", "error", err)
	}

	logger.Info("session ready", "session", sess.ID, "agent", agentID, "cwd", absCwd)

	defer func() {
		if err := mgr.ReleaseLock(ctx); err != nil {
			logger.Warn("releasing session lock failed", "error", err)
		}
	}()

	bus := events.New(256)
	defer bus.Close()

	engineCfg := engine.DefaultConfig()
	if runFlags.iterations > 0 {
		engineCfg.MaxIterations = runFlags.iterations
	}

	workDir := absCwd
	var execErr error
	if runFlags.worktree != "" || runFlags.parallel > 1 {
		gitClient, err := git.NewClient(absCwd)
		if err != nil {
			return fmt.Errorf("opening git repository: %w", err)
		}
		worktrees := git.NewManager(gitClient, absCwd, logger)
		sessionName := git.DeriveSessionName(runFlags.worktree, runFlags.epic, runFlags.prd, sess.ID)
		sessionWt, err := worktrees.CreateSessionWorktree(ctx, sessionName)
		if err != nil {
			return fmt.Errorf("creating session worktree: %w", err)
		}
		sess.Worktree = sessionWt

		eng := engine.New(trackerAdapter, agent, gitClient, scheduler.New(logger), bus, logger, engineCfg, sess.ID, absCwd, sess.Model)
		if runFlags.parallel > 1 {
			resolver := conflict.New(gitClient, agent, bus, logger, conflict.DefaultConfig())
			parentBranch, branchErr := gitClient.CurrentBranch(ctx)
			if branchErr != nil {
				return fmt.Errorf("resolving parent branch: %w", branchErr)
			}
			executor := engine.NewParallelExecutor(eng, worktrees, gitClient, resolver, logger, runFlags.parallel, sessionName, sessionWt.Path, parentBranch)
			results := executor.Run(ctx)
			for _, res := range results {
				sess.Counts.Closed += res.Closed
				sess.Counts.Failed += res.Failed
				if res.Err != nil && execErr == nil {
					execErr = res.Err
				}
			}
			if total, closed, countErr := eng.TaskCounts(ctx); countErr == nil {
				sess.Counts.Total = total
				sess.Counts.Closed = closed
			}
			sess.StopReason = core.StopReasonCompleted
			sess.Status = core.SessionStatusCompleted
			if execErr != nil {
				sess.StopReason = core.StopReasonFatalError
				sess.Status = core.SessionStatusFailed
				if cp.IsCancelled() {
					sess.StopReason = core.StopReasonUserQuit
					sess.Status = core.SessionStatusPaused
				}
			}
			if saveErr := mgr.Save(ctx, sess); saveErr != nil {
				logger.Warn("persisting final session state failed", "error", saveErr)
			} else if sess.IsDone() {
				_ = mgr.Delete(ctx)
			}
			return execErr
		}
		workDir = sessionWt.Path
		runner := engine.NewRunner(eng, mgr, workDir).WithControlPlane(cp)
		execErr = runner.Run(ctx, sess)
		return execErr
	}

	eng := engine.New(trackerAdapter, agent, nil, scheduler.New(logger), bus, logger, engineCfg, sess.ID, absCwd, sess.Model)
	runner := engine.NewRunner(eng, mgr, workDir).WithControlPlane(cp)
	return runner.Run(ctx, sess)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
