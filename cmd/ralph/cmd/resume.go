package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ralph-tui/ralph-tui/internal/adapters/cli"
	"github.com/ralph-tui/ralph-tui/internal/adapters/git"
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/engine"
	"github.com/ralph-tui/ralph-tui/internal/events"
	"github.com/ralph-tui/ralph-tui/internal/logging"
	"github.com/ralph-tui/ralph-tui/internal/scheduler"
	"github.com/ralph-tui/ralph-tui/internal/session"
	"github.com/ralph-tui/ralph-tui/internal/tracker"
)

var resumeFlags struct {
	list    bool
	cleanup bool
	force   bool
}

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Reattach to, list, or clean up sessions recorded in the session registry",
	Long: `resume re-attaches to a previously started session by id (exact or a
unique prefix). With --list it prints every session in the registry across
all working directories. With --cleanup it drops registry entries whose
working directory no longer has a session.json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeFlags.list, "list", false, "list all known sessions")
	resumeCmd.Flags().BoolVar(&resumeFlags.cleanup, "cleanup", false, "remove stale registry entries")
	resumeCmd.Flags().BoolVar(&resumeFlags.force, "force", false, "override a held session lock")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	reg := session.NewRegistry(session.DefaultRegistryPath())

	switch {
	case resumeFlags.cleanup:
		removed, err := reg.PruneMissing(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range removed {
			fmt.Printf("removed stale entry: %s\n", id)
		}
		if len(removed) == 0 {
			fmt.Println("no stale entries")
		}
		return nil

	case resumeFlags.list:
		entries, err := reg.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no sessions recorded")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-10s %s  (%s, updated %s)\n", e.SessionID, e.Status, e.CWD, e.AgentPluginID, e.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	if len(args) == 0 {
		return core.ErrValidation("SESSION_ID_REQUIRED", "resume requires a session id, or --list/--cleanup")
	}

	entry, err := reg.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	mgr := session.New(entry.CWD)
	if resumeFlags.force {
		if err := mgr.ForceRelease(); err != nil {
			return fmt.Errorf("forcing lock release: %w", err)
		}
	}
	sess, err := mgr.Load(cmd.Context())
	if err != nil {
		return err
	}
	if sess == nil {
		return core.ErrNotFound("session state", entry.SessionID)
	}

	fmt.Printf("resuming session %s in %s (agent=%s, iteration=%d, status=%s)\n",
		sess.ID, sess.CWD, sess.AgentPluginID, sess.Iteration, sess.Status)

	logger := logging.New(logging.Config{Level: logLevel, Format: logFormat})

	ctx, cp, stopInterrupt := withInterruptHandling(cmd.Context())
	defer stopInterrupt()

	if err := mgr.AcquireLock(ctx, sess.ID); err != nil {
		return err
	}
	defer func() {
		if err := mgr.ReleaseLock(ctx); err != nil {
			logger.Warn("releasing session lock failed", "error", err)
		}
	}()

	registry := cli.NewRegistry(logger)
	agent, err := registry.Get(sess.AgentPluginID)
	if err != nil {
		return fmt.Errorf("resolving agent %q: %w", sess.AgentPluginID, err)
	}
	if err := agent.Ping(ctx); err != nil {
		return core.ErrAgentUnavailable(fmt.Sprintf("%s: %v", sess.AgentPluginID, err))
	}

	trackerAdapter, err := tracker.NewRegistry().New(sess.TrackerPluginID, sess.CWD, core.TrackerOptions{})
	if err != nil {
		return err
	}
	knownTasks, err := trackerAdapter.ListOpenTasks(ctx)
	if err != nil {
		return err
	}
	if sess.Counts.Total > 0 && len(knownTasks) == 0 {
		logger.Warn("resumed session's task count disagrees with the tracker; session file kept for inspection",
			"session_known_tasks", sess.Counts.Total, "tracker_tasks", 0)
	}

	sess.Status = core.SessionStatusRunning
	sess.StopReason = ""

	bus := events.New(256)
	defer bus.Close()

	workDir := sess.CWD
	var gitClient core.GitClient
	if sess.Worktree != nil {
		workDir = sess.Worktree.Path
		client, err := git.NewClient(sess.CWD)
		if err != nil {
			return fmt.Errorf("opening git repository: %w", err)
		}
		gitClient = client
	}

	eng := engine.New(trackerAdapter, agent, gitClient, scheduler.New(logger), bus, logger, engine.DefaultConfig(), sess.ID, sess.CWD, sess.Model)
	runner := engine.NewRunner(eng, mgr, workDir).WithControlPlane(cp)
	return runner.Run(ctx, sess)
}
