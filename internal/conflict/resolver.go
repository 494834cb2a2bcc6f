// Package conflict implements the Conflict Resolver (§4.4): a fast
// heuristic pass over merge conflicts, falling back to an AI-assisted pass
// for anything the heuristics can't settle.
package conflict

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/events"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// Config carries the §4.4 conflictResolution.* keys.
type Config struct {
	Enabled             bool
	Timeout             time.Duration
	MaxFiles            int
	ConfidenceThreshold float64
}

// DefaultConfig returns conflictResolution's documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Timeout:             120 * time.Second,
		MaxFiles:            10,
		ConfidenceThreshold: 0.7,
	}
}

// FileConflict is one conflicted file's three-way content, read from git's
// index stages (1=base, 2=ours, 3=theirs).
type FileConflict struct {
	Path         string
	Base         string
	BaseExists   bool
	Ours         string
	OursExists   bool
	Theirs       string
	TheirsExists bool
}

// FileResolution is the accepted content for one previously conflicted file.
type FileResolution struct {
	Path       string
	Strategy   string // "fast-path" | "ai"
	Confidence float64
	Content    []byte
}

// Resolver resolves merge conflicts produced during worker->session or
// session->main merges.
type Resolver struct {
	git    core.GitClient
	agent  core.Agent
	bus    *events.EventBus
	logger *logging.Logger
	cfg    Config
}

// New creates a Resolver. agent may be nil if no AI path is available; bus
// may be nil to skip event publication.
func New(git core.GitClient, agent core.Agent, bus *events.EventBus, logger *logging.Logger, cfg Config) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{git: git, agent: agent, bus: bus, logger: logger, cfg: cfg}
}

// Resolve attempts to settle every conflicted file in dir, writing accepted
// content and staging it via git add. It does not commit - callers finish
// the merge (FinishMerge) once every file is resolved. On the first
// unresolvable file it returns the resolutions completed so far alongside
// the error, so the caller can log how far it got before preserving the
// worktree for manual resolution.
func (r *Resolver) Resolve(ctx context.Context, dir string, files []string, sessionID, projectID, taskID, taskTitle string) ([]FileResolution, error) {
	if r.cfg.MaxFiles > 0 && len(files) > r.cfg.MaxFiles {
		return nil, core.ErrValidation("CONFLICT_TOO_MANY_FILES",
			fmt.Sprintf("%d conflicted files exceeds configured max %d", len(files), r.cfg.MaxFiles))
	}
	r.publish(events.NewConflictDetectedEvent(sessionID, projectID, taskID, files))

	resolutions := make([]FileResolution, 0, len(files))
	for _, path := range files {
		fc := r.loadConflict(ctx, dir, path)

		if res, ok := fastPath(fc); ok {
			if err := r.apply(ctx, dir, path, res.Content); err != nil {
				return resolutions, err
			}
			r.publish(events.NewConflictResolvedEvent(sessionID, projectID, taskID, path, "fast_path", res.Confidence))
			resolutions = append(resolutions, res)
			continue
		}

		if !r.cfg.Enabled {
			reason := "not fast-pathable and AI-assisted resolution is disabled"
			r.publish(events.NewConflictFailedEvent(sessionID, projectID, taskID, path, reason))
			return resolutions, core.ErrState("CONFLICT_UNRESOLVED", fmt.Sprintf("%s: %s", path, reason))
		}

		r.publish(events.NewConflictAIResolvingEvent(sessionID, projectID, taskID, path))
		res, err := r.aiResolve(ctx, dir, path, fc, taskID, taskTitle)
		if err != nil {
			r.publish(events.NewConflictFailedEvent(sessionID, projectID, taskID, path, err.Error()))
			return resolutions, err
		}
		if err := r.apply(ctx, dir, path, res.Content); err != nil {
			return resolutions, err
		}
		r.publish(events.NewConflictResolvedEvent(sessionID, projectID, taskID, path, "ai", res.Confidence))
		resolutions = append(resolutions, res)
	}
	return resolutions, nil
}

// FinishMerge completes an in-progress merge once every conflicted file has
// been staged via Resolve.
func (r *Resolver) FinishMerge(ctx context.Context, dir, message string) (string, error) {
	return r.git.Commit(ctx, dir, message)
}

func (r *Resolver) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

// fastPath implements §4.4's fast path: an empty (ignoring whitespace)
// side yields the other; byte-identical sides yield either.
func fastPath(fc FileConflict) (FileResolution, bool) {
	oursTrim := strings.TrimSpace(fc.Ours)
	theirsTrim := strings.TrimSpace(fc.Theirs)

	switch {
	case fc.Ours == fc.Theirs:
		return FileResolution{Path: fc.Path, Strategy: "fast-path", Confidence: 1.0, Content: []byte(fc.Ours)}, true
	case oursTrim == "":
		return FileResolution{Path: fc.Path, Strategy: "fast-path", Confidence: 1.0, Content: []byte(fc.Theirs)}, true
	case theirsTrim == "":
		return FileResolution{Path: fc.Path, Strategy: "fast-path", Confidence: 1.0, Content: []byte(fc.Ours)}, true
	}
	return FileResolution{}, false
}

func (r *Resolver) aiResolve(ctx context.Context, dir, path string, fc FileConflict, taskID, taskTitle string) (FileResolution, error) {
	if r.agent == nil {
		return FileResolution{}, core.ErrAgentUnavailable(fmt.Sprintf("%s: no agent configured for conflict resolution", path))
	}

	timeout := r.cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := r.agent.Execute(cctx, core.ExecuteOptions{
		Prompt:  buildPrompt(path, taskID, taskTitle, fc),
		WorkDir: dir,
		Timeout: timeout,
	})
	if err != nil {
		return FileResolution{}, fmt.Errorf("conflict-resolution agent call for %s: %w", path, err)
	}
	if result.Status != core.AgentStatusCompleted || result.ExitCode != 0 {
		return FileResolution{}, core.ErrState("CONFLICT_AI_FAILED",
			fmt.Sprintf("%s: agent exited %d (%s)", path, result.ExitCode, result.Status))
	}

	content := stripFence(result.Stdout)
	if strings.TrimSpace(content) == "" {
		return FileResolution{}, core.ErrState("CONFLICT_AI_EMPTY", fmt.Sprintf("%s: agent produced empty resolution", path))
	}

	return FileResolution{Path: path, Strategy: "ai", Confidence: r.cfg.ConfidenceThreshold, Content: []byte(content)}, nil
}

func buildPrompt(path, taskID, taskTitle string, fc FileConflict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resolve the merge conflict in %s for task %s (%s).\n\n", path, taskID, taskTitle)

	b.WriteString("Base:\n")
	if fc.BaseExists {
		fmt.Fprintf(&b, "%s\n\n", fc.Base)
	} else {
		b.WriteString("(file did not exist)\n\n")
	}

	b.WriteString("Ours:\n")
	fmt.Fprintf(&b, "%s\n\n", fc.Ours)

	b.WriteString("Theirs:\n")
	fmt.Fprintf(&b, "%s\n\n", fc.Theirs)

	b.WriteString("Output ONLY the fully resolved file content. No code fences, no explanation, no prose.\n")
	return b.String()
}

// stripFence removes a single outer triple-backtick fence (with an
// optional language tag on the opening line) if the whole output is
// wrapped in one.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return trimmed
	}
	firstNL := strings.IndexByte(trimmed, '\n')
	if firstNL < 0 {
		return trimmed
	}
	body := strings.TrimSuffix(trimmed[firstNL+1:], "```")
	return strings.TrimSpace(body)
}

func (r *Resolver) loadConflict(ctx context.Context, dir, path string) FileConflict {
	base, baseExists := r.loadStage(ctx, dir, ":1", path)
	ours, oursExists := r.loadStage(ctx, dir, ":2", path)
	theirs, theirsExists := r.loadStage(ctx, dir, ":3", path)
	return FileConflict{
		Path: path,
		Base: base, BaseExists: baseExists,
		Ours: ours, OursExists: oursExists,
		Theirs: theirs, TheirsExists: theirsExists,
	}
}

func (r *Resolver) loadStage(ctx context.Context, dir, ref, path string) (string, bool) {
	blob, err := r.git.ShowBlob(ctx, dir, ref, path)
	if err != nil {
		return "", false
	}
	return string(blob), true
}

func (r *Resolver) apply(ctx context.Context, dir, path string, content []byte) error {
	full := filepath.Join(dir, path)
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("writing resolved %s: %w", path, err)
	}
	return r.git.Add(ctx, dir, path)
}
