package git

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// Compile-time interface conformance check.
var _ core.WorktreeManager = (*Manager)(nil)

const (
	worktreesDirName    = ".ralph-worktrees"
	minFreeDiskBytes    = 500 * 1024 * 1024 // 500 MiB (§4.3 precondition)
	sessionBranchPrefix = "ralph-session/"
	workerBranchPrefix  = "ralph-worker/"
)

// Manager implements core.WorktreeManager over a core.GitClient, providing
// session and worker worktree lifecycle management (§4.3).
type Manager struct {
	git    core.GitClient
	cwd    string // the user's original working directory, main checkout
	logger *logging.Logger
}

// NewManager creates a worktree manager rooted at cwd.
func NewManager(git core.GitClient, cwd string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{git: git, cwd: cwd, logger: logger}
}

// baseDir returns <parent_of_cwd>/.ralph-worktrees/<project>.
func (m *Manager) baseDir() string {
	project := filepath.Base(m.cwd)
	return filepath.Join(filepath.Dir(m.cwd), worktreesDirName, project)
}

// resolvePath resolves symlinks for cross-platform path comparison (e.g.
// macOS /var -> /private/var); falls back to an absolute path.
func resolvePath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		abs, aerr := filepath.Abs(path)
		if aerr != nil {
			return path
		}
		return abs
	}
	return resolved
}

// sanitizeWorktreeName applies §4.3's naming sanitization: git-invalid
// characters and whitespace become '-', control characters are stripped,
// repeated separators collapse, leading/trailing './-' are trimmed, a
// trailing ".lock" is forbidden, and an empty result falls back to a short
// hash of the input.
func sanitizeWorktreeName(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	lastDash := false
	for _, r := range input {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		case strings.ContainsRune("~^:?*[\\@{", r):
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		case r < 0x20 || r == 0x7f:
			// control characters are stripped, not replaced
		default:
			b.WriteRune(r)
			lastDash = false
		}
	}

	name := b.String()
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	name = strings.Trim(name, "./-")
	name = strings.TrimSuffix(name, ".lock")

	if name == "" {
		sum := sha1.Sum([]byte(input))
		return "wt-" + hex.EncodeToString(sum[:])[:8]
	}
	return name
}

// DeriveSessionName picks a session worktree name following §4.3's
// priority: custom name > epic id > PRD basename (extension stripped) >
// first 8 chars of a session id. Callers resolve a name this way before
// passing it to CreateSessionWorktree.
func DeriveSessionName(custom, epicID, prdPath, sessionID string) string {
	switch {
	case strings.TrimSpace(custom) != "":
		return sanitizeWorktreeName(custom)
	case strings.TrimSpace(epicID) != "":
		return sanitizeWorktreeName(epicID)
	case strings.TrimSpace(prdPath) != "":
		base := filepath.Base(prdPath)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		return sanitizeWorktreeName(base)
	default:
		id := sessionID
		if len(id) > 8 {
			id = id[:8]
		}
		return sanitizeWorktreeName(id)
	}
}

// checkFreeDiskSpace refuses worktree creation when free space on the
// filesystem backing dir is below minFreeDiskBytes. Stats are queried via
// gopsutil first; if that fails, falls back to parsing `df -k`. If neither
// yields a number, creation proceeds optimistically (§4.3 precondition).
func checkFreeDiskSpace(dir string) error {
	probeDir := dir
	for {
		if _, err := os.Stat(probeDir); err == nil {
			break
		}
		parent := filepath.Dir(probeDir)
		if parent == probeDir {
			break
		}
		probeDir = parent
	}

	if usage, err := disk.Usage(probeDir); err == nil {
		if usage.Free < minFreeDiskBytes {
			return core.ErrValidation("WORKTREE_DISK_LOW",
				fmt.Sprintf("only %d bytes free at %s, need at least %d", usage.Free, probeDir, minFreeDiskBytes))
		}
		return nil
	}

	out, err := exec.Command("df", "-k", probeDir).Output()
	if err != nil {
		return nil // neither source available; proceed optimistically
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return nil
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 4 {
		return nil
	}
	availKB, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil
	}
	if availKB*1024 < minFreeDiskBytes {
		return core.ErrValidation("WORKTREE_DISK_LOW",
			fmt.Sprintf("only %dKB free at %s, need at least %d bytes", availKB, probeDir, minFreeDiskBytes))
	}
	return nil
}

// CreateSessionWorktree creates or resumes the top-level session worktree
// (implements core.WorktreeManager).
func (m *Manager) CreateSessionWorktree(ctx context.Context, name string) (*core.Worktree, error) {
	sanitized := sanitizeWorktreeName(name)
	branch := sessionBranchPrefix + sanitized
	path := filepath.Join(m.baseDir(), sanitized)
	return m.createOrResume(ctx, path, branch)
}

// CreateWorkerWorktree creates a sibling worktree for one parallel worker,
// branching off the session branch (implements core.WorktreeManager).
func (m *Manager) CreateWorkerWorktree(ctx context.Context, sessionName string, workerIndex int) (*core.Worktree, error) {
	sanitizedSession := sanitizeWorktreeName(sessionName)
	name := fmt.Sprintf("%s-worker-%d", sanitizedSession, workerIndex)
	branch := fmt.Sprintf("%s%s/%d", workerBranchPrefix, sanitizedSession, workerIndex)
	path := filepath.Join(m.baseDir(), name)

	sessionBranch := sessionBranchPrefix + sanitizedSession
	if exists, err := m.git.BranchExists(ctx, branch); err == nil && !exists {
		if err := m.git.CreateBranch(ctx, branch, sessionBranch); err != nil {
			return nil, fmt.Errorf("branching worker off session: %w", err)
		}
	}

	return m.createOrResume(ctx, path, branch)
}

// createOrResume implements the §4.3 precondition/resume-mode decision
// tree shared by session and worker worktree creation.
func (m *Manager) createOrResume(ctx context.Context, path, branch string) (*core.Worktree, error) {
	if err := checkFreeDiskSpace(filepath.Dir(path)); err != nil {
		return nil, err
	}

	branchExists, err := m.git.BranchExists(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("checking branch %s: %w", branch, err)
	}

	if branchExists {
		existing, err := m.findWorktreeForBranch(ctx, branch)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if resolvePath(existing.Path) == resolvePath(path) {
				existing.CreationMode = core.WorktreeReused
				return existing, nil
			}
			// Branch is checked out somewhere else under our management; reuse that worktree as-is.
			existing.CreationMode = core.WorktreeReused
			return existing, nil
		}

		// Branch exists but isn't attached anywhere; clear any stale path and attach.
		if err := m.clearStalePath(path); err != nil {
			return nil, err
		}
		if err := m.git.CreateWorktree(ctx, path, branch); err != nil {
			return nil, fmt.Errorf("attaching worktree to %s: %w", branch, err)
		}
		wt, err := m.describeWorktree(ctx, path)
		if err != nil {
			return nil, err
		}
		wt.CreationMode = core.WorktreeAttached
		return wt, nil
	}

	if err := m.clearStalePath(path); err != nil {
		return nil, err
	}
	if err := m.git.CreateWorktree(ctx, path, branch); err != nil {
		return nil, fmt.Errorf("creating worktree %s: %w", path, err)
	}

	m.copyConfig(path)

	wt, err := m.describeWorktree(ctx, path)
	if err != nil {
		return nil, err
	}
	wt.CreationMode = core.WorktreeCreated
	return wt, nil
}

// clearStalePath force-removes a stale worktree path or branch registration
// at path so a fresh `git worktree add` can claim it (§4.3 preconditions).
func (m *Manager) clearStalePath(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := m.git.RemoveWorktree(context.Background(), path, true); err != nil {
		m.logger.Warn("force-remove of stale worktree failed, deleting directory", "path", path, "error", err)
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("clearing stale worktree path %s: %w", path, rmErr)
		}
	}
	return nil
}

func (m *Manager) findWorktreeForBranch(ctx context.Context, branch string) (*core.Worktree, error) {
	all, err := m.git.ListWorktrees(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}
	for i := range all {
		if all[i].Branch == branch {
			wt := all[i]
			return &wt, nil
		}
	}
	return nil, nil
}

func (m *Manager) describeWorktree(ctx context.Context, path string) (*core.Worktree, error) {
	wt, err := m.findWorktreeAtPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if wt == nil {
		return nil, core.ErrNotFound("worktree", path)
	}
	return wt, nil
}

func (m *Manager) findWorktreeAtPath(ctx context.Context, path string) (*core.Worktree, error) {
	all, err := m.git.ListWorktrees(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}
	target := resolvePath(path)
	for i := range all {
		if resolvePath(all[i].Path) == target {
			wt := all[i]
			return &wt, nil
		}
	}
	return nil, nil
}

// copyConfig copies the cwd's .ralph-tui config file into the worktree
// (§4.3 creation step 3). Best-effort: failures are logged, not fatal.
func (m *Manager) copyConfig(worktreePath string) {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		src := filepath.Join(m.cwd, ".ralph-tui", name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(worktreePath, ".ralph-tui", name)
		if err := copyFile(src, dst); err != nil {
			m.logger.Warn("copying config into worktree failed", "src", src, "dst", dst, "error", err)
		}
		return
	}
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// preserveIterationLogs copies .ralph-tui/iterations/*.log files from a
// worktree back into the main cwd, never overwriting existing files
// (§4.3 iteration-log preservation). Best-effort.
func (m *Manager) preserveIterationLogs(worktreePath string) {
	srcDir := filepath.Join(worktreePath, ".ralph-tui", "iterations")
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return
	}
	dstDir := filepath.Join(m.cwd, ".ralph-tui", "iterations")
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		dst := filepath.Join(dstDir, entry.Name())
		if _, err := os.Stat(dst); err == nil {
			continue // never overwrite
		}
		if err := copyFile(filepath.Join(srcDir, entry.Name()), dst); err != nil {
			m.logger.Warn("preserving iteration log failed", "file", entry.Name(), "error", err)
		}
	}
}

// MergeBack merges a worktree's branch back into parentBranch, checked out
// in parentDir (implements core.WorktreeManager).
func (m *Manager) MergeBack(ctx context.Context, wt *core.Worktree, parentDir, parentBranch string) error {
	m.preserveIterationLogs(wt.Path)

	// parentDir is a worktree's own working directory, already checked out
	// onto parentBranch by construction; merges below run in that directory
	// directly rather than through the shared Client's bound repo path.
	if err := m.git.MergeFastForwardOnly(ctx, parentDir, wt.Branch); err == nil {
		return m.finishMergeBack(ctx, wt)
	} else if !errors.Is(err, ErrNothingToMerge) {
		// Not a simple can't-fast-forward case; fall through to a real
		// merge attempt anyway, since git reports several distinct
		// non-fast-forward failures the same way.
		m.logger.Debug("fast-forward merge unavailable, attempting full merge", "branch", wt.Branch, "error", err)
	}

	mergeErr := m.git.Merge(ctx, parentDir, wt.Branch, fmt.Sprintf("Merge %s", wt.Branch))
	if mergeErr == nil {
		return m.finishMergeBack(ctx, wt)
	}

	if errors.Is(mergeErr, ErrMergeConflict) {
		if abortErr := m.git.MergeAbort(ctx, parentDir); abortErr != nil {
			m.logger.Warn("merge --abort failed after conflict", "branch", wt.Branch, "error", abortErr)
		}
		files, _ := m.git.ConflictedFiles(ctx, parentDir)
		return core.ErrState("WORKTREE_MERGE_CONFLICT",
			fmt.Sprintf("merging %s produced conflicts in %v; worktree %s preserved for manual resolution", wt.Branch, files, wt.Path))
	}

	return fmt.Errorf("merging %s into %s: %w", wt.Branch, parentBranch, mergeErr)
}

func (m *Manager) finishMergeBack(ctx context.Context, wt *core.Worktree) error {
	if err := m.Remove(ctx, wt); err != nil {
		return fmt.Errorf("removing merged worktree %s: %w", wt.Path, err)
	}
	m.pruneEmptyParents(wt.Path)
	return nil
}

func (m *Manager) pruneEmptyParents(path string) {
	dir := filepath.Dir(path)
	base := resolvePath(m.baseDir())
	for resolvePath(dir) != base && strings.HasPrefix(resolvePath(dir), base) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Remove force-removes a worktree and deletes its branch (implements
// core.WorktreeManager).
func (m *Manager) Remove(ctx context.Context, wt *core.Worktree) error {
	m.preserveIterationLogs(wt.Path)

	if err := m.git.RemoveWorktree(ctx, wt.Path, true); err != nil {
		return fmt.Errorf("removing worktree %s: %w", wt.Path, err)
	}
	if wt.Branch != "" {
		if err := m.git.DeleteBranch(ctx, wt.Branch); err != nil {
			m.logger.Warn("deleting worktree branch failed", "branch", wt.Branch, "error", err)
		}
	}
	return nil
}

// List returns all worktrees tracked under the manager's base directory
// (implements core.WorktreeManager).
func (m *Manager) List(ctx context.Context) ([]*core.Worktree, error) {
	all, err := m.git.ListWorktrees(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}

	base := resolvePath(m.baseDir())
	managed := make([]*core.Worktree, 0)
	for i := range all {
		if strings.HasPrefix(resolvePath(all[i].Path), base) {
			wt := all[i]
			managed = append(managed, &wt)
		}
	}
	return managed, nil
}
