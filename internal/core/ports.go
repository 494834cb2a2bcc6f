package core

import (
	"context"
	"time"
)

// =============================================================================
// Agent port
// =============================================================================

// Agent defines the contract for an external coding-agent CLI adapter. The
// orchestrator treats every agent as an opaque process: stdin, stdout, exit
// code, a timeout, and a cancellation signal are the only contract surface.
type Agent interface {
	// Name returns the adapter identifier (e.g., "claude", "gemini").
	Name() string

	// Capabilities returns what the agent declares it can do.
	Capabilities() Capabilities

	// Ping is the preflight check: detect-probe availability, then a
	// minimal prompt with a short timeout expecting non-empty output.
	Ping(ctx context.Context) error

	// ValidateModel reports whether the agent accepts the given model
	// name. A non-nil error never aborts a session by itself - callers
	// warn and fall back per the model-resolution precedence.
	ValidateModel(name string) error

	// Execute runs a prompt through the agent and returns the result.
	Execute(ctx context.Context, opts ExecuteOptions) (*ExecuteResult, error)
}

// Capabilities describes what an agent declares about itself.
type Capabilities struct {
	SupportsStreaming       bool
	SupportsInterrupt       bool
	SupportsFileContext     bool
	SupportsSubagentTracing bool
	StructuredOutputFormat  string // "", "json", "jsonl"
	SupportedModels         []string
	DefaultModel            string
}

// AgentStatus is the terminal disposition of one Execute call.
type AgentStatus string

const (
	AgentStatusCompleted  AgentStatus = "completed"
	AgentStatusFailed     AgentStatus = "failed"
	AgentStatusTimeout    AgentStatus = "timeout"
	AgentStatusInterrupted AgentStatus = "interrupted"
)

// FileAttachment is a file-context reference passed to agents that declare
// SupportsFileContext.
type FileAttachment struct {
	Path string
}

// ExecuteOptions configures an agent execution.
type ExecuteOptions struct {
	Prompt       string
	Attachments  []FileAttachment
	Model        string
	WorkDir      string
	Timeout      time.Duration
	MaxOutputBytes int64
	Cancel       <-chan struct{}
	ExtraFlags   []string // engine-injected flags; appended last (§4.2 flag ordering)
}

// ExecuteResult contains the output of an agent execution.
type ExecuteResult struct {
	Status      AgentStatus
	ExitCode    int
	Stdout      string
	Stderr      string
	DurationMs  int64
	Interrupted bool
	StartedAt   time.Time
	EndedAt     time.Time
}

// AgentRegistry manages registered agents, looked up by plugin id - a
// registry lookup, never virtual dispatch through a hierarchy (§9).
type AgentRegistry interface {
	Register(name string, agent Agent) error
	Get(name string) (Agent, error)
	List() []string
	Available(ctx context.Context) []string
}

// =============================================================================
// GitClient port
// =============================================================================

// GitClient defines the contract for git operations the Worktree Manager
// needs. The git repository is accessed only through this interface - no
// other component shells out to git directly (§5).
type GitClient interface {
	RepoRoot(ctx context.Context) (string, error)
	CurrentBranch(ctx context.Context) (string, error)
	DefaultBranch(ctx context.Context) (string, error)

	BranchExists(ctx context.Context, name string) (bool, error)
	CreateBranch(ctx context.Context, name, base string) error
	DeleteBranch(ctx context.Context, name string) error
	CheckoutBranch(ctx context.Context, name string) error

	CreateWorktree(ctx context.Context, path, branch string) error
	RemoveWorktree(ctx context.Context, path string, force bool) error
	ListWorktrees(ctx context.Context) ([]Worktree, error)

	Status(ctx context.Context) (*GitStatus, error)
	Add(ctx context.Context, dir string, paths ...string) error
	Commit(ctx context.Context, dir, message string) (string, error)

	MergeFastForwardOnly(ctx context.Context, dir, branch string) error
	Merge(ctx context.Context, dir, branch, message string) error
	MergeAbort(ctx context.Context, dir string) error
	ConflictedFiles(ctx context.Context, dir string) ([]string, error)
	ShowBlob(ctx context.Context, dir, ref, path string) ([]byte, error)

	IsClean(ctx context.Context, dir string) (bool, error)
}

// Worktree is a git worktree descriptor (§3 Worktree).
type Worktree struct {
	Path         string
	Branch       string
	Commit       string
	IsMain       bool
	Locked       bool
	CreationMode WorktreeCreationMode
}

// WorktreeCreationMode records how a worktree came to exist in this run.
type WorktreeCreationMode string

const (
	WorktreeCreated  WorktreeCreationMode = "created"
	WorktreeReused   WorktreeCreationMode = "reused"
	WorktreeAttached WorktreeCreationMode = "attached"
)

// GitStatus represents the status of a git repository.
type GitStatus struct {
	Branch       string
	Staged       []FileStatus
	Unstaged     []FileStatus
	Untracked    []string
	HasConflicts bool
}

// FileStatus represents a file's git status.
type FileStatus struct {
	Path   string
	Status string // M, A, D, R, C, U
}

// =============================================================================
// WorktreeManager port
// =============================================================================

// WorktreeManager provides session/worker-level worktree lifecycle
// management (§4.3).
type WorktreeManager interface {
	// CreateSessionWorktree creates or resumes the top-level session
	// worktree; returns its descriptor and the mode it was obtained in.
	CreateSessionWorktree(ctx context.Context, name string) (*Worktree, error)

	// CreateWorkerWorktree creates a sibling worktree for one parallel
	// worker, nested under the session worktree's context.
	CreateWorkerWorktree(ctx context.Context, sessionName string, workerIndex int) (*Worktree, error)

	// MergeBack merges a worktree's branch back into its parent branch;
	// on success the worktree and branch are removed, on conflict both
	// are preserved and the returned error wraps the conflicted files.
	MergeBack(ctx context.Context, wt *Worktree, parentDir, parentBranch string) error

	// Remove force-removes a worktree and deletes its branch.
	Remove(ctx context.Context, wt *Worktree) error

	// List returns all worktrees tracked under the manager's base directory.
	List(ctx context.Context) ([]*Worktree, error)
}

// =============================================================================
// TrackerAdapter port
// =============================================================================

// TrackerAdapter presents tasks uniformly across concrete sources (JSON PRD
// file, beads, beads-rust, beads-bv) behind one capability set (§4.1). Tasks
// are authoritatively owned by the tracker; the orchestrator holds only
// read-through views and issues status-change commands.
type TrackerAdapter interface {
	// Name returns the adapter's plugin id (e.g. "json", "beads").
	Name() string

	// ListOpenTasks returns every task the source currently knows about,
	// in the tracker's natural listing order, before dotted-child
	// reordering (callers apply that pass themselves, see
	// internal/tracker.OrderDottedChildren).
	ListOpenTasks(ctx context.Context) ([]Task, error)

	// GetTask looks up a single task by id. A missing task is reported as
	// (nil, nil), not an error.
	GetTask(ctx context.Context, id TaskID) (*Task, error)

	// CloseTask marks a task closed with a short reason. Idempotent.
	CloseTask(ctx context.Context, id TaskID, reason string) error

	// UpdateTaskStatus sets a task's status. Idempotent.
	UpdateTaskStatus(ctx context.Context, id TaskID, status TaskStatus) error
}

// TrackerFactory constructs a TrackerAdapter bound to one working
// directory and set of options (§6 trackerOptions).
type TrackerFactory func(cwd string, options TrackerOptions) (TrackerAdapter, error)

// TrackerOptions carries the §6 `trackerOptions.*` config keys plus the
// CLI-level --prd/--epic overrides.
type TrackerOptions struct {
	PRDPath string
	EpicID  string
}

// =============================================================================
// StateManager port (Session persistence, §4.8)
// =============================================================================

// StateManager persists Session state atomically with corruption detection
// (checksum mismatch surfaces as StateCorrupted, §7).
type StateManager interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context) (*Session, error)
	Exists() bool

	AcquireLock(ctx context.Context, sessionID string) error
	ReleaseLock(ctx context.Context) error
	LockInfo() (*LockInfo, error)

	Delete(ctx context.Context) error
}

// LockInfo is the persisted content of ralph.lock (§4.8).
type LockInfo struct {
	SessionID string    `json:"sessionId"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
}
