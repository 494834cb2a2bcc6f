package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ralph-tui/ralph-tui/internal/core"
)

// MockAgent implements core.Agent for testing.
type MockAgent struct {
	name         string
	capabilities core.Capabilities
	executeFunc  func(context.Context, core.ExecuteOptions) (*core.ExecuteResult, error)
	pingFunc     func(context.Context) error
	calls        []MockCall
	mu           sync.Mutex
}

// MockCall records a call to the mock.
type MockCall struct {
	Method    string
	Args      interface{}
	Timestamp time.Time
}

// NewMockAgent creates a new mock agent.
func NewMockAgent(name string) *MockAgent {
	return &MockAgent{
		name: name,
		capabilities: core.Capabilities{
			SupportsStreaming:   true,
			SupportsFileContext: true,
			DefaultModel:        "mock-model",
		},
		calls: make([]MockCall, 0),
	}
}

// Name returns the mock name.
func (m *MockAgent) Name() string {
	return m.name
}

// Capabilities returns mock capabilities.
func (m *MockAgent) Capabilities() core.Capabilities {
	return m.capabilities
}

// ValidateModel accepts any non-empty model name.
func (m *MockAgent) ValidateModel(name string) error {
	if name == "" {
		return nil
	}
	for _, supported := range m.capabilities.SupportedModels {
		if supported == name {
			return nil
		}
	}
	if len(m.capabilities.SupportedModels) == 0 {
		return nil
	}
	return core.ErrConfig("UNKNOWN_MODEL", fmt.Sprintf("%s: unknown model %q", m.name, name))
}

// Ping mocks availability check.
func (m *MockAgent) Ping(ctx context.Context) error {
	m.recordCall("Ping", nil)
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

// Execute mocks prompt execution.
func (m *MockAgent) Execute(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
	m.recordCall("Execute", opts)
	if m.executeFunc != nil {
		return m.executeFunc(ctx, opts)
	}

	promptPreview := opts.Prompt
	if len(promptPreview) > 50 {
		promptPreview = promptPreview[:50]
	}

	now := time.Now()
	return &core.ExecuteResult{
		Status:     core.AgentStatusCompleted,
		ExitCode:   0,
		Stdout:     fmt.Sprintf("Mock response for: %s", promptPreview),
		DurationMs: 100,
		StartedAt:  now,
		EndedAt:    now.Add(100 * time.Millisecond),
	}, nil
}

// WithExecuteFunc sets a custom execute function.
func (m *MockAgent) WithExecuteFunc(fn func(context.Context, core.ExecuteOptions) (*core.ExecuteResult, error)) *MockAgent {
	m.executeFunc = fn
	return m
}

// WithPingFunc sets a custom ping function.
func (m *MockAgent) WithPingFunc(fn func(context.Context) error) *MockAgent {
	m.pingFunc = fn
	return m
}

// WithCapabilities sets capabilities.
func (m *MockAgent) WithCapabilities(caps core.Capabilities) *MockAgent {
	m.capabilities = caps
	return m
}

// WithError configures the mock to return an error.
func (m *MockAgent) WithError(err error) *MockAgent {
	m.executeFunc = func(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
		return nil, err
	}
	return m
}

// WithResponse configures a fixed stdout response.
func (m *MockAgent) WithResponse(stdout string) *MockAgent {
	m.executeFunc = func(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
		now := time.Now()
		return &core.ExecuteResult{
			Status:     core.AgentStatusCompleted,
			Stdout:     stdout,
			DurationMs: 50,
			StartedAt:  now,
			EndedAt:    now.Add(50 * time.Millisecond),
		}, nil
	}
	return m
}

// Calls returns recorded calls.
func (m *MockAgent) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall{}, m.calls...)
}

// CallCount returns number of calls to a method.
func (m *MockAgent) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears call history.
func (m *MockAgent) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]MockCall, 0)
}

func (m *MockAgent) recordCall(method string, args interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method:    method,
		Args:      args,
		Timestamp: time.Now(),
	})
}

// MockStateManager implements core.StateManager for testing.
type MockStateManager struct {
	state    *core.Session
	locked   bool
	lockInfo *core.LockInfo
	saveFunc func(*core.Session) error
	mu       sync.Mutex
}

// NewMockStateManager creates a new mock state manager.
func NewMockStateManager() *MockStateManager {
	return &MockStateManager{}
}

// Save mocks state saving.
func (m *MockStateManager) Save(ctx context.Context, s *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveFunc != nil {
		return m.saveFunc(s)
	}
	m.state = s
	return nil
}

// Load mocks state loading.
func (m *MockStateManager) Load(ctx context.Context) (*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

// Exists mocks existence check.
func (m *MockStateManager) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != nil
}

// Delete mocks session-file deletion.
func (m *MockStateManager) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

// AcquireLock mocks lock acquisition.
func (m *MockStateManager) AcquireLock(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return core.ErrLockConflict("already locked")
	}
	m.locked = true
	m.lockInfo = &core.LockInfo{SessionID: sessionID, PID: 1, StartedAt: time.Now()}
	return nil
}

// ReleaseLock mocks lock release.
func (m *MockStateManager) ReleaseLock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = false
	m.lockInfo = nil
	return nil
}

// LockInfo mocks reading the held lock.
func (m *MockStateManager) LockInfo() (*core.LockInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockInfo, nil
}

// SetState sets the mock state directly.
func (m *MockStateManager) SetState(s *core.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// WithSaveError configures Save to return an error.
func (m *MockStateManager) WithSaveError(err error) *MockStateManager {
	m.saveFunc = func(*core.Session) error {
		return err
	}
	return m
}

// MockRegistry implements core.AgentRegistry for testing.
type MockRegistry struct {
	agents map[string]*MockAgent
	mu     sync.RWMutex
}

// NewMockRegistry creates a new mock registry.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		agents: make(map[string]*MockAgent),
	}
}

// Add adds a mock agent.
func (r *MockRegistry) Add(name string, agent *MockAgent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = agent
}

// Register adds an agent to the registry.
func (r *MockRegistry) Register(name string, agent core.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mock, ok := agent.(*MockAgent); ok {
		r.agents[name] = mock
	}
	return nil
}

// Get returns an agent.
func (r *MockRegistry) Get(name string) (core.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if agent, ok := r.agents[name]; ok {
		return agent, nil
	}
	return nil, core.ErrNotFound("agent", name)
}

// List returns agent names.
func (r *MockRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Available returns agents that pass Ping.
func (r *MockRegistry) Available(ctx context.Context) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	available := make([]string, 0)
	for name, agent := range r.agents {
		if agent.Ping(ctx) == nil {
			available = append(available, name)
		}
	}
	return available
}

// MockTrackerAdapter implements core.TrackerAdapter over an in-memory task
// list, for testing components (like internal/engine) that drive a tracker
// without a real JSON-PRD or beads backend.
type MockTrackerAdapter struct {
	NameValue     string
	Tasks         []core.Task
	ClosedIDs     []core.TaskID
	StatusUpdates map[core.TaskID]core.TaskStatus
	CloseErr      error
	mu            sync.Mutex
}

// NewMockTrackerAdapter creates a MockTrackerAdapter seeded with tasks.
func NewMockTrackerAdapter(tasks ...core.Task) *MockTrackerAdapter {
	return &MockTrackerAdapter{
		NameValue:     "mock",
		Tasks:         tasks,
		StatusUpdates: make(map[core.TaskID]core.TaskStatus),
	}
}

func (m *MockTrackerAdapter) Name() string { return m.NameValue }

func (m *MockTrackerAdapter) ListOpenTasks(ctx context.Context) ([]core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Task, len(m.Tasks))
	copy(out, m.Tasks)
	return out, nil
}

func (m *MockTrackerAdapter) GetTask(ctx context.Context, id core.TaskID) (*core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Tasks {
		if m.Tasks[i].ID == id {
			t := m.Tasks[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MockTrackerAdapter) CloseTask(ctx context.Context, id core.TaskID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CloseErr != nil {
		return m.CloseErr
	}
	m.ClosedIDs = append(m.ClosedIDs, id)
	for i := range m.Tasks {
		if m.Tasks[i].ID == id {
			m.Tasks[i].Status = core.TaskStatusClosed
		}
	}
	m.StatusUpdates[id] = core.TaskStatusClosed
	return nil
}

func (m *MockTrackerAdapter) UpdateTaskStatus(ctx context.Context, id core.TaskID, status core.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Tasks {
		if m.Tasks[i].ID == id {
			m.Tasks[i].Status = status
		}
	}
	m.StatusUpdates[id] = status
	return nil
}

// WithCloseError makes CloseTask fail with err.
func (m *MockTrackerAdapter) WithCloseError(err error) *MockTrackerAdapter {
	m.CloseErr = err
	return m
}

// MockGitClient implements core.GitClient for testing components (like
// internal/conflict) that only need a handful of git operations rather
// than a real repository. Blobs are keyed by "ref:path"; Add/Commit calls
// are recorded for assertions.
type MockGitClient struct {
	Blobs        map[string][]byte
	AddedPaths   []string
	Commits      []string
	CommitFunc   func(dir, message string) (string, error)
	ShowBlobErr  error
	IsCleanValue bool
	CommitErr    error
	mu           sync.Mutex
}

// NewMockGitClient creates an empty MockGitClient. IsClean reports dirty
// (false) by default, so callers that stage-then-commit on change exercise
// that path unless told otherwise.
func NewMockGitClient() *MockGitClient {
	return &MockGitClient{Blobs: make(map[string][]byte)}
}

// WithBlob registers content for a given ref:path pair, as read by ShowBlob.
func (m *MockGitClient) WithBlob(ref, path string, content []byte) *MockGitClient {
	m.Blobs[ref+":"+path] = content
	return m
}

// WithIsClean sets the value IsClean reports.
func (m *MockGitClient) WithIsClean(clean bool) *MockGitClient {
	m.IsCleanValue = clean
	return m
}

// WithCommitError makes Commit fail with err.
func (m *MockGitClient) WithCommitError(err error) *MockGitClient {
	m.CommitErr = err
	return m
}

func (m *MockGitClient) RepoRoot(ctx context.Context) (string, error)      { return "/mock/repo", nil }
func (m *MockGitClient) CurrentBranch(ctx context.Context) (string, error) { return "main", nil }
func (m *MockGitClient) DefaultBranch(ctx context.Context) (string, error) { return "main", nil }

func (m *MockGitClient) BranchExists(ctx context.Context, name string) (bool, error) { return false, nil }
func (m *MockGitClient) CreateBranch(ctx context.Context, name, base string) error   { return nil }
func (m *MockGitClient) DeleteBranch(ctx context.Context, name string) error         { return nil }
func (m *MockGitClient) CheckoutBranch(ctx context.Context, name string) error       { return nil }

func (m *MockGitClient) CreateWorktree(ctx context.Context, path, branch string) error    { return nil }
func (m *MockGitClient) RemoveWorktree(ctx context.Context, path string, force bool) error { return nil }
func (m *MockGitClient) ListWorktrees(ctx context.Context) ([]core.Worktree, error)        { return nil, nil }

func (m *MockGitClient) Status(ctx context.Context) (*core.GitStatus, error) {
	return &core.GitStatus{Branch: "main"}, nil
}

func (m *MockGitClient) Add(ctx context.Context, dir string, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddedPaths = append(m.AddedPaths, paths...)
	return nil
}

func (m *MockGitClient) Commit(ctx context.Context, dir, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommitErr != nil {
		return "", m.CommitErr
	}
	m.Commits = append(m.Commits, message)
	if m.CommitFunc != nil {
		return m.CommitFunc(dir, message)
	}
	return "mock-sha", nil
}

func (m *MockGitClient) MergeFastForwardOnly(ctx context.Context, dir, branch string) error { return nil }
func (m *MockGitClient) Merge(ctx context.Context, dir, branch, message string) error        { return nil }
func (m *MockGitClient) MergeAbort(ctx context.Context, dir string) error                    { return nil }
func (m *MockGitClient) ConflictedFiles(ctx context.Context, dir string) ([]string, error)   { return nil, nil }

func (m *MockGitClient) ShowBlob(ctx context.Context, dir, ref, path string) ([]byte, error) {
	if m.ShowBlobErr != nil {
		return nil, m.ShowBlobErr
	}
	content, ok := m.Blobs[ref+":"+path]
	if !ok {
		return nil, core.ErrNotFound("blob", ref+":"+path)
	}
	return content, nil
}

func (m *MockGitClient) IsClean(ctx context.Context, dir string) (bool, error) {
	return m.IsCleanValue, nil
}

// AddCalls returns the paths passed to Add, in order.
func (m *MockGitClient) AddCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.AddedPaths))
	copy(out, m.AddedPaths)
	return out
}

// Ensure interfaces are implemented.
var _ core.Agent = (*MockAgent)(nil)
var _ core.StateManager = (*MockStateManager)(nil)
var _ core.AgentRegistry = (*MockRegistry)(nil)
var _ core.GitClient = (*MockGitClient)(nil)
var _ core.TrackerAdapter = (*MockTrackerAdapter)(nil)
