// Package session implements the Session Manager (§4.8): persisted session
// state, the cross-process lock, and the user-scoped session registry.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/fsutil"
)

const stateDirName = ".ralph-tui"

// Manager implements core.StateManager over a single working directory's
// .ralph-tui/ tree: session.json, ralph.lock, and a checksum envelope
// guarding against partial writes (§4.8, §7 StateCorrupted).
type Manager struct {
	cwd         string
	sessionPath string
	lockPath    string
	lockTTL     time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLockTTL overrides the default stale-lock threshold.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.lockTTL = ttl }
}

// New creates a Manager rooted at cwd's .ralph-tui directory.
func New(cwd string, opts ...Option) *Manager {
	dir := filepath.Join(cwd, stateDirName)
	m := &Manager{
		cwd:         cwd,
		sessionPath: filepath.Join(dir, "session.json"),
		lockPath:    filepath.Join(dir, "ralph.lock"),
		lockTTL:     time.Hour,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// envelope wraps a Session with a checksum so a truncated or half-written
// file is detected instead of silently loaded (§7 StateCorrupted).
type envelope struct {
	Version   int           `json:"version"`
	Checksum  string        `json:"checksum"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Session   *core.Session `json:"session"`
}

// Save implements core.StateManager.
func (m *Manager) Save(ctx context.Context, s *core.Session) error {
	if err := os.MkdirAll(filepath.Dir(m.sessionPath), 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	s.UpdatedAt = time.Now()

	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	sum := sha256.Sum256(body)

	env := envelope{
		Version:   1,
		Checksum:  hex.EncodeToString(sum[:]),
		UpdatedAt: s.UpdatedAt,
		Session:   s,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	if err := atomicWrite(m.sessionPath, data); err != nil {
		return fmt.Errorf("writing session.json: %w", err)
	}
	return nil
}

// Load implements core.StateManager.
func (m *Manager) Load(ctx context.Context) (*core.Session, error) {
	data, err := fsutil.ReadFileScoped(m.sessionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session.json: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, core.ErrState("STATE_CORRUPTED", fmt.Sprintf("session.json is not valid JSON: %v", err))
	}
	if env.Session == nil {
		return nil, core.ErrState("STATE_CORRUPTED", "session.json envelope has no session")
	}

	body, err := json.Marshal(env.Session)
	if err != nil {
		return nil, fmt.Errorf("re-marshaling session for checksum: %w", err)
	}
	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return nil, core.ErrState("STATE_CORRUPTED", "session.json checksum mismatch; run resume --cleanup")
	}

	return env.Session, nil
}

// Exists implements core.StateManager.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.sessionPath)
	return err == nil
}

// Delete implements core.StateManager: removes session.json once a session
// is done (§4.8 Shutdown; core.Session.IsDone).
func (m *Manager) Delete(ctx context.Context) error {
	if err := os.Remove(m.sessionPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session.json: %w", err)
	}
	return nil
}

// AcquireLock implements core.StateManager: an exclusive, PID-stamped lock
// file. A lock older than the TTL and owned by a dead process is treated as
// stale and replaced (§7 LockConflict).
func (m *Manager) AcquireLock(ctx context.Context, sessionID string) error {
	dir := filepath.Dir(m.lockPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	if data, err := fsutil.ReadFileScoped(m.lockPath); err == nil {
		var info core.LockInfo
		if err := json.Unmarshal(data, &info); err == nil {
			if time.Since(info.StartedAt) < m.lockTTL && processAlive(info.PID) {
				return core.ErrLockConflict(fmt.Sprintf(
					"session %s held by PID %d since %s", info.SessionID, info.PID, info.StartedAt))
			}
		}
		if err := os.Remove(m.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale lock: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading lock file: %w", err)
	}

	info := core.LockInfo{SessionID: sessionID, PID: os.Getpid(), StartedAt: time.Now()}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshaling lock info: %w", err)
	}

	f, err := os.OpenFile(m.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return core.ErrLockConflict("lock file created by another process")
		}
		return fmt.Errorf("creating lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(m.lockPath)
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

// ReleaseLock implements core.StateManager. --force (ForceRelease) aside,
// only the owning PID may release its own lock.
func (m *Manager) ReleaseLock(ctx context.Context) error {
	info, err := m.LockInfo()
	if err != nil {
		return err
	}
	if info == nil {
		return nil
	}
	if info.PID != os.Getpid() {
		return core.ErrLockConflict("lock owned by a different process")
	}
	if err := os.Remove(m.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// ForceRelease removes the lock file unconditionally (`--force`).
func (m *Manager) ForceRelease() error {
	if err := os.Remove(m.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// LockInfo implements core.StateManager.
func (m *Manager) LockInfo() (*core.LockInfo, error) {
	data, err := fsutil.ReadFileScoped(m.lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	var info core.LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, core.ErrState("STATE_CORRUPTED", fmt.Sprintf("ralph.lock is not valid JSON: %v", err))
	}
	return &info, nil
}

func processAlive(pid int) bool {
	if runtime.GOOS == "windows" && pid == os.Getpid() {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

var _ core.StateManager = (*Manager)(nil)
