package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ralph-tui/ralph-tui/internal/core"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	mgr := New(dir)
	ctx := context.Background()

	if mgr.Exists() {
		t.Fatal("expected no session before Save")
	}

	sess := &core.Session{
		ID:            "sess-1",
		CWD:           dir,
		AgentPluginID: core.AgentClaude,
		Status:        core.SessionStatusRunning,
		CreatedAt:     time.Now(),
	}
	if err := mgr.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !mgr.Exists() {
		t.Fatal("expected session to exist after Save")
	}

	loaded, err := mgr.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != sess.ID || loaded.AgentPluginID != sess.AgentPluginID {
		t.Fatalf("loaded session mismatch: %+v", loaded)
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	mgr := New(t.TempDir())
	loaded, err := mgr.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil for missing session, got %+v", loaded)
	}
}

func TestLoadCorruptedChecksumFails(t *testing.T) {
	dir := t.TempDir()
	mgr := New(dir)
	ctx := context.Background()

	sess := &core.Session{ID: "sess-1", CWD: dir, Status: core.SessionStatusRunning}
	if err := mgr.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, ".ralph-tui", "session.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading session file: %v", err)
	}
	tampered := append(data[:len(data)-2], []byte("}}")...)
	if err := os.WriteFile(path, tampered, 0o600); err != nil {
		t.Fatalf("writing tampered session file: %v", err)
	}

	if _, err := mgr.Load(ctx); err == nil {
		t.Fatal("expected corrupted JSON to error")
	}
}

func TestAcquireReleaseLock(t *testing.T) {
	dir := t.TempDir()
	mgr := New(dir)
	ctx := context.Background()

	if err := mgr.AcquireLock(ctx, "sess-1"); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	other := New(dir)
	if err := other.AcquireLock(ctx, "sess-2"); err == nil {
		t.Fatal("expected second AcquireLock to fail while the first is held")
	}

	if err := mgr.ReleaseLock(ctx); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if err := other.AcquireLock(ctx, "sess-2"); err != nil {
		t.Fatalf("expected AcquireLock to succeed after release, got %v", err)
	}
}

func TestAcquireLockStaleIsReplaced(t *testing.T) {
	dir := t.TempDir()
	mgr := New(dir, WithLockTTL(time.Millisecond))
	ctx := context.Background()

	if err := mgr.AcquireLock(ctx, "sess-1"); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if err := mgr.AcquireLock(ctx, "sess-2"); err != nil {
		t.Fatalf("expected stale lock to be replaced, got %v", err)
	}
	info, err := mgr.LockInfo()
	if err != nil {
		t.Fatalf("LockInfo: %v", err)
	}
	if info.SessionID != "sess-2" {
		t.Fatalf("expected lock to belong to sess-2, got %+v", info)
	}
}
