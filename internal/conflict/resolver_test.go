package conflict_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ralph-tui/ralph-tui/internal/conflict"
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/events"
	"github.com/ralph-tui/ralph-tui/internal/logging"
	"github.com/ralph-tui/ralph-tui/internal/testutil"
)

func TestResolve_FastPath_OneSideEmpty(t *testing.T) {
	dir := testutil.TempDir(t)
	testutil.AssertNoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))

	git := testutil.NewMockGitClient().
		WithBlob(":1", "f.txt", []byte("base")).
		WithBlob(":2", "f.txt", []byte("")).
		WithBlob(":3", "f.txt", []byte("theirs content"))

	r := conflict.New(git, nil, nil, logging.NewNop(), conflict.DefaultConfig())
	resolutions, err := r.Resolve(context.Background(), dir, []string{"f.txt"}, "sess", "proj", "t1", "Title")
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, resolutions, 1)
	testutil.AssertEqual(t, resolutions[0].Strategy, "fast-path")
	testutil.AssertEqual(t, string(resolutions[0].Content), "theirs content")

	data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(data), "theirs content")
	testutil.AssertLen(t, git.AddCalls(), 1)
}

func TestResolve_FastPath_Identical(t *testing.T) {
	dir := testutil.TempDir(t)

	git := testutil.NewMockGitClient().
		WithBlob(":1", "f.txt", []byte("base")).
		WithBlob(":2", "f.txt", []byte("same")).
		WithBlob(":3", "f.txt", []byte("same"))

	r := conflict.New(git, nil, nil, logging.NewNop(), conflict.DefaultConfig())
	resolutions, err := r.Resolve(context.Background(), dir, []string{"f.txt"}, "sess", "proj", "t1", "Title")
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, resolutions, 1)
	testutil.AssertEqual(t, resolutions[0].Strategy, "fast-path")
}

func TestResolve_AIPath_Accepted(t *testing.T) {
	dir := testutil.TempDir(t)

	git := testutil.NewMockGitClient().
		WithBlob(":1", "f.txt", []byte("base")).
		WithBlob(":2", "f.txt", []byte("ours")).
		WithBlob(":3", "f.txt", []byte("theirs"))

	agent := testutil.NewMockAgent("claude").WithResponse("```go\nresolved content\n```")

	r := conflict.New(git, agent, nil, logging.NewNop(), conflict.DefaultConfig())
	resolutions, err := r.Resolve(context.Background(), dir, []string{"f.txt"}, "sess", "proj", "t1", "Title")
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, resolutions, 1)
	testutil.AssertEqual(t, resolutions[0].Strategy, "ai")
	testutil.AssertEqual(t, string(resolutions[0].Content), "resolved content")
}

func TestResolve_AIPath_EmptyOutputFails(t *testing.T) {
	dir := testutil.TempDir(t)

	git := testutil.NewMockGitClient().
		WithBlob(":1", "f.txt", []byte("base")).
		WithBlob(":2", "f.txt", []byte("ours")).
		WithBlob(":3", "f.txt", []byte("theirs"))

	agent := testutil.NewMockAgent("claude").WithResponse("   ")

	r := conflict.New(git, agent, nil, logging.NewNop(), conflict.DefaultConfig())
	_, err := r.Resolve(context.Background(), dir, []string{"f.txt"}, "sess", "proj", "t1", "Title")
	testutil.AssertError(t, err)
}

func TestResolve_DisabledFailsNonFastPath(t *testing.T) {
	dir := testutil.TempDir(t)

	git := testutil.NewMockGitClient().
		WithBlob(":1", "f.txt", []byte("base")).
		WithBlob(":2", "f.txt", []byte("ours")).
		WithBlob(":3", "f.txt", []byte("theirs"))

	cfg := conflict.DefaultConfig()
	cfg.Enabled = false
	r := conflict.New(git, nil, nil, logging.NewNop(), cfg)
	_, err := r.Resolve(context.Background(), dir, []string{"f.txt"}, "sess", "proj", "t1", "Title")
	testutil.AssertError(t, err)
}

func TestResolve_TooManyFiles(t *testing.T) {
	dir := testutil.TempDir(t)
	git := testutil.NewMockGitClient()

	cfg := conflict.DefaultConfig()
	cfg.MaxFiles = 1
	r := conflict.New(git, nil, nil, logging.NewNop(), cfg)
	_, err := r.Resolve(context.Background(), dir, []string{"a.txt", "b.txt"}, "sess", "proj", "t1", "Title")
	testutil.AssertError(t, err)
}

func TestResolve_PublishesEvents(t *testing.T) {
	dir := testutil.TempDir(t)
	git := testutil.NewMockGitClient().
		WithBlob(":1", "f.txt", []byte("base")).
		WithBlob(":2", "f.txt", []byte("")).
		WithBlob(":3", "f.txt", []byte("theirs"))

	bus := events.New(10)
	ch := bus.Subscribe()

	r := conflict.New(git, nil, bus, logging.NewNop(), conflict.DefaultConfig())
	_, err := r.Resolve(context.Background(), dir, []string{"f.txt"}, "sess", "proj", "t1", "Title")
	testutil.AssertNoError(t, err)

	first := <-ch
	testutil.AssertEqual(t, first.EventType(), events.TypeConflictDetected)
	second := <-ch
	testutil.AssertEqual(t, second.EventType(), events.TypeConflictResolved)
}

func TestFinishMerge_Commits(t *testing.T) {
	git := testutil.NewMockGitClient()
	r := conflict.New(git, nil, nil, logging.NewNop(), conflict.DefaultConfig())
	_, err := r.FinishMerge(context.Background(), "/tmp/repo", "Merge feature")
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, git.Commits, 1)
}
