package git_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ralph-tui/ralph-tui/internal/adapters/git"
	"github.com/ralph-tui/ralph-tui/internal/testutil"
)

func newClient(t *testing.T, repo *testutil.GitRepo) *git.Client {
	t.Helper()
	client, err := git.NewClient(repo.Path)
	testutil.AssertNoError(t, err)
	return client
}

func TestNewClient_NotARepo(t *testing.T) {
	dir := testutil.TempDir(t)
	_, err := git.NewClient(dir)
	testutil.AssertError(t, err)
}

func TestClient_CurrentBranch(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Commit("initial")
	client := newClient(t, repo)

	branch, err := client.CurrentBranch(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, branch, "main")
}

func TestClient_CreateBranchDoesNotCheckout(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Commit("initial")
	client := newClient(t, repo)
	ctx := context.Background()

	testutil.AssertNoError(t, client.CreateBranch(ctx, "feature", ""))

	exists, err := client.BranchExists(ctx, "feature")
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, exists, "feature branch should exist")

	branch, err := client.CurrentBranch(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, branch, "main")
}

func TestClient_CheckoutBranch(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Commit("initial")
	client := newClient(t, repo)
	ctx := context.Background()

	testutil.AssertNoError(t, client.CreateBranch(ctx, "feature", ""))
	testutil.AssertNoError(t, client.CheckoutBranch(ctx, "feature"))

	branch, err := client.CurrentBranch(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, branch, "feature")
}

func TestClient_DeleteBranch(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Commit("initial")
	client := newClient(t, repo)
	ctx := context.Background()

	testutil.AssertNoError(t, client.CreateBranch(ctx, "feature", ""))
	testutil.AssertNoError(t, client.DeleteBranch(ctx, "feature"))

	exists, err := client.BranchExists(ctx, "feature")
	testutil.AssertNoError(t, err)
	testutil.AssertFalse(t, exists, "feature branch should be gone")
}

func TestClient_AddAndCommitInDir(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Commit("initial")
	client := newClient(t, repo)
	ctx := context.Background()

	repo.WriteFile("new.txt", "content")
	testutil.AssertNoError(t, client.Add(ctx, repo.Path, "new.txt"))

	sha, err := client.Commit(ctx, repo.Path, "add new.txt")
	testutil.AssertNoError(t, err)
	if sha == "" {
		t.Fatal("expected non-empty commit sha")
	}
}

func TestClient_IsClean(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Commit("initial")
	client := newClient(t, repo)
	ctx := context.Background()

	clean, err := client.IsClean(ctx, repo.Path)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, clean, "fresh commit should be clean")

	repo.WriteFile("dirty.txt", "x")
	clean, err = client.IsClean(ctx, repo.Path)
	testutil.AssertNoError(t, err)
	testutil.AssertFalse(t, clean, "untracked file should make tree dirty")
}

func TestClient_Status(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Commit("initial")
	client := newClient(t, repo)

	status, err := client.Status(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, status.Branch, "main")
}

func TestClient_CreateAndListWorktree(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Commit("initial")
	client := newClient(t, repo)
	ctx := context.Background()

	wtPath := filepath.Join(testutil.TempDir(t), "wt")
	testutil.AssertNoError(t, client.CreateWorktree(ctx, wtPath, "feature"))

	worktrees, err := client.ListWorktrees(ctx)
	testutil.AssertNoError(t, err)

	found := false
	for _, wt := range worktrees {
		if wt.Branch == "feature" {
			found = true
		}
	}
	testutil.AssertTrue(t, found, "feature worktree should be listed")

	testutil.AssertNoError(t, client.RemoveWorktree(ctx, wtPath, true))
}

func TestClient_MergeFastForwardOnly(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Commit("initial")
	client := newClient(t, repo)
	ctx := context.Background()

	testutil.AssertNoError(t, client.CreateBranch(ctx, "feature", ""))
	testutil.AssertNoError(t, client.CheckoutBranch(ctx, "feature"))
	repo.WriteFile("feature.txt", "x")
	repo.Commit("feature work")
	testutil.AssertNoError(t, client.CheckoutBranch(ctx, "main"))

	testutil.AssertNoError(t, client.MergeFastForwardOnly(ctx, repo.Path, "feature"))

	branch, err := client.CurrentBranch(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, branch, "main")
}

func TestClient_MergeConflict(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.WriteFile("shared.txt", "base\n")
	repo.Commit("base")

	client := newClient(t, repo)
	ctx := context.Background()

	testutil.AssertNoError(t, client.CreateBranch(ctx, "feature", ""))
	testutil.AssertNoError(t, client.CheckoutBranch(ctx, "feature"))
	repo.WriteFile("shared.txt", "feature change\n")
	repo.Commit("feature change")

	testutil.AssertNoError(t, client.CheckoutBranch(ctx, "main"))
	repo.WriteFile("shared.txt", "main change\n")
	repo.Commit("main change")

	err := client.Merge(ctx, repo.Path, "feature", "merge feature")
	testutil.AssertError(t, err)
	if !errors.Is(err, git.ErrMergeConflict) {
		t.Fatalf("expected ErrMergeConflict, got %v", err)
	}

	files, err := client.ConflictedFiles(ctx, repo.Path)
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, files, 1)

	testutil.AssertNoError(t, client.MergeAbort(ctx, repo.Path))
}

func TestClient_ShowBlob(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.WriteFile("file.txt", "hello world")
	sha := repo.Commit("add file")

	client := newClient(t, repo)
	ctx := context.Background()

	content, err := client.ShowBlob(ctx, repo.Path, sha, "file.txt")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(content), "hello world")
}

func TestClient_DefaultBranch(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Commit("initial")
	client := newClient(t, repo)

	branch, err := client.DefaultBranch(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, branch, "main")
}
