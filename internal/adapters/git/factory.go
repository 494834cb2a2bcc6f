package git

import (
	"github.com/ralph-tui/ralph-tui/internal/core"
)

// ClientFactory creates core.GitClient implementations bound to a specific
// repository path, one per worktree.
type ClientFactory struct{}

// NewClientFactory creates a new git client factory.
func NewClientFactory() *ClientFactory {
	return &ClientFactory{}
}

// NewClient creates a git client for the given repository path.
func (f *ClientFactory) NewClient(repoPath string) (core.GitClient, error) {
	return NewClient(repoPath)
}
