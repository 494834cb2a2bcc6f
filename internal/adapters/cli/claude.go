package cli

import (
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// NewClaudeAdapter builds the claude CLI adapter (§4.2).
func NewClaudeAdapter(logger *logging.Logger) core.Agent {
	caps := core.Capabilities{
		SupportsStreaming:       true,
		SupportsInterrupt:       true,
		SupportsFileContext:     true,
		SupportsSubagentTracing: true,
		StructuredOutputFormat:  "json",
		SupportedModels:         core.GetSupportedModels(core.AgentClaude),
		DefaultModel:            core.GetDefaultModel(core.AgentClaude),
	}
	return NewBaseAdapter(core.AgentClaude, "claude", caps,
		[]string{"--print", "--dangerously-skip-permissions"},
		claudeArgs, logger)
}

func claudeArgs(opts core.ExecuteOptions) []string {
	var args []string
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.WorkDir != "" {
		args = append(args, "--add-dir", opts.WorkDir)
	}
	for _, a := range opts.Attachments {
		args = append(args, "--add-dir", a.Path)
	}
	args = append(args, opts.Prompt)
	return args
}
