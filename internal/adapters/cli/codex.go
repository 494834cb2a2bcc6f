package cli

import (
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// NewCodexAdapter builds the codex CLI adapter (§4.2).
func NewCodexAdapter(logger *logging.Logger) core.Agent {
	caps := core.Capabilities{
		SupportsStreaming:      true,
		SupportsInterrupt:      true,
		SupportsFileContext:    false,
		StructuredOutputFormat: "jsonl",
		SupportedModels:        core.GetSupportedModels(core.AgentCodex),
		DefaultModel:           core.GetDefaultModel(core.AgentCodex),
	}
	return NewBaseAdapter(core.AgentCodex, "codex", caps,
		[]string{"exec", "--json", "--dangerously-bypass-approvals-and-sandbox"},
		codexArgs, logger)
}

func codexArgs(opts core.ExecuteOptions) []string {
	var args []string
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.WorkDir != "" {
		args = append(args, "--cd", opts.WorkDir)
	}
	args = append(args, opts.Prompt)
	return args
}
