package cli

import (
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// NewCopilotAdapter builds the GitHub Copilot CLI adapter (§4.2). Copilot
// does not support --output-format json, so StructuredOutputFormat is empty.
func NewCopilotAdapter(logger *logging.Logger) core.Agent {
	caps := core.Capabilities{
		SupportsStreaming: false,
		SupportedModels:   core.GetSupportedModels(core.AgentCopilot),
		DefaultModel:      core.GetDefaultModel(core.AgentCopilot),
	}
	return NewBaseAdapter(core.AgentCopilot, "copilot", caps,
		[]string{"--allow-all-tools"},
		copilotArgs, logger)
}

func copilotArgs(opts core.ExecuteOptions) []string {
	var args []string
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, "-p", opts.Prompt)
	return args
}
