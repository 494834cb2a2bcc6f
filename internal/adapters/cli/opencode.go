package cli

import (
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// NewOpenCodeAdapter builds the opencode CLI adapter (§4.2), typically
// pointed at a local Ollama-backed model.
func NewOpenCodeAdapter(logger *logging.Logger) core.Agent {
	caps := core.Capabilities{
		SupportsStreaming: true,
		SupportedModels:   core.GetSupportedModels(core.AgentOpenCode),
		DefaultModel:      core.GetDefaultModel(core.AgentOpenCode),
	}
	return NewBaseAdapter(core.AgentOpenCode, "opencode", caps,
		nil,
		opencodeArgs, logger)
}

func opencodeArgs(opts core.ExecuteOptions) []string {
	args := []string{"run"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, opts.Prompt)
	return args
}
