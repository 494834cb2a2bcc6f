package cli

import (
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// NewAiderAdapter builds the aider CLI adapter (§4.2).
func NewAiderAdapter(logger *logging.Logger) core.Agent {
	caps := core.Capabilities{
		SupportsStreaming: false,
		SupportedModels:   core.GetSupportedModels(core.AgentAider),
		DefaultModel:      core.GetDefaultModel(core.AgentAider),
	}
	return NewBaseAdapter(core.AgentAider, "aider", caps,
		[]string{"--yes-always", "--no-check-update"},
		aiderArgs, logger)
}

func aiderArgs(opts core.ExecuteOptions) []string {
	var args []string
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	for _, a := range opts.Attachments {
		args = append(args, "--file", a.Path)
	}
	args = append(args, "--message", opts.Prompt)
	return args
}
