package cli

import (
	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// NewGeminiAdapter builds the gemini CLI adapter (§4.2).
func NewGeminiAdapter(logger *logging.Logger) core.Agent {
	caps := core.Capabilities{
		SupportsStreaming:      true,
		SupportsFileContext:    true,
		StructuredOutputFormat: "json",
		SupportedModels:        core.GetSupportedModels(core.AgentGemini),
		DefaultModel:           core.GetDefaultModel(core.AgentGemini),
	}
	return NewBaseAdapter(core.AgentGemini, "gemini", caps,
		[]string{"--yolo"},
		geminiArgs, logger)
}

func geminiArgs(opts core.ExecuteOptions) []string {
	var args []string
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	for _, a := range opts.Attachments {
		args = append(args, "--include-directories", a.Path)
	}
	args = append(args, "--prompt", opts.Prompt)
	return args
}
