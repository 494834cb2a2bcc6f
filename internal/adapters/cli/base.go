// Package cli adapts external coding-agent CLIs (claude, codex, gemini,
// copilot, opencode, aider) to the core.Agent port. Every adapter is a thin
// configuration over BaseAdapter: a binary name, a set of default flags, and
// a function that turns ExecuteOptions into CLI-specific flags.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// PromptArgBuilder turns execution options into CLI-specific flags (prompt,
// model, output format). Concrete adapters supply one of these; BaseAdapter
// assembles the final argv per the flag-ordering contract:
// [defaultFlags] [builder output] [opts.ExtraFlags] - engine flags always last.
type PromptArgBuilder func(opts core.ExecuteOptions) []string

// BaseAdapter implements core.Agent's process-execution mechanics shared by
// every CLI adapter: argv assembly, environment filtering, timeout/cancel
// handling, and stderr line streaming to an optional log callback.
type BaseAdapter struct {
	id           string
	binary       string
	defaultFlags []string
	capabilities core.Capabilities
	buildArgs    PromptArgBuilder

	envExclude     []string
	envPassthrough []string

	logger      *logging.Logger
	logCallback func(line string)

	mu        sync.Mutex
	activeCmd *exec.Cmd
}

// defaultEnvExclude is the deny-list applied before any user config
// (§4.2): credential-shaped environment variables are stripped from the
// child process environment unless explicitly allow-listed.
var defaultEnvExclude = []string{"*_API_KEY", "*_SECRET_KEY", "*_SECRET", "*_TOKEN", "*_PASSWORD"}

// NewBaseAdapter constructs a BaseAdapter for one CLI binary.
func NewBaseAdapter(id, binary string, caps core.Capabilities, defaultFlags []string, builder PromptArgBuilder, logger *logging.Logger) *BaseAdapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BaseAdapter{
		id:           id,
		binary:       binary,
		defaultFlags: defaultFlags,
		capabilities: caps,
		buildArgs:    builder,
		logger:       logger,
	}
}

// SetLogCallback installs a line-by-line stderr sink for live progress.
func (b *BaseAdapter) SetLogCallback(cb func(line string)) { b.logCallback = cb }

// SetEnvPolicy overrides the deny-list / passthrough glob sets (from
// agentOptions.envExclude / envPassthrough in config).
func (b *BaseAdapter) SetEnvPolicy(exclude, passthrough []string) {
	b.envExclude = exclude
	b.envPassthrough = passthrough
}

// Name implements core.Agent.
func (b *BaseAdapter) Name() string { return b.id }

// Capabilities implements core.Agent.
func (b *BaseAdapter) Capabilities() core.Capabilities { return b.capabilities }

// ValidateModel implements core.Agent. An empty SupportedModels list means
// the agent accepts any model name (it is not enumerable ahead of time).
func (b *BaseAdapter) ValidateModel(name string) error {
	if name == "" || len(b.capabilities.SupportedModels) == 0 {
		return nil
	}
	for _, m := range b.capabilities.SupportedModels {
		if m == name {
			return nil
		}
	}
	return core.ErrModelRejected(name, fmt.Sprintf("not in %s's supported model list", b.id))
}

// Ping implements core.Agent: verify the binary resolves on PATH, then a
// minimal no-op invocation with a short timeout.
func (b *BaseAdapter) Ping(ctx context.Context) error {
	parts := strings.Fields(b.binary)
	if len(parts) == 0 {
		return core.ErrValidation("NO_PATH", b.id+": no binary configured")
	}
	if _, err := exec.LookPath(parts[0]); err != nil {
		return core.ErrAgentUnavailable(fmt.Sprintf("%s: binary %q not found on PATH", b.id, parts[0]))
	}
	return nil
}

// Execute implements core.Agent.
func (b *BaseAdapter) Execute(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
	if opts.Prompt == "" {
		return nil, core.ErrValidation(core.CodeEmptyPrompt, "prompt must not be empty")
	}
	if len(opts.Prompt) > core.MaxPromptLength {
		return nil, core.ErrValidation(core.CodePromptTooLong, "prompt exceeds maximum length")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := b.assembleArgs(opts)

	parts := strings.Fields(b.binary)
	if len(parts) == 0 {
		return nil, core.ErrValidation("NO_PATH", b.id+": no binary configured")
	}
	binPath, rest := parts[0], parts[1:]
	fullArgs := append(append([]string{}, rest...), args...)

	// #nosec G204 -- binary and args come from adapter config and task flags,
	// not from unsanitized external input.
	cmd := exec.CommandContext(ctx, binPath, fullArgs...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}
	cmd.Env = b.buildEnv()
	configureProcAttr(cmd)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout

	var stderrPipe *os.File
	var pr *os.File
	var pw *os.File
	if b.logCallback != nil {
		var err error
		pr, pw, err = os.Pipe()
		if err == nil {
			cmd.Stderr = pw
			stderrPipe = pr
		} else {
			cmd.Stderr = &stderr
		}
	} else {
		cmd.Stderr = &stderr
	}

	b.logger.Info("cli: executing", "agent", b.id, "path", binPath, "args", args, "timeout", timeout)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		if stderrPipe != nil {
			_ = pr.Close()
			_ = pw.Close()
		}
		return nil, core.ErrAgentUnavailable(fmt.Sprintf("%s: starting process: %v", b.id, err))
	}
	b.setActiveProcess(cmd)

	var wg sync.WaitGroup
	if stderrPipe != nil {
		_ = pw.Close() // parent doesn't write
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer pr.Close()
			scanner := bufio.NewScanner(pr)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				stderr.WriteString(line)
				stderr.WriteString("\n")
				b.logCallback(line)
			}
		}()
	}

	interrupted := false
	if opts.Cancel != nil {
		go func() {
			select {
			case <-opts.Cancel:
				interrupted = true
				_ = b.GracefulKill(10 * time.Second)
			case <-ctx.Done():
			}
		}()
	}

	waitErr := cmd.Wait()
	wg.Wait()
	b.clearActiveProcess()

	ended := time.Now()
	result := &core.ExecuteResult{
		Stdout:      truncate(stdout.String(), opts.MaxOutputBytes),
		Stderr:      truncate(stderr.String(), opts.MaxOutputBytes),
		StartedAt:   started,
		EndedAt:     ended,
		DurationMs:  ended.Sub(started).Milliseconds(),
		Interrupted: interrupted,
	}

	switch {
	case interrupted:
		result.Status = core.AgentStatusInterrupted
	case ctx.Err() == context.DeadlineExceeded:
		result.Status = core.AgentStatusTimeout
		return result, core.ErrAgentTimeout(fmt.Sprintf("%s: timed out after %v", b.id, timeout))
	case waitErr != nil:
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			result.Status = core.AgentStatusFailed
		} else {
			result.Status = core.AgentStatusFailed
			return result, core.ErrAgentUnavailable(fmt.Sprintf("%s: %v", b.id, waitErr))
		}
	default:
		result.Status = core.AgentStatusCompleted
	}

	return result, nil
}

// assembleArgs applies the §4.2 flag-ordering contract: default flags, then
// the builder's prompt/model/format flags, then engine-injected flags last
// so the engine always has the final say.
func (b *BaseAdapter) assembleArgs(opts core.ExecuteOptions) []string {
	args := make([]string, 0, len(b.defaultFlags)+8+len(opts.ExtraFlags))
	args = append(args, b.defaultFlags...)
	if b.buildArgs != nil {
		args = append(args, b.buildArgs(opts)...)
	}
	args = append(args, opts.ExtraFlags...)
	return args
}

// buildEnv applies the deny-list/passthrough policy to the child process
// environment (§4.2).
func (b *BaseAdapter) buildEnv() []string {
	exclude := defaultEnvExclude
	if len(b.envExclude) > 0 {
		exclude = append(append([]string{}, defaultEnvExclude...), b.envExclude...)
	}
	env := os.Environ()
	filtered := make([]string, 0, len(env))
	for _, kv := range env {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		if matchesAny(key, b.envPassthrough) {
			filtered = append(filtered, kv)
			continue
		}
		if matchesAny(key, exclude) {
			continue
		}
		filtered = append(filtered, kv)
	}
	filtered = append(filtered, "RALPH_MANAGED=true", "RALPH_AGENT="+b.id)
	return filtered
}

// matchesAny reports whether key matches any of the given shell-style glob
// patterns (only "*" is supported, which is all §4.2 requires).
func matchesAny(key string, patterns []string) bool {
	for _, p := range patterns {
		if globMatch(p, key) {
			return true
		}
	}
	return false
}

func globMatch(pattern, s string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == s
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		idx := strings.Index(s, p)
		if idx < 0 {
			return false
		}
		s = s[idx+len(p):]
	}
	return true
}

func truncate(s string, max int64) string {
	if max <= 0 || int64(len(s)) <= max {
		return s
	}
	return s[:max] + "\n...[truncated]"
}

// DryRunPreflight runs a best-effort availability check without spawning a
// full agent process: binary on PATH plus a Ping. Returns (ok, suggestion).
func DryRunPreflight(ctx context.Context, a core.Agent) (bool, string) {
	if err := a.Ping(ctx); err != nil {
		return false, fmt.Sprintf("install or authenticate the %s CLI: %v", a.Name(), err)
	}
	return true, ""
}
