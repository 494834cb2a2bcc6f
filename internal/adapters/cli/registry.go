package cli

import (
	"context"
	"sort"
	"sync"

	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
)

// LogCallback receives stderr lines streamed from a running agent process.
type LogCallback func(line string)

// AgentFactory builds an agent adapter given a logger.
type AgentFactory func(logger *logging.Logger) core.Agent

// Registry implements core.AgentRegistry over the built-in CLI adapters
// (claude, gemini, codex, copilot, opencode, aider). Agents are constructed
// lazily on first Get and cached thereafter.
type Registry struct {
	logger *logging.Logger

	mu        sync.RWMutex
	factories map[string]AgentFactory
	agents    map[string]core.Agent
}

// NewRegistry creates a registry pre-populated with the six built-in
// CLI adapter factories.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{
		logger:    logger,
		factories: make(map[string]AgentFactory),
		agents:    make(map[string]core.Agent),
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.RegisterFactory(core.AgentClaude, NewClaudeAdapter)
	r.RegisterFactory(core.AgentGemini, NewGeminiAdapter)
	r.RegisterFactory(core.AgentCodex, NewCodexAdapter)
	r.RegisterFactory(core.AgentCopilot, NewCopilotAdapter)
	r.RegisterFactory(core.AgentOpenCode, NewOpenCodeAdapter)
	r.RegisterFactory(core.AgentAider, NewAiderAdapter)
}

// RegisterFactory installs a lazy constructor for an agent name, overwriting
// any existing factory and dropping a cached instance under that name.
func (r *Registry) RegisterFactory(name string, factory AgentFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	delete(r.agents, name)
}

// Register implements core.AgentRegistry: installs an already-constructed
// agent directly, bypassing the factory.
func (r *Registry) Register(name string, agent core.Agent) error {
	if agent == nil {
		return core.ErrValidation("NIL_AGENT", "agent must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = agent
	return nil
}

// Get implements core.AgentRegistry, constructing and caching the agent on
// first call.
func (r *Registry) Get(name string) (core.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if agent, ok := r.agents[name]; ok {
		return agent, nil
	}

	factory, ok := r.factories[name]
	if !ok {
		return nil, core.ErrNotFound("agent", name)
	}

	agent := factory(r.logger)
	r.agents[name] = agent
	return agent, nil
}

// List implements core.AgentRegistry: every name with a registered factory
// or a directly-registered instance, sorted for deterministic output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.factories)+len(r.agents))
	for name := range r.factories {
		seen[name] = struct{}{}
	}
	for name := range r.agents {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available implements core.AgentRegistry: names whose agent passes Ping,
// checked concurrently.
func (r *Registry) Available(ctx context.Context) []string {
	names := r.List()

	var mu sync.Mutex
	var wg sync.WaitGroup
	available := make([]string, 0, len(names))

	for _, name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent, err := r.Get(name)
			if err != nil {
				return
			}
			if err := agent.Ping(ctx); err != nil {
				r.logger.Debug("agent unavailable", "agent", name, "error", err)
				return
			}
			mu.Lock()
			available = append(available, name)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Strings(available)
	return available
}

// Clear drops all cached agent instances; factories remain registered.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]core.Agent)
}

// SetLogCallback installs a stderr line sink on every already-constructed
// BaseAdapter-backed agent.
func (r *Registry) SetLogCallback(cb LogCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, agent := range r.agents {
		if setter, ok := agent.(interface{ SetLogCallback(func(string)) }); ok {
			setter.SetLogCallback(cb)
		}
	}
}

var _ core.AgentRegistry = (*Registry)(nil)
