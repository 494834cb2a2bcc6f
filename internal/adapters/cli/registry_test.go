package cli

import (
	"context"
	"testing"

	"github.com/ralph-tui/ralph-tui/internal/core"
)

func TestRegistryListIncludesBuiltins(t *testing.T) {
	r := NewRegistry(nil)
	names := r.List()

	want := []string{core.AgentAider, core.AgentClaude, core.AgentCodex, core.AgentCopilot, core.AgentGemini, core.AgentOpenCode}
	for _, w := range want {
		found := false
		for _, n := range names {
			if n == w {
				found = true
			}
		}
		if !found {
			t.Errorf("expected registry to list %q, got %v", w, names)
		}
	}
}

func TestRegistryGetCachesInstance(t *testing.T) {
	r := NewRegistry(nil)
	a1, err := r.Get(core.AgentClaude)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a2, err := r.Get(core.AgentClaude)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a1 != a2 {
		t.Fatal("expected Get to return the same cached instance")
	}
}

func TestRegistryGetUnknownAgent(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Get("not-a-real-agent"); err == nil {
		t.Fatal("expected an error for an unregistered agent name")
	}
}

func TestRegistryRegisterOverride(t *testing.T) {
	r := NewRegistry(nil)
	fake := &fakeAgent{name: "claude"}
	if err := r.Register(core.AgentClaude, fake); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := r.Get(core.AgentClaude)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != fake {
		t.Fatal("expected Register to install the given instance")
	}
}

type fakeAgent struct {
	name    string
	pingErr error
}

func (f *fakeAgent) Name() string                   { return f.name }
func (f *fakeAgent) Capabilities() core.Capabilities { return core.Capabilities{} }
func (f *fakeAgent) Ping(ctx context.Context) error  { return f.pingErr }
func (f *fakeAgent) ValidateModel(string) error      { return nil }
func (f *fakeAgent) Execute(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
	return &core.ExecuteResult{Status: core.AgentStatusCompleted}, nil
}
