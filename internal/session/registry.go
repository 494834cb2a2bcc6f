package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sahilm/fuzzy"

	"github.com/ralph-tui/ralph-tui/internal/core"
)

// Registry is the user-scoped JSON mapping of session id -> entry (§6
// Registry). It lives outside any single working directory, at
// $HOME/.config/ralph/sessions.json, so `resume --list` can enumerate
// sessions across every project the user has run ralph-tui in.
type Registry struct {
	path string
}

// NewRegistry opens the registry at the given path, creating its parent
// directory lazily on first Put.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// DefaultRegistryPath returns $HOME/.config/ralph/sessions.json, falling
// back to ./.ralph-tui/sessions.json if the home directory can't be
// resolved.
func DefaultRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ralph-tui", "sessions.json")
	}
	return filepath.Join(home, ".config", "ralph", "sessions.json")
}

type registryFile struct {
	Entries map[string]core.SessionRegistryEntry `json:"entries"`
}

func (r *Registry) load() (registryFile, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return registryFile{Entries: map[string]core.SessionRegistryEntry{}}, nil
		}
		return registryFile{}, fmt.Errorf("reading session registry: %w", err)
	}
	var rf registryFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return registryFile{}, core.ErrState("STATE_CORRUPTED", fmt.Sprintf("session registry is not valid JSON: %v", err))
	}
	if rf.Entries == nil {
		rf.Entries = map[string]core.SessionRegistryEntry{}
	}
	return rf, nil
}

func (r *Registry) save(rf registryFile) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}
	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session registry: %w", err)
	}
	return atomicWrite(r.path, data)
}

// Put inserts or updates an entry, keyed by its SessionID (§4.8: updated on
// every status change).
func (r *Registry) Put(ctx context.Context, entry core.SessionRegistryEntry) error {
	rf, err := r.load()
	if err != nil {
		return err
	}
	rf.Entries[entry.SessionID] = entry
	return r.save(rf)
}

// Remove deletes an entry by session id.
func (r *Registry) Remove(ctx context.Context, sessionID string) error {
	rf, err := r.load()
	if err != nil {
		return err
	}
	delete(rf.Entries, sessionID)
	return r.save(rf)
}

// List returns every registry entry, most-recently-updated first.
func (r *Registry) List(ctx context.Context) ([]core.SessionRegistryEntry, error) {
	rf, err := r.load()
	if err != nil {
		return nil, err
	}
	entries := make([]core.SessionRegistryEntry, 0, len(rf.Entries))
	for _, e := range rf.Entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
	return entries, nil
}

// Resolve finds the session id whose registry entry best matches a
// (possibly partial) id typed by the user: exact match first, then a
// fuzzy prefix/subsequence match against all known ids (`resume <prefix>`).
// Returns core.ErrNotFound if nothing matches and ambiguity (more than one
// equally strong fuzzy match) as a validation error naming the candidates.
func (r *Registry) Resolve(ctx context.Context, partial string) (*core.SessionRegistryEntry, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if partial == "" {
		return nil, core.ErrValidation("SESSION_ID_REQUIRED", "session id must not be empty")
	}

	for i := range entries {
		if entries[i].SessionID == partial {
			return &entries[i], nil
		}
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.SessionID
	}
	matches := fuzzy.Find(partial, ids)
	if len(matches) == 0 {
		return nil, core.ErrNotFound("session", partial)
	}
	if len(matches) > 1 && matches[0].Score == matches[1].Score {
		candidates := make([]string, 0, len(matches))
		for _, m := range matches {
			candidates = append(candidates, ids[m.Index])
		}
		return nil, core.ErrValidation("SESSION_ID_AMBIGUOUS",
			fmt.Sprintf("%q matches multiple sessions: %v", partial, candidates))
	}
	return &entries[matches[0].Index], nil
}

// PruneMissing removes entries whose working directory no longer contains a
// session.json (`resume --cleanup`). Returns the removed session ids.
func (r *Registry) PruneMissing(ctx context.Context) ([]string, error) {
	rf, err := r.load()
	if err != nil {
		return nil, err
	}
	var removed []string
	for id, e := range rf.Entries {
		if _, statErr := os.Stat(filepath.Join(e.CWD, stateDirName, "session.json")); os.IsNotExist(statErr) {
			delete(rf.Entries, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		if err := r.save(rf); err != nil {
			return nil, err
		}
	}
	return removed, nil
}
