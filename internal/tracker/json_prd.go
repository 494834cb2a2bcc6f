package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ralph-tui/ralph-tui/internal/core"
)

// defaultPriority is used when a user story omits its priority field.
const defaultPriority = 100

// prdDocument is the on-disk shape of a JSON PRD (§6 "PRD JSON (json
// tracker)").
type prdDocument struct {
	UserStories []prdStory `json:"userStories"`
}

type prdStory struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Acceptance   string   `json:"acceptance,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Priority     *int     `json:"priority,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Model        string   `json:"model,omitempty"`
	Passes       bool     `json:"passes,omitempty"`
}

// JSONPRDTracker implements core.TrackerAdapter over a single PRD JSON
// file (§4.1 JsonPrd variant). in_progress/blocked transitions only exist
// in memory for the life of the process - the wire format's only
// closure signal is the `passes` boolean, so that is the only status this
// adapter persists back to disk.
type JSONPRDTracker struct {
	path string

	mu       sync.Mutex
	loaded   bool
	dirty    bool
	stories  []prdStory
	statuses map[core.TaskID]core.TaskStatus

	watcher *fsnotify.Watcher
}

// NewJSONPRDTracker opens path (which must exist once ListOpenTasks or
// GetTask is first called) and, best-effort, starts an fsnotify watch so an
// externally-edited PRD is picked up without restarting the session.
func NewJSONPRDTracker(path string) (*JSONPRDTracker, error) {
	t := &JSONPRDTracker{
		path:     path,
		dirty:    true,
		statuses: make(map[core.TaskID]core.TaskStatus),
	}

	if w, err := fsnotify.NewWatcher(); err == nil {
		if addErr := w.Add(filepath.Dir(path)); addErr == nil {
			t.watcher = w
			go t.watchLoop()
		} else {
			_ = w.Close()
		}
	}

	return t, nil
}

// NewJSONPRDAdapterFactory satisfies core.TrackerFactory for the "json"
// plugin id.
func NewJSONPRDAdapterFactory(cwd string, opts core.TrackerOptions) (core.TrackerAdapter, error) {
	if opts.PRDPath == "" {
		return nil, core.ErrConfig("TRACKER_PRD_REQUIRED", "json tracker requires --prd <path>")
	}
	path := opts.PRDPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	return NewJSONPRDTracker(path)
}

func (t *JSONPRDTracker) watchLoop() {
	for {
		select {
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == filepath.Clean(t.path) {
				t.mu.Lock()
				t.dirty = true
				t.mu.Unlock()
			}
		case _, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the fsnotify watch, if one started.
func (t *JSONPRDTracker) Close() error {
	if t.watcher != nil {
		return t.watcher.Close()
	}
	return nil
}

// Name implements core.TrackerAdapter.
func (t *JSONPRDTracker) Name() string { return "json" }

func (t *JSONPRDTracker) reload() error {
	if !t.dirty && t.loaded {
		return nil
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return core.ErrTrackerUnavailable(fmt.Sprintf("reading PRD %s: %v", t.path, err))
	}
	var doc prdDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return core.ErrTrackerUnavailable(fmt.Sprintf("parsing PRD %s: %v", t.path, err))
	}
	t.stories = doc.UserStories
	t.loaded = true
	t.dirty = false
	return nil
}

func (t *JSONPRDTracker) toTask(i int, s prdStory) core.Task {
	priority := defaultPriority
	if s.Priority != nil {
		priority = *s.Priority
	}
	status := core.TaskStatusOpen
	if s.Passes {
		status = core.TaskStatusClosed
	}
	if override, ok := t.statuses[core.TaskID(s.ID)]; ok && !s.Passes {
		status = override
	}

	deps := make([]core.TaskID, len(s.Dependencies))
	for j, d := range s.Dependencies {
		deps[j] = core.TaskID(d)
	}

	return core.Task{
		ID:           core.TaskID(s.ID),
		Title:        s.Title,
		Description:  s.Description,
		Acceptance:   s.Acceptance,
		Status:       status,
		Priority:     priority,
		Dependencies: deps,
		Labels:       s.Labels,
		Model:        s.Model,
		Position:     i,
	}
}

// ListOpenTasks implements core.TrackerAdapter. Despite the name (shared
// with the other variants' verb), it returns every story in the PRD - open
// and closed - so the Scheduler can resolve dependency closure against
// tasks this adapter already reported done.
func (t *JSONPRDTracker) ListOpenTasks(_ context.Context) ([]core.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.reload(); err != nil {
		return nil, err
	}
	tasks := make([]core.Task, len(t.stories))
	for i, s := range t.stories {
		tasks[i] = t.toTask(i, s)
	}
	return tasks, nil
}

// GetTask implements core.TrackerAdapter.
func (t *JSONPRDTracker) GetTask(_ context.Context, id core.TaskID) (*core.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.reload(); err != nil {
		return nil, err
	}
	for i, s := range t.stories {
		if core.TaskID(s.ID) == id {
			task := t.toTask(i, s)
			return &task, nil
		}
	}
	return nil, nil
}

// CloseTask implements core.TrackerAdapter: flips the matching story's
// `passes` flag and writes the PRD back. Idempotent.
func (t *JSONPRDTracker) CloseTask(_ context.Context, id core.TaskID, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.reload(); err != nil {
		return err
	}
	found := false
	for i := range t.stories {
		if core.TaskID(t.stories[i].ID) == id {
			t.stories[i].Passes = true
			found = true
			break
		}
	}
	if !found {
		return core.ErrNotFound("task", string(id))
	}
	delete(t.statuses, id)
	return t.save()
}

// UpdateTaskStatus implements core.TrackerAdapter. open/closed round-trips
// through `passes`; in_progress/blocked have no PRD JSON field and are kept
// in memory only for this process's lifetime.
func (t *JSONPRDTracker) UpdateTaskStatus(_ context.Context, id core.TaskID, status core.TaskStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.reload(); err != nil {
		return err
	}
	idx := -1
	for i, s := range t.stories {
		if core.TaskID(s.ID) == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return core.ErrNotFound("task", string(id))
	}

	switch status {
	case core.TaskStatusClosed:
		t.stories[idx].Passes = true
		delete(t.statuses, id)
		return t.save()
	case core.TaskStatusOpen:
		t.stories[idx].Passes = false
		delete(t.statuses, id)
		return t.save()
	default:
		t.stories[idx].Passes = false
		t.statuses[id] = status
		return nil
	}
}

// save writes the PRD document back to disk via a same-directory
// temp-file-then-rename so a reader never observes a partially written file.
func (t *JSONPRDTracker) save() error {
	doc := prdDocument{UserStories: t.stories}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling PRD: %w", err)
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".prd-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp PRD file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp PRD file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp PRD file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming PRD file into place: %w", err)
	}
	t.dirty = true
	return nil
}

var _ core.TrackerAdapter = (*JSONPRDTracker)(nil)
