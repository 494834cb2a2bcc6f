package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ralph-tui/ralph-tui/internal/core"
)

// beadsVariant distinguishes the three bead-based tracker plugin ids. They
// share one SQLite+JSONL store; the variant only changes which external
// sync binary a Worktree Manager would shell out to before copying .beads/
// into a worktree (§4.3) - not this package's concern, but SyncCommand
// exposes the mapping for that caller.
type beadsVariant string

const (
	variantBeads     beadsVariant = "beads"
	variantBeadsRust beadsVariant = "beads-rust"
	variantBeadsBv   beadsVariant = "beads-bv"
)

// SyncCommand returns the external CLI binary a Worktree Manager would run
// with `sync --flush-only` before copying this tracker's data directory
// into a new worktree (§4.3).
func (v beadsVariant) SyncCommand() string {
	switch v {
	case variantBeadsRust:
		return "br"
	case variantBeadsBv:
		return "bv"
	default:
		return "bd"
	}
}

const beadsSchema = `
CREATE TABLE IF NOT EXISTS issues (
	id TEXT PRIMARY KEY,
	epic_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	acceptance TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	priority INTEGER NOT NULL DEFAULT 100,
	position INTEGER NOT NULL DEFAULT 0,
	dependencies TEXT NOT NULL DEFAULT '[]',
	labels TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}'
);
`

// beadsTracker implements core.TrackerAdapter over a beads-style SQLite
// database, journaling every mutation to an append-only JSONL file
// alongside it (§4.1 "beads (SQLite+JSONL)"). The three bead variants
// (beads, beads-rust, beads-bv) share this implementation; they differ
// only in which external binary owns the on-disk store outside this
// process.
type beadsTracker struct {
	variant   beadsVariant
	epicID    string
	dbPath    string
	jsonlPath string

	mu sync.Mutex
	db *sql.DB
}

func newBeadsTracker(variant beadsVariant, cwd string, opts core.TrackerOptions) (*beadsTracker, error) {
	if opts.EpicID == "" {
		return nil, core.ErrConfig("TRACKER_EPIC_REQUIRED", fmt.Sprintf("%s tracker requires --epic <id>", variant))
	}

	dir := filepath.Join(cwd, ".beads")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating beads directory: %w", err)
	}
	dbPath := filepath.Join(dir, "beads.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, core.ErrTrackerUnavailable(fmt.Sprintf("opening %s: %v", dbPath, err))
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(beadsSchema); err != nil {
		_ = db.Close()
		return nil, core.ErrTrackerUnavailable(fmt.Sprintf("migrating %s: %v", dbPath, err))
	}

	return &beadsTracker{
		variant:   variant,
		epicID:    opts.EpicID,
		dbPath:    dbPath,
		jsonlPath: filepath.Join(dir, "journal.jsonl"),
		db:        db,
	}, nil
}

// newBeadsFactory returns a core.TrackerFactory bound to one variant, for
// registration under that variant's plugin id.
func newBeadsFactory(variant beadsVariant) core.TrackerFactory {
	return func(cwd string, opts core.TrackerOptions) (core.TrackerAdapter, error) {
		return newBeadsTracker(variant, cwd, opts)
	}
}

// Name implements core.TrackerAdapter.
func (t *beadsTracker) Name() string { return string(t.variant) }

// Close releases the underlying database handle.
func (t *beadsTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.db.Close()
}

type beadsRow struct {
	id, title, description, acceptance, status string
	priority, position                         int
	dependenciesJSON, labelsJSON, metadataJSON string
}

func (t *beadsTracker) scanRow(row *beadsRow) (core.Task, error) {
	var deps []string
	if err := json.Unmarshal([]byte(row.dependenciesJSON), &deps); err != nil {
		return core.Task{}, fmt.Errorf("unmarshaling dependencies for %s: %w", row.id, err)
	}
	var labels []string
	if err := json.Unmarshal([]byte(row.labelsJSON), &labels); err != nil {
		return core.Task{}, fmt.Errorf("unmarshaling labels for %s: %w", row.id, err)
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(row.metadataJSON), &metadata); err != nil {
		return core.Task{}, fmt.Errorf("unmarshaling metadata for %s: %w", row.id, err)
	}

	depIDs := make([]core.TaskID, len(deps))
	for i, d := range deps {
		depIDs[i] = core.TaskID(d)
	}

	model := ""
	if v, ok := metadata["model"]; ok {
		if s, ok := v.(string); ok {
			model = s
		}
	}

	return core.Task{
		ID:           core.TaskID(row.id),
		Title:        row.title,
		Description:  row.description,
		Acceptance:   row.acceptance,
		Status:       core.TaskStatus(row.status),
		Priority:     row.priority,
		Dependencies: depIDs,
		Labels:       labels,
		Model:        model,
		Position:     row.position,
		Metadata:     metadata,
	}, nil
}

// ListOpenTasks implements core.TrackerAdapter, scoped to this tracker's
// epic id, ordered by the stored natural position.
func (t *beadsTracker) ListOpenTasks(ctx context.Context) ([]core.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.db.QueryContext(ctx, `
		SELECT id, title, description, acceptance, status, priority, position,
		       dependencies, labels, metadata
		FROM issues WHERE epic_id = ? ORDER BY position ASC
	`, t.epicID)
	if err != nil {
		return nil, core.ErrTrackerUnavailable(fmt.Sprintf("listing issues: %v", err))
	}
	defer rows.Close()

	var tasks []core.Task
	for rows.Next() {
		var r beadsRow
		if err := rows.Scan(&r.id, &r.title, &r.description, &r.acceptance, &r.status,
			&r.priority, &r.position, &r.dependenciesJSON, &r.labelsJSON, &r.metadataJSON); err != nil {
			return nil, core.ErrTrackerUnavailable(fmt.Sprintf("scanning issue: %v", err))
		}
		task, err := t.scanRow(&r)
		if err != nil {
			return nil, core.ErrTrackerUnavailable(err.Error())
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrTrackerUnavailable(fmt.Sprintf("iterating issues: %v", err))
	}
	return tasks, nil
}

// GetTask implements core.TrackerAdapter.
func (t *beadsTracker) GetTask(ctx context.Context, id core.TaskID) (*core.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var r beadsRow
	r.id = string(id)
	err := t.db.QueryRowContext(ctx, `
		SELECT title, description, acceptance, status, priority, position,
		       dependencies, labels, metadata
		FROM issues WHERE id = ?
	`, string(id)).Scan(&r.title, &r.description, &r.acceptance, &r.status, &r.priority,
		&r.position, &r.dependenciesJSON, &r.labelsJSON, &r.metadataJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, core.ErrTrackerUnavailable(fmt.Sprintf("reading issue %s: %v", id, err))
	}
	task, err := t.scanRow(&r)
	if err != nil {
		return nil, core.ErrTrackerUnavailable(err.Error())
	}
	return &task, nil
}

// CloseTask implements core.TrackerAdapter. Idempotent.
func (t *beadsTracker) CloseTask(ctx context.Context, id core.TaskID, reason string) error {
	if err := t.UpdateTaskStatus(ctx, id, core.TaskStatusClosed); err != nil {
		return err
	}
	return t.appendJournal(ctx, "close", id, map[string]any{"reason": reason})
}

// UpdateTaskStatus implements core.TrackerAdapter. Idempotent.
func (t *beadsTracker) UpdateTaskStatus(ctx context.Context, id core.TaskID, status core.TaskStatus) error {
	t.mu.Lock()
	result, err := t.db.ExecContext(ctx, `UPDATE issues SET status = ? WHERE id = ?`, string(status), string(id))
	t.mu.Unlock()
	if err != nil {
		return core.ErrTrackerUnavailable(fmt.Sprintf("updating issue %s: %v", id, err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return core.ErrTrackerUnavailable(fmt.Sprintf("checking update for %s: %v", id, err))
	}
	if n == 0 {
		return core.ErrNotFound("task", string(id))
	}
	return t.appendJournal(ctx, "status", id, map[string]any{"status": string(status)})
}

// appendJournal records a mutation in the append-only JSONL log that sits
// alongside the SQLite database - the "JSONL" half of the beads store,
// mirrored so an external `bd sync` can replay it. A journal-write failure
// is logged but never fails the caller's mutation: the SQLite row is the
// durable source of truth.
func (t *beadsTracker) appendJournal(_ context.Context, kind string, id core.TaskID, fields map[string]any) error {
	entry := map[string]any{
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
		"kind":   kind,
		"taskId": string(id),
		"epicId": t.epicID,
	}
	for k, v := range fields {
		entry[k] = v
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling journal entry: %w", err)
	}

	f, err := os.OpenFile(t.jsonlPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil //nolint:nilerr // journal is best-effort; SQLite is authoritative.
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
	return nil
}

var _ core.TrackerAdapter = (*beadsTracker)(nil)
