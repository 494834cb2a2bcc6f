// Package scheduler implements the Scheduler (§4.5): admission and
// ordering of the next batch of tasks to run, serial or parallel.
package scheduler

import (
	"sort"

	"github.com/ralph-tui/ralph-tui/internal/core"
	"github.com/ralph-tui/ralph-tui/internal/logging"
	"github.com/ralph-tui/ralph-tui/internal/tracker"
)

// Scheduler selects the next K eligible tasks from a tracker listing.
type Scheduler struct {
	logger      *logging.Logger
	loggedCycle bool // cycle is logged once per session (§4.5)
}

// New creates a Scheduler.
func New(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Result is the outcome of one Select call.
type Result struct {
	// Selected are the admitted tasks, in admission order.
	Selected []core.Task
	// Blocked are tasks that can never be selected this session because
	// they sit inside a dependency cycle.
	Blocked []core.Task
}

// Select returns up to k tasks eligible to run next, given the full task
// listing, the ids of tasks currently claimed by another worker, and an
// optional label filter (empty string = no filter). Tasks are ordered by
// (priority asc, tracker-listing position asc) after the dotted-child
// reordering pass (§4.1). For k>1, admission additionally rejects any task
// whose transitive dependency set intersects the ids of tasks already
// in-flight or already admitted earlier in this same call (§4.5 Parallel
// admission).
func (s *Scheduler) Select(tasks []core.Task, k int, inFlight map[core.TaskID]bool, labelFilter string) Result {
	ordered := tracker.OrderDottedChildren(tasks)

	byID := make(map[core.TaskID]*core.Task, len(ordered))
	for i := range ordered {
		byID[ordered[i].ID] = &ordered[i]
	}

	cyclic := findCyclicTasks(byID)
	if len(cyclic) > 0 && !s.loggedCycle {
		ids := make([]string, 0, len(cyclic))
		for id := range cyclic {
			ids = append(ids, string(id))
		}
		s.logger.Warn("dependency cycle detected; affected tasks are blocked", "tasks", ids)
		s.loggedCycle = true
	}

	var blocked []core.Task
	eligible := make([]core.Task, 0, len(ordered))
	for i, t := range ordered {
		if cyclic[t.ID] {
			blocked = append(blocked, t)
			continue
		}
		if !t.IsOpenForScheduling() {
			continue
		}
		if inFlight[t.ID] {
			continue
		}
		if labelFilter != "" && !t.HasLabel(labelFilter) {
			continue
		}
		if !allDependenciesClosed(t, byID) {
			continue
		}
		t.Position = i
		eligible = append(eligible, t)
	}

	sort.SliceStable(eligible, func(a, b int) bool {
		if eligible[a].Priority != eligible[b].Priority {
			return eligible[a].Priority < eligible[b].Priority
		}
		return eligible[a].Position < eligible[b].Position
	})

	if k <= 0 {
		k = 1
	}
	if k == 1 {
		if len(eligible) == 0 {
			return Result{Blocked: blocked}
		}
		return Result{Selected: eligible[:1], Blocked: blocked}
	}

	selected := make([]core.Task, 0, k)
	claimed := make(map[core.TaskID]bool, len(inFlight)+k)
	for id := range inFlight {
		claimed[id] = true
	}
	for _, t := range eligible {
		if len(selected) >= k {
			break
		}
		ancestors := transitiveDependencies(t.ID, byID, make(map[core.TaskID]bool))
		if intersects(ancestors, claimed) {
			continue
		}
		selected = append(selected, t)
		claimed[t.ID] = true
	}

	return Result{Selected: selected, Blocked: blocked}
}

func allDependenciesClosed(t core.Task, byID map[core.TaskID]*core.Task) bool {
	for _, depID := range t.Dependencies {
		dep, ok := byID[depID]
		if !ok || !dep.IsClosed() {
			return false
		}
	}
	return true
}

func transitiveDependencies(id core.TaskID, byID map[core.TaskID]*core.Task, seen map[core.TaskID]bool) map[core.TaskID]bool {
	out := make(map[core.TaskID]bool)
	t, ok := byID[id]
	if !ok || seen[id] {
		return out
	}
	seen[id] = true
	for _, depID := range t.Dependencies {
		out[depID] = true
		for anc := range transitiveDependencies(depID, byID, seen) {
			out[anc] = true
		}
	}
	return out
}

func intersects(a, b map[core.TaskID]bool) bool {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for id := range small {
		if large[id] {
			return true
		}
	}
	return false
}

// findCyclicTasks detects every task that participates in a dependency
// cycle via DFS, marking the whole recursion-stack chain when a back-edge
// is found.
func findCyclicTasks(byID map[core.TaskID]*core.Task) map[core.TaskID]bool {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[core.TaskID]int, len(byID))
	cyclic := make(map[core.TaskID]bool)
	var stack []core.TaskID

	var visit func(id core.TaskID)
	visit = func(id core.TaskID) {
		if state[id] == done {
			return
		}
		if state[id] == visiting {
			// Found a back-edge: mark the cycle's extent within the
			// current stack, from id's first occurrence to the top.
			for i := len(stack) - 1; i >= 0; i-- {
				cyclic[stack[i]] = true
				if stack[i] == id {
					break
				}
			}
			return
		}
		t, ok := byID[id]
		if !ok {
			return
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, depID := range t.Dependencies {
			visit(depID)
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for id := range byID {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return cyclic
}
