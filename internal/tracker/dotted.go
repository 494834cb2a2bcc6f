// Package tracker implements the Tracker Adapter (§4.1): a uniform task
// source behind core.TrackerAdapter over a JSON PRD file or one of the
// beads SQLite+JSONL variants.
package tracker

import (
	"sort"
	"strings"

	"github.com/ralph-tui/ralph-tui/internal/core"
)

// OrderDottedChildren reorders a task listing so that ids of the form
// <prefix>.<number> sort numerically within each common prefix, while every
// non-dotted id keeps its original position. It extracts the subsequence of
// positions holding dotted ids, sorts the items occupying those positions by
// (prefix, numeric suffix), then reinserts them into the same positions -
// running it twice on its own output is a no-op (§8 property 6).
func OrderDottedChildren(tasks []core.Task) []core.Task {
	var positions []int
	for i, t := range tasks {
		if _, _, ok := splitDotted(string(t.ID)); ok {
			positions = append(positions, i)
		}
	}
	if len(positions) == 0 {
		return tasks
	}

	items := make([]core.Task, len(positions))
	for i, p := range positions {
		items[i] = tasks[p]
	}
	sort.SliceStable(items, func(i, j int) bool {
		pi, si, _ := splitDotted(string(items[i].ID))
		pj, sj, _ := splitDotted(string(items[j].ID))
		if pi != pj {
			return pi < pj
		}
		return si < sj
	})

	out := make([]core.Task, len(tasks))
	copy(out, tasks)
	for i, p := range positions {
		out[p] = items[i]
	}
	return out
}

// splitDotted splits an id of the form "<prefix>.<number>" into its prefix
// and numeric suffix. ok is false for ids without a trailing "."-separated
// non-negative integer component. Mirrors core.Task's private splitDottedID;
// kept as a separate copy since that helper isn't exported across packages.
func splitDotted(id string) (prefix string, suffix int, ok bool) {
	idx := strings.LastIndexByte(id, '.')
	if idx < 0 || idx == len(id)-1 {
		return "", 0, false
	}
	numPart := id[idx+1:]
	n := 0
	for _, r := range numPart {
		if r < '0' || r > '9' {
			return "", 0, false
		}
		n = n*10 + int(r-'0')
	}
	return id[:idx], n, true
}
