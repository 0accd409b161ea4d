// Package packer lays out one day's tasks into a non-overlapping column
// grid using greedy interval partitioning. It is a pure algorithm: no
// I/O, no mutation of its input, deterministic output for a given input.
package packer

import (
	"sort"
	"time"

	"github.com/openrota/openrota/pkg/core/model"
)

// Block is one rendered unit of the day grid: a group of co-named (or
// explicitly grouped) tasks merged into a single span and placed in a
// display column. Columns divides the horizontal width of the day; the
// block occupies 1/Columns of it at offset Column.
type Block struct {
	ID       string // group key of the merged tasks
	Start    time.Time
	End      time.Time
	Tasks    []model.TaskRecord
	Required int // summed over members
	Assigned int // summed over members
	Column   int
	Columns  int
}

// groupKey resolves the grouping identity of a task: explicit group key
// first, then exact name, then the task id as a singleton fallback. Two
// unrelated tasks sharing a name on the same day will merge into one
// block; that is accepted behavior until tasks carry real group ids.
func groupKey(t model.TaskRecord) string {
	if t.GroupKey != "" {
		return t.GroupKey
	}
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// Pack arranges the given tasks into blocks for a single calendar day.
// day must be midnight in the display timezone; the day spans
// [day, day+24h). Tasks not intersecting the day are ignored. Any
// filtering (by type, by assignment status) must happen before Pack is
// called so that fully filtered-out groups never appear.
func Pack(day time.Time, tasks []model.TaskRecord) []Block {
	dayStart := day
	dayEnd := day.AddDate(0, 0, 1)

	// Group tasks intersecting the day, preserving first-seen order so
	// ties in start time break by original list order.
	var order []string
	groups := make(map[string][]model.TaskRecord)
	for _, t := range tasks {
		if !t.Start.Before(dayEnd) || !t.End.After(dayStart) {
			continue
		}
		key := groupKey(t)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}

	blocks := make([]Block, 0, len(order))
	for _, key := range order {
		members := groups[key]
		b := Block{ID: key, Start: members[0].Start, End: members[0].End}
		for _, t := range members {
			if t.Start.Before(b.Start) {
				b.Start = t.Start
			}
			if t.End.After(b.End) {
				b.End = t.End
			}
			b.Required += t.Required
			b.Assigned += t.Assigned()
			b.Tasks = append(b.Tasks, t)
		}
		// Clip the merged span to the day bounds.
		if b.Start.Before(dayStart) {
			b.Start = dayStart
		}
		if b.End.After(dayEnd) {
			b.End = dayEnd
		}
		blocks = append(blocks, b)
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Start.Before(blocks[j].Start)
	})

	// Greedy interval partitioning: place each block into the first
	// column whose last occupant has ended, opening a new column when
	// none has. This yields the minimum number of columns.
	var columnEnds []time.Time
	for i := range blocks {
		placed := false
		for c, end := range columnEnds {
			if !end.After(blocks[i].Start) {
				blocks[i].Column = c
				columnEnds[c] = blocks[i].End
				placed = true
				break
			}
		}
		if !placed {
			blocks[i].Column = len(columnEnds)
			columnEnds = append(columnEnds, blocks[i].End)
		}
	}
	for i := range blocks {
		blocks[i].Columns = len(columnEnds)
	}

	return blocks
}
