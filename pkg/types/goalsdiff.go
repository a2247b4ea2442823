// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"sort"
)

// AddedGoal is a goal that appears in the later of two proof states, together
// with every location at which it was inserted.
type AddedGoal struct {
	Goal      Goal           `json:"goal" yaml:"goal"`
	Locations []GoalLocation `json:"locations" yaml:"locations"`
}

// MovedGoal records that the goal at From in the earlier state sits at To in
// the later state.
type MovedGoal struct {
	From GoalLocation `json:"from" yaml:"from"`
	To   GoalLocation `json:"to" yaml:"to"`
}

// GoalsDiff is the change between two proof states. Goals are matched by
// full equality; a goal rewritten in place therefore appears as a removal
// plus an addition. DepthDelta tracks the change in background stack depth
// so that empty focus levels survive a diff and patch round trip.
type GoalsDiff struct {
	Added      []AddedGoal    `json:"added" yaml:"added"`
	Removed    []GoalLocation `json:"removed" yaml:"removed"`
	Moved      []MovedGoal    `json:"moved" yaml:"moved"`
	DepthDelta int            `json:"depth_delta" yaml:"depth_delta"`
}

// IsEmpty reports whether patching with the diff is the identity.
func (d GoalsDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Moved) == 0 && d.DepthDelta == 0
}

// ComputeGoalsDiff computes the change from before to after such that
// ComputeGoalsDiff(a, b).Patch(a) reproduces b exactly. Distinct goals are
// processed in first-appearance order, so the result is deterministic.
func ComputeGoalsDiff(before, after *Goals) GoalsDiff {
	diff := GoalsDiff{DepthDelta: len(after.Background) - len(before.Background)}

	bOrder, bIndex := before.GoalIndexMap()
	aOrder, aIndex := after.GoalIndexMap()

	seen := make(map[string]bool, len(bOrder))
	for _, goal := range bOrder {
		k := goal.key()
		seen[k] = true
		bl := bIndex[k]
		al := aIndex[k]

		common := make(map[GoalLocation]bool, len(al))
		for _, loc := range al {
			common[loc] = true
		}
		var origins []GoalLocation
		for _, loc := range bl {
			if common[loc] {
				// Unmoved occurrence; consume it so a duplicate at the
				// same goal cannot reuse it.
				delete(common, loc)
			} else {
				origins = append(origins, loc)
			}
		}
		kept := make(map[GoalLocation]bool, len(bl))
		for _, loc := range bl {
			kept[loc] = true
		}
		var dests []GoalLocation
		for _, loc := range al {
			if !kept[loc] {
				dests = append(dests, loc)
			}
		}

		n := len(origins)
		if len(dests) < n {
			n = len(dests)
		}
		for i := 0; i < n; i++ {
			diff.Moved = append(diff.Moved, MovedGoal{From: origins[i], To: dests[i]})
		}
		diff.Removed = append(diff.Removed, origins[n:]...)
		if len(dests) > n {
			diff.Added = append(diff.Added, AddedGoal{Goal: goal, Locations: dests[n:]})
		}
	}

	for _, goal := range aOrder {
		k := goal.key()
		if !seen[k] {
			diff.Added = append(diff.Added, AddedGoal{Goal: goal, Locations: aIndex[k]})
		}
	}

	return diff
}

// Patch applies the diff to before and returns the resulting proof state.
// Removals and move origins are applied in descending location order, then
// the background depth is adjusted, then moves and additions land in
// ascending order of their final locations.
func (d GoalsDiff) Patch(before *Goals) (*Goals, error) {
	out := before.ShallowCopy()

	type insertion struct {
		goal Goal
		loc  GoalLocation
	}
	inserts := make([]insertion, 0, len(d.Moved)+len(d.Added))
	for _, m := range d.Moved {
		goal, err := before.Get(m.From)
		if err != nil {
			return nil, fmt.Errorf("resolving moved goal: %w", err)
		}
		inserts = append(inserts, insertion{goal, m.To})
	}
	for _, a := range d.Added {
		for _, loc := range a.Locations {
			inserts = append(inserts, insertion{a.Goal, loc})
		}
	}

	pops := make([]GoalLocation, 0, len(d.Removed)+len(d.Moved))
	pops = append(pops, d.Removed...)
	for _, m := range d.Moved {
		pops = append(pops, m.From)
	}
	sort.Slice(pops, func(i, j int) bool {
		return compareGoalLocation(pops[i], pops[j]) > 0
	})
	for _, loc := range pops {
		if _, err := out.Pop(loc); err != nil {
			return nil, fmt.Errorf("removing goal: %w", err)
		}
	}

	if d.DepthDelta > 0 {
		for i := 0; i < d.DepthDelta; i++ {
			out.Background = append(out.Background, [2][]Goal{})
		}
	} else if d.DepthDelta < 0 {
		target := len(out.Background) + d.DepthDelta
		if target < 0 {
			return nil, fmt.Errorf("depth delta %d exceeds background depth %d", d.DepthDelta, len(out.Background))
		}
		for len(out.Background) > target {
			last := out.Background[len(out.Background)-1]
			if len(last[0]) != 0 || len(last[1]) != 0 {
				return nil, fmt.Errorf("cannot drop non-empty background level %d", len(out.Background)-1)
			}
			out.Background = out.Background[:len(out.Background)-1]
		}
	}

	sort.Slice(inserts, func(i, j int) bool {
		return compareGoalLocation(inserts[i].loc, inserts[j].loc) < 0
	})
	for _, ins := range inserts {
		if err := out.Insert(ins.goal, ins.loc); err != nil {
			return nil, fmt.Errorf("inserting goal: %w", err)
		}
	}

	return out, nil
}
