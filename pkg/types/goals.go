// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Hypothesis is one entry of a goal's local context.
type Hypothesis struct {
	// Idents names the hypothesis. Coq groups hypotheses that share a type,
	// so one entry may carry several names.
	Idents []string `json:"idents" yaml:"idents"`

	// Term is the printed body for defined hypotheses (let-bindings), nil
	// for plain assumptions.
	Term *string `json:"term,omitempty" yaml:"term,omitempty"`

	// Type is the printed type of the hypothesis.
	Type string `json:"type" yaml:"type"`

	// TermSexp is the serialized kernel representation of Term, nil when
	// Term is nil.
	TermSexp *string `json:"term_sexp,omitempty" yaml:"term_sexp,omitempty"`

	// TypeSexp is the serialized kernel representation of Type.
	TypeSexp string `json:"type_sexp" yaml:"type_sexp"`
}

// Goal is a single outstanding obligation in a proof.
type Goal struct {
	// ID is the proof-assistant-assigned goal identifier.
	ID int `json:"id" yaml:"id"`

	// Type is the printed statement of the goal.
	Type string `json:"type" yaml:"type"`

	// Sexp is the serialized kernel representation of the goal's statement.
	Sexp string `json:"sexp" yaml:"sexp"`

	// Hypotheses is the goal's local context, outermost first.
	Hypotheses []Hypothesis `json:"hypotheses" yaml:"hypotheses"`
}

// key builds a canonical string for full-equality matching of goals.
func (g Goal) key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\x1f%s\x1f%s", g.ID, g.Type, g.Sexp)
	for _, h := range g.Hypotheses {
		b.WriteString("\x1e")
		b.WriteString(strings.Join(h.Idents, "\x1d"))
		b.WriteString("\x1f")
		if h.Term != nil {
			b.WriteString(*h.Term)
		}
		b.WriteString("\x1f")
		b.WriteString(h.Type)
		b.WriteString("\x1f")
		if h.TermSexp != nil {
			b.WriteString(*h.TermSexp)
		}
		b.WriteString("\x1f")
		b.WriteString(h.TypeSexp)
	}
	return b.String()
}

// GoalType names the category a goal is filed under.
type GoalType int

const (
	// Foreground goals are in focus and advanced by tactics.
	Foreground GoalType = iota

	// Background goals are out of focus, stacked by focusing depth.
	Background

	// Shelved goals have been set aside.
	Shelved

	// Abandoned goals have been given up.
	Abandoned
)

func (t GoalType) String() string {
	switch t {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	case Shelved:
		return "shelved"
	case Abandoned:
		return "abandoned"
	}
	return fmt.Sprintf("GoalType(%d)", int(t))
}

// goalTypeCodes are the compact location-encoding codes, indexed by GoalType.
var goalTypeCodes = [...]string{"fg", "bg", "sh", "ab"}

// GoalLocation addresses one goal within a Goals value. Depth and Left are
// meaningful only for Background goals: the background is a stack of
// (left, right) pairs produced by focusing, and a location names the level,
// the side, and the index within the side. For the other categories only
// Index is used.
type GoalLocation struct {
	Category GoalType `json:"category" yaml:"category"`
	Depth    int      `json:"depth" yaml:"depth"`
	Index    int      `json:"index" yaml:"index"`
	Left     bool     `json:"left" yaml:"left"`
}

func (l GoalLocation) String() string {
	if l.Category == Background {
		side := "r"
		if l.Left {
			side = "l"
		}
		return fmt.Sprintf("bg:%d:%s:%d", l.Depth, side, l.Index)
	}
	return fmt.Sprintf("%s:%d", goalTypeCodes[l.Category], l.Index)
}

// ParseGoalLocation is the inverse of GoalLocation.String.
func ParseGoalLocation(s string) (GoalLocation, error) {
	parts := strings.Split(s, ":")
	var loc GoalLocation
	bad := func() (GoalLocation, error) {
		return GoalLocation{}, fmt.Errorf("malformed goal location %q", s)
	}
	switch parts[0] {
	case "fg":
		loc.Category = Foreground
	case "bg":
		loc.Category = Background
	case "sh":
		loc.Category = Shelved
	case "ab":
		loc.Category = Abandoned
	default:
		return bad()
	}
	if loc.Category == Background {
		if len(parts) != 4 {
			return bad()
		}
		depth, err := strconv.Atoi(parts[1])
		if err != nil {
			return bad()
		}
		if parts[2] != "l" && parts[2] != "r" {
			return bad()
		}
		index, err := strconv.Atoi(parts[3])
		if err != nil {
			return bad()
		}
		loc.Depth, loc.Left, loc.Index = depth, parts[2] == "l", index
		return loc, nil
	}
	if len(parts) != 2 {
		return bad()
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return bad()
	}
	loc.Index = index
	return loc, nil
}

// MarshalYAML encodes the location in its compact string form.
func (l GoalLocation) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

// UnmarshalYAML decodes the compact string form.
func (l *GoalLocation) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseGoalLocation(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// compareGoalLocation orders locations by category, depth, side (left before
// right), then index. Insertion during patching relies on this order.
func compareGoalLocation(a, b GoalLocation) int {
	if a.Category != b.Category {
		return int(a.Category) - int(b.Category)
	}
	if a.Depth != b.Depth {
		return a.Depth - b.Depth
	}
	if a.Left != b.Left {
		if a.Left {
			return -1
		}
		return 1
	}
	return a.Index - b.Index
}

// Goals is the full proof state at one point of a document: the focused
// goals, the background focus stack, and the shelved and abandoned goals.
// A nil *Goals means "not in proof mode"; a non-nil value with no goals
// anywhere is a proof state with nothing left to prove.
type Goals struct {
	Foreground []Goal      `json:"foreground" yaml:"foreground"`
	Background [][2][]Goal `json:"background" yaml:"background"`
	Shelved    []Goal      `json:"shelved" yaml:"shelved"`
	Abandoned  []Goal      `json:"abandoned" yaml:"abandoned"`
}

// IsEmpty reports whether no goal exists in any category. Background levels
// may still be present and empty.
func (g *Goals) IsEmpty() bool {
	if len(g.Foreground) != 0 || len(g.Shelved) != 0 || len(g.Abandoned) != 0 {
		return false
	}
	for _, level := range g.Background {
		if len(level[0]) != 0 || len(level[1]) != 0 {
			return false
		}
	}
	return true
}

// ShallowCopy copies the category slices and every background level so the
// copy can be grown and shrunk without touching the receiver. Goal values
// are shared.
func (g *Goals) ShallowCopy() *Goals {
	out := &Goals{
		Foreground: append([]Goal(nil), g.Foreground...),
		Shelved:    append([]Goal(nil), g.Shelved...),
		Abandoned:  append([]Goal(nil), g.Abandoned...),
	}
	out.Background = make([][2][]Goal, len(g.Background))
	for i, level := range g.Background {
		out.Background[i] = [2][]Goal{
			append([]Goal(nil), level[0]...),
			append([]Goal(nil), level[1]...),
		}
	}
	return out
}

// slot returns a pointer to the slice addressed by everything in loc except
// the index.
func (g *Goals) slot(loc GoalLocation) (*[]Goal, error) {
	switch loc.Category {
	case Foreground:
		return &g.Foreground, nil
	case Shelved:
		return &g.Shelved, nil
	case Abandoned:
		return &g.Abandoned, nil
	case Background:
		if loc.Depth < 0 || loc.Depth >= len(g.Background) {
			return nil, fmt.Errorf("background depth %d out of range [0, %d)", loc.Depth, len(g.Background))
		}
		side := 1
		if loc.Left {
			side = 0
		}
		return &g.Background[loc.Depth][side], nil
	}
	return nil, fmt.Errorf("unknown goal category %v", loc.Category)
}

// Get returns the goal at loc.
func (g *Goals) Get(loc GoalLocation) (Goal, error) {
	slot, err := g.slot(loc)
	if err != nil {
		return Goal{}, err
	}
	if loc.Index < 0 || loc.Index >= len(*slot) {
		return Goal{}, fmt.Errorf("goal index %d out of range [0, %d) at %s", loc.Index, len(*slot), loc)
	}
	return (*slot)[loc.Index], nil
}

// Insert places goal at loc, shifting later goals in the same slot.
// Index may equal the slot length to append.
func (g *Goals) Insert(goal Goal, loc GoalLocation) error {
	slot, err := g.slot(loc)
	if err != nil {
		return err
	}
	if loc.Index < 0 || loc.Index > len(*slot) {
		return fmt.Errorf("goal index %d out of range [0, %d] at %s", loc.Index, len(*slot), loc)
	}
	s := *slot
	s = append(s, Goal{})
	copy(s[loc.Index+1:], s[loc.Index:])
	s[loc.Index] = goal
	*slot = s
	return nil
}

// Pop removes and returns the goal at loc, shifting later goals in the same
// slot.
func (g *Goals) Pop(loc GoalLocation) (Goal, error) {
	slot, err := g.slot(loc)
	if err != nil {
		return Goal{}, err
	}
	if loc.Index < 0 || loc.Index >= len(*slot) {
		return Goal{}, fmt.Errorf("goal index %d out of range [0, %d) at %s", loc.Index, len(*slot), loc)
	}
	s := *slot
	goal := s[loc.Index]
	*slot = append(s[:loc.Index], s[loc.Index+1:]...)
	return goal, nil
}

// goalEntry pairs a goal with one of its locations in traversal order.
type goalEntry struct {
	goal Goal
	loc  GoalLocation
}

// entries traverses all goals in canonical order: foreground, background by
// depth (left side then right side), shelved, abandoned.
func (g *Goals) entries() []goalEntry {
	var out []goalEntry
	for i, goal := range g.Foreground {
		out = append(out, goalEntry{goal, GoalLocation{Category: Foreground, Index: i}})
	}
	for depth, level := range g.Background {
		for i, goal := range level[0] {
			out = append(out, goalEntry{goal, GoalLocation{Category: Background, Depth: depth, Index: i, Left: true}})
		}
		for i, goal := range level[1] {
			out = append(out, goalEntry{goal, GoalLocation{Category: Background, Depth: depth, Index: i}})
		}
	}
	for i, goal := range g.Shelved {
		out = append(out, goalEntry{goal, GoalLocation{Category: Shelved, Index: i}})
	}
	for i, goal := range g.Abandoned {
		out = append(out, goalEntry{goal, GoalLocation{Category: Abandoned, Index: i}})
	}
	return out
}

// GoalIndexMap maps every distinct goal (by full equality) to all of its
// locations in canonical traversal order. The outer slice preserves first
// appearance order of the distinct goals.
func (g *Goals) GoalIndexMap() ([]Goal, map[string][]GoalLocation) {
	index := make(map[string][]GoalLocation)
	var order []Goal
	for _, e := range g.entries() {
		k := e.goal.key()
		if _, seen := index[k]; !seen {
			order = append(order, e.goal)
		}
		index[k] = append(index[k], e.loc)
	}
	return order, index
}

// UniqueGoals returns the distinct goals in first appearance order together
// with all locations of each.
func (g *Goals) UniqueGoals() []AddedGoal {
	order, index := g.GoalIndexMap()
	out := make([]AddedGoal, len(order))
	for i, goal := range order {
		out[i] = AddedGoal{Goal: goal, Locations: index[goal.key()]}
	}
	return out
}
