// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// HypothesisIdentifiers holds the fully qualified identifiers occurring in
// one hypothesis: those of its body (nil for plain assumptions) and those of
// its type.
type HypothesisIdentifiers struct {
	Term []Identifier `json:"term,omitempty" yaml:"term,omitempty"`
	Type []Identifier `json:"type" yaml:"type"`
}

// GoalIdentifiers holds the fully qualified identifiers occurring in a goal
// statement and in each of its hypotheses.
type GoalIdentifiers struct {
	Goal       []Identifier            `json:"goal" yaml:"goal"`
	Hypotheses []HypothesisIdentifiers `json:"hypotheses" yaml:"hypotheses"`
}

// GoalIdentMap assigns goal identifiers to goal locations.
type GoalIdentMap map[GoalLocation]GoalIdentifiers

type goalIdentEntry struct {
	Location    GoalLocation    `yaml:"location"`
	Identifiers GoalIdentifiers `yaml:"identifiers"`
}

// MarshalYAML encodes the map as a list of entries sorted by location, so
// serialized records are deterministic.
func (m GoalIdentMap) MarshalYAML() (interface{}, error) {
	entries := make([]goalIdentEntry, 0, len(m))
	for loc, ids := range m {
		entries = append(entries, goalIdentEntry{loc, ids})
	}
	sort.Slice(entries, func(i, j int) bool {
		return compareGoalLocation(entries[i].Location, entries[j].Location) < 0
	})
	return entries, nil
}

// UnmarshalYAML decodes the entry-list form.
func (m *GoalIdentMap) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var entries []goalIdentEntry
	if err := unmarshal(&entries); err != nil {
		return err
	}
	out := make(GoalIdentMap, len(entries))
	for _, e := range entries {
		out[e.Location] = e.Identifiers
	}
	*m = out
	return nil
}

// Copy returns an independent copy of the map.
func (m GoalIdentMap) Copy() GoalIdentMap {
	out := make(GoalIdentMap, len(m))
	for loc, ids := range m {
		out[loc] = ids
	}
	return out
}

// ComputeGoalIdentifiers extracts goal identifiers for every distinct goal
// that carries a serialized statement, assigning the result to each of the
// goal's locations. For a full proof state all goals are covered; for a diff
// only the added goals are, matching what can be recovered when patching.
func ComputeGoalIdentifiers(goals *Goals, diff *GoalsDiff, extract func(sexp string) []Identifier) GoalIdentMap {
	var unique []AddedGoal
	switch {
	case goals != nil:
		unique = goals.UniqueGoals()
	case diff != nil:
		unique = diff.Added
	default:
		return nil
	}
	if extract == nil {
		return nil
	}
	out := make(GoalIdentMap)
	for _, u := range unique {
		if u.Goal.Sexp == "" {
			continue
		}
		gi := GoalIdentifiers{Goal: extract(u.Goal.Sexp)}
		for _, h := range u.Goal.Hypotheses {
			hi := HypothesisIdentifiers{Type: extract(h.TypeSexp)}
			if h.TermSexp != nil {
				hi.Term = extract(*h.TermSexp)
			}
			gi.Hypotheses = append(gi.Hypotheses, hi)
		}
		for _, loc := range u.Locations {
			out[loc] = gi
		}
	}
	return out
}

// VernacSentence is one executed sentence of a Coq document together with
// everything recorded about it.
type VernacSentence struct {
	// Text is the sentence as written, whitespace-normalized.
	Text string `json:"text" yaml:"text"`

	// AST is the serialized abstract syntax tree of the sentence.
	AST string `json:"ast" yaml:"ast"`

	// QualifiedIdentifiers lists the identifiers of the AST, fully
	// qualified, in order of occurrence.
	QualifiedIdentifiers []Identifier `json:"qualified_identifiers" yaml:"qualified_identifiers"`

	// Location is the span of the sentence in its document.
	Location Loc `json:"location" yaml:"location"`

	// CommandType is the Vernacular constructor of the sentence, with
	// extended commands named by their extension.
	CommandType string `json:"command_type" yaml:"command_type"`

	// Goals is the proof state before the sentence executed. Nil outside
	// proof mode, and nil when GoalsDiff carries the state instead.
	Goals *Goals `json:"goals,omitempty" yaml:"goals,omitempty"`

	// GoalsDiff carries the same state as Goals, stored as the change
	// relative to the previous goals-bearing sentence in document order.
	// At most one of Goals and GoalsDiff is set.
	GoalsDiff *GoalsDiff `json:"goals_diff,omitempty" yaml:"goals_diff,omitempty"`

	// Feedback is the proof assistant's message feedback for the sentence.
	Feedback []string `json:"feedback,omitempty" yaml:"feedback,omitempty"`

	// GoalsQualifiedIdentifiers maps goal locations to the qualified
	// identifiers of the goal at that location.
	GoalsQualifiedIdentifiers GoalIdentMap `json:"goals_qualified_identifiers,omitempty" yaml:"goals_qualified_identifiers,omitempty"`
}

// ShallowCopy copies the sentence and its slices; goals values are shared.
func (s VernacSentence) ShallowCopy() VernacSentence {
	out := s
	out.QualifiedIdentifiers = append([]Identifier(nil), s.QualifiedIdentifiers...)
	out.Feedback = append([]string(nil), s.Feedback...)
	out.GoalsQualifiedIdentifiers = s.GoalsQualifiedIdentifiers.Copy()
	return out
}

// ProofBlock is one proof of a command: the sentences from the proof opener's
// successor through its closer, in document order.
type ProofBlock []VernacSentence

// VernacCommandData is the extraction record of one Vernacular command and
// the proofs attached to it.
type VernacCommandData struct {
	// Identifiers lists the names the command introduces, the command's
	// own name last.
	Identifiers []string `json:"identifiers" yaml:"identifiers"`

	// Error is the proof assistant's error for commands recorded as
	// failing, nil otherwise.
	Error *string `json:"error,omitempty" yaml:"error,omitempty"`

	// Command is the sentence of the command itself.
	Command VernacSentence `json:"command" yaml:"command"`

	// Proofs holds the command's proof blocks. Programs may carry one
	// block per obligation.
	Proofs []ProofBlock `json:"proofs,omitempty" yaml:"proofs,omitempty"`
}

// SortedSentences returns the command sentence and all proof sentences in
// document order.
func (c *VernacCommandData) SortedSentences() []VernacSentence {
	out := []VernacSentence{c.Command}
	for _, block := range c.Proofs {
		out = append(out, block...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompareLoc(out[i].Location, out[j].Location) < 0
	})
	return out
}

// AllText reconstructs the command's full text, sentences in document order
// joined by newlines.
func (c *VernacCommandData) AllText() string {
	sentences := c.SortedSentences()
	parts := make([]string, len(sentences))
	for i, s := range sentences {
		parts[i] = s.Text
	}
	return strings.Join(parts, "\n")
}

// ProofText reconstructs the text of the proofs alone.
func (c *VernacCommandData) ProofText() string {
	var sentences []VernacSentence
	for _, block := range c.Proofs {
		sentences = append(sentences, block...)
	}
	sort.SliceStable(sentences, func(i, j int) bool {
		return CompareLoc(sentences[i].Location, sentences[j].Location) < 0
	})
	parts := make([]string, len(sentences))
	for i, s := range sentences {
		parts[i] = s.Text
	}
	return strings.Join(parts, "\n")
}

// SpanningLocation is the union of the spans of all sentences.
func (c *VernacCommandData) SpanningLocation() Loc {
	loc := c.Command.Location
	for _, block := range c.Proofs {
		for _, s := range block {
			loc = loc.Union(s.Location)
		}
	}
	return loc
}

// ReferencedIdentifiers returns the distinct fully qualified names referenced
// anywhere in the command, sorted.
func (c *VernacCommandData) ReferencedIdentifiers() []string {
	set := make(map[string]bool)
	for _, s := range c.SortedSentences() {
		for _, id := range s.QualifiedIdentifiers {
			set[id.Name] = true
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ShallowCopy copies the record, its sentence slices, and its proof blocks.
func (c *VernacCommandData) ShallowCopy() VernacCommandData {
	out := VernacCommandData{
		Identifiers: append([]string(nil), c.Identifiers...),
		Command:     c.Command.ShallowCopy(),
	}
	if c.Error != nil {
		e := *c.Error
		out.Error = &e
	}
	for _, block := range c.Proofs {
		copied := make(ProofBlock, len(block))
		for i, s := range block {
			copied[i] = s.ShallowCopy()
		}
		out.Proofs = append(out.Proofs, copied)
	}
	return out
}

// VernacCommandDataList is the extraction record of a whole document.
type VernacCommandDataList []VernacCommandData

// sortedSentencePointers returns pointers to every sentence of every command
// in document order, for in-place goal rewriting.
func (l VernacCommandDataList) sortedSentencePointers() []*VernacSentence {
	var out []*VernacSentence
	for i := range l {
		out = append(out, &l[i].Command)
		for j := range l[i].Proofs {
			for k := range l[i].Proofs[j] {
				out = append(out, &l[i].Proofs[j][k])
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompareLoc(out[i].Location, out[j].Location) < 0
	})
	return out
}

// SortedSentences returns every sentence of every command in document order.
func (l VernacCommandDataList) SortedSentences() []VernacSentence {
	ptrs := l.sortedSentencePointers()
	out := make([]VernacSentence, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// DiffGoals rewrites full proof states into diffs in place: each
// goals-bearing sentence after the first stores the change from its
// predecessor, and its goal-identifier map is restricted to the added goals.
// PatchGoals inverts the rewrite.
func (l VernacCommandDataList) DiffGoals() {
	var prev *Goals
	for _, s := range l.sortedSentencePointers() {
		if s.Goals == nil {
			continue
		}
		cur := s.Goals
		if prev != nil {
			diff := ComputeGoalsDiff(prev, cur)
			s.Goals = nil
			s.GoalsDiff = &diff
			if s.GoalsQualifiedIdentifiers != nil {
				added := make(map[GoalLocation]bool)
				for _, a := range diff.Added {
					for _, loc := range a.Locations {
						added[loc] = true
					}
				}
				restricted := make(GoalIdentMap)
				for loc, ids := range s.GoalsQualifiedIdentifiers {
					if added[loc] {
						restricted[loc] = ids
					}
				}
				s.GoalsQualifiedIdentifiers = restricted
			}
		}
		prev = cur
	}
}

// PatchGoals restores full proof states from diffs in place, rebuilding each
// sentence's goal-identifier map from its predecessor's map and the diff.
func (l VernacCommandDataList) PatchGoals() error {
	var prev *Goals
	var prevIdents GoalIdentMap
	for _, s := range l.sortedSentencePointers() {
		switch {
		case s.Goals != nil:
			prev = s.Goals
			prevIdents = s.GoalsQualifiedIdentifiers
		case s.GoalsDiff != nil:
			if prev == nil {
				return fmt.Errorf("sentence at %s carries a goals diff with no preceding proof state", s.Location)
			}
			full, err := s.GoalsDiff.Patch(prev)
			if err != nil {
				return fmt.Errorf("patching goals at %s: %w", s.Location, err)
			}
			idents := prevIdents.Copy()
			for _, loc := range s.GoalsDiff.Removed {
				delete(idents, loc)
			}
			moved := make([]GoalIdentifiers, 0, len(s.GoalsDiff.Moved))
			present := make([]bool, 0, len(s.GoalsDiff.Moved))
			for _, m := range s.GoalsDiff.Moved {
				ids, ok := idents[m.From]
				moved = append(moved, ids)
				present = append(present, ok)
			}
			for _, m := range s.GoalsDiff.Moved {
				delete(idents, m.From)
			}
			for i, m := range s.GoalsDiff.Moved {
				if present[i] {
					idents[m.To] = moved[i]
				}
			}
			for loc, ids := range s.GoalsQualifiedIdentifiers {
				idents[loc] = ids
			}
			s.Goals = full
			s.GoalsDiff = nil
			s.GoalsQualifiedIdentifiers = idents
			prev = full
			prevIdents = idents
		}
	}
	return nil
}

// WriteCoqFile reconstructs the document's source, one sentence per line in
// document order.
func (l VernacCommandDataList) WriteCoqFile(w io.Writer) error {
	for i, s := range l.SortedSentences() {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, s.Text); err != nil {
			return err
		}
	}
	return nil
}

// ShallowCopy copies the list and every record in it.
func (l VernacCommandDataList) ShallowCopy() VernacCommandDataList {
	out := make(VernacCommandDataList, len(l))
	for i := range l {
		out[i] = l[i].ShallowCopy()
	}
	return out
}
