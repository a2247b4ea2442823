// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSentence(text string, beg int) VernacSentence {
	return VernacSentence{
		Text:        text,
		CommandType: "VernacExtend",
		Location: Loc{
			Filename: "comm.v",
			Beg:      beg,
			End:      beg + len(text),
		},
	}
}

func goalIdents(g Goal) GoalIdentifiers {
	return GoalIdentifiers{Goal: []Identifier{{Kind: KindCRef, Name: g.Type}}}
}

func identMapFor(gs *Goals) GoalIdentMap {
	m := make(GoalIdentMap)
	for _, u := range gs.UniqueGoals() {
		for _, loc := range u.Locations {
			m[loc] = goalIdents(u.Goal)
		}
	}
	return m
}

func proofSentence(text string, beg int, st *Goals) VernacSentence {
	s := testSentence(text, beg)
	s.Goals = st
	s.GoalsQualifiedIdentifiers = identMapFor(st)
	return s
}

// proofDocument builds the record of a small two-lemma document. Every proof
// sentence carries the full state holding before it executed, including the
// empty state before each Qed.
func proofDocument() VernacCommandDataList {
	g1 := goal(1, "A /\\ B -> B /\\ A")
	g2 := goal(2, "B /\\ A")
	g2.Hypotheses = []Hypothesis{
		{Idents: []string{"H"}, Type: "A /\\ B", TypeSexp: "(App and A B)"},
	}
	g3 := goal(3, "B /\\ A")
	g3.Hypotheses = []Hypothesis{
		{Idents: []string{"H1"}, Type: "A", TypeSexp: "(Var A)"},
		{Idents: []string{"H2"}, Type: "B", TypeSexp: "(Var B)"},
	}
	gB := goal(4, "B")
	gA := goal(5, "A")
	gt := goal(6, "True")

	importCmd := testSentence("Require Import Setoid.", 0)
	importCmd.CommandType = "VernacRequire"

	lemma1 := testSentence("Lemma and_comm : A /\\ B -> B /\\ A.", 30)
	lemma1.CommandType = "VernacStartTheoremProof"
	lemma1.QualifiedIdentifiers = []Identifier{{Kind: KindLident, Name: "and_comm"}}

	qed1 := proofSentence("Qed.", 140, &Goals{})
	qed1.CommandType = "VernacEndProof"

	lemma2 := testSentence("Lemma tauto_true : True.", 150)
	lemma2.CommandType = "VernacStartTheoremProof"
	lemma2.QualifiedIdentifiers = []Identifier{{Kind: KindLident, Name: "tauto_true"}}

	qed2 := proofSentence("Qed.", 190, &Goals{})
	qed2.CommandType = "VernacEndProof"

	printCmd := testSentence("Print and_comm.", 200)
	printCmd.CommandType = "VernacPrint"

	return VernacCommandDataList{
		{Command: importCmd},
		{
			Identifiers: []string{"and_comm"},
			Command:     lemma1,
			Proofs: []ProofBlock{{
				proofSentence("intros H.", 70, &Goals{Foreground: []Goal{g1}}),
				proofSentence("destruct H.", 85, &Goals{Foreground: []Goal{g2}}),
				proofSentence("split.", 100, &Goals{Foreground: []Goal{g3}}),
				proofSentence("assumption.", 110, &Goals{Foreground: []Goal{gB, gA}}),
				proofSentence("assumption.", 125, &Goals{Foreground: []Goal{gA}}),
				qed1,
			}},
		},
		{
			Identifiers: []string{"tauto_true"},
			Command:     lemma2,
			Proofs: []ProofBlock{{
				proofSentence("exact I.", 180, &Goals{Foreground: []Goal{gt}}),
				qed2,
			}},
		},
		{Command: printCmd},
	}
}

func TestCompareLoc(t *testing.T) {
	cases := []struct {
		name string
		a, b Loc
		want int
	}{
		{"earlier beg", Loc{Beg: 0, End: 50}, Loc{Beg: 10, End: 20}, -1},
		{"later beg", Loc{Beg: 10, End: 20}, Loc{Beg: 0, End: 50}, 1},
		{"same beg shorter", Loc{Beg: 10, End: 20}, Loc{Beg: 10, End: 30}, -1},
		{"same beg longer", Loc{Beg: 10, End: 30}, Loc{Beg: 10, End: 20}, 1},
		{"equal", Loc{Beg: 10, End: 20}, Loc{Beg: 10, End: 20}, 0},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareLoc(tt.a, tt.b))
		})
	}
}

func TestLocUnion(t *testing.T) {
	head := Loc{Filename: "comm.v", LineNo: 2, BolPos: 40, LineNoLast: 2, BolPosLast: 40, Beg: 45, End: 60}
	tail := Loc{Filename: "comm.v", LineNo: 4, BolPos: 80, LineNoLast: 5, BolPosLast: 95, Beg: 85, End: 110}

	want := Loc{Filename: "comm.v", LineNo: 2, BolPos: 40, LineNoLast: 5, BolPosLast: 95, Beg: 45, End: 110}
	assert.Equal(t, want, head.Union(tail))
	assert.Equal(t, want, tail.Union(head))
	assert.Equal(t, head, head.Union(head))
	assert.Equal(t, want, want.Union(head))
}

func TestLocBeforeAndContains(t *testing.T) {
	a := Loc{Filename: "comm.v", Beg: 0, End: 10}
	b := Loc{Filename: "comm.v", Beg: 10, End: 20}
	overlap := Loc{Filename: "comm.v", Beg: 5, End: 15}

	assert.True(t, a.Before(b), "touching spans are ordered")
	assert.False(t, b.Before(a))
	assert.False(t, a.Before(overlap))
	assert.False(t, overlap.Before(a))

	outer := Loc{Filename: "comm.v", Beg: 0, End: 100}
	inner := Loc{Filename: "comm.v", Beg: 20, End: 30}
	assert.True(t, outer.Contains(inner))
	assert.True(t, outer.Contains(outer))
	assert.False(t, inner.Contains(outer))

	elsewhere := inner
	elsewhere.Filename = "other.v"
	assert.False(t, outer.Contains(elsewhere))
}

func TestSortedSentencesInterleavesBlocks(t *testing.T) {
	cmd := VernacCommandData{
		Command: testSentence("Program Definition pair : nat * nat := (_, _).", 0),
		Proofs: []ProofBlock{
			{testSentence("Next Obligation.", 120), testSentence("exact 2.", 140), testSentence("Qed.", 150)},
			{testSentence("Next Obligation.", 60), testSentence("exact 1.", 80), testSentence("Qed.", 90)},
		},
	}

	var begs []int
	for _, s := range cmd.SortedSentences() {
		begs = append(begs, s.Location.Beg)
	}
	assert.Equal(t, []int{0, 60, 80, 90, 120, 140, 150}, begs)
}

func TestCommandText(t *testing.T) {
	doc := proofDocument()

	assert.Equal(t, strings.Join([]string{
		"Lemma and_comm : A /\\ B -> B /\\ A.",
		"intros H.",
		"destruct H.",
		"split.",
		"assumption.",
		"assumption.",
		"Qed.",
	}, "\n"), doc[1].AllText())

	assert.Equal(t, strings.Join([]string{
		"intros H.",
		"destruct H.",
		"split.",
		"assumption.",
		"assumption.",
		"Qed.",
	}, "\n"), doc[1].ProofText())

	assert.Equal(t, "Require Import Setoid.", doc[0].AllText())
	assert.Empty(t, doc[0].ProofText())
}

func TestSpanningLocation(t *testing.T) {
	doc := proofDocument()

	span := doc[1].SpanningLocation()
	assert.Equal(t, 30, span.Beg)
	assert.Equal(t, 144, span.End)
	assert.Equal(t, "comm.v", span.Filename)

	assert.Equal(t, doc[0].Command.Location, doc[0].SpanningLocation())
}

func TestReferencedIdentifiers(t *testing.T) {
	cmd := testSentence("Lemma conj_sym : and A B -> and B A.", 0)
	cmd.QualifiedIdentifiers = []Identifier{
		{Kind: KindLident, Name: "conj_sym"},
		{Kind: KindCRef, Name: "Coq.Init.Logic.and"},
	}
	tac := testSentence("apply conj.", 40)
	tac.QualifiedIdentifiers = []Identifier{
		{Kind: KindCRef, Name: "Coq.Init.Logic.conj"},
		{Kind: KindCRef, Name: "Coq.Init.Logic.and"},
	}
	data := VernacCommandData{Command: cmd, Proofs: []ProofBlock{{tac}}}

	assert.Equal(t, []string{
		"Coq.Init.Logic.and",
		"Coq.Init.Logic.conj",
		"conj_sym",
	}, data.ReferencedIdentifiers())
}

func TestCommandShallowCopy(t *testing.T) {
	errMsg := "The reference xyz was not found."
	st := &Goals{Foreground: []Goal{goal(1, "P")}}
	cmd := testSentence("Lemma p : P.", 0)
	cmd.QualifiedIdentifiers = []Identifier{{Kind: KindLident, Name: "p"}}
	tac := proofSentence("auto.", 20, st)
	tac.Feedback = []string{"auto failed"}
	orig := VernacCommandData{
		Identifiers: []string{"p"},
		Error:       &errMsg,
		Command:     cmd,
		Proofs:      []ProofBlock{{tac}},
	}

	cp := orig.ShallowCopy()
	if diff := cmp.Diff(orig, cp); diff != "" {
		t.Fatalf("copy differs (-orig +copy):\n%s", diff)
	}

	cp.Identifiers[0] = "q"
	cp.Command.QualifiedIdentifiers[0].Name = "q"
	cp.Proofs[0][0].Feedback[0] = "changed"
	cp.Proofs[0][0].GoalsQualifiedIdentifiers[fgLoc(0)] = GoalIdentifiers{}
	*cp.Error = "changed"

	assert.Equal(t, "p", orig.Identifiers[0])
	assert.Equal(t, "p", orig.Command.QualifiedIdentifiers[0].Name)
	assert.Equal(t, "auto failed", orig.Proofs[0][0].Feedback[0])
	assert.Equal(t, goalIdents(goal(1, "P")), orig.Proofs[0][0].GoalsQualifiedIdentifiers[fgLoc(0)])
	assert.Equal(t, "The reference xyz was not found.", *orig.Error)

	// Proof states are shared, not copied.
	assert.Same(t, orig.Proofs[0][0].Goals, cp.Proofs[0][0].Goals)
}

func TestDiffGoalsPatchGoalsRoundTrip(t *testing.T) {
	doc := proofDocument()
	want := proofDocument()

	doc.DiffGoals()

	lemma1 := doc[1].Proofs[0]
	require.NotNil(t, lemma1[0].Goals, "first proof state stays full")
	assert.Nil(t, lemma1[0].GoalsDiff)
	for i := 1; i < len(lemma1); i++ {
		assert.Nil(t, lemma1[i].Goals, "sentence %d", i)
		require.NotNil(t, lemma1[i].GoalsDiff, "sentence %d", i)
	}

	// Solving the first of two goals removes it and shifts the survivor.
	solved := lemma1[4].GoalsDiff
	assert.Equal(t, []GoalLocation{fgLoc(0)}, solved.Removed)
	assert.Equal(t, []MovedGoal{{From: fgLoc(1), To: fgLoc(0)}}, solved.Moved)
	assert.Empty(t, solved.Added)
	assert.Empty(t, lemma1[4].GoalsQualifiedIdentifiers,
		"identifier map keeps added goals only")

	// States chain across commands: the second lemma's opening state diffs
	// against the empty state before the first lemma's Qed.
	lemma2 := doc[2].Proofs[0]
	assert.Nil(t, lemma2[0].Goals)
	require.NotNil(t, lemma2[0].GoalsDiff)
	require.Len(t, lemma2[0].GoalsDiff.Added, 1)
	assert.Equal(t, "True", lemma2[0].GoalsDiff.Added[0].Goal.Type)
	assert.Len(t, lemma2[0].GoalsQualifiedIdentifiers, 1)

	assert.Nil(t, doc[0].Command.Goals)
	assert.Nil(t, doc[0].Command.GoalsDiff)
	assert.Nil(t, doc[3].Command.GoalsDiff)

	require.NoError(t, doc.PatchGoals())
	if diff := cmp.Diff(want, doc, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("document after diff and patch round trip (-want +got):\n%s", diff)
	}
}

func TestPatchGoalsErrors(t *testing.T) {
	orphan := testSentence("auto.", 0)
	orphan.GoalsDiff = &GoalsDiff{Removed: []GoalLocation{fgLoc(0)}}
	err := VernacCommandDataList{{Command: orphan}}.PatchGoals()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no preceding proof state")

	first := testSentence("intros.", 0)
	first.Goals = &Goals{Foreground: []Goal{goal(1, "P")}}
	second := testSentence("auto.", 10)
	second.GoalsDiff = &GoalsDiff{Removed: []GoalLocation{fgLoc(5)}}
	err = VernacCommandDataList{{Command: first}, {Command: second}}.PatchGoals()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patching goals at comm.v: 10-15")
}

func TestWriteCoqFile(t *testing.T) {
	doc := proofDocument()

	var b strings.Builder
	require.NoError(t, doc.WriteCoqFile(&b))
	assert.Equal(t, strings.Join([]string{
		"Require Import Setoid.",
		"Lemma and_comm : A /\\ B -> B /\\ A.",
		"intros H.",
		"destruct H.",
		"split.",
		"assumption.",
		"assumption.",
		"Qed.",
		"Lemma tauto_true : True.",
		"exact I.",
		"Qed.",
		"Print and_comm.",
	}, "\n"), b.String())
}

func TestComputeGoalIdentifiers(t *testing.T) {
	extract := func(sexp string) []Identifier {
		return []Identifier{{Kind: KindSerQualid, Name: "from:" + sexp}}
	}

	term := "fun x => x"
	termSexp := "(Lambda x x)"
	dup := goal(1, "P")
	dup.Hypotheses = []Hypothesis{
		{Idents: []string{"H"}, Type: "Q", TypeSexp: "(App Q)"},
		{Idents: []string{"f"}, Term: &term, Type: "nat -> nat", TermSexp: &termSexp, TypeSexp: "(Arrow nat nat)"},
	}
	blank := Goal{ID: 9, Type: "unserialized"}
	gs := &Goals{
		Foreground: []Goal{dup, blank},
		Background: [][2][]Goal{{nil, {dup}}},
	}

	wantIdents := GoalIdentifiers{
		Goal: []Identifier{{Kind: KindSerQualid, Name: "from:(Prod P)"}},
		Hypotheses: []HypothesisIdentifiers{
			{Type: []Identifier{{Kind: KindSerQualid, Name: "from:(App Q)"}}},
			{
				Term: []Identifier{{Kind: KindSerQualid, Name: "from:(Lambda x x)"}},
				Type: []Identifier{{Kind: KindSerQualid, Name: "from:(Arrow nat nat)"}},
			},
		},
	}

	m := ComputeGoalIdentifiers(gs, nil, extract)
	require.Len(t, m, 2, "goal without a serialized statement is skipped")
	assert.Equal(t, wantIdents, m[fgLoc(0)])
	assert.Equal(t, wantIdents, m[bgLoc(0, 0, false)])

	d := &GoalsDiff{Added: []AddedGoal{{Goal: dup, Locations: []GoalLocation{fgLoc(2)}}}}
	m = ComputeGoalIdentifiers(nil, d, extract)
	require.Len(t, m, 1)
	assert.Equal(t, wantIdents, m[fgLoc(2)])

	assert.Nil(t, ComputeGoalIdentifiers(nil, nil, extract))
	assert.Nil(t, ComputeGoalIdentifiers(gs, nil, nil))
}

func TestGoalIdentMapMarshalSorted(t *testing.T) {
	m := GoalIdentMap{
		bgLoc(0, 0, false):            goalIdents(goal(3, "C")),
		fgLoc(1):                      goalIdents(goal(2, "B")),
		fgLoc(0):                      goalIdents(goal(1, "A")),
		{Category: Shelved, Index: 0}: goalIdents(goal(4, "D")),
	}

	v, err := m.MarshalYAML()
	require.NoError(t, err)
	entries, ok := v.([]goalIdentEntry)
	require.True(t, ok)

	var locs []GoalLocation
	for _, e := range entries {
		locs = append(locs, e.Location)
	}
	assert.Equal(t, []GoalLocation{
		fgLoc(0),
		fgLoc(1),
		bgLoc(0, 0, false),
		{Category: Shelved, Index: 0},
	}, locs)

	cp := m.Copy()
	delete(cp, fgLoc(0))
	assert.Len(t, m, 4)
}
