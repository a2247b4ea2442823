// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/proof-engine/internal/document"
	"github.com/pdiddy/proof-engine/pkg/types"
)

func TestRollbackValidation(t *testing.T) {
	p := newFakeProver(t, "8.13.2",
		definitionStep("Definition one := 1.", "one"),
		definitionStep("Definition two := 2.", "two"),
	)
	ex, _ := runExtraction(t, p, Options{}, "Definition one := 1.", "Definition two := 2.")
	ctx := context.Background()

	_, _, err := ex.Rollback(ctx, -1)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, _, err = ex.Rollback(ctx, 2)
	require.ErrorIs(t, err, ErrOutOfRange)

	cmds, pending, err := ex.Rollback(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.Empty(t, pending)
	assert.Equal(t, 2, ex.NumCommands())

	_, _, err = ex.RollbackSentences(ctx, -1)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, _, err = ex.RollbackSentences(ctx, 2)
	require.ErrorIs(t, err, ErrOutOfRange)
	cmds, pending, err = ex.RollbackSentences(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.Empty(t, pending)
}

func TestRollbackLastCommand(t *testing.T) {
	p := newFakeProver(t, "8.13.2",
		definitionStep("Definition one := 1.", "one"),
		definitionStep("Definition two := 2.", "two"),
		definitionStep("Definition two := 2.", "two"),
	)
	docs := sentences("Definition one := 1.", "Definition two := 2.")
	ex := New(p, "test.v", "Test.Pkg", Options{})
	ctx := context.Background()
	for _, s := range docs {
		require.NoError(t, ex.ExtractSentence(ctx, s))
	}

	cmds, pending, err := ex.Rollback(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"two"}, cmds[0].Identifiers)
	assert.Empty(t, pending)
	assert.Equal(t, 1, ex.NumCommands())
	// the prover's environment reverted with the extraction state
	assert.Equal(t, []string{"one"}, p.cur.ids)
	assert.Equal(t, 0, p.TopFrameSize())

	// the rolled-back sentence extracts again cleanly
	require.NoError(t, ex.ExtractSentence(ctx, docs[1]))
	p.exhausted()
	assert.Equal(t, 2, ex.NumCommands())
	assert.Equal(t, []string{"one", "two"}, p.cur.ids)
}

func TestRollbackPendingProof(t *testing.T) {
	g := fg(goalFixture(1, "True"))
	p := newFakeProver(t, "8.13.2",
		definitionStep("Definition one := 1.", "one"),
		lemmaStep("Lemma foo : True.", "foo", g),
		proofStep(g),
	)
	docs := sentences("Definition one := 1.", "Lemma foo : True.", "Proof.")
	ex := New(p, "test.v", "Test.Pkg", Options{Goals: true})
	ctx := context.Background()
	for _, s := range docs {
		require.NoError(t, ex.ExtractSentence(ctx, s))
	}
	require.Len(t, ex.PendingSentences(), 2)

	cmds, pending, err := ex.Rollback(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.Equal(t, []string{"Lemma foo : True.", "Proof."}, sentenceTexts(pending))
	assert.Equal(t, 1, ex.NumCommands())
	assert.Empty(t, ex.PendingSentences())
	assert.Empty(t, p.cur.conjs)
	p.exhausted()
}

func TestRollbackNestedProof(t *testing.T) {
	gOuter := fg(goalFixture(1, "True"))
	gInner := fg(goalFixture(2, "True"))
	solved := &types.Goals{}
	p := newFakeProver(t, "8.13.2",
		lemmaStep("Lemma outer : True.", "outer", gOuter),
		proofStep(gOuter),
		lemmaStep("Lemma inner : True.", "inner", gInner),
		tacticStep("exact I.", solved),
		step{cmd: "Qed.", ast: vernacAST(endExpr), defines: []string{"inner"}, closes: true, goals: gOuter},
		tacticStep("apply inner.", solved),
		qedStep("outer"),
		definitionStep("Definition x := 0.", "x"),
	)
	docs := sentences(
		"Lemma outer : True.", "Proof.",
		"Lemma inner : True.", "exact I.", "Qed.",
		"apply inner.", "Qed.",
		"Definition x := 0.")
	ex := New(p, "test.v", "Test.Pkg", Options{Goals: true})
	ctx := context.Background()
	for _, s := range docs {
		require.NoError(t, ex.ExtractSentence(ctx, s))
	}
	p.exhausted()
	require.Equal(t, 3, ex.NumCommands())

	// rolling back through the outer lemma drags the nested one with it
	cmds, pending, err := ex.Rollback(ctx, 2)
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	assert.Equal(t, []string{"inner"}, cmds[0].Identifiers)
	assert.Equal(t, []string{"outer"}, cmds[1].Identifiers)
	assert.Equal(t, []string{"x"}, cmds[2].Identifiers)
	assert.Empty(t, pending)
	assert.Equal(t, 0, ex.NumCommands())
	assert.Empty(t, p.cur.ids)
	assert.Empty(t, p.cur.conjs)
}

func TestRollbackSentencesWholeCommand(t *testing.T) {
	p := newFakeProver(t, "8.13.2",
		definitionStep("Definition one := 1.", "one"),
		definitionStep("Definition two := 2.", "two"),
	)
	docs := sentences("Definition one := 1.", "Definition two := 2.")
	ex := New(p, "test.v", "Test.Pkg", Options{})
	ctx := context.Background()
	for _, s := range docs {
		require.NoError(t, ex.ExtractSentence(ctx, s))
	}

	cmds, pending, err := ex.RollbackSentences(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "Definition two := 2.", cmds[0].Command.Text)
	assert.Empty(t, pending)
	assert.Equal(t, 1, ex.NumCommands())
	p.exhausted()
}

func TestRollbackSentencesPartialCommand(t *testing.T) {
	g := fg(goalFixture(1, "True"))
	solved := &types.Goals{}
	lemma := func() []step {
		return []step{
			lemmaStep("Lemma foo : True.", "foo", g),
			proofStep(g),
			tacticStep("exact I.", solved),
		}
	}
	script := []step{definitionStep("Definition one := 1.", "one")}
	script = append(script, lemma()...)
	script = append(script, qedStep("foo"))
	script = append(script, lemma()...) // replayed after the rollback
	script = append(script, qedStep("foo"))
	p := newFakeProver(t, "8.13.2", script...)
	docs := sentences(
		"Definition one := 1.",
		"Lemma foo : True.", "Proof.", "exact I.", "Qed.")
	ex := New(p, "test.v", "Test.Pkg", Options{Goals: true})
	ctx := context.Background()
	for _, s := range docs {
		require.NoError(t, ex.ExtractSentence(ctx, s))
	}
	require.Equal(t, 2, ex.NumCommands())

	// undoing one sentence of the four-sentence command rolls the whole
	// command back and replays all but its last sentence
	cmds, pending, err := ex.RollbackSentences(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cmds)
	require.Len(t, pending, 1)
	assert.Equal(t, docs[4], pending[0])
	assert.Equal(t, 1, ex.NumCommands())
	assert.Equal(t, sentenceTexts(docs[1:4]), sentenceTexts(ex.PendingSentences()))

	require.NoError(t, ex.ExtractSentence(ctx, docs[4]))
	p.exhausted()
	cmds2 := ex.Extracted()
	require.Len(t, cmds2, 2)
	require.Len(t, cmds2[1].Proofs, 1)
	assert.Equal(t, []string{"Proof.", "exact I.", "Qed."}, proofTexts(cmds2[1].Proofs[0]))
}

func TestRollbackSentencesIntoPending(t *testing.T) {
	g := fg(goalFixture(1, "True"))

	t.Run("pending sentences only", func(t *testing.T) {
		p := newFakeProver(t, "8.13.2",
			definitionStep("Definition one := 1.", "one"),
			lemmaStep("Lemma foo : True.", "foo", g),
			proofStep(g),
		)
		docs := sentences("Definition one := 1.", "Lemma foo : True.", "Proof.")
		ex := New(p, "test.v", "Test.Pkg", Options{Goals: true})
		ctx := context.Background()
		for _, s := range docs {
			require.NoError(t, ex.ExtractSentence(ctx, s))
		}

		cmds, pending, err := ex.RollbackSentences(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, cmds)
		assert.Equal(t, []string{"Lemma foo : True.", "Proof."}, sentenceTexts(pending))
		assert.Equal(t, 1, ex.NumCommands())
		assert.Empty(t, ex.PendingSentences())
		p.exhausted()
	})

	t.Run("partially undone pending proof", func(t *testing.T) {
		p := newFakeProver(t, "8.13.2",
			definitionStep("Definition one := 1.", "one"),
			lemmaStep("Lemma foo : True.", "foo", g),
			proofStep(g),
			lemmaStep("Lemma foo : True.", "foo", g), // replayed
		)
		docs := sentences("Definition one := 1.", "Lemma foo : True.", "Proof.")
		ex := New(p, "test.v", "Test.Pkg", Options{Goals: true})
		ctx := context.Background()
		for _, s := range docs {
			require.NoError(t, ex.ExtractSentence(ctx, s))
		}

		cmds, pending, err := ex.RollbackSentences(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, cmds)
		assert.Equal(t, []string{"Proof."}, sentenceTexts(pending))
		assert.Equal(t, []string{"Lemma foo : True."}, sentenceTexts(ex.PendingSentences()))
		assert.Equal(t, 1, ex.NumCommands())
		p.exhausted()
	})

	t.Run("no completed command before the proof", func(t *testing.T) {
		p := newFakeProver(t, "8.13.2",
			lemmaStep("Lemma foo : True.", "foo", g),
			proofStep(g),
		)
		docs := sentences("Lemma foo : True.", "Proof.")
		ex := New(p, "test.v", "Test.Pkg", Options{Goals: true})
		ctx := context.Background()
		for _, s := range docs {
			require.NoError(t, ex.ExtractSentence(ctx, s))
		}

		// the open proof is the only rollback unit, and the last unit
		// cannot be rolled back
		_, _, err := ex.RollbackSentences(ctx, 1)
		require.ErrorIs(t, err, ErrOutOfRange)
	})
}

func TestRollbackToLocation(t *testing.T) {
	newFixture := func(t *testing.T) (*fakeProver, *Extractor, []document.Sentence) {
		t.Helper()
		p := newFakeProver(t, "8.13.2",
			definitionStep("Definition one := 1.", "one"),
			definitionStep("Definition two := 2.", "two"),
			definitionStep("Definition three := 3.", "three"),
		)
		docs := sentences(
			"Definition one := 1.",
			"Definition two := 2.",
			"Definition three := 3.")
		ex := New(p, "test.v", "Test.Pkg", Options{})
		for _, s := range docs {
			require.NoError(t, ex.ExtractSentence(context.Background(), s))
		}
		return p, ex, docs
	}

	t.Run("rolls back from the located sentence", func(t *testing.T) {
		p, ex, docs := newFixture(t)
		loc := docs[1].Location
		loc.Filename = "./test.v"
		cmds, pending, err := ex.RollbackToLocation(context.Background(), loc)
		require.NoError(t, err)
		require.Len(t, cmds, 2)
		assert.Equal(t, "Definition two := 2.", cmds[0].Command.Text)
		assert.Equal(t, "Definition three := 3.", cmds[1].Command.Text)
		assert.Empty(t, pending)
		assert.Equal(t, 1, ex.NumCommands())
		p.exhausted()
	})

	t.Run("cannot roll back the whole document", func(t *testing.T) {
		_, ex, docs := newFixture(t)
		_, _, err := ex.RollbackToLocation(context.Background(), docs[0].Location)
		require.ErrorIs(t, err, ErrOutOfRange)
	})

	t.Run("location in another file", func(t *testing.T) {
		_, ex, docs := newFixture(t)
		loc := docs[1].Location
		loc.Filename = "other.v"
		_, _, err := ex.RollbackToLocation(context.Background(), loc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "other.v")
	})
}

func TestRollbackAfterUnfinishedDocument(t *testing.T) {
	g := fg(goalFixture(1, "True"))
	p := newFakeProver(t, "8.13.2",
		definitionStep("Definition one := 1.", "one"),
		lemmaStep("Lemma foo : True.", "foo", g),
	)
	docs := sentences("Definition one := 1.", "Lemma foo : True.")
	ex := New(p, "test.v", "Test.Pkg", Options{Goals: true})
	_, err := ex.ExtractVernacCommands(context.Background(), docs)
	var inc *InconsistencyError
	require.ErrorAs(t, err, &inc)

	// the dangling conjecture rolls back, leaving the good prefix
	cmds, pending, rollErr := ex.Rollback(context.Background(), 1)
	require.NoError(t, rollErr)
	assert.Empty(t, cmds)
	assert.Equal(t, []string{"Lemma foo : True."}, sentenceTexts(pending))
	assert.Equal(t, 1, ex.NumCommands())
	assert.Empty(t, ex.PendingSentences())
	p.exhausted()
}

func TestRollbackDiscardsGoalState(t *testing.T) {
	g := fg(goalFixture(1, "True"))
	p := newFakeProver(t, "8.13.2",
		definitionStep("Definition one := 1.", "one"),
		lemmaStep("Lemma foo : True.", "foo", g),
		proofStep(g),
		definitionStep("Definition two := 2.", "two"),
	)
	docs := sentences(
		"Definition one := 1.",
		"Lemma foo : True.",
		"Proof.",
		"Definition two := 2.")
	ex := New(p, "test.v", "Test.Pkg", Options{Goals: true, GoalsDiff: true})
	ctx := context.Background()
	for _, s := range docs[:3] {
		require.NoError(t, ex.ExtractSentence(ctx, s))
	}

	_, _, err := ex.Rollback(ctx, 1)
	require.NoError(t, err)

	// a sentence after the rollback must not diff against discarded goals
	require.NoError(t, ex.ExtractSentence(ctx, docs[3]))
	p.exhausted()
	cmds := ex.Extracted()
	require.Len(t, cmds, 2)
	assert.Nil(t, cmds[1].Command.Goals)
	assert.Nil(t, cmds[1].Command.GoalsDiff)
}
