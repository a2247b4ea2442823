// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pdiddy/proof-engine/internal/document"
	"github.com/pdiddy/proof-engine/pkg/types"
)

// Rollback undoes the extraction and execution of the last n unnested
// commands. A command mid-extraction counts as one: its sentences are
// returned and its accumulation discarded, leaving the state just after
// the previous completed command. Nested proofs inside the rolled-back
// span are undone with it.
func (e *Extractor) Rollback(ctx context.Context, n int) (types.VernacCommandDataList, []document.Sentence, error) {
	total := len(e.extracted)
	if e.isPendingExtraction() {
		total++
	}
	if n < 0 || n >= total {
		return nil, nil, fmt.Errorf("%w: %d commands of %d", ErrOutOfRange, n, total)
	}
	var popped []*types.VernacCommandData
	var pending []document.Sentence
	if e.prover.TopFrameSize() == 0 {
		// drop the empty checkpoint made after the last command
		if err := e.prover.Pop(ctx); err != nil {
			return nil, nil, err
		}
	}
	for i := 0; i < n; i++ {
		if err := e.prover.Pop(ctx); err != nil {
			return nil, nil, err
		}
		if e.isPendingExtraction() {
			pending = append(pending, e.PendingSentences()...)
			e.conjectures = map[string]sentenceState{}
			e.partialProofStacks = map[string][]sentenceState{}
			e.finishedProofStacks = map[string][]finishedProof{}
			e.programs = nil
		} else {
			last := e.extracted[len(e.extracted)-1]
			e.extracted = e.extracted[:len(e.extracted)-1]
			popped = append(popped, last)
		}
		// A completed command that starts after the earliest rolled-back
		// sentence is nested inside the rolled-back span and goes too.
		minLoc, ok := minLocation(pending, popped)
		for ok && len(e.extracted) > 0 {
			last := e.extracted[len(e.extracted)-1]
			if types.CompareLoc(minLoc, last.Command.Location) >= 0 {
				break
			}
			e.extracted = e.extracted[:len(e.extracted)-1]
			if err := e.prover.Pop(ctx); err != nil {
				return nil, nil, err
			}
			popped = append(popped, last)
		}
	}
	// popped is in reverse completion order
	for i, j := 0, len(popped)-1; i < j; i, j = i+1, j-1 {
		popped[i], popped[j] = popped[j], popped[i]
	}
	// An unnested command boundary is outside proof mode, with no goals
	// and no open conjecture.
	e.postProofID = ""
	e.postGoals = nil
	if _, err := e.updateIDs(ctx); err != nil {
		return nil, nil, err
	}
	e.prover.Push()
	out := make(types.VernacCommandDataList, len(popped))
	for i, c := range popped {
		out[i] = *c
	}
	return out, pending, nil
}

// minLocation returns the earliest location among the rolled-back
// sentences: the pending ones plus every sentence of the popped commands.
func minLocation(pending []document.Sentence, popped []*types.VernacCommandData) (types.Loc, bool) {
	var min types.Loc
	found := false
	consider := func(loc types.Loc) {
		if !found || types.CompareLoc(loc, min) < 0 {
			min, found = loc, true
		}
	}
	for _, s := range pending {
		consider(s.Location)
	}
	for _, c := range popped {
		for _, vs := range c.SortedSentences() {
			consider(vs.Location)
		}
	}
	return min, found
}

// RollbackSentences undoes extraction and execution of the last n
// sentences, rolling back whole commands and replaying the leading
// sentences of the last one as needed. The returned sentences are those
// left pending afterwards: prior pending sentences plus the unreplayed
// sentences of partially undone commands.
func (e *Extractor) RollbackSentences(ctx context.Context, n int) (types.VernacCommandDataList, []document.Sentence, error) {
	total := len(e.ExtractedSentences())
	if n < 0 || n >= total {
		return nil, nil, fmt.Errorf("%w: %d sentences of %d", ErrOutOfRange, n, total)
	}
	var all []document.Sentence
	var pending []document.Sentence
	pendingSet := false
	var commands types.VernacCommandDataList
	for len(all) < n {
		moreCommands, morePending, err := e.Rollback(ctx, 1)
		if err != nil {
			return nil, nil, err
		}
		commands = append(commands, moreCommands...)
		all = append(all, morePending...)
		if !pendingSet {
			pending = morePending
			pendingSet = true
		} else if len(morePending) > 0 {
			return nil, nil, inconsistencyf("pending sentences after the first rollback")
		}
		all = append(all, commandSentences(moreCommands)...)
	}
	sort.SliceStable(commands, func(i, j int) bool {
		return types.CompareLoc(commands[i].Command.Location, commands[j].Command.Location) < 0
	})
	if len(all) > n {
		// Whole commands rolled back; replay their leading sentences
		// until only n stay undone.
		sortSentences(all)
		numReplayed := len(all) - n
		for _, sentence := range all[:numReplayed] {
			if err := e.ExtractSentence(ctx, sentence); err != nil {
				return nil, nil, err
			}
		}
		if len(pending) > n {
			// no completed command was rolled back
			pending = pending[numReplayed:]
		} else {
			// The outermost partially undone command is the last one
			// whose span contains the last replayed sentence.
			last := all[numReplayed-1]
			partialIdx := 0
			for i := range commands {
				if commands[i].SpanningLocation().Contains(last.Location) {
					partialIdx = i
				}
			}
			partial := commands[:partialIdx+1]
			commands = commands[partialIdx+1:]
			partialSentences := commandSentences(partial)[numReplayed:]
			pending = append(partialSentences, pending...)
		}
	}
	return commands, pending, nil
}

// RollbackToLocation rolls extraction back to just before the first
// sentence starting at or after the given location, which must lie in the
// document under extraction.
func (e *Extractor) RollbackToLocation(ctx context.Context, loc types.Loc) (types.VernacCommandDataList, []document.Sentence, error) {
	if filepath.Clean(loc.Filename) != filepath.Clean(e.filename) {
		return nil, nil, fmt.Errorf(
			"extract: location names %q, extracting %q",
			loc.Filename,
			e.filename)
	}
	sentences := e.ExtractedSentences()
	// restrict the location to its beginning point
	start := types.Loc{
		Filename:   loc.Filename,
		LineNo:     loc.LineNo,
		BolPos:     loc.BolPos,
		LineNoLast: loc.LineNo,
		BolPosLast: loc.BolPos,
		Beg:        loc.Beg,
		End:        loc.Beg,
	}
	idx := sort.Search(len(sentences), func(i int) bool {
		return types.CompareLoc(sentences[i].Location, start) >= 0
	})
	return e.RollbackSentences(ctx, len(sentences)-idx)
}
