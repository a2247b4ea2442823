// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/proof-engine/pkg/types"
)

// recordExtraction appends a completed command and checkpoints the session
// so the command can roll back as a unit.
func (e *Extractor) recordExtraction(command *types.VernacCommandData) {
	e.extracted = append(e.extracted, command)
	e.prover.Push()
}

// concludeProof completes accumulation of a conjecture or obligation. It
// returns the compiled command when the whole conjecture is done, or nil
// when an obligation finished but more of its program remains.
func (e *Extractor) concludeProof(ctx context.Context, ids []string) (*types.VernacCommandData, error) {
	if e.preProofID == "" {
		return nil, inconsistencyf("no open conjecture to conclude")
	}
	// Plugins with unusual behavior may conclude several proofs or
	// obligations at once, and a new name need not carry an explicit
	// proof, an automatically solved obligation for example.
	var concluded []string
	seen := map[string]struct{}{}
	for _, id := range append(append([]string(nil), ids...), e.preProofID) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		concluded = append(concluded, id)
	}
	var pairs []finishedProof
	for _, id := range concluded {
		block, err := e.processProofBlock(ctx, e.partialProofStacks[id])
		if err != nil {
			return nil, err
		}
		delete(e.partialProofStacks, id)
		pairs = append(pairs, finishedProof{id: id, proof: block})
	}
	owner, isObligation := e.obligationMap[e.preProofID]
	if !isObligation {
		owner = e.preProofID
	}
	e.finishedProofStacks[owner] = append(e.finishedProofStacks[owner], pairs...)
	if isObligation && !contains(e.localIDs, owner) {
		// the program still has obligations outstanding
		return nil, nil
	}
	finished := e.finishedProofStacks[owner]
	delete(e.finishedProofStacks, owner)
	conjecture, open := e.conjectures[owner]
	if !open {
		return nil, inconsistencyf("concluded conjecture %q was never opened", owner)
	}
	delete(e.conjectures, owner)
	command, err := e.vernacSentence(ctx, conjecture)
	if err != nil {
		return nil, err
	}
	// Uniquify proof names in order of completion, the conjecture last.
	names := make([]string, 0, len(finished)+1)
	seen = map[string]struct{}{owner: {}}
	for _, p := range finished {
		if _, dup := seen[p.id]; dup {
			continue
		}
		seen[p.id] = struct{}{}
		names = append(names, p.id)
	}
	names = append(names, owner)
	var proofs []types.ProofBlock
	for _, p := range finished {
		if len(p.proof) > 0 {
			proofs = append(proofs, p.proof)
		}
	}
	lemma := &types.VernacCommandData{
		Identifiers: names,
		Command:     command,
		Proofs:      proofs,
	}
	for _, name := range names {
		e.definedLemmas[name] = lemma
	}
	return lemma, nil
}

// processProofBlock converts accumulated proof sentences into record form.
func (e *Extractor) processProofBlock(ctx context.Context, block []sentenceState) (types.ProofBlock, error) {
	if len(block) == 0 {
		return nil, nil
	}
	proof := make(types.ProofBlock, 0, len(block))
	for _, st := range block {
		vs, err := e.vernacSentence(ctx, st)
		if err != nil {
			return nil, err
		}
		proof = append(proof, vs)
	}
	return proof, nil
}

// startProofBlock opens accumulation for the conjecture or obligation the
// session reports as newly in progress.
func (e *Extractor) startProofBlock(st sentenceState) error {
	id := e.postProofID
	if id == "" {
		return inconsistencyf("no conjecture is open to start a proof of")
	}
	if _, open := e.partialProofStacks[id]; open {
		return inconsistencyf("the proof of %q has already been started", id)
	}
	if st.commandType == "Obligations" {
		// Obligations accumulate separately but must be tied to the
		// program they ultimately correspond to.
		m := obligationRe.FindStringSubmatch(id)
		if m == nil {
			return inconsistencyf("cannot parse obligation name %q", id)
		}
		programID := m[obligationOwnerIdx]
		e.obligationMap[id] = programID
		e.partialProofStacks[id] = append(e.partialProofStacks[id], st)
		return e.ensureProgramIsConjecture(programID)
	}
	if _, open := e.conjectures[id]; open {
		return inconsistencyf("the proof of %q has already been started", id)
	}
	e.conjectures[id] = st
	e.partialProofStacks[id] = nil
	return nil
}

// startProgram begins accumulation of a program's obligations, or
// completes the program immediately when every obligation resolved on
// declaration.
func (e *Extractor) startProgram(ctx context.Context, st sentenceState, ids []string) (*types.VernacCommandData, error) {
	programID := ""
	for _, id := range ids {
		if obligationRe.MatchString(id) {
			continue
		}
		// A generated name that is not an obligation must be the program
		// itself.
		if programID != "" {
			return nil, inconsistencyf(
				"program emitted %q and %q, but only its own name and obligations are possible",
				programID,
				id)
		}
		programID = id
	}
	if programID == "" {
		// obligations remain
		e.programs = append(e.programs, st)
		return nil, nil
	}
	vs, err := e.vernacSentence(ctx, st)
	if err != nil {
		return nil, err
	}
	return &types.VernacCommandData{Identifiers: ids, Command: vs}, nil
}

// processDefinedObligations records obligations a command defined as a
// side effect and completes the owning program when its own name arrived.
func (e *Extractor) processDefinedObligations(ctx context.Context, st sentenceState, ids []string) (*types.VernacCommandData, error) {
	programID := ""
	for _, id := range ids {
		m := obligationRe.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		if programID == "" {
			// capture only the first obligation as a proof block
			e.partialProofStacks[id] = append(e.partialProofStacks[id], st)
		}
		programID = m[obligationOwnerIdx]
		e.obligationMap[id] = programID
	}
	if programID == "" {
		return nil, nil
	}
	if err := e.ensureProgramIsConjecture(programID); err != nil {
		return nil, err
	}
	if !contains(ids, programID) {
		return nil, nil
	}
	// the program itself was defined
	if e.preProofID == "" {
		e.preProofID = programID
	}
	return e.concludeProof(ctx, ids)
}

// ensureProgramIsConjecture promotes a pending program to an open
// conjecture. Programs do not open proof mode until one of their
// obligations' proofs starts, so the session never reports the program's
// name as the open conjecture.
func (e *Extractor) ensureProgramIsConjecture(programID string) error {
	if _, open := e.conjectures[programID]; open {
		return nil
	}
	// The declaration names the program somewhere in its text. The check
	// is brittle for very short names, but naming conventions in real
	// developments make collisions unlikely.
	for i := len(e.programs) - 1; i >= 0; i-- {
		if !contains(strings.Fields(e.programs[i].text), programID) {
			continue
		}
		e.conjectures[programID] = e.programs[i]
		e.programs = append(e.programs[:i], e.programs[i+1:]...)
		return nil
	}
	return inconsistencyf("program %q is not a known conjecture", programID)
}

// handleAnomalousProof absorbs a proof sentence for a conjecture the
// session reports open despite it being defined already. The sentence is
// attached to the defined command as a fresh proof block when one exists,
// reported by the first return value.
func (e *Extractor) handleAnomalousProof(ctx context.Context, proofID string, st sentenceState) (bool, error) {
	hint := ""
	if obligationRe.MatchString(proofID) {
		hint = " Is there an extra 'Next Obligation.'?"
	}
	e.logger.Warn(
		"Anomaly detected. Conjecture is open but also already defined."+hint,
		zap.String("conjecture", proofID),
		zap.String("sentence", abbreviate(st.text)))
	lemma, defined := e.definedLemmas[proofID]
	if !defined {
		return false, nil
	}
	vs, err := e.vernacSentence(ctx, st)
	if err != nil {
		return false, err
	}
	lemma.Proofs = append(lemma.Proofs, types.ProofBlock{vs})
	return true, nil
}

// isSubproofOf reports whether a generated name belongs to the proof of
// the given conjecture: an abstracted subterm of it or a rewrite scheme.
func isSubproofOf(proofID, id string) bool {
	m := subproofRe.FindStringSubmatch(id)
	if m == nil {
		return rewriteSchemeRe.MatchString(id)
	}
	owner := m[subproofOwnerIdx]
	return owner == proofID || owner == "legacy_pe"
}
