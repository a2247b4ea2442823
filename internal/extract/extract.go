// Package extract compiles an interactive proof session into structured
// command data. Sentences of a document are executed one at a time against
// a prover session; the extractor tracks which names each sentence
// introduces, stitches proof sentences to the conjecture they prove, and
// emits one record per completed command.
package extract

import (
	"context"
	"errors"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/pdiddy/proof-engine/internal/align"
	"github.com/pdiddy/proof-engine/internal/document"
	"github.com/pdiddy/proof-engine/internal/ident"
	"github.com/pdiddy/proof-engine/internal/serapi"
	"github.com/pdiddy/proof-engine/internal/sexp"
	"github.com/pdiddy/proof-engine/internal/toolchain"
	"github.com/pdiddy/proof-engine/internal/vernac"
	"github.com/pdiddy/proof-engine/pkg/types"
)

var (
	// obligationRe matches names generated for program obligations,
	// capturing the program they belong to.
	obligationRe       = regexp.MustCompile(`^(?P<proof_id>.+?)_obligation_[0-9]+`)
	obligationOwnerIdx = obligationRe.SubexpIndex("proof_id")

	// subproofRe matches names generated for abstracted subterms of a
	// conjecture.
	subproofRe       = regexp.MustCompile(`^(?P<proof_id>.+?)_subproof[0-9]*`)
	subproofOwnerIdx = subproofRe.SubexpIndex("proof_id")

	// rewriteSchemeRe matches names generated for rewrite schemes, e.g.
	// internal_eq_rew_dep.
	rewriteSchemeRe = regexp.MustCompile(`^internal_` + ident.Pattern)

	// abortRe matches command types that abort a proof.
	abortRe = regexp.MustCompile(`^(?:VernacAbort|VernacAbortAll)`)

	// programAttrRe detects the program attribute on a command.
	programAttrRe = regexp.MustCompile(`[Pp]rogram`)

	// programModeTypeRe matches command types that can generate
	// obligations when the Program Mode flag is set. Official
	// documentation limits these to definitions and fixpoints, but the
	// documentation may be incomplete.
	programModeTypeRe = regexp.MustCompile(
		`^(?:VernacDefinition|VernacFixpoint|VernacCoFixpoint)`)

	saveRe       = regexp.MustCompile(`^Save\s+(?P<ident>` + ident.Pattern + `)\s*\.`)
	saveIdentIdx = saveRe.SubexpIndex("ident")

	printingOptionsRe = regexp.MustCompile(`^(?:Set|Unset)\s+Printing\s+.*\.`)
)

// Prover is the slice of the interactive session the extractor drives.
// *serapi.Session satisfies it; tests supply scripted implementations.
type Prover interface {
	Execute(ctx context.Context, cmd string) ([]string, error)
	ExecuteWithAST(ctx context.Context, cmd string) ([]string, *sexp.Node, error)
	TryExecute(ctx context.Context, cmd string) ([]string, error)
	QueryAST(ctx context.Context, cmd string) (*sexp.Node, error)
	QueryGoals(ctx context.Context) (*types.Goals, error)
	QueryFlag(ctx context.Context, name string) (bool, error)
	QueryFullQualid(ctx context.Context, id string) (string, error)
	GetLocalIDs(ctx context.Context) ([]string, error)
	GetConjectureID(ctx context.Context) (string, error)
	Push()
	Pop(ctx context.Context) error
	Pull(index int) (int, error)
	TopFrameSize() int
	Version() toolchain.Version
}

// Options configure what gets recorded alongside each sentence.
type Options struct {
	// Goals records the proof state before each sentence.
	Goals bool

	// QualifiedIdents resolves the names referenced by each sentence and
	// its goals to fully qualified form.
	QualifiedIdents bool

	// GoalsDiff stores goals as a change against the previous sentence's
	// goals whenever both ends are known.
	GoalsDiff bool

	// Logger receives progress and anomaly reports. Nil disables logging.
	Logger *zap.Logger
}

// DefaultOptions enables every recording feature.
func DefaultOptions() Options {
	return Options{Goals: true, QualifiedIdents: true, GoalsDiff: true}
}

// sentenceState is an executed sentence awaiting assembly into a command
// record, together with the goals that preceded it.
type sentenceState struct {
	text        string
	location    types.Loc
	ast         string
	identifiers []types.Identifier
	goals       *types.Goals
	goalsDiff   *types.GoalsDiff
	commandType string
	feedback    []string
}

// finishedProof is one completed proof block labeled with the name it
// proves.
type finishedProof struct {
	id    string
	proof types.ProofBlock
}

// Extractor drives a prover session sentence by sentence and compiles the
// results into extraction records.
//
// Proof assembly state spans several tables because proofs need not be
// contiguous: obligations of one program interleave with other commands,
// and nested proofs complete before the conjecture enclosing them.
type Extractor struct {
	prover Prover
	opts   Options
	logger *zap.Logger

	filename string
	modpath  string

	// extracted holds completed commands in order of completion. Entries
	// are shared with definedLemmas so anomaly repairs reach both.
	extracted []*types.VernacCommandData

	// programs holds commands that declared a program and await promotion
	// to conjectures by their first obligation.
	programs []sentenceState

	// conjectures maps each open conjecture to its opening sentence.
	conjectures map[string]sentenceState

	// partialProofStacks accumulates proof sentences per open proof.
	partialProofStacks map[string][]sentenceState

	// obligationMap maps obligation names to the program they discharge.
	obligationMap map[string]string

	// finishedProofStacks collects completed proof blocks per conjecture
	// until the conjecture itself completes.
	finishedProofStacks map[string][]finishedProof

	// definedLemmas indexes recorded commands by every name they define.
	definedLemmas map[string]*types.VernacCommandData

	// expandedIDs caches fully qualified spellings of global names. A
	// redefinition evicts the shadowed entry.
	expandedIDs map[string]string

	localIDs    []string
	preProofID  string
	postProofID string
	preGoals    *types.Goals
	postGoals   *types.Goals
}

// New prepares extraction of the named document over an established prover
// session. The session's lifetime belongs to the caller; the extractor
// only grows its document and checkpoint stack. modpath is the logical
// library path of the document as the session's IQR bindings resolve it.
func New(p Prover, filename, modpath string, opts Options) *Extractor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	e := &Extractor{
		prover:              p,
		opts:                opts,
		logger:              opts.Logger,
		filename:            filename,
		modpath:             modpath,
		conjectures:         map[string]sentenceState{},
		partialProofStacks:  map[string][]sentenceState{},
		obligationMap:       map[string]string{},
		finishedProofStacks: map[string][]finishedProof{},
		definedLemmas:       map[string]*types.VernacCommandData{},
		expandedIDs:         map[string]string{},
	}
	// checkpoint so the first command can roll back
	p.Push()
	// the implicit top module must not read as a newly emitted name
	e.localIDs = append(e.localIDs, serapi.TopLogical)
	return e
}

// ExtractVernacCommands executes sentences in order and compiles them into
// command records. Errors carry the offending sentence. A document that
// ends mid-command is an inconsistency.
func (e *Extractor) ExtractVernacCommands(ctx context.Context, sentences []document.Sentence) (types.VernacCommandDataList, error) {
	for _, sentence := range sentences {
		if err := e.ExtractSentence(ctx, sentence); err != nil {
			return nil, &SentenceError{
				Text:     sentence.Text,
				Location: sentence.Location,
				Err:      err,
			}
		}
	}
	if e.isPendingExtraction() {
		return nil, inconsistencyf("document ended with an unfinished proof")
	}
	return e.Extracted(), nil
}

// ExtractSentence executes one sentence and folds it into the extraction
// state. A completed command is appended to the extracted list; a sentence
// inside an open proof accumulates until its conjecture concludes.
func (e *Extractor) ExtractSentence(ctx context.Context, sentence document.Sentence) error {
	e.logger.Debug(
		"Extracting sentence",
		zap.String("text", abbreviate(sentence.Text)),
		zap.String("location", sentence.Location.String()))
	feedback, astNode, err := e.executeCmd(ctx, sentence.Text)
	if err != nil {
		return err
	}
	ast := astNode.String()
	// Resolve referenced names before updateIDs shadows redefinitions.
	identifiers, err := e.identifiers(ctx, ast)
	if err != nil {
		return err
	}
	ids, err := e.updateIDs(ctx)
	if err != nil {
		return err
	}
	proofIDChanged := e.postProofID != e.preProofID
	var goals *types.Goals
	var goalsDiff *types.GoalsDiff
	if e.opts.GoalsDiff && e.preGoals != nil && e.postGoals != nil {
		diff := types.ComputeGoalsDiff(e.preGoals, e.postGoals)
		goalsDiff = &diff
	} else {
		goals = e.postGoals
	}
	e.preGoals = e.postGoals
	info, err := vernac.Analyze(astNode)
	if err != nil {
		return err
	}
	commandType := info.CommandType()
	isProofAborted := abortRe.MatchString(commandType)
	isProgram := false
	for _, attr := range info.Attributes {
		if programAttrRe.MatchString(attr) {
			isProgram = true
			break
		}
	}
	if !isProgram && programModeTypeRe.MatchString(commandType) {
		if isProgram, err = e.prover.QueryFlag(ctx, "Program Mode"); err != nil {
			return err
		}
	}
	isSubproof := false
	if e.postProofID != "" {
		for _, id := range ids {
			if isSubproofOf(e.postProofID, id) {
				isSubproof = true
				break
			}
		}
	}
	st := sentenceState{
		text:        sentence.Text,
		location:    sentence.Location,
		ast:         ast,
		identifiers: identifiers,
		goals:       goals,
		goalsDiff:   goalsDiff,
		commandType: commandType,
		feedback:    feedback,
	}

	switch {
	case isProgram:
		// Programs do not open proof mode, so postProofID may be empty
		// or name an unrelated conjecture.
		program, err := e.startProgram(ctx, st, ids)
		if err != nil {
			return err
		}
		if program != nil {
			e.recordExtraction(program)
		}
	case proofIDChanged:
		if err := e.extractPostGoals(ctx); err != nil {
			return err
		}
		if len(ids) > 0 || isProofAborted {
			// a proof concluded or was aborted
			if stack, open := e.partialProofStacks[e.preProofID]; open {
				e.partialProofStacks[e.preProofID] = append(stack, st)
				lemma, err := e.concludeProof(ctx, ids)
				if err != nil {
					return err
				}
				if lemma != nil {
					e.recordExtraction(lemma)
				}
				return nil
			}
			if e.preProofID == "" {
				return inconsistencyf(
					"%q concluded a proof but no conjecture is open",
					sentence.Text)
			}
			already, err := e.handleAnomalousProof(ctx, e.preProofID, st)
			if err != nil {
				return err
			}
			if already {
				return nil
			}
		}
		if e.postProofID != "" {
			if _, open := e.partialProofStacks[e.postProofID]; !open {
				// a new proof or obligation opens
				return e.startProofBlock(st)
			}
		}
		stack, open := e.partialProofStacks[e.postProofID]
		if !open {
			return inconsistencyf("conjecture %q should be in progress", e.postProofID)
		}
		// a delayed proof continues
		e.partialProofStacks[e.postProofID] = append(stack, st)
	case e.postProofID != "" && (len(ids) == 0 || isSubproof):
		// an open proof continues
		if stack, open := e.partialProofStacks[e.postProofID]; open {
			if err := e.extractPostGoals(ctx); err != nil {
				return err
			}
			e.partialProofStacks[e.postProofID] = append(stack, st)
			return nil
		}
		if _, defined := e.definedLemmas[e.postProofID]; !defined {
			return inconsistencyf("conjecture %q should be defined", e.postProofID)
		}
		if _, err := e.handleAnomalousProof(ctx, e.postProofID, st); err != nil {
			return err
		}
	default:
		// Not in a proof, or the sentence defined something as a side
		// effect. Obligations may have advanced.
		command, err := e.processDefinedObligations(ctx, st, ids)
		if err != nil {
			return err
		}
		if command == nil {
			vs, err := e.vernacSentence(ctx, st)
			if err != nil {
				return err
			}
			command = &types.VernacCommandData{Identifiers: ids, Command: vs}
		}
		e.recordExtraction(command)
	}
	return nil
}

// executeCmd runs one sentence in the session, returning its feedback and
// parsed AST.
//
// Printing option changes are parsed but not executed, so the session's
// pinned printing configuration stays intact. On provers newer than
// 8.14.1, opaque proof enders are re-executed in a transparent form:
// printing the environment otherwise fails with "Cannot access delayed
// opaque proof" once a Qed or Save has landed.
func (e *Extractor) executeCmd(ctx context.Context, cmd string) ([]string, *sexp.Node, error) {
	replaceOpaque := toolchain.Version("8.14.1").Less(e.prover.Version())
	admitQed := replaceOpaque && cmd == "Qed."
	savedIdent := ""
	if replaceOpaque {
		if m := saveRe.FindStringSubmatch(cmd); m != nil {
			savedIdent = m[saveIdentIdx]
		}
	}
	if admitQed || savedIdent != "" {
		e.prover.Push()
	}
	var feedback []string
	var ast *sexp.Node
	var err error
	if printingOptionsRe.MatchString(cmd) {
		ast, err = e.prover.QueryAST(ctx, cmd)
	} else {
		feedback, ast, err = e.prover.ExecuteWithAST(ctx, cmd)
	}
	if err != nil {
		return nil, nil, err
	}
	switch {
	case admitQed:
		if err := e.prover.Pop(ctx); err != nil {
			return nil, nil, err
		}
		if ok, err := e.tryAll(ctx, "Admitted."); err != nil {
			return nil, nil, err
		} else if !ok {
			// Admitted is rejected for Derived proofs. Keep the
			// opaque ending as written in that case.
			if _, err := e.prover.Execute(ctx, cmd); err != nil {
				return nil, nil, err
			}
		}
	case savedIdent != "":
		if err := e.prover.Pop(ctx); err != nil {
			return nil, nil, err
		}
		e.prover.Push()
		ok, err := e.tryAll(ctx, "Defined "+savedIdent+".", "Opaque "+savedIdent+".")
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			if err := e.prover.Pop(ctx); err != nil {
				return nil, nil, err
			}
			if _, err := e.prover.Execute(ctx, cmd); err != nil {
				return nil, nil, err
			}
		} else if _, err := e.prover.Pull(-1); err != nil {
			return nil, nil, err
		}
	}
	return feedback, ast, nil
}

// tryAll executes commands in order, reporting false on the first one the
// prover rejects. Failures other than prover rejections return an error.
func (e *Extractor) tryAll(ctx context.Context, cmds ...string) (bool, error) {
	for _, cmd := range cmds {
		if _, err := e.prover.TryExecute(ctx, cmd); err != nil {
			var coqExn *serapi.CoqExn
			if !errors.As(err, &coqExn) {
				return false, err
			}
			return false, nil
		}
	}
	return true, nil
}

// extractPostGoals refreshes the post-execution proof state when goal
// recording is enabled.
func (e *Extractor) extractPostGoals(ctx context.Context) error {
	if !e.opts.Goals {
		return nil
	}
	goals, err := e.prover.QueryGoals(ctx)
	if err != nil {
		return err
	}
	e.postGoals = goals
	return nil
}

// updateIDs refreshes the known local names and reports the names the last
// command introduced. Redefinitions evict the shadowed spelling from the
// expansion cache.
func (e *Extractor) updateIDs(ctx context.Context) ([]string, error) {
	allIDs, err := e.prover.GetLocalIDs(ctx)
	if err != nil {
		return nil, err
	}
	// New names align as a trailing run of additions.
	alignment := align.SerapiIDs(e.localIDs, allIDs)
	var ids []string
	for i := len(alignment) - 1; i >= 0; i-- {
		if alignment[i].A != -1 {
			break
		}
		ids = append(ids, allIDs[alignment[i].B])
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	e.localIDs = allIDs
	for _, id := range ids {
		delete(e.expandedIDs, id)
	}
	e.preProofID = e.postProofID
	if e.postProofID, err = e.prover.GetConjectureID(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// identifiers resolves the qualified names referenced by a serialized AST,
// sharing the session-wide expansion cache.
func (e *Extractor) identifiers(ctx context.Context, ast string) ([]types.Identifier, error) {
	if !e.opts.QualifiedIdents {
		return nil, nil
	}
	return ident.ExtractQualified(ctx, e.prover, e.modpath, ast, e.expandedIDs)
}

// goalIdentifiers computes the per-goal qualified name map for a
// sentence's goals.
func (e *Extractor) goalIdentifiers(ctx context.Context, goals *types.Goals, diff *types.GoalsDiff) (types.GoalIdentMap, error) {
	if !e.opts.QualifiedIdents {
		return nil, nil
	}
	var firstErr error
	extract := func(s string) []types.Identifier {
		if firstErr != nil {
			return nil
		}
		ids, err := ident.ExtractQualified(ctx, e.prover, e.modpath, s, e.expandedIDs)
		if err != nil {
			firstErr = err
			return nil
		}
		return ids
	}
	m := types.ComputeGoalIdentifiers(goals, diff, extract)
	if firstErr != nil {
		return nil, firstErr
	}
	return m, nil
}

// vernacSentence converts an executed sentence into its record form.
func (e *Extractor) vernacSentence(ctx context.Context, st sentenceState) (types.VernacSentence, error) {
	goalIdents, err := e.goalIdentifiers(ctx, st.goals, st.goalsDiff)
	if err != nil {
		return types.VernacSentence{}, err
	}
	return types.VernacSentence{
		Text:                      st.text,
		AST:                       st.ast,
		QualifiedIdentifiers:      st.identifiers,
		Location:                  st.location,
		CommandType:               st.commandType,
		Goals:                     st.goals,
		GoalsDiff:                 st.goalsDiff,
		Feedback:                  st.feedback,
		GoalsQualifiedIdentifiers: goalIdents,
	}, nil
}

// Extracted returns the commands compiled so far in order of completion.
// A nested proof completes before the command enclosing it.
func (e *Extractor) Extracted() types.VernacCommandDataList {
	out := make(types.VernacCommandDataList, len(e.extracted))
	for i, c := range e.extracted {
		out[i] = *c
	}
	return out
}

// NumCommands reports the number of completely extracted commands.
func (e *Extractor) NumCommands() int { return len(e.extracted) }

// PendingSentences returns the sentences of the command currently
// mid-extraction, in document order.
func (e *Extractor) PendingSentences() []document.Sentence {
	var out []document.Sentence
	for _, st := range e.conjectures {
		out = append(out, document.Sentence{Text: st.text, Location: st.location})
	}
	for _, stack := range e.partialProofStacks {
		for _, st := range stack {
			out = append(out, document.Sentence{Text: st.text, Location: st.location})
		}
	}
	for _, pairs := range e.finishedProofStacks {
		for _, p := range pairs {
			for _, vs := range p.proof {
				out = append(out, document.Sentence{Text: vs.Text, Location: vs.Location})
			}
		}
	}
	for _, st := range e.programs {
		out = append(out, document.Sentence{Text: st.text, Location: st.location})
	}
	sortSentences(out)
	return out
}

// ExtractedSentences returns every executed sentence in document order:
// the sentences of completed commands followed by any pending ones.
func (e *Extractor) ExtractedSentences() []document.Sentence {
	return append(commandSentences(e.Extracted()), e.PendingSentences()...)
}

// isPendingExtraction reports whether a command is mid-extraction.
func (e *Extractor) isPendingExtraction() bool {
	return len(e.conjectures) > 0 || len(e.partialProofStacks) > 0 ||
		len(e.finishedProofStacks) > 0 || len(e.programs) > 0
}

// commandSentences flattens commands to their sentences in document order.
func commandSentences(commands types.VernacCommandDataList) []document.Sentence {
	var out []document.Sentence
	for i := range commands {
		for _, vs := range commands[i].SortedSentences() {
			out = append(out, document.Sentence{Text: vs.Text, Location: vs.Location})
		}
	}
	sortSentences(out)
	return out
}

func sortSentences(sentences []document.Sentence) {
	sort.SliceStable(sentences, func(i, j int) bool {
		return types.CompareLoc(sentences[i].Location, sentences[j].Location) < 0
	})
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func abbreviate(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
