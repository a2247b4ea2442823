// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package serapi drives an interactive sertop subprocess over its
// s-expression protocol: adding and executing sentences, rolling back to
// checkpoints, and querying goals, types, and name bindings.
package serapi

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/proof-engine/internal/sexp"
	"github.com/pdiddy/proof-engine/internal/toolchain"
)

// readyUnit is the feedback sertop emits for the implicit empty document
// once it is ready to accept commands.
const readyUnit = "(Feedback((doc_id 0)(span_id 1)(route 0)(contents Processed)))"

// TopLogical is the logical name of the prover's implicit top module. Names
// defined by executed sentences are qualified under it.
const TopLogical = "SerTop"

// printingOptions pins the textual form the prover uses for printed terms,
// so printed goals and types are stable enough to parse and compare.
var printingOptions = []string{
	"Unset Printing Notations.",
	"Unset Printing Wildcard.",
	"Set Printing Coercions.",
	"Unset Printing Allow Match Default Clause.",
	"Unset Printing Factorizable Match Patterns.",
	"Unset Printing Compact Contexts.",
	"Set Printing Implicit.",
	"Set Printing Depth 999999.",
	"Unset Printing Records.",
}

// Session is an interactive prover session: sentences go in, proof states
// and query results come out. A stack of checkpoint frames records which
// document states each open scope added, so a scope can be rolled back as
// a unit. A Session is not safe for concurrent use.
type Session struct {
	logger  *zap.Logger
	tr      transport
	version toolchain.Version
	timeout time.Duration

	// frames is the checkpoint stack. Each frame lists the state ids
	// registered since the matching Push, in execution order.
	frames [][]int

	astCache    *lru[*sexp.Node]
	constrCache *lru[string]

	dead bool
}

// Start launches a prover process and performs the startup handshake.
func Start(ctx context.Context, opts Options) (*Session, error) {
	args, err := opts.SertopArgs(opts.Prover.Version)
	if err != nil {
		return nil, err
	}
	startup, err := opts.SertopCommands(opts.Prover.Version)
	if err != nil {
		return nil, err
	}
	tr, err := startProc(opts.Prover.Path, args, opts.Prover.Env, opts.Dir)
	if err != nil {
		return nil, err
	}
	s := newSession(tr, opts)
	if err := s.init(ctx, startup); err != nil {
		tr.Close()
		return nil, err
	}
	return s, nil
}

func newSession(tr transport, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Session{
		logger:      logger,
		tr:          tr,
		version:     opts.Prover.Version,
		timeout:     timeout,
		astCache:    newLRU[*sexp.Node](defaultCacheSize),
		constrCache: newLRU[string](defaultCacheSize),
	}
}

// init waits for the prover to announce the empty document, wakes the read
// loop, applies the startup commands and the printing options, and seeds
// the checkpoint stack.
func (s *Session) init(ctx context.Context, startup []StartupCommand) error {
	recvCtx, cancel := context.WithTimeout(ctx, s.timeout)
	unit, err := s.tr.Recv(recvCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("serapi: waiting for prover startup: %w", err)
	}
	if unit != readyUnit {
		return &ProtocolError{Reason: "unexpected startup unit", Unit: unit}
	}
	if _, _, err := s.send(ctx, "Noop"); err != nil {
		return err
	}
	for _, cmd := range startup {
		if cmd.Protocol {
			if _, _, err := s.send(ctx, cmd.Cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := s.Execute(ctx, cmd.Cmd); err != nil {
			return fmt.Errorf("serapi: applying %q: %w", cmd.Cmd, err)
		}
	}
	for _, opt := range printingOptions {
		if _, err := s.Execute(ctx, opt); err != nil {
			return fmt.Errorf("serapi: setting %q: %w", opt, err)
		}
	}
	s.Push()
	return nil
}

// Version reports the toolchain version the session was started with.
func (s *Session) Version() toolchain.Version { return s.version }

// Dead reports whether the session can no longer be used.
func (s *Session) Dead() bool { return s.dead }

// Shutdown terminates the prover process. It is idempotent and safe to call
// on a dead session.
func (s *Session) Shutdown() error {
	s.dead = true
	return s.tr.Close()
}

// send submits one protocol command and collects the full exchange: every
// answer unit in order, and the printed content of every message feedback
// unit. The exchange ends at the Completed answer. A CoqExn answer is
// returned as a *CoqExn error once the exchange has drained, leaving the
// connection synchronized. Any framing violation kills the session.
func (s *Session) send(ctx context.Context, cmd string) ([]*sexp.Node, []string, error) {
	if s.dead {
		return nil, nil, ErrDeadSession
	}
	if strings.Contains(cmd, "\n") {
		return nil, nil, fmt.Errorf("serapi: command must be a single line: %q", cmd)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Debug("Sending command", zap.String("cmd", abbreviate(cmd)))
	if err := s.tr.Send(cmd); err != nil {
		s.dead = true
		return nil, nil, fmt.Errorf("serapi: writing to prover: %w", err)
	}

	var (
		responses []*sexp.Node
		feedback  []string
		exn       error
		tag       = -1
	)
	for {
		unit, err := s.tr.Recv(ctx)
		if err != nil {
			s.dead = true
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, nil, &TimeoutError{Cmd: cmd, After: s.timeout}
			}
			return nil, nil, err
		}
		node, err := parseUnit(unit)
		if err != nil {
			s.dead = true
			return nil, nil, err
		}
		head, err := node.Child(0)
		if err != nil {
			s.dead = true
			return nil, nil, &ProtocolError{Reason: "empty response unit", Unit: unit}
		}
		switch {
		case head.IsAtomText("Feedback"):
			if msg, ok := feedbackMessage(node); ok {
				feedback = append(feedback, msg)
			}
		case head.IsAtomText("Answer"):
			t, payload, err := answerParts(node, unit)
			if err != nil {
				s.dead = true
				return nil, nil, err
			}
			if tag == -1 {
				tag = t
			} else if t != tag {
				s.dead = true
				return nil, nil, &ProtocolError{
					Reason: fmt.Sprintf("answer tag %d inside exchange %d", t, tag),
					Unit:   unit,
				}
			}
			responses = append(responses, node)
			if payload.IsAtomText("Completed") {
				return responses, feedback, exn
			}
			if payload.IsList() && payload.Len() > 0 && payload.Items()[0].IsAtomText("CoqExn") {
				ce, err := coqExnFromPayload(payload)
				if err != nil {
					s.dead = true
					return nil, nil, err
				}
				exn = ce
			}
		default:
			s.dead = true
			return nil, nil, &ProtocolError{Reason: "unit is neither an answer nor feedback", Unit: unit}
		}
	}
}

// unitStartRe locates a response payload inside a unit polluted by leading
// terminal noise.
var unitStartRe = regexp.MustCompile(`\(Answer|\(Feedback`)

func parseUnit(unit string) (*sexp.Node, error) {
	if !strings.HasPrefix(unit, "(Feedback") && !strings.HasPrefix(unit, "(Answer") {
		loc := unitStartRe.FindStringIndex(unit)
		if loc == nil {
			return nil, &ProtocolError{Reason: "unit carries no response", Unit: unit}
		}
		unit = unit[loc[0]:]
		if !strings.HasSuffix(unit, ")") {
			return nil, &ProtocolError{Reason: "truncated response unit", Unit: unit}
		}
	}
	node, err := sexp.Parse(unit)
	if err != nil {
		return nil, &ProtocolError{Reason: err.Error(), Unit: unit}
	}
	return node, nil
}

// answerParts splits an answer unit into its tag and payload.
func answerParts(node *sexp.Node, unit string) (int, *sexp.Node, error) {
	if node.Len() != 3 {
		return 0, nil, &ProtocolError{Reason: "malformed answer", Unit: unit}
	}
	tag, err := strconv.Atoi(node.Items()[1].Text())
	if err != nil {
		return 0, nil, &ProtocolError{Reason: "answer tag is not a number", Unit: unit}
	}
	return tag, node.Items()[2], nil
}

// feedbackMessage extracts the printed text of a Message feedback unit.
// Every other feedback kind (Processed, AddedAxiom, ...) carries none.
func feedbackMessage(node *sexp.Node) (string, bool) {
	contents, err := node.At(1, 3, 1)
	if err != nil || !contents.IsList() || contents.Len() < 5 {
		return "", false
	}
	if !contents.Items()[0].IsAtomText("Message") {
		return "", false
	}
	str, err := contents.At(4, 1)
	if err != nil {
		return "", false
	}
	return str.Unquoted(), true
}

func coqExnFromPayload(payload *sexp.Node) (*CoqExn, error) {
	msg, err := payload.At(1, 5, 1)
	if err != nil {
		return nil, &ProtocolError{Reason: "malformed CoqExn payload", Unit: payload.String()}
	}
	return &CoqExn{Message: msg.Unquoted(), Sexp: payload.String()}, nil
}

// objList returns the object list of an exchange, the payload of the answer
// between Ack and Completed.
func objList(responses []*sexp.Node) (*sexp.Node, error) {
	if len(responses) < 2 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("expected an object answer, got %d answers", len(responses))}
	}
	payload, err := responses[1].Child(2)
	if err != nil {
		return nil, &ProtocolError{Reason: "answer without payload", Unit: responses[1].String()}
	}
	if payload.Len() != 2 || !payload.Items()[0].IsAtomText("ObjList") {
		return nil, &ProtocolError{Reason: "answer payload is not an ObjList", Unit: responses[1].String()}
	}
	return payload.Items()[1], nil
}

// SendAdd submits a sentence to the prover's document without executing it.
// The new state id is registered in the top checkpoint frame.
func (s *Session) SendAdd(ctx context.Context, cmd string) (int, error) {
	responses, _, err := s.send(ctx, fmt.Sprintf(`(Add () "%s")`, sexp.Escape(cmd)))
	if err != nil {
		return 0, err
	}
	state := -1
	for _, r := range responses {
		payload, err := r.Child(2)
		if err != nil || !payload.IsList() || payload.Len() < 2 {
			continue
		}
		if !payload.Items()[0].IsAtomText("Added") {
			continue
		}
		id, err := strconv.Atoi(payload.Items()[1].Text())
		if err != nil {
			return 0, &ProtocolError{Reason: "state id is not a number", Unit: r.String()}
		}
		state = id
	}
	if state < 0 {
		return 0, fmt.Errorf("serapi: %q added no sentence", abbreviate(cmd))
	}
	if len(s.frames) > 0 {
		top := &s.frames[len(s.frames)-1]
		*top = append(*top, state)
	}
	return state, nil
}

// Execute adds a sentence and executes it, returning the prover's message
// feedback. A *CoqExn error reports a rejected sentence; the session
// remains usable and the sentence remains added.
func (s *Session) Execute(ctx context.Context, cmd string) ([]string, error) {
	state, err := s.SendAdd(ctx, cmd)
	if err != nil {
		return nil, err
	}
	_, feedback, err := s.send(ctx, fmt.Sprintf("(Exec %d)", state))
	return feedback, err
}

// ExecuteWithAST is Execute plus the parsed abstract syntax tree of the
// sentence, resolved before execution.
func (s *Session) ExecuteWithAST(ctx context.Context, cmd string) ([]string, *sexp.Node, error) {
	state, err := s.SendAdd(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	ast, err := s.QueryAST(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	_, feedback, err := s.send(ctx, fmt.Sprintf("(Exec %d)", state))
	return feedback, ast, err
}

// TryExecute runs a sentence under a disposable checkpoint. On a prover
// error the checkpoint is rolled back, leaving the session as it was, and
// the *CoqExn is returned; on success the checkpoint is folded into its
// parent and the executed state is kept.
func (s *Session) TryExecute(ctx context.Context, cmd string) ([]string, error) {
	s.Push()
	feedback, err := s.Execute(ctx, cmd)
	var exn *CoqExn
	if errors.As(err, &exn) {
		if popErr := s.Pop(ctx); popErr != nil {
			return nil, popErr
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.Pull(-1); err != nil {
		return nil, err
	}
	return feedback, nil
}

// Cancel rolls the prover's document back past the given states.
func (s *Session) Cancel(ctx context.Context, states []int) error {
	parts := make([]string, len(states))
	for i, state := range states {
		parts[i] = strconv.Itoa(state)
	}
	_, _, err := s.send(ctx, fmt.Sprintf("(Cancel (%s))", strings.Join(parts, " ")))
	return err
}

// Push opens a checkpoint: states registered from here on are rolled back
// together by the matching Pop.
func (s *Session) Push() {
	s.frames = append(s.frames, nil)
}

// Pop closes the top checkpoint and cancels every state it registered.
func (s *Session) Pop(ctx context.Context) error {
	return s.PopN(ctx, 1)
}

// PopN closes the top n checkpoints and cancels every state they
// registered, as one Cancel. Popping the whole stack reseeds it with a
// fresh bottom frame. Exceeding the stack depth is ErrOutOfRange, with
// nothing rolled back.
func (s *Session) PopN(ctx context.Context, n int) error {
	if n < 0 || n > len(s.frames) {
		return fmt.Errorf("%w: pop %d of %d frames", ErrOutOfRange, n, len(s.frames))
	}
	var union []int
	for _, frame := range s.frames[len(s.frames)-n:] {
		union = append(union, frame...)
	}
	if len(union) > 0 {
		if err := s.Cancel(ctx, union); err != nil {
			return err
		}
	}
	s.frames = s.frames[:len(s.frames)-n]
	if len(s.frames) == 0 {
		s.Push()
	}
	return nil
}

// Pull folds the checkpoint frame at index into the frame below it: the
// registered states are kept but the checkpoint disappears. Negative
// indices count from the top, so -1 names the top frame. It reports the
// number of states moved. The bottom frame cannot be pulled.
func (s *Session) Pull(index int) (int, error) {
	idx := index
	if idx < 0 {
		idx += len(s.frames)
	}
	if idx < 0 || idx >= len(s.frames) {
		return 0, fmt.Errorf("%w: pull frame %d of %d", ErrOutOfRange, index, len(s.frames))
	}
	if idx == 0 {
		return 0, fmt.Errorf("%w: cannot pull the bottom frame", ErrOutOfRange)
	}
	pulled := s.frames[idx]
	below := &s.frames[idx-1]
	*below = append(*below, pulled...)
	s.frames = append(s.frames[:idx], s.frames[idx+1:]...)
	return len(pulled), nil
}

// Depth reports the number of open checkpoint frames.
func (s *Session) Depth() int { return len(s.frames) }

// TopFrameSize reports the number of states registered in the top
// checkpoint frame.
func (s *Session) TopFrameSize() int {
	if len(s.frames) == 0 {
		return 0
	}
	return len(s.frames[len(s.frames)-1])
}

// QueryAST parses a sentence into its serialized abstract syntax tree
// without adding it to the document. Results are cached per sentence text.
func (s *Session) QueryAST(ctx context.Context, cmd string) (*sexp.Node, error) {
	if ast, ok := s.astCache.get(cmd); ok {
		return ast, nil
	}
	responses, _, err := s.send(ctx, fmt.Sprintf(`(Parse () "%s")`, sexp.Escape(cmd)))
	if err != nil {
		return nil, err
	}
	list, err := objList(responses)
	if err != nil {
		return nil, err
	}
	first, err := list.Child(0)
	if err != nil || first.Len() != 2 || !first.Items()[0].IsAtomText("CoqAst") {
		return nil, &ProtocolError{Reason: "Parse returned no CoqAst", Unit: list.String()}
	}
	ast := first.Items()[1]
	s.astCache.put(cmd, ast)
	return ast, nil
}

// QueryVernac executes a vernacular query such as Print or Locate and
// returns its printed output. Commands with effects belong in Execute.
func (s *Session) QueryVernac(ctx context.Context, cmd string) ([]string, error) {
	_, feedback, err := s.send(ctx, fmt.Sprintf(`(Query () (Vernac "%s"))`, sexp.Escape(cmd)))
	return feedback, err
}

// QueryFlag reports the value of a named boolean flag such as
// "Program Mode". The prover's report for a flag ends with the word "on"
// or "off" whatever phrasing the release wraps around it.
func (s *Session) QueryFlag(ctx context.Context, name string) (bool, error) {
	feedback, err := s.QueryVernac(ctx, "Test "+name+".")
	if err != nil {
		return false, err
	}
	for i := len(feedback) - 1; i >= 0; i-- {
		words := strings.Fields(feedback[i])
		if len(words) == 0 {
			continue
		}
		switch strings.TrimRight(words[len(words)-1], ".") {
		case "on":
			return true, nil
		case "off":
			return false, nil
		}
	}
	return false, &ProtocolError{
		Reason: fmt.Sprintf("no on/off report for flag %q", name),
		Unit:   strings.Join(feedback, "\n"),
	}
}

// HasOpenGoals reports whether any goal is outstanding, which is exactly
// when the prover is in proof mode.
func (s *Session) HasOpenGoals(ctx context.Context) (bool, error) {
	responses, _, err := s.send(ctx, "(Query () Goals)")
	if err != nil {
		return false, err
	}
	list, err := objList(responses)
	if err != nil {
		return false, err
	}
	return list.Len() != 0, nil
}

// InProofMode is HasOpenGoals on a live session and false on a dead one.
func (s *Session) InProofMode(ctx context.Context) (bool, error) {
	if s.dead {
		return false, nil
	}
	return s.HasOpenGoals(ctx)
}

// QueryType returns the serialized type of a serialized term, or nil for
// terms the prover cannot type in the current context.
func (s *Session) QueryType(ctx context.Context, termSexp string) (*sexp.Node, error) {
	responses, _, err := s.send(ctx, fmt.Sprintf("(Query () (Type %s))", termSexp))
	var exn *CoqExn
	if errors.As(err, &exn) && exn.Message == "Not_found" {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	list, err := objList(responses)
	if err != nil {
		return nil, err
	}
	first, err := list.Child(0)
	if err != nil || first.Len() != 2 || !first.Items()[0].IsAtomText("CoqConstr") {
		return nil, &ProtocolError{Reason: "Type returned no CoqConstr", Unit: list.String()}
	}
	return first.Items()[1], nil
}

// PrintConstr renders a serialized kernel term the way the prover prints
// it, whitespace-normalized. Terms the printer cannot resolve yet come back
// empty and stay uncached, so a later context can still resolve them.
func (s *Session) PrintConstr(ctx context.Context, termSexp string) (string, error) {
	if termSexp == "" {
		return "", nil
	}
	if printed, ok := s.constrCache.get(termSexp); ok {
		return printed, nil
	}
	format := "((pp ((pp_format PpStr))))"
	if s.version.Coq().Less("8.10.0") {
		format = "((pp_format PpStr))"
	}
	responses, _, err := s.send(ctx, fmt.Sprintf("(Print %s (CoqConstr %s))", format, termSexp))
	var exn *CoqExn
	if errors.As(err, &exn) && exn.Message == "Not_found" {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var strNode *sexp.Node
	for _, i := range []int{1, 0} {
		if i >= len(responses) {
			continue
		}
		if n, err := responses[i].At(2, 1, 0, 1); err == nil {
			strNode = n
			break
		}
	}
	if strNode == nil {
		return "", &ProtocolError{Reason: "Print returned no object"}
	}
	printed := normalizeSpaces(strNode.Unquoted())
	s.constrCache.put(termSexp, printed)
	return printed, nil
}

// locate runs an in-scope name lookup and returns the resulting objects.
func (s *Session) locate(ctx context.Context, id string) (*sexp.Node, error) {
	responses, _, err := s.send(ctx, fmt.Sprintf(`(Query () (Locate "%s"))`, sexp.Escape(id)))
	if err != nil {
		return nil, err
	}
	return objList(responses)
}

// QueryQualids returns the minimally qualified spellings of an identifier
// visible in the current scope, most direct first.
func (s *Session) QueryQualids(ctx context.Context, id string) ([]string, error) {
	list, err := s.locate(ctx, id)
	if err != nil {
		return nil, err
	}
	if list.Len() == 0 && strings.HasPrefix(id, "SerTop.") {
		if list, err = s.locate(ctx, strings.TrimPrefix(id, "SerTop.")); err != nil {
			return nil, err
		}
	}
	var qualids []string
	for _, obj := range list.Items() {
		// (CoqQualId ((v (Ser_Qualid (DirPath (...)) (Id x))) (loc ...)))
		sq, err := obj.At(1, 0, 1)
		if err != nil {
			return nil, &ProtocolError{Reason: "malformed Locate object", Unit: obj.String()}
		}
		dirpath, err := sq.Child(1)
		if err != nil || dirpath.Len() != 2 || !dirpath.Items()[0].IsAtomText("DirPath") {
			return nil, &ProtocolError{Reason: "malformed Locate object", Unit: obj.String()}
		}
		name, err := sq.At(2, 1)
		if err != nil {
			return nil, &ProtocolError{Reason: "malformed Locate object", Unit: obj.String()}
		}
		// Kernel dirpaths are innermost first.
		var parts []string
		ids := dirpath.Items()[1].Items()
		for i := len(ids) - 1; i >= 0; i-- {
			parts = append(parts, idText(ids[i]))
		}
		parts = append(parts, name.Unquoted())
		qualids = append(qualids, strings.Join(parts, "."))
	}
	return qualids, nil
}

// QueryQualid returns the shortest unambiguous spelling of an identifier,
// or "" if the name is not bound.
func (s *Session) QueryQualid(ctx context.Context, id string) (string, error) {
	qualids, err := s.QueryQualids(ctx, id)
	if err != nil || len(qualids) == 0 {
		return "", err
	}
	return qualids[0], nil
}

// QueryFullQualids returns the fully qualified names an identifier may
// refer to, resolving through Locate so the result is unambiguous in any
// scope. Notations cannot be qualified.
func (s *Session) QueryFullQualids(ctx context.Context, id string) ([]string, error) {
	if strings.HasPrefix(id, `"`) || strings.HasSuffix(id, `"`) {
		return nil, fmt.Errorf("serapi: cannot qualify notation %s", id)
	}
	feedback, err := s.QueryVernac(ctx, fmt.Sprintf("Locate %s.", id))
	if err != nil {
		return nil, err
	}
	if len(feedback) == 0 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("Locate %s produced no output", id)}
	}
	first := feedback[0]
	if strings.HasPrefix(first, "No object of basename") {
		return nil, nil
	}
	var qualids []string
	for _, line := range strings.Split(first, "\n") {
		line = strings.TrimSpace(line)
		// Parenthesized lines annotate the preceding entry.
		if line == "" || strings.HasPrefix(line, "(") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		qualids = append(qualids, fields[1])
	}
	return qualids, nil
}

// QueryFullQualid returns the first fully qualified name of an identifier,
// or "" if the name is not bound.
func (s *Session) QueryFullQualid(ctx context.Context, id string) (string, error) {
	qualids, err := s.QueryFullQualids(ctx, id)
	if err != nil || len(qualids) == 0 {
		return "", err
	}
	return qualids[0], nil
}

// idText returns the name carried by an (Id x) node.
func idText(n *sexp.Node) string {
	if n.IsList() && n.Len() == 2 {
		return n.Items()[1].Unquoted()
	}
	return n.Unquoted()
}

var spaceRe = regexp.MustCompile(`\s+`)

// normalizeSpaces collapses whitespace runs to single spaces and trims the
// ends.
func normalizeSpaces(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
