// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package serapi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pdiddy/proof-engine/internal/sexp"
	"github.com/pdiddy/proof-engine/pkg/types"
)

// QueryGoals retrieves the full proof state: focused goals, the background
// focus stack level by level, and the shelved and abandoned goals. It
// returns nil when the prover is not in proof mode. Goal statements and
// hypotheses are printed through PrintConstr, so their textual form follows
// the session's pinned printing options.
func (s *Session) QueryGoals(ctx context.Context) (*types.Goals, error) {
	responses, _, err := s.send(ctx, "(Query () Goals)")
	if err != nil {
		return nil, err
	}
	list, err := objList(responses)
	if err != nil {
		return nil, err
	}
	if list.Len() == 0 {
		return nil, nil
	}
	first, err := list.Child(0)
	if err != nil || first.Len() != 2 || !first.Items()[0].IsAtomText("CoqGoal") {
		return nil, &ProtocolError{Reason: "Goals returned no CoqGoal", Unit: list.String()}
	}
	record := first.Items()[1]

	goals := &types.Goals{}
	fg, err := goalField(record, 0, "goals")
	if err != nil {
		return nil, err
	}
	if goals.Foreground, err = s.goalList(ctx, fg); err != nil {
		return nil, err
	}
	stack, err := goalField(record, 1, "stack")
	if err != nil {
		return nil, err
	}
	for _, level := range stack.Items() {
		if level.Len() != 2 {
			return nil, &ProtocolError{Reason: "focus stack level is not a pair", Unit: level.String()}
		}
		left, err := s.goalList(ctx, level.Items()[0])
		if err != nil {
			return nil, err
		}
		right, err := s.goalList(ctx, level.Items()[1])
		if err != nil {
			return nil, err
		}
		goals.Background = append(goals.Background, [2][]types.Goal{left, right})
	}
	shelf, err := goalField(record, 2, "shelf")
	if err != nil {
		return nil, err
	}
	if goals.Shelved, err = s.goalList(ctx, shelf); err != nil {
		return nil, err
	}
	givenUp, err := goalField(record, 3, "given_up")
	if err != nil {
		return nil, err
	}
	if goals.Abandoned, err = s.goalList(ctx, givenUp); err != nil {
		return nil, err
	}
	return goals, nil
}

// goalField returns the value of the i-th (label value) pair of a CoqGoal
// record, checking the label.
func goalField(record *sexp.Node, i int, label string) (*sexp.Node, error) {
	pair, err := record.Child(i)
	if err != nil || pair.Len() != 2 || !pair.Items()[0].IsAtomText(label) {
		return nil, &ProtocolError{Reason: fmt.Sprintf("CoqGoal record missing %s", label), Unit: record.String()}
	}
	return pair.Items()[1], nil
}

func (s *Session) goalList(ctx context.Context, list *sexp.Node) ([]types.Goal, error) {
	var out []types.Goal
	for _, g := range list.Items() {
		goal, err := s.goal(ctx, g)
		if err != nil {
			return nil, err
		}
		out = append(out, goal)
	}
	return out, nil
}

// goal deserializes one goal: ((info ((evar (Ser_Evar N)) ...)) (ty T)
// (hyp (...))). Hypotheses arrive innermost first and are stored outermost
// first.
func (s *Session) goal(ctx context.Context, g *sexp.Node) (types.Goal, error) {
	idNode, err := g.At(0, 1, 0, 1, 1)
	if err != nil {
		return types.Goal{}, &ProtocolError{Reason: "goal without an evar id", Unit: g.String()}
	}
	id, err := strconv.Atoi(idNode.Text())
	if err != nil {
		return types.Goal{}, &ProtocolError{Reason: "goal id is not a number", Unit: g.String()}
	}
	tyNode, err := g.At(1, 1)
	if err != nil {
		return types.Goal{}, &ProtocolError{Reason: "goal without a statement", Unit: g.String()}
	}
	typeSexp := tyNode.String()
	printed, err := s.PrintConstr(ctx, typeSexp)
	if err != nil {
		return types.Goal{}, err
	}
	hypsNode, err := g.At(2, 1)
	if err != nil {
		return types.Goal{}, &ProtocolError{Reason: "goal without hypotheses", Unit: g.String()}
	}
	hyps := make([]types.Hypothesis, 0, hypsNode.Len())
	for i := hypsNode.Len() - 1; i >= 0; i-- {
		hyp, err := s.hypothesis(ctx, hypsNode.Items()[i])
		if err != nil {
			return types.Goal{}, err
		}
		hyps = append(hyps, hyp)
	}
	return types.Goal{ID: id, Type: printed, Sexp: typeSexp, Hypotheses: hyps}, nil
}

// hypothesis deserializes one context entry: (idents maybe-body type).
// Idents arrive innermost first; the body slot is an empty list for plain
// assumptions.
func (s *Session) hypothesis(ctx context.Context, h *sexp.Node) (types.Hypothesis, error) {
	if h.Len() != 3 {
		return types.Hypothesis{}, &ProtocolError{Reason: "hypothesis is not a triple", Unit: h.String()}
	}
	idsNode := h.Items()[0]
	idents := make([]string, 0, idsNode.Len())
	for i := idsNode.Len() - 1; i >= 0; i-- {
		idents = append(idents, idText(idsNode.Items()[i]))
	}
	hyp := types.Hypothesis{Idents: idents}
	if body := h.Items()[1]; body.Len() > 0 {
		termSexp := body.Items()[0].String()
		printed, err := s.PrintConstr(ctx, termSexp)
		if err != nil {
			return types.Hypothesis{}, err
		}
		hyp.Term = &printed
		hyp.TermSexp = &termSexp
	}
	hyp.TypeSexp = h.Items()[2].String()
	printedType, err := s.PrintConstr(ctx, hyp.TypeSexp)
	if err != nil {
		return types.Hypothesis{}, err
	}
	hyp.Type = printedType
	return hyp, nil
}
