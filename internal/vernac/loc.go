// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vernac

import (
	"fmt"
	"strconv"

	"github.com/pdiddy/proof-engine/internal/sexp"
	"github.com/pdiddy/proof-engine/pkg/types"
)

// AnalyzeLoc parses a location trailer of the form
//
//	(loc(((fname ToplevelInput)(line_nb 1)(bol_pos 0)
//	      (line_nb_last 1)(bol_pos_last 0)(bp 0)(ep 12))))
//
// into a source span. Interactive sessions always report ToplevelInput;
// file-backed documents report (InFile path).
func AnalyzeLoc(node *sexp.Node) (types.Loc, error) {
	if node.Len() != 2 {
		return types.Loc{}, fmt.Errorf("vernac: loc node has %d children, want 2", node.Len())
	}
	head, err := node.Child(0)
	if err != nil || !head.IsAtomText("loc") {
		return types.Loc{}, fmt.Errorf("vernac: node is not a loc trailer")
	}
	data, err := node.At(1, 0)
	if err != nil {
		return types.Loc{}, fmt.Errorf("vernac: loc payload: %w", err)
	}
	if data.Len() != 7 {
		return types.Loc{}, fmt.Errorf("vernac: loc payload has %d fields, want 7", data.Len())
	}

	fname, err := locField(data, 0, "fname")
	if err != nil {
		return types.Loc{}, err
	}
	loc := types.Loc{Filename: filenameText(fname)}
	if loc.LineNo, err = locInt(data, 1, "line_nb"); err != nil {
		return types.Loc{}, err
	}
	if loc.BolPos, err = locInt(data, 2, "bol_pos"); err != nil {
		return types.Loc{}, err
	}
	if loc.LineNoLast, err = locInt(data, 3, "line_nb_last"); err != nil {
		return types.Loc{}, err
	}
	if loc.BolPosLast, err = locInt(data, 4, "bol_pos_last"); err != nil {
		return types.Loc{}, err
	}
	if loc.Beg, err = locInt(data, 5, "bp"); err != nil {
		return types.Loc{}, err
	}
	if loc.End, err = locInt(data, 6, "ep"); err != nil {
		return types.Loc{}, err
	}
	return loc, nil
}

func filenameText(n *sexp.Node) string {
	if n.IsAtom() {
		return n.Text()
	}
	if n.HeadText() == "InFile" && n.Len() == 2 {
		return n.Items()[1].Unquoted()
	}
	return n.String()
}

// locField returns the value of the i-th (label value) pair, checking the
// label.
func locField(data *sexp.Node, i int, label string) (*sexp.Node, error) {
	pair, err := data.Child(i)
	if err != nil {
		return nil, fmt.Errorf("vernac: loc field %s: %w", label, err)
	}
	head, err := pair.Child(0)
	if err != nil || !head.IsAtomText(label) {
		return nil, fmt.Errorf("vernac: loc field %d is not %s", i, label)
	}
	return pair.Child(1)
}

func locInt(data *sexp.Node, i int, label string) (int, error) {
	val, err := locField(data, i, label)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(val.Text())
	if err != nil {
		return 0, fmt.Errorf("vernac: loc field %s: %w", label, err)
	}
	return n, nil
}
