// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vernac classifies parsed Vernacular ASTs. Given the s-expression
// that sertop returns for a sentence, it extracts the command constructor,
// the plugin entry point for VernacExtend commands, control prefixes such
// as Time and Fail, flattened attributes, and the source location trailer.
//
// The s-expression layout changed across Coq releases: 8.10.2 and older
// wrap the expression in VernacExpr or in bare control constructors, 8.11
// introduced the (control)(attrs)(expr) triple, and 8.15 added location
// wrappers around attributes. Analyze accepts all three layouts.
package vernac

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/proof-engine/internal/sexp"
	"github.com/pdiddy/proof-engine/pkg/types"
)

// ControlFlag identifies a control prefix applied to a sentence.
type ControlFlag uint8

const (
	// ControlTime reports the time a sentence took to execute.
	ControlTime ControlFlag = iota

	// ControlRedirect sends a sentence's output to a file.
	ControlRedirect

	// ControlTimeout fails a sentence that exceeds a time limit.
	ControlTimeout

	// ControlFail expects the sentence to fail and leaves state unchanged.
	ControlFail

	// ControlSucceed expects the sentence to succeed and leaves state
	// unchanged.
	ControlSucceed
)

// String returns the canonical flag name.
func (f ControlFlag) String() string {
	switch f {
	case ControlTime:
		return "Time"
	case ControlRedirect:
		return "Redirect"
	case ControlTimeout:
		return "Timeout"
	case ControlFail:
		return "Fail"
	case ControlSucceed:
		return "Succeed"
	}
	return fmt.Sprintf("ControlFlag(%d)", uint8(f))
}

// ParseControlFlag maps a serialized constructor to its flag. Each flag has
// a modern Control* spelling and, for those that predate Coq 8.11, a legacy
// Vernac* spelling.
func ParseControlFlag(s string) (ControlFlag, error) {
	switch s {
	case "Time", "ControlTime", "VernacTime":
		return ControlTime, nil
	case "Redirect", "ControlRedirect", "VernacRedirect":
		return ControlRedirect, nil
	case "Timeout", "ControlTimeout", "VernacTimeout":
		return ControlTimeout, nil
	case "Fail", "ControlFail", "VernacFail":
		return ControlFail, nil
	case "Succeed", "ControlSucceed":
		return ControlSucceed, nil
	}
	return 0, fmt.Errorf("vernac: unknown control flag %q", s)
}

// Control pairs a flag with its serialized argument: the redirect file
// name, the timeout limit, or the batch-mode marker of a Time prefix.
// Value is empty for Fail and Succeed.
type Control struct {
	Flag  ControlFlag
	Value string
}

// Info is the classification of one Vernacular sentence.
type Info struct {
	// Type is the Vernacular constructor, e.g. VernacDefinition.
	// Plugin-defined commands all carry VernacExtend here.
	Type string

	// ExtendType is the plugin entry point when Type is VernacExtend,
	// e.g. Obligations, and empty otherwise.
	ExtendType string

	// Controls lists control prefixes outermost first.
	Controls []Control

	// Attributes holds the flattened attribute tree, e.g. "program" or
	// `using="Type"`.
	Attributes []string

	// Loc is the source span reported by the parser, if present.
	Loc *types.Loc
}

// CommandType returns the plugin entry point for VernacExtend commands and
// the Vernacular constructor for everything else.
func (i Info) CommandType() string {
	if i.ExtendType != "" {
		return i.ExtendType
	}
	return i.Type
}

// Commands below can occur only while a proof is open. Plugin entry points
// are judged separately because every plugin command types as VernacExtend.
var (
	proofTypePattern = regexp.MustCompile(
		`^(?:VernacProof|VernacProofMode|VernacAbort|VernacEndProof|` +
			`VernacEndSubproof|VernacExactProof|VernacBullet|VernacCheckGuard|` +
			`VernacFocus|VernacShow|VernacSubproof|VernacUnfocus|VernacUnfocused|` +
			`VernacAbortAll|VernacRestart|VernacUndo|VernacUndoTo)`)

	proofExtendPattern = regexp.MustCompile(
		`^(?:Obligations|OptimizeProof|Unshelve|VernacSolve|` +
			`VernacSolveParallel|VernacLtac2|MProofInstr|MProofCommand)`)
)

// IsProofStep reports whether the sentence can occur only inside an open
// proof: tactics, bullets, Qed and its variants, and proof navigation.
// Sentences that open proofs (Lemma, Theorem, Definition) do not count.
// A VernacExtend sentence is judged by its entry point alone.
func (i Info) IsProofStep() bool {
	if i.ExtendType != "" {
		return proofExtendPattern.MatchString(i.ExtendType)
	}
	return proofTypePattern.MatchString(i.Type)
}

// Analyze classifies a Vernacular AST node. The node may be the bare
// command or the located form ((v <command>)(loc <span>)).
func Analyze(node *sexp.Node) (Info, error) {
	vernacControl := node
	var loc *types.Loc
	if isLocWrapper(node) {
		if parsed, err := AnalyzeLoc(node.Items()[1]); err == nil {
			loc = &parsed
		}
		vChild := node.Items()[0]
		first, err := vChild.Child(0)
		if err != nil {
			return Info{}, fmt.Errorf("vernac: malformed v wrapper: %w", err)
		}
		if !first.IsAtom() {
			return Info{}, fmt.Errorf("vernac: malformed v wrapper: list in tag position")
		}
		if first.Text() != "" {
			inner, err := vChild.Child(1)
			if err != nil {
				return Info{}, fmt.Errorf("vernac: malformed v wrapper: %w", err)
			}
			vernacControl = inner
		} else {
			vernacControl = vChild
		}
	}

	info, err := analyzeControl(vernacControl)
	if err != nil {
		return Info{}, err
	}
	info.Loc = loc
	return info, nil
}

func analyzeControl(vernacControl *sexp.Node) (Info, error) {
	if vernacControl.HeadText() == "control" {
		// Coq 8.11 and newer: ((control CS)(attrs AS)(expr E))
		exprNode, err := vernacControl.At(2, 1)
		if err != nil {
			return Info{}, fmt.Errorf("vernac: control form: %w", err)
		}
		info, err := analyzeExpr(exprNode)
		if err != nil {
			return Info{}, err
		}
		attrsNode, err := vernacControl.At(1, 1)
		if err != nil {
			return Info{}, fmt.Errorf("vernac: control form: %w", err)
		}
		info.Attributes, err = Flags(attrsNode)
		if err != nil {
			return Info{}, err
		}
		controlNode, err := vernacControl.At(0, 1)
		if err != nil {
			return Info{}, fmt.Errorf("vernac: control form: %w", err)
		}
		for _, c := range controlNode.Items() {
			flag, err := ParseControlFlag(c.HeadText())
			if err != nil {
				return Info{}, err
			}
			ctl := Control{Flag: flag}
			switch flag {
			case ControlRedirect, ControlTimeout, ControlTime:
				arg, err := c.Child(1)
				if err != nil {
					return Info{}, fmt.Errorf("vernac: %s control: %w", flag, err)
				}
				ctl.Value = arg.Text()
			}
			info.Controls = append(info.Controls, ctl)
		}
		return info, nil
	}

	first, err := vernacControl.Child(0)
	if err != nil {
		return Info{}, fmt.Errorf("vernac: malformed command: %w", err)
	}
	if first.IsAtomText("VernacExpr") {
		// Coq 8.10.2 and older: (VernacExpr AS E)
		exprNode, err := vernacControl.Child(2)
		if err != nil {
			return Info{}, fmt.Errorf("vernac: VernacExpr form: %w", err)
		}
		info, err := analyzeExpr(exprNode)
		if err != nil {
			return Info{}, err
		}
		attrsNode, err := vernacControl.Child(1)
		if err != nil {
			return Info{}, fmt.Errorf("vernac: VernacExpr form: %w", err)
		}
		info.Attributes, err = Flags(attrsNode)
		if err != nil {
			return Info{}, err
		}
		return info, nil
	}

	// Coq 8.10.2 and older nest control prefixes around the command,
	// e.g. (VernacTime false (VernacExpr ...)).
	if !first.IsAtom() {
		return Info{}, fmt.Errorf("vernac: malformed command: list in tag position")
	}
	flag, err := ParseControlFlag(first.Text())
	if err != nil {
		return Info{}, err
	}
	ctl := Control{Flag: flag}
	var sub *sexp.Node
	if flag == ControlFail {
		sub, err = vernacControl.Child(1)
		if err != nil {
			return Info{}, fmt.Errorf("vernac: %s control: %w", flag, err)
		}
	} else {
		switch flag {
		case ControlRedirect, ControlTimeout, ControlTime:
			arg, err := vernacControl.Child(1)
			if err != nil {
				return Info{}, fmt.Errorf("vernac: %s control: %w", flag, err)
			}
			ctl.Value = arg.Text()
		}
		sub, err = vernacControl.Child(2)
		if err != nil {
			return Info{}, fmt.Errorf("vernac: %s control: %w", flag, err)
		}
	}
	info, err := Analyze(sub)
	if err != nil {
		return Info{}, err
	}
	info.Controls = append([]Control{ctl}, info.Controls...)
	info.Loc = nil
	return info, nil
}

// analyzeExpr pulls the constructor name, and the plugin entry point for
// VernacExtend, out of a Vernacular expression.
func analyzeExpr(node *sexp.Node) (Info, error) {
	var vernacType string
	if node.IsList() {
		first, err := node.Child(0)
		if err != nil {
			return Info{}, fmt.Errorf("vernac: empty expression")
		}
		if !first.IsAtom() {
			return Info{}, fmt.Errorf("vernac: expression tag is a list")
		}
		vernacType = first.Text()
	} else {
		vernacType = node.Text()
	}
	info := Info{Type: vernacType}
	if vernacType == "VernacExtend" {
		ext, err := node.At(1, 0)
		if err != nil {
			return Info{}, fmt.Errorf("vernac: VernacExtend entry point: %w", err)
		}
		if !ext.IsAtom() {
			return Info{}, fmt.Errorf("vernac: VernacExtend entry point is a list")
		}
		info.ExtendType = ext.Text()
	}
	return info, nil
}

// Flags flattens a vernac_flags attribute tree. A bare flag yields its
// name, a leaf yields name=value, and a nested list yields "name (a,b)".
// Coq 8.15 wraps each flag in a location node, which is stripped.
func Flags(node *sexp.Node) ([]string, error) {
	attributes := []string{}
	for _, flag := range node.Items() {
		if isLocWrapper(flag) {
			inner, err := flag.At(0, 1)
			if err != nil {
				return nil, fmt.Errorf("vernac: located flag: %w", err)
			}
			flag = inner
		}
		nameNode, err := flag.Child(0)
		if err != nil {
			return nil, fmt.Errorf("vernac: flag: %w", err)
		}
		if !nameNode.IsAtom() {
			return nil, fmt.Errorf("vernac: flag name is a list")
		}
		attribute := nameNode.Text()
		valueNode, err := flag.Child(1)
		if err != nil {
			return nil, fmt.Errorf("vernac: flag %s: %w", attribute, err)
		}
		if valueNode.IsList() {
			kindNode, err := valueNode.Child(0)
			if err != nil {
				return nil, fmt.Errorf("vernac: flag %s: %w", attribute, err)
			}
			if !kindNode.IsAtom() {
				return nil, fmt.Errorf("vernac: flag %s value tag is a list", attribute)
			}
			switch kindNode.Text() {
			case "VernacFlagLeaf":
				leaf, err := valueNode.Child(1)
				if err != nil {
					return nil, fmt.Errorf("vernac: flag %s leaf: %w", attribute, err)
				}
				if leaf.IsList() {
					// 8.11 and newer tag the literal with its kind.
					leaf, err = leaf.Child(1)
					if err != nil {
						return nil, fmt.Errorf("vernac: flag %s leaf: %w", attribute, err)
					}
				}
				attribute += "=" + leaf.String()
			case "VernacFlagList":
				sub, err := valueNode.Child(1)
				if err != nil {
					return nil, fmt.Errorf("vernac: flag %s list: %w", attribute, err)
				}
				nested, err := Flags(sub)
				if err != nil {
					return nil, err
				}
				attribute = attribute + " (" + strings.Join(nested, ",") + ")"
			}
		}
		attributes = append(attributes, attribute)
	}
	return attributes, nil
}

// isLocWrapper reports whether the node has the ((v X)(loc ((...)))) shape
// that wraps located terms. The location payload must be a non-empty list.
func isLocWrapper(n *sexp.Node) bool {
	if !n.IsList() || n.Len() != 2 {
		return false
	}
	if n.HeadText() != "v" {
		return false
	}
	locNode := n.Items()[1]
	if locNode.HeadText() != "loc" {
		return false
	}
	payload, err := locNode.Child(1)
	if err != nil {
		return false
	}
	return payload.IsList() && payload.Len() > 0
}
