// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package serapi

import (
	"context"
	"regexp"
	"strings"

	"github.com/pdiddy/proof-engine/internal/ident"
)

// newIdentRe matches the canary messages the prover prints when a command
// introduces names: "nat is defined", "foobar is declared", "Interactive
// Module foo started", and so on. The idents group may carry a
// comma-separated list.
var newIdentRe = regexp.MustCompile(
	`(?:(?:Module|Module Type|Interactive Module)\s+)?` +
		`(?P<idents>(?:` + ident.Pattern + `,\s+)*\s*` + ident.Pattern + `\s+)` +
		`(?:is defined|is declared|are defined|is recursively defined|is corecursively defined|` +
		`are recursively defined|are corecursively defined|is redefined|started)`)

// printAllIdentRe matches a "Print All." line that names something: the
// library delimiter, an inductive declaration, or a plain named object.
// Exactly one of the three groups captures.
var printAllIdentRe = regexp.MustCompile(
	`\A(?:` +
		`\s*>+\s+Library\s+(?P<lib>` + ident.QualifiedPattern + `)` +
		`|(?:Inductive|CoInductive|Variant|Record|Structure|Class)\s+(?P<inductive>` + ident.Pattern + `)` +
		`|(?P<ident>` + ident.Pattern + `)\s*:` +
		`)`)

// namedDefAssumRe matches the "*** [ x : T ]" lines section variables
// print under "Print All.".
var namedDefAssumRe = regexp.MustCompile(
	`\A\*\*\* \[\s*(?P<ident>` + ident.Pattern + `)[^\]]*\]\s*\z`)

var (
	newIdentIdentsIdx     = newIdentRe.SubexpIndex("idents")
	printAllLibIdx        = printAllIdentRe.SubexpIndex("lib")
	printAllInductiveIdx  = printAllIdentRe.SubexpIndex("inductive")
	printAllIdentIdx      = printAllIdentRe.SubexpIndex("ident")
	namedDefAssumIdentIdx = namedDefAssumRe.SubexpIndex("ident")
)

// GetLocalIDs lists the identifiers defined in the current module in order
// of definition, starting with the module's own logical name.
func (s *Session) GetLocalIDs(ctx context.Context) ([]string, error) {
	feedback, err := s.QueryVernac(ctx, "Print All.")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, msg := range feedback {
		for _, line := range strings.Split(msg, "\n") {
			if name := printAllIdent(line); name != "" {
				ids = append(ids, name)
			}
		}
	}
	return ids, nil
}

// printAllIdent extracts the identifier a "Print All." line introduces, or
// "" when the line introduces none.
func printAllIdent(line string) string {
	if m := printAllIdentRe.FindStringSubmatch(line); m != nil {
		for _, i := range []int{printAllLibIdx, printAllInductiveIdx, printAllIdentIdx} {
			if m[i] != "" {
				return m[i]
			}
		}
	}
	if m := namedDefAssumRe.FindStringSubmatch(line); m != nil {
		return m[namedDefAssumIdentIdx]
	}
	return ""
}

// GetConjectureID returns the name of the conjecture whose proof is
// currently open, the innermost one during nested proofs, or "" when no
// proof is open.
func (s *Session) GetConjectureID(ctx context.Context) (string, error) {
	feedback, err := s.QueryVernac(ctx, "Show Conjectures.")
	if err != nil {
		return "", err
	}
	for _, msg := range feedback {
		if fields := strings.Fields(msg); len(fields) > 0 {
			return fields[0], nil
		}
	}
	return "", nil
}

// ParseNewIdentifiers scans execution feedback for introduced names, in
// feedback order. A proof opener introduces nothing until its proof
// concludes; modules report their name both when opened and when closed.
func ParseNewIdentifiers(feedback []string) []string {
	var ids []string
	for _, msg := range feedback {
		m := newIdentRe.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		for _, id := range strings.Split(m[newIdentIdentsIdx], ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
