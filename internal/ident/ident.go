// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ident locates, qualifies, and rewrites Coq identifiers inside
// serialized vernacular ASTs.
//
// Identifiers surface in a handful of serialized shapes: bare Ser_Qualid
// nodes, Ser_Qualid nodes wrapped in CRef or CPatAtom context, and located
// lident or lname binders trailed by a source span. All matching works
// directly on the serialized text; the AST is never parsed.
package ident

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/proof-engine/pkg/types"
)

// Pattern matches a single unqualified Coq identifier. The leading
// character excludes digits and number letters, which are valid only in
// continuation position.
const Pattern = `[_\p{L}][_\p{L}\p{Nl}\p{Nd}'\x{A0}]*`

// QualifiedPattern matches a dot-delimited path of identifiers.
const QualifiedPattern = `(?:` + Pattern + `)(?:\.(?:` + Pattern + `))*`

// locTail is the serialized source span that follows located identifiers
// parsed from a toplevel sentence.
const locTail = `\(\s*loc\s*\(\(\(\s*fname\s+ToplevelInput\)\s*\(\s*line_nb\s+\d+\)\s*` +
	`\(\s*bol_pos\s+\d+\)\s*\(\s*line_nb_last\s+\d+\)\s*\(\s*bol_pos_last\s+\d+\)\s*` +
	`\(\s*bp\s+\d+\)\s*\(\s*ep\s+\d+\)\)\)\)`

// idPattern matches a serialized kernel Id, capturing its text when group
// is non-empty.
func idPattern(group string) string {
	id := `[^)\s]+`
	if group != "" {
		id = `(?P<` + group + `>` + id + `)`
	}
	return `\(\s*Id\s+` + id + `\)`
}

var (
	idRe = regexp.MustCompile(idPattern("id"))

	dirpathPattern = `\(\s*DirPath\s*\((?P<dirpath>(?:\s*` + idPattern("") + `)*)\)\s*\)`

	// A qualid may carry an enclosing pattern or reference context. The
	// context group consumes only opening parentheses; the matching
	// closers lie beyond the end of the match.
	serqualidPattern = `(?:(?P<cpat>\(\s*CPatAtom\s*\(\s*\(\s*\(\s*v\s*)|` +
		`(?P<cref>\(\s*CRef\s*\(\s*\(\s*v\s*))?` +
		`\(\s*Ser_Qualid\s*` + dirpathPattern + `\s*` + idPattern("qualid") + `\s*\)`

	// Located forms consume their span trailer so that a match is only
	// recognized when the trailer is present. ReplaceIdents re-emits the
	// consumed trailer verbatim.
	lidentPattern = `\(\s*v\s*` + idPattern("lident") + `\s*\)\s*(?P<lidentloc>` + locTail + `)`

	lnamePattern = `\(\s*v\s*\(\s*Name\s*` + idPattern("lname") + `\s*\)\s*\)\s*(?P<lnameloc>` + locTail + `)`

	identRe = regexp.MustCompile(serqualidPattern + `|` + lidentPattern + `|` + lnamePattern)

	cpatIdx      = identRe.SubexpIndex("cpat")
	crefIdx      = identRe.SubexpIndex("cref")
	dirpathIdx   = identRe.SubexpIndex("dirpath")
	qualidIdx    = identRe.SubexpIndex("qualid")
	lidentIdx    = identRe.SubexpIndex("lident")
	lnameIdx     = identRe.SubexpIndex("lname")
	lidentLocIdx = identRe.SubexpIndex("lidentloc")
	lnameLocIdx  = identRe.SubexpIndex("lnameloc")
)

// Extract returns every identifier referenced in the serialized AST in
// order of appearance. Path components typed by the author are kept
// exactly as serialized.
func Extract(ast string) []types.Identifier {
	matches := identRe.FindAllStringSubmatchIndex(ast, -1)
	ids := make([]types.Identifier, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, identOfMatch(ast, m))
	}
	return ids
}

// identOfMatch decodes one identRe match into an Identifier.
func identOfMatch(ast string, m []int) types.Identifier {
	group := func(idx int) (string, bool) {
		if m[2*idx] < 0 {
			return "", false
		}
		return ast[m[2*idx]:m[2*idx+1]], true
	}
	if qualid, ok := group(qualidIdx); ok {
		dirpath, _ := group(dirpathIdx)
		parts := make([]string, 0, 4)
		for _, im := range idRe.FindAllStringSubmatch(dirpath, -1) {
			parts = append(parts, unquote(im[1]))
		}
		parts = append(parts, unquote(qualid))
		kind := types.KindSerQualid
		if _, ok := group(cpatIdx); ok {
			kind = types.KindCPatAtom
		} else if _, ok := group(crefIdx); ok {
			kind = types.KindCRef
		}
		return types.Identifier{Kind: kind, Name: strings.Join(parts, ".")}
	}
	if lident, ok := group(lidentIdx); ok {
		return types.Identifier{Kind: types.KindLident, Name: unquote(lident)}
	}
	lname, _ := group(lnameIdx)
	return types.Identifier{Kind: types.KindLname, Name: unquote(lname)}
}

// ReplaceIdents substitutes the i-th identifier occurrence in the AST with
// replacements[i]. Span trailers after located forms are preserved. Extra
// replacements are ignored; too few is an error.
func ReplaceIdents(ast string, replacements []string) (string, error) {
	matches := identRe.FindAllStringSubmatchIndex(ast, -1)
	if len(replacements) < len(matches) {
		return "", fmt.Errorf("have %d replacements for %d identifier occurrences",
			len(replacements), len(matches))
	}
	var b strings.Builder
	b.Grow(len(ast))
	last := 0
	for i, m := range matches {
		b.WriteString(ast[last:m[0]])
		b.WriteString(replacements[i])
		for _, locIdx := range [2]int{lidentLocIdx, lnameLocIdx} {
			if m[2*locIdx] >= 0 {
				b.WriteString(ast[m[2*locIdx]:m[2*locIdx+1]])
			}
		}
		last = m[1]
	}
	b.WriteString(ast[last:])
	return b.String(), nil
}

// SexpOfIdent serializes an identifier back into the shape it was matched
// from. Context wrappers of the qualid family reproduce only the opening
// parentheses of the context; the closers sit outside the matched span and
// survive replacement untouched.
func SexpOfIdent(id types.Identifier) string {
	if id.Kind.InQualidFamily() {
		parts := strings.Split(id.Name, ".")
		var b strings.Builder
		switch id.Kind {
		case types.KindCPatAtom:
			b.WriteString("(CPatAtom(((v")
		case types.KindCRef:
			b.WriteString("(CRef((v")
		}
		b.WriteString("(Ser_Qualid(DirPath(")
		for _, part := range parts[:len(parts)-1] {
			b.WriteString(idOfString(part))
		}
		b.WriteString("))")
		b.WriteString(idOfString(parts[len(parts)-1]))
		b.WriteString(")")
		return b.String()
	}
	if id.Kind == types.KindLident {
		return "(v" + idOfString(id.Name) + ")"
	}
	return "(v(Name" + idOfString(id.Name) + "))"
}

// idOfString embeds a name into a serialized kernel Id, quoting it when it
// contains characters that the serializer would escape.
func idOfString(s string) string {
	if strings.ContainsAny(s, "\"'\\\b\f\t\n\r\v\a") {
		s = `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return "(Id " + s + ")"
}

// unquote strips one layer of surrounding double quotes if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
