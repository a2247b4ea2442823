// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sexp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *Node
	}{
		{
			name:  "bare atom",
			input: "Ack",
			want:  Atom("Ack"),
		},
		{
			name:  "flat list",
			input: "(Answer 0 Ack)",
			want:  List(Atom("Answer"), Atom("0"), Atom("Ack")),
		},
		{
			name:  "empty list",
			input: "()",
			want:  List(),
		},
		{
			name:  "nested without separators",
			input: "(a(b c)d)",
			want:  List(Atom("a"), List(Atom("b"), Atom("c")), Atom("d")),
		},
		{
			name:  "adjacent lists",
			input: "((doc_id 0)(span_id 1))",
			want: List(
				List(Atom("doc_id"), Atom("0")),
				List(Atom("span_id"), Atom("1")),
			),
		},
		{
			name:  "whitespace variants",
			input: "( a\n\tb\r\n c )",
			want:  List(Atom("a"), Atom("b"), Atom("c")),
		},
		{
			name:  "quoted adjacent to atom",
			input: `(CoqString"Print nat.")`,
			want:  List(Atom("CoqString"), Atom(`"Print nat."`)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "parsed %s, want %s", got, tt.want)
		})
	}
}

func TestParseAllMultipleExpressions(t *testing.T) {
	nodes, err := ParseAll("(Answer 0 Ack)\n(Answer 0 Completed)trailing")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "(Answer 0 Ack)", nodes[0].String())
	assert.Equal(t, "(Answer 0 Completed)", nodes[1].String())
	assert.True(t, nodes[2].IsAtomText("trailing"), "pending atom at end of input is flushed")
}

func TestParseRejectsMultipleExpressions(t *testing.T) {
	_, err := Parse("(a)(b)")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 6, perr.Offset)
	assert.Contains(t, perr.Msg, "found 2")
}

func TestQuoteRetention(t *testing.T) {
	// The atom x and the atom "x" are different protocol values and must
	// stay distinguishable after parsing.
	bare, err := Parse(`x`)
	require.NoError(t, err)
	quoted, err := Parse(`"x"`)
	require.NoError(t, err)

	assert.Equal(t, `x`, bare.Text())
	assert.Equal(t, `"x"`, quoted.Text())
	assert.False(t, bare.Equal(quoted))

	assert.Equal(t, `x`, bare.Unquoted())
	assert.Equal(t, `x`, quoted.Unquoted())

	assert.Equal(t, `"x"`, quoted.String(), "retained quotes print verbatim")
}

func TestParseEscapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		text string
	}{
		{"newline decodes", `"a\nb"`, "\"a\nb\""},
		{"tab decodes", `"a\tb"`, "\"a\tb\""},
		{"control codes decode", `"\r\b\f\v\a"`, "\"\r\b\f\v\a\""},
		{"escaped quote keeps both characters", `"a\"b"`, `"a\"b"`},
		{"escaped backslash keeps both characters", `"a\\b"`, `"a\\b"`},
		{"unknown escape keeps both characters", `"a\qb"`, `"a\qb"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.text, n.Text())

			// Whatever the decoding did, the printed form parses back
			// to the same atom.
			again, err := Parse(n.String())
			require.NoError(t, err)
			assert.True(t, n.Equal(again), "reparsed %q as %q", n.String(), again.Text())
		})
	}
}

func TestParseQuotedLiteralSwallowsStructure(t *testing.T) {
	n, err := Parse(`(msg"( not a list )")`)
	require.NoError(t, err)
	require.Equal(t, 2, n.Len())
	child, err := n.Child(1)
	require.NoError(t, err)
	assert.Equal(t, `( not a list )`, child.Unquoted())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		offset int
		msg    string
	}{
		{"unmatched close", `(a))`, 3, "unmatched closing parenthesis"},
		{"unclosed outer list", `((a)`, 0, "unclosed list"},
		{"unclosed inner list", `(a (b`, 3, "unclosed list"},
		{"unterminated quote", `"abc`, 0, "unterminated quoted literal"},
		{"unterminated quote mid-input", `ab "cd`, 3, "unterminated quoted literal"},
		{"empty input", ``, 0, "no expressions"},
		{"blank input", " \n\t", 0, "no expressions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAll(tt.input)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.offset, perr.Offset)
			assert.Contains(t, perr.Msg, tt.msg)
			assert.Contains(t, perr.Error(), "offset")
		})
	}
}

func TestStringCanonicalForms(t *testing.T) {
	// Canonically spaced input prints back byte for byte: a space only
	// between two adjacent atoms, none around lists.
	inputs := []string{
		`(Answer 0 Ack)`,
		`(Feedback((doc_id 0)(span_id 1)(route 0)(contents Processed)))`,
		`(Answer 1(Added 2((fname ToplevelInput)(line_nb 1)(bol_pos 0)(bp 0)(ep 17))NewTip))`,
		`(Answer 2(ObjList((CoqString "Print nat."))))`,
		`(Feedback((contents(Message(level Error)(pp(Pp_string "The term has type nat"))(str "The term has type nat")))))`,
		`(Query((sid 3)(pp((pp_format PpStr))))Goals)`,
	}
	for _, in := range inputs {
		n, err := Parse(in)
		require.NoError(t, err, "input %s", in)
		assert.Equal(t, in, n.String())
	}
}

func TestRoundTripEquivalence(t *testing.T) {
	// Redundant whitespace and decoded escapes are not preserved as
	// bytes, but the reprinted form always parses to the same tree.
	inputs := []string{
		"  ( a ( b c )\n d )  ",
		`(CoqString"no space before quote")`,
		`"line\nbreak"`,
		`(tag"a\"b"tail)`,
	}
	for _, in := range inputs {
		n, err := Parse(in)
		require.NoError(t, err, "input %s", in)
		again, err := Parse(n.String())
		require.NoError(t, err, "reparse %s", n.String())
		assert.True(t, n.Equal(again), "round trip changed %s into %s", in, again)
	}
}

func TestStringQuotesConstructedAtoms(t *testing.T) {
	assert.Equal(t, `"two words"`, Atom("two words").String())
	assert.Equal(t, `"already quoted"`, Atom(`"already quoted"`).String())
	assert.Equal(t, `plain`, Atom("plain").String())
	assert.Equal(t, ``, Atom("").String())
	assert.Equal(t, `()`, List().String())
}

func TestAt(t *testing.T) {
	n, err := Parse(`(Feedback((doc_id 0)(span_id 1)))`)
	require.NoError(t, err)

	sid, err := n.At(1, 1, 1)
	require.NoError(t, err)
	assert.True(t, sid.IsAtomText("1"))

	_, err = n.At(0, 1)
	require.Error(t, err, "descending into an atom")
	assert.Contains(t, err.Error(), "[0 1]")

	_, err = n.At(5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestHeadText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`(Answer 0 Ack)`, "Answer"},
		{`((CoqGoal x)y)`, "CoqGoal"},
		{`atom`, "atom"},
		{`()`, ""},
	}
	for _, tt := range tests {
		n, err := Parse(tt.input)
		require.NoError(t, err)
		assert.Equal(t, tt.want, n.HeadText(), "input %s", tt.input)
	}
}

func TestEqual(t *testing.T) {
	a := List(Atom("x"), List(Atom("y")))
	b := List(Atom("x"), List(Atom("y")))
	c := List(Atom("x"), List(Atom("z")))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Atom("x")))
	assert.False(t, a.Equal(nil))
	assert.True(t, (*Node)(nil).Equal(nil))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `say \"hi\"`, Escape(`say "hi"`))
	assert.Equal(t, `back\\slash`, Escape(`back\slash`))
	assert.Equal(t, `\\\"`, Escape(`\"`), "backslashes escape before quotes")
	assert.Equal(t, `Lemma foo : True.`, Escape(`Lemma foo : True.`))
}
