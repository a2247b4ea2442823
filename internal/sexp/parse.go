// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sexp

import "fmt"

// ParseError reports a syntax error at a byte offset of the input.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sexp: %s at offset %d", e.Msg, e.Offset)
}

// Parse parses input holding exactly one s-expression.
func Parse(input string) (*Node, error) {
	nodes, err := ParseAll(input)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, &ParseError{Offset: len(input), Msg: fmt.Sprintf("expected one expression, found %d", len(nodes))}
	}
	return nodes[0], nil
}

// ParseAll parses input holding one or more s-expressions.
//
// Lexing: parentheses open and close lists; a double quote opens a quoted
// literal in which parentheses and whitespace are ordinary characters;
// whitespace otherwise separates unquoted atoms. Inside a quoted literal a
// backslash escapes the next character: single-character codes decode to
// their control characters, while `\"`, `\\`, and unrecognized escapes keep
// both characters so the printed form parses back to the same tree. An
// unquoted atom pending at end of input becomes a final atom.
func ParseAll(input string) ([]*Node, error) {
	stack := [][]*Node{nil}
	openOffsets := []int{-1}

	var quoted []byte
	quotedStart := -1
	escaped := false
	var terminal []byte

	flushTerminal := func() {
		if terminal != nil {
			stack[len(stack)-1] = append(stack[len(stack)-1], Atom(string(terminal)))
			terminal = nil
		}
	}

	for i := 0; i < len(input); i++ {
		c := input[i]
		if quoted != nil {
			switch {
			case escaped:
				quoted = appendEscaped(quoted, c)
				escaped = false
			case c == '"':
				quoted = append(quoted, '"')
				stack[len(stack)-1] = append(stack[len(stack)-1], Atom(string(quoted)))
				quoted = nil
			case c == '\\':
				escaped = true
			default:
				quoted = append(quoted, c)
			}
			continue
		}
		switch {
		case c == '(':
			flushTerminal()
			stack = append(stack, nil)
			openOffsets = append(openOffsets, i)
		case c == ')':
			flushTerminal()
			if len(stack) == 1 {
				return nil, &ParseError{Offset: i, Msg: "unmatched closing parenthesis"}
			}
			items := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			openOffsets = openOffsets[:len(openOffsets)-1]
			stack[len(stack)-1] = append(stack[len(stack)-1], List(items...))
		case c == '"':
			flushTerminal()
			quoted = []byte{'"'}
			quotedStart = i
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			flushTerminal()
		default:
			terminal = append(terminal, c)
		}
	}

	if quoted != nil {
		return nil, &ParseError{Offset: quotedStart, Msg: "unterminated quoted literal"}
	}
	flushTerminal()
	if len(stack) != 1 {
		return nil, &ParseError{Offset: openOffsets[len(openOffsets)-1], Msg: "unclosed list"}
	}
	if len(stack[0]) == 0 {
		return nil, &ParseError{Offset: 0, Msg: "no expressions"}
	}
	return stack[0], nil
}

// appendEscaped appends the decoding of the escape sequence `\c`.
func appendEscaped(dst []byte, c byte) []byte {
	switch c {
	case 'n':
		return append(dst, '\n')
	case 't':
		return append(dst, '\t')
	case 'r':
		return append(dst, '\r')
	case 'b':
		return append(dst, '\b')
	case 'f':
		return append(dst, '\f')
	case 'v':
		return append(dst, '\v')
	case 'a':
		return append(dst, '\a')
	default:
		return append(dst, '\\', c)
	}
}
