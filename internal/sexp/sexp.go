// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sexp implements the s-expression tree model used by the sertop
// wire protocol: atoms and lists, a parser with byte-offset errors, and a
// printer that round-trips everything the parser accepts.
//
// Quoting is preserved rather than interpreted: an atom parsed from a quoted
// literal keeps its surrounding double quotes in Text, and Unquoted strips
// exactly one layer. Consumers that slice protocol responses rely on this to
// distinguish the atom `x` from the atom `"x"`.
package sexp

import (
	"fmt"
	"strings"
)

// Kind discriminates the two node variants.
type Kind uint8

const (
	// AtomKind marks a leaf node carrying text.
	AtomKind Kind = iota

	// ListKind marks an interior node carrying ordered children.
	ListKind
)

// Node is one node of an s-expression tree.
type Node struct {
	kind  Kind
	text  string
	items []*Node
}

// Atom returns a leaf node with the given text.
func Atom(text string) *Node {
	return &Node{kind: AtomKind, text: text}
}

// List returns an interior node with the given children.
func List(items ...*Node) *Node {
	return &Node{kind: ListKind, items: items}
}

// Kind reports the node variant.
func (n *Node) Kind() Kind { return n.kind }

// IsAtom reports whether the node is a leaf.
func (n *Node) IsAtom() bool { return n.kind == AtomKind }

// IsList reports whether the node is an interior node.
func (n *Node) IsList() bool { return n.kind == ListKind }

// Text returns an atom's content, quotes retained for parsed quoted
// literals. It returns the empty string for lists.
func (n *Node) Text() string {
	return n.text
}

// Unquoted returns an atom's content with one surrounding quote layer
// stripped when both quotes are present.
func (n *Node) Unquoted() string {
	t := n.text
	if len(t) >= 2 && t[0] == '"' && t[len(t)-1] == '"' {
		return t[1 : len(t)-1]
	}
	return t
}

// Items returns a list's children. It returns nil for atoms.
func (n *Node) Items() []*Node { return n.items }

// Len returns the number of children. It returns 0 for atoms.
func (n *Node) Len() int { return len(n.items) }

// Child returns the i-th child.
func (n *Node) Child(i int) (*Node, error) {
	if n.kind != ListKind {
		return nil, fmt.Errorf("sexp: indexing atom %q", n.text)
	}
	if i < 0 || i >= len(n.items) {
		return nil, fmt.Errorf("sexp: index %d out of range [0, %d)", i, len(n.items))
	}
	return n.items[i], nil
}

// At walks a fixed child-index path, the idiom for slicing protocol
// responses with known shapes.
func (n *Node) At(path ...int) (*Node, error) {
	cur := n
	for depth, i := range path {
		child, err := cur.Child(i)
		if err != nil {
			return nil, fmt.Errorf("sexp: at %v: %w", path[:depth+1], err)
		}
		cur = child
	}
	return cur, nil
}

// IsAtomText reports whether the node is an atom with exactly the given
// text.
func (n *Node) IsAtomText(s string) bool {
	return n.kind == AtomKind && n.text == s
}

// HeadText returns the first atom text in the node's subtree: an atom's
// own text, or the head of a list's first child. Protocol payloads carry
// their tag in this position, sometimes nested one list deep.
func (n *Node) HeadText() string {
	if n.kind == AtomKind {
		return n.text
	}
	if len(n.items) == 0 {
		return ""
	}
	return n.items[0].HeadText()
}

// Equal reports structural equality.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.kind != o.kind {
		return false
	}
	if n.kind == AtomKind {
		return n.text == o.text
	}
	if len(n.items) != len(o.items) {
		return false
	}
	for i := range n.items {
		if !n.items[i].Equal(o.items[i]) {
			return false
		}
	}
	return true
}

// String prints the canonical wire form. An atom is wrapped in quotes only
// if it is not already quote-wrapped and contains a space; a list separates
// children with a space only between two adjacent atoms. A constructed
// empty atom prints as nothing and is the one value that does not survive a
// round trip.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	if n.kind == AtomKind {
		if n.needsQuotes() {
			b.WriteByte('"')
			b.WriteString(n.text)
			b.WriteByte('"')
		} else {
			b.WriteString(n.text)
		}
		return
	}
	b.WriteByte('(')
	for i, item := range n.items {
		if i > 0 && item.kind == AtomKind && n.items[i-1].kind == AtomKind {
			b.WriteByte(' ')
		}
		item.write(b)
	}
	b.WriteByte(')')
}

func (n *Node) needsQuotes() bool {
	t := n.text
	if len(t) >= 2 && t[0] == '"' && t[len(t)-1] == '"' {
		return false
	}
	return strings.Contains(t, " ")
}

// Escape prepares raw command text for embedding in a quoted protocol
// literal: backslashes first, then quotes.
func Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
