// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// Loc identifies a span of a Coq document. Offsets are byte offsets from the
// beginning of the file; line numbers are zero-based.
type Loc struct {
	// Filename is the path of the document the span belongs to.
	Filename string `json:"filename" yaml:"filename"`

	// LineNo is the line on which the span begins.
	LineNo int `json:"line_no" yaml:"line_no"`

	// BolPos is the offset of the beginning of the line on which the span begins.
	BolPos int `json:"bol_pos" yaml:"bol_pos"`

	// LineNoLast is the line on which the span ends.
	LineNoLast int `json:"line_no_last" yaml:"line_no_last"`

	// BolPosLast is the offset of the beginning of the line on which the span ends.
	BolPosLast int `json:"bol_pos_last" yaml:"bol_pos_last"`

	// Beg is the offset of the first character of the span.
	Beg int `json:"beg" yaml:"beg"`

	// End is the offset one past the last character of the span.
	End int `json:"end" yaml:"end"`
}

// Before reports whether l ends at or before the beginning of other.
// Overlapping spans are ordered by neither Before nor other.Before.
func (l Loc) Before(other Loc) bool {
	return l.End <= other.Beg
}

// Union returns the smallest span covering both l and other. The filename of
// the receiver wins; unioning spans from different files is undefined.
func (l Loc) Union(other Loc) Loc {
	out := l
	if other.Beg < out.Beg {
		out.LineNo = other.LineNo
		out.BolPos = other.BolPos
		out.Beg = other.Beg
	}
	if other.End > out.End {
		out.LineNoLast = other.LineNoLast
		out.BolPosLast = other.BolPosLast
		out.End = other.End
	}
	return out
}

// Contains reports whether the span of other lies entirely within l.
func (l Loc) Contains(other Loc) bool {
	return l.Filename == other.Filename && l.Beg <= other.Beg && other.End <= l.End
}

func (l Loc) String() string {
	return fmt.Sprintf("%s: %d-%d", l.Filename, l.Beg, l.End)
}

// CompareLoc orders spans by beginning offset, then by ending offset.
// It reports -1, 0, or 1 in the manner of cmp.Compare.
func CompareLoc(a, b Loc) int {
	switch {
	case a.Beg < b.Beg:
		return -1
	case a.Beg > b.Beg:
		return 1
	case a.End < b.End:
		return -1
	case a.End > b.End:
		return 1
	}
	return 0
}
