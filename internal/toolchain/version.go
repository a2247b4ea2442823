// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package toolchain

import "strings"

// Version is an opam package version such as "8.15.2+0.15.4": the Coq
// version, optionally followed by '+' and the serapi release.
type Version string

// Coq returns the Coq part of the version, up to the first '+'.
func (v Version) Coq() Version {
	s, _, _ := strings.Cut(string(v), "+")
	return Version(s)
}

// SerAPI returns the serapi release part, or "" when absent.
func (v Version) SerAPI() Version {
	_, s, _ := strings.Cut(string(v), "+")
	return Version(s)
}

// Less reports whether v orders before other.
func (v Version) Less(other Version) bool {
	return Compare(v, other) < 0
}

// AtLeast reports whether v orders at or after other.
func (v Version) AtLeast(other Version) bool {
	return Compare(v, other) >= 0
}

// Compare orders two versions the way opam does: the strings split into
// alternating non-digit and digit runs which compare piecewise. Digit runs
// compare numerically. Within non-digit runs, '~' sorts before the end of
// the string and letters sort before other characters.
func Compare(a, b Version) int {
	as, bs := string(a), string(b)
	for as != "" || bs != "" {
		pa, ra := splitRun(as, false)
		pb, rb := splitRun(bs, false)
		if c := compareAlpha(pa, pb); c != 0 {
			return c
		}
		na, ra2 := splitRun(ra, true)
		nb, rb2 := splitRun(rb, true)
		if c := compareNumeric(na, nb); c != 0 {
			return c
		}
		as, bs = ra2, rb2
	}
	return 0
}

// splitRun cuts the leading run of digit (or non-digit) characters.
func splitRun(s string, digits bool) (run, rest string) {
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9') == digits {
		i++
	}
	return s[:i], s[i:]
}

func compareAlpha(a, b string) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		ca, cb := charOrder(a, i), charOrder(b, i)
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	return 0
}

// charOrder ranks byte i of s: '~' before end of string, end of string
// before letters, letters before everything else.
func charOrder(s string, i int) int {
	if i >= len(s) {
		return 0
	}
	c := s[i]
	switch {
	case c == '~':
		return -1
	case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
		return int(c)
	default:
		return int(c) + 256
	}
}

func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
