// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package document splits Coq source into the sentences an interactive
// session consumes: dot-terminated commands, proof bullets, and focusing
// braces, each with its span in the source file.
package document

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pdiddy/proof-engine/pkg/types"
)

// Sentence is one source sentence of a document.
type Sentence struct {
	// Text is the sentence with comments dropped and whitespace runs
	// collapsed to single spaces. String literals keep their exact bytes.
	Text string

	// Location is the sentence's span in the source file.
	Location types.Loc
}

// selectorBraceRe matches a focusing brace with a numeric goal selector,
// which forms a sentence without a terminating dot.
var selectorBraceRe = regexp.MustCompile(`^\d+\s*:\s*\{`)

// ReadFile reads a document and splits it into sentences.
func ReadFile(path string) ([]Sentence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Split(path, string(data))
}

// Split cuts source into sentences. filename labels the locations; the
// content is taken from src alone.
func Split(filename, src string) ([]Sentence, error) {
	s := &splitter{filename: filename, src: src}
	var out []Sentence
	for {
		sentence, ok, err := s.scan()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, sentence)
	}
}

type splitter struct {
	filename string
	src      string

	pos  int
	line int
	bol  int

	// lastLine and lastBol track the line holding the most recently
	// consumed content byte, for the end coordinates of a span.
	lastLine int
	lastBol  int
}

// next consumes one byte, maintaining the line bookkeeping.
func (s *splitter) next() byte {
	c := s.src[s.pos]
	s.lastLine, s.lastBol = s.line, s.bol
	s.pos++
	if c == '\n' {
		s.line++
		s.bol = s.pos
	}
	return c
}

func (s *splitter) errorf(format string, args ...interface{}) error {
	prefix := fmt.Sprintf("%s:%d: ", s.filename, s.line+1)
	return fmt.Errorf(prefix+format, args...)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// skipSpace consumes whitespace and comments between sentences.
func (s *splitter) skipSpace() error {
	for s.pos < len(s.src) {
		switch {
		case isSpace(s.src[s.pos]):
			s.next()
		case strings.HasPrefix(s.src[s.pos:], "(*"):
			if err := s.skipComment(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

// skipComment consumes a possibly nested comment. String literals inside a
// comment are honored, so a "*)" within one does not close it.
func (s *splitter) skipComment() error {
	s.next()
	s.next()
	depth := 1
	for depth > 0 {
		switch {
		case s.pos >= len(s.src):
			return s.errorf("unterminated comment")
		case strings.HasPrefix(s.src[s.pos:], "(*"):
			s.next()
			s.next()
			depth++
		case strings.HasPrefix(s.src[s.pos:], "*)"):
			s.next()
			s.next()
			depth--
		case s.src[s.pos] == '"':
			if err := s.scanString(nil); err != nil {
				return err
			}
		default:
			s.next()
		}
	}
	return nil
}

// scanString consumes a string literal, writing its exact bytes to b when
// b is non-nil. A doubled quote escapes a quote.
func (s *splitter) scanString(b *strings.Builder) error {
	write := func(c byte) {
		if b != nil {
			b.WriteByte(c)
		}
	}
	write(s.next())
	for {
		if s.pos >= len(s.src) {
			return s.errorf("unterminated string")
		}
		c := s.next()
		write(c)
		if c != '"' {
			continue
		}
		if s.pos < len(s.src) && s.src[s.pos] == '"' {
			write(s.next())
			continue
		}
		return nil
	}
}

// scan produces the next sentence. The second result is false at the end
// of the document.
func (s *splitter) scan() (Sentence, bool, error) {
	if err := s.skipSpace(); err != nil {
		return Sentence{}, false, err
	}
	if s.pos >= len(s.src) {
		return Sentence{}, false, nil
	}
	beg := s.pos
	begLine, begBol := s.line, s.bol
	done := func(text string) (Sentence, bool, error) {
		return Sentence{
			Text: text,
			Location: types.Loc{
				Filename:   s.filename,
				LineNo:     begLine,
				BolPos:     begBol,
				LineNoLast: s.lastLine,
				BolPosLast: s.lastBol,
				Beg:        beg,
				End:        s.pos,
			},
		}, true, nil
	}

	switch c := s.src[s.pos]; c {
	case '{', '}':
		s.next()
		return done(string(c))
	case '-', '+', '*':
		// A proof bullet is a run of one repeated character.
		for s.pos < len(s.src) && s.src[s.pos] == c {
			s.next()
		}
		return done(s.src[beg:s.pos])
	}
	if m := selectorBraceRe.FindString(s.src[beg:]); m != "" {
		for range m {
			s.next()
		}
		fields := strings.Fields(strings.TrimSuffix(m, "{"))
		return done(strings.Join(fields, " ") + " {")
	}

	var b strings.Builder
	pendingSpace := false
	for {
		if s.pos >= len(s.src) {
			return Sentence{}, false, s.errorf("unterminated sentence %q", abbreviate(b.String()))
		}
		if strings.HasPrefix(s.src[s.pos:], "(*") {
			if err := s.skipComment(); err != nil {
				return Sentence{}, false, err
			}
			pendingSpace = true
			continue
		}
		c := s.src[s.pos]
		if isSpace(c) {
			s.next()
			pendingSpace = true
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		if c == '"' {
			if err := s.scanString(&b); err != nil {
				return Sentence{}, false, err
			}
			continue
		}
		s.next()
		b.WriteByte(c)
		if c == '.' && s.atSentenceEnd() {
			return done(b.String())
		}
	}
}

// atSentenceEnd reports whether the dot just consumed terminates the
// sentence: end of input, whitespace, or a comment follow it. A dot glued
// to anything else is a qualified name, a numeral, or a projection.
func (s *splitter) atSentenceEnd() bool {
	if s.pos >= len(s.src) {
		return true
	}
	return isSpace(s.src[s.pos]) || strings.HasPrefix(s.src[s.pos:], "(*")
}

func abbreviate(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
