// Package lexer splits a document body into a lossless sequence of typed tokens.
package lexer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/starford/crosslink/internal/apperr"
	"github.com/starford/crosslink/internal/models"
)

// space is the whitespace class shared by the whitespace and word rules.
// Beyond \s it covers \v, NEL, the information separators U+001C-U+001F and
// every Unicode separator.
const space = `\s\v\x{85}\x{1c}-\x{1f}\p{Z}`

type rule struct {
	kind models.TokenKind
	// lead is the byte every match starts with; zero means any.
	lead byte
	re   *regexp.Regexp
}

// rules are tried in order at every position; the first match wins.
// Inline math is deliberately tried before block math, so "$$a$$" lexes as
// the inline span "$$a$" followed by the word "$".
var rules = []rule{
	{models.KindLatexInline, '$', regexp.MustCompile(`^\$.+?\$`)},
	{models.KindLatexBlock, '$', regexp.MustCompile(`^\$\$.+?\$\$`)},
	{models.KindCodeBlock, '`', regexp.MustCompile("^```[\\s\\S]+?```")},
	{models.KindWikiLink, '[', regexp.MustCompile(`^\[\[.*?\]\]`)},
	{models.KindHyperlink, '[', regexp.MustCompile(`^\[.*?\]\(.*?\)`)},
	{models.KindNewline, '\n', regexp.MustCompile(`^\n`)},
	{models.KindWhitespace, 0, regexp.MustCompile(`^[` + space + `]+`)},
	{models.KindWord, 0, regexp.MustCompile(`^[^` + space + `]+`)},
}

// IsSpace reports whether r separates words. It agrees with the lexer's
// whitespace class so that aliases split into the same words as bodies.
func IsSpace(r rune) bool {
	return unicode.IsSpace(r) || unicode.In(r, unicode.Z) || (r >= 0x1c && r <= 0x1f)
}

// Fields splits s around runs of IsSpace.
func Fields(s string) []string {
	return strings.FieldsFunc(s, IsSpace)
}

type state int

const (
	stateStart state = iota
	stateEmit
)

// scanner is a two-state machine: in stateStart it classifies the input at
// pos, in stateEmit it consumes the classified token and returns to stateStart.
type scanner struct {
	input  string
	pos    int
	state  state
	rule   rule
	length int
	tokens []models.Token
}

// Tokenize consumes the whole body. Concatenating the texts of the returned
// tokens yields body exactly.
func Tokenize(body string) ([]models.Token, error) {
	s := &scanner{input: body, tokens: make([]models.Token, 0, len(body)/4+1)}
	for s.pos < len(s.input) {
		switch s.state {
		case stateStart:
			if !s.classify() {
				return nil, fmt.Errorf("lexer: offset %d: %w", s.pos, apperr.ErrTokenize)
			}
			s.state = stateEmit
		case stateEmit:
			end := s.pos + s.length
			s.tokens = append(s.tokens, models.Token{Kind: s.rule.kind, Text: s.input[s.pos:end]})
			s.pos = end
			s.state = stateStart
		}
	}
	return s.tokens, nil
}

func (s *scanner) classify() bool {
	rest := s.input[s.pos:]
	first := rest[0]
	for _, r := range rules {
		// Skipping rules that cannot match here keeps long lines linear:
		// the lazy patterns would otherwise scan to the end of the line at
		// every word.
		if r.lead != 0 && r.lead != first {
			continue
		}
		loc := r.re.FindStringIndex(rest)
		if loc == nil || loc[1] == 0 {
			continue
		}
		s.rule = r
		s.length = loc[1]
		return true
	}
	return false
}

// Words returns the indices of word tokens, in order.
func Words(tokens []models.Token) []int {
	out := make([]int, 0, len(tokens)/2)
	for i, t := range tokens {
		if t.Kind == models.KindWord {
			out = append(out, i)
		}
	}
	return out
}
