// Package models defines the domain types shared by the linking pipeline.
package models

import (
	"path"
	"strings"
	"time"
)

// TokenKind classifies a lossless slice of a document body.
type TokenKind string

const (
	KindWord          TokenKind = "word"
	KindWhitespace    TokenKind = "whitespace"
	KindNewline       TokenKind = "newline"
	KindLatexInline   TokenKind = "latex_inline"
	KindLatexBlock    TokenKind = "latex_block"
	KindCodeBlock     TokenKind = "code_block"
	KindWikiLink      TokenKind = "wiki_link"
	KindHyperlink     TokenKind = "hyperlink"
	KindSyntheticLink TokenKind = "synthetic_link"
)

// Token is a classified substring of a document body.
type Token struct {
	Kind TokenKind `json:"kind"`
	Text string    `json:"text"`
}

// Document is a vault file split into its verbatim header, the whitespace that
// follows it, and the tokenized body.
type Document struct {
	Path     string         `json:"path"`
	Meta     map[string]any `json:"meta,omitempty"`
	Header   string         `json:"-"`
	Leading  string         `json:"-"`
	Tokens   []Token        `json:"tokens"`
	Checksum string         `json:"checksum"`
}

// Body concatenates the token texts.
func (d *Document) Body() string {
	return JoinTokens(d.Tokens)
}

// Render returns the full file content: header, leading whitespace and body.
func (d *Document) Render() string {
	return d.Header + d.Leading + d.Body()
}

// Name is the base filename without its extension; it is both the implicit
// alias of the document and the target written into inserted links.
func (d *Document) Name() string {
	return Basename(d.Path)
}

// Basename strips directories and the extension from a slash path.
func Basename(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// JoinTokens concatenates token texts in order.
func JoinTokens(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

// Rejection reasons recorded on candidates that did not pass the filter.
const (
	ReasonAccepted      = ""
	ReasonSelf          = "self"
	ReasonTooFar        = "too_far"
	ReasonUnreachable   = "unreachable"
	ReasonUnknownTarget = "unknown_target"
)

// DistanceUnreachable is the Distance recorded on candidates whose source
// and target share no label path, or that name an unknown document.
const DistanceUnreachable = -1

// Candidate is a text match of another document's alias inside a source
// document. Start and End are inclusive token indices.
type Candidate struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Phrase   string `json:"phrase"`
	Distance int    `json:"distance"`
	Reason   string `json:"reason,omitempty"`
}

// DocumentMeta is a lightweight representation returned by vault listings.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
