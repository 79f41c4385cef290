// Package alias builds the word trie used to find document titles and aliases
// inside body text.
package alias

import (
	"sort"
	"strings"

	"github.com/starford/crosslink/internal/lexer"
	"github.com/starford/crosslink/internal/models"
	"github.com/starford/crosslink/internal/parser"
)

// Node is one word position in the trie. A node with targets terminates a
// complete alias.
type Node struct {
	children map[string]*Node
	targets  []string
}

// Child returns the node reached by word, which must already be lowercase.
func (n *Node) Child(word string) *Node {
	if n == nil {
		return nil
	}
	return n.children[word]
}

// Terminal reports whether an alias ends at n.
func (n *Node) Terminal() bool {
	return n != nil && len(n.targets) > 0
}

// Target returns the document that wins lookups at n: the first one inserted.
func (n *Node) Target() string {
	if !n.Terminal() {
		return ""
	}
	return n.targets[0]
}

// Targets returns every document registered for the alias ending at n.
func (n *Node) Targets() []string {
	if n == nil {
		return nil
	}
	return append([]string(nil), n.targets...)
}

// Collision is an alias claimed by more than one document. Paths are in
// insertion order, so Paths[0] is the document lookups resolve to.
type Collision struct {
	Alias string   `json:"alias"`
	Paths []string `json:"paths"`
}

// Entry is a flattened alias → documents pair.
type Entry struct {
	Alias string   `json:"alias"`
	Paths []string `json:"paths"`
}

// Trie maps lowercase word sequences to the documents that declare them.
// It is immutable once Build returns.
type Trie struct {
	root *Node
	size int
}

// Build inserts every document's basename and declared aliases, in document
// order.
func Build(docs []*models.Document) *Trie {
	t := &Trie{root: &Node{children: make(map[string]*Node)}}
	for _, d := range docs {
		for _, a := range Of(d) {
			t.insert(a, d.Path)
		}
	}
	return t
}

// Of returns the lowercase alias set of d: its basename followed by the
// aliases declared in its metadata, without duplicates.
func Of(d *models.Document) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = Normalize(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	add(d.Name())
	for _, a := range parser.Aliases(d.Meta) {
		add(a)
	}
	return out
}

// Normalize lowercases s and collapses internal whitespace to single spaces.
// Whitespace is what the lexer treats as whitespace.
func Normalize(s string) string {
	return strings.Join(lexer.Fields(strings.ToLower(s)), " ")
}

func (t *Trie) insert(alias, path string) {
	n := t.root
	for _, w := range lexer.Fields(alias) {
		next, ok := n.children[w]
		if !ok {
			next = &Node{children: make(map[string]*Node)}
			n.children[w] = next
		}
		n = next
	}
	if n == t.root {
		return
	}
	for _, p := range n.targets {
		if p == path {
			return
		}
	}
	if len(n.targets) == 0 {
		t.size++
	}
	n.targets = append(n.targets, path)
}

// Root returns the trie root. Matching descends from here word by word.
func (t *Trie) Root() *Node {
	return t.root
}

// Len returns the number of distinct aliases.
func (t *Trie) Len() int {
	return t.size
}

// Descend walks words (already lowercase) from the root and returns the node
// reached, or nil if the path leaves the trie.
func (t *Trie) Descend(words []string) *Node {
	n := t.root
	for _, w := range words {
		n = n.Child(w)
		if n == nil {
			return nil
		}
	}
	return n
}

// Lookup resolves phrase as a complete alias and returns its winning target.
func (t *Trie) Lookup(phrase string) (string, bool) {
	n := t.Descend(lexer.Fields(strings.ToLower(phrase)))
	if !n.Terminal() {
		return "", false
	}
	return n.Target(), true
}

// Entries flattens the trie into alias entries sorted by alias.
func (t *Trie) Entries() []Entry {
	var out []Entry
	var walk func(n *Node, prefix []string)
	walk = func(n *Node, prefix []string) {
		if n.Terminal() {
			out = append(out, Entry{Alias: strings.Join(prefix, " "), Paths: n.Targets()})
		}
		for w, c := range n.children {
			walk(c, append(prefix[:len(prefix):len(prefix)], w))
		}
	}
	walk(t.root, nil)
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// Collisions lists aliases registered by more than one document.
func (t *Trie) Collisions() []Collision {
	var out []Collision
	for _, e := range t.Entries() {
		if len(e.Paths) > 1 {
			out = append(out, Collision{Alias: e.Alias, Paths: e.Paths})
		}
	}
	return out
}
