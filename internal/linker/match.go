// Package linker finds alias mentions in tokenized documents, keeps the ones
// that point at related documents, and splices wikilinks into the text.
package linker

import (
	"strings"

	"github.com/starford/crosslink/internal/alias"
	"github.com/starford/crosslink/internal/lexer"
	"github.com/starford/crosslink/internal/models"
)

// checkpoint is a trie position reached after consuming count words.
type checkpoint struct {
	node  *alias.Node
	count int
}

// Match scans the word tokens of a document for the longest aliases in trie.
// Matches resolving to source itself are dropped. Spans are indices into
// tokens and therefore cover the separators between matched words.
func Match(trie *alias.Trie, tokens []models.Token, source string) []models.Candidate {
	words := lexer.Words(tokens)
	lower := make([]string, len(words))
	for i, idx := range words {
		lower[i] = strings.ToLower(tokens[idx].Text)
	}

	var out []models.Candidate
	stack := make([]checkpoint, 0, 8)
	for i := 0; i < len(words); {
		first := trie.Root().Child(lower[i])
		if first == nil {
			i++
			continue
		}

		// Descend as deep as the trie allows.
		stack = append(stack[:0], checkpoint{node: first, count: 1})
		for i+len(stack) < len(words) {
			top := stack[len(stack)-1]
			next := top.node.Child(lower[i+top.count])
			if next == nil {
				break
			}
			stack = append(stack, checkpoint{node: next, count: top.count + 1})
		}

		// Back off to the deepest complete alias.
		for len(stack) > 0 && !stack[len(stack)-1].node.Terminal() {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			i++
			continue
		}

		top := stack[len(stack)-1]
		target := top.node.Target()
		if target == source {
			i++
			continue
		}
		out = append(out, models.Candidate{
			Source:   source,
			Target:   target,
			Start:    words[i],
			End:      words[i+top.count-1],
			Phrase:   strings.Join(lower[i:i+top.count], " "),
			Distance: -1,
		})
		i += top.count
	}
	return out
}
