package linker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/crosslink/internal/apperr"
	"github.com/starford/crosslink/internal/models"
)

// LinkText formats the wikilink that replaces a matched span.
func LinkText(target, display string) string {
	return "[[" + models.Basename(target) + "|" + display + "]]"
}

// Rewrite returns a new token slice in which each accepted span is collapsed
// into one synthetic link token. Tokens outside the spans are copied
// unchanged. Spans must lie within tokens and must not overlap.
func Rewrite(tokens []models.Token, accepted []models.Candidate) ([]models.Token, error) {
	if len(accepted) == 0 {
		return tokens, nil
	}

	plan := append([]models.Candidate(nil), accepted...)
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].Start < plan[j].Start })

	prevEnd := -1
	for _, c := range plan {
		if c.Start < 0 || c.End < c.Start || c.End >= len(tokens) {
			return nil, fmt.Errorf("linker: span [%d,%d] outside %d tokens: %w", c.Start, c.End, len(tokens), apperr.ErrOverlappingSpans)
		}
		if c.Start <= prevEnd {
			return nil, fmt.Errorf("linker: span [%d,%d] overlaps previous end %d: %w", c.Start, c.End, prevEnd, apperr.ErrOverlappingSpans)
		}
		prevEnd = c.End
	}

	out := make([]models.Token, 0, len(tokens))
	next := 0
	for _, c := range plan {
		out = append(out, tokens[next:c.Start]...)

		var display strings.Builder
		for _, t := range tokens[c.Start : c.End+1] {
			display.WriteString(t.Text)
		}
		out = append(out, models.Token{
			Kind: models.KindSyntheticLink,
			Text: LinkText(c.Target, display.String()),
		})
		next = c.End + 1
	}
	out = append(out, tokens[next:]...)
	return out, nil
}
