package insights

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/search"
)

const (
	echoMinScore = 0.15
	maxEchoTerms = 3
)

// Echoes finds words both players used in their spoken answers. Each of
// p2's transcripts is matched against the closest transcript of p1; pairs
// below echoMinScore are ignored.
func Echoes(answers []domain.GameAnswer, p1, p2 string) []string {
	var mine, theirs []string
	for _, a := range answers {
		if strings.TrimSpace(a.Transcript) == "" {
			continue
		}
		switch a.UserID {
		case p1:
			mine = append(mine, a.Transcript)
		case p2:
			theirs = append(theirs, a.Transcript)
		}
	}
	if len(mine) == 0 || len(theirs) == 0 {
		return nil
	}

	idx := search.NewIndex(mine, search.WithStopwords(search.DefaultStopwords))
	seen := map[string]bool{}
	var out []string
	for _, t := range theirs {
		best := idx.TopK(t, 1)
		if len(best) == 0 || best[0].Score < echoMinScore {
			continue
		}
		for _, w := range search.SharedTerms(best[0].Snippet, t, search.DefaultStopwords, maxEchoTerms) {
			if !seen[w] && len(out) < maxEchoTerms {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}

// AddEchoes prepends a highlight naming the shared words, keeping the list
// within Validate's bounds.
func AddEchoes(in *domain.Insights, terms []string) *domain.Insights {
	if in == nil || len(terms) == 0 {
		return in
	}
	var phrase string
	switch len(terms) {
	case 1:
		phrase = terms[0]
	default:
		phrase = strings.Join(terms[:len(terms)-1], ", ") + " and " + terms[len(terms)-1]
	}
	hl := append([]string{fmt.Sprintf("You both brought up %s.", phrase)}, in.Highlights...)
	if len(hl) > maxListItems {
		hl = hl[:maxListItems]
	}
	in.Highlights = hl
	return in
}
