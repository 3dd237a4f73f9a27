package insights

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/game"
)

// Limits applied by Validate.
const (
	maxSummaryRunes = 600
	maxListItems    = 5
)

const systemPrompt = `You write short, warm relationship insights for two people who just played a getting-to-know-you game on a dating app.
Reply with a JSON object with exactly these keys:
"summary" (string, at most 3 sentences), "highlights" (array of 1-5 strings), "differences" (array of 0-5 strings), "tip" (string, one suggestion for their next conversation).
Refer to the players as "you two" or "one of you". Never invent answers that are not listed.`

// BuildPrompt renders the answer log of a session as the user message.
// Players are anonymous; only question text and answers are included.
func BuildPrompt(d *game.Descriptor, s *domain.GameSession, answers []domain.GameAnswer) string {
	byRound := map[int][2]*domain.GameAnswer{}
	for i := range answers {
		a := &answers[i]
		pair := byRound[a.QuestionIndex]
		switch a.UserID {
		case s.Player1.UserID:
			pair[0] = a
		case s.Player2.UserID:
			pair[1] = a
		}
		byRound[a.QuestionIndex] = pair
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Game: %s\n", d.Name)
	if r := s.Results; r != nil && d.Score != nil {
		fmt.Fprintf(&b, "Compatibility: %.1f%% over %d rounds both answered\n", r.CompatibilityPercent, r.BothAnswered)
	}
	for idx, qid := range s.QuestionOrder {
		q, ok := d.Question(qid)
		if !ok {
			continue
		}
		pair := byRound[idx]
		fmt.Fprintf(&b, "\nQ%d [%s] %s\n", idx+1, q.Category, questionText(q))
		for k, a := range pair {
			fmt.Fprintf(&b, "  Player %d: %s\n", k+1, renderAnswer(d, q, a))
		}
	}
	return b.String()
}

func questionText(q *game.Question) string {
	if len(q.Options) == 2 {
		return fmt.Sprintf("%s: %s OR %s", q.Text, q.Options[0], q.Options[1])
	}
	return q.Text
}

func renderAnswer(d *game.Descriptor, q *game.Question, a *domain.GameAnswer) string {
	switch {
	case a == nil || a.TimedOut:
		return "(no answer)"
	case d.AnswerType == game.AnswerBinary:
		if a.Value == "true" {
			return "I have"
		}
		return "I have not"
	case d.AnswerType == game.AnswerTwoOption && len(q.Options) == 2:
		if a.Value == "A" {
			return q.Options[0]
		}
		return q.Options[1]
	case a.Transcript != "":
		return fmt.Sprintf("%q", a.Transcript)
	}
	return "(voice answer, no transcript)"
}

// Validate normalizes in place and rejects insights that do not match the
// expected shape.
func Validate(in *domain.Insights) error {
	if in == nil {
		return errors.New("insights: empty")
	}
	in.Summary = strings.TrimSpace(in.Summary)
	in.Tip = strings.TrimSpace(in.Tip)
	in.Highlights = cleanList(in.Highlights)
	in.Differences = cleanList(in.Differences)
	switch {
	case in.Summary == "":
		return errors.New("insights: summary is required")
	case len([]rune(in.Summary)) > maxSummaryRunes:
		return errors.New("insights: summary too long")
	case len(in.Highlights) == 0:
		return errors.New("insights: at least one highlight is required")
	case len(in.Highlights) > maxListItems || len(in.Differences) > maxListItems:
		return errors.New("insights: too many items")
	case in.Tip == "":
		return errors.New("insights: tip is required")
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Fallback builds deterministic insights from the session results.
func Fallback(d *game.Descriptor, r *domain.GameResults) *domain.Insights {
	if r == nil {
		r = &domain.GameResults{}
	}
	in := &domain.Insights{Highlights: []string{}, Differences: []string{}}

	switch {
	case d.Score == nil:
		in.Summary = fmt.Sprintf("You two answered %d of %d %s questions together.", r.BothAnswered, r.TotalRounds, d.Name)
	case r.Outcomes[game.OutcomeSecret] > 0 || r.Outcomes[game.OutcomeShared] > 0:
		in.Summary = fmt.Sprintf("You two share %d experiences and unlocked %d secrets in %s.",
			r.Outcomes[game.OutcomeShared], r.Outcomes[game.OutcomeSecret], d.Name)
	default:
		in.Summary = fmt.Sprintf("You two agreed on %d of %d rounds of %s (%.0f%% in sync).",
			r.MatchedCount, r.BothAnswered, d.Name, r.CompatibilityPercent)
	}

	cats := make([]string, 0, len(r.CategoryBreakdown))
	for c := range r.CategoryBreakdown {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		st := r.CategoryBreakdown[c]
		if st.BothAnswered == 0 {
			continue
		}
		if d.Score == nil || st.Percent >= 50 {
			if len(in.Highlights) < maxListItems {
				in.Highlights = append(in.Highlights, fmt.Sprintf("You both opened up about %s.", c))
			}
		} else if len(in.Differences) < maxListItems {
			in.Differences = append(in.Differences, fmt.Sprintf("You see %s differently.", c))
		}
	}
	if len(in.Highlights) == 0 {
		in.Highlights = append(in.Highlights, fmt.Sprintf("You finished %s together.", d.Name))
	}

	in.Tip = "Pick one question from the game and ask each other the story behind your answer."
	if len(r.ConversationStarters) > 0 {
		in.Tip = r.ConversationStarters[0]
	}
	return in
}
