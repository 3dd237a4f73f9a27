package game

import (
	"fmt"
	"math"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// Round outcomes.
const (
	OutcomeShared    = "shared"
	OutcomeInnocent  = "innocent"
	OutcomeSecret    = "secretUnlocked"
	OutcomeTimedOut  = "timedOut"
	OutcomeMatched   = "matched"
	OutcomeDifferent = "different"
)

const maxStarters = 3

func scoreBinary(v1, v2 *string) RoundScore {
	if v1 == nil || v2 == nil {
		return RoundScore{Outcome: OutcomeTimedOut}
	}
	a, b := *v1 == "true", *v2 == "true"
	switch {
	case a && b:
		return RoundScore{Outcome: OutcomeShared, Points: [2]int{3, 3}, BothAnswered: true, Matched: true}
	case !a && !b:
		return RoundScore{Outcome: OutcomeInnocent, Points: [2]int{1, 1}, BothAnswered: true, Matched: true}
	case a:
		return RoundScore{Outcome: OutcomeSecret, Points: [2]int{5, 0}, BothAnswered: true}
	default:
		return RoundScore{Outcome: OutcomeSecret, Points: [2]int{0, 5}, BothAnswered: true}
	}
}

func scoreTwoOption(v1, v2 *string) RoundScore {
	if v1 == nil || v2 == nil {
		return RoundScore{Outcome: OutcomeTimedOut}
	}
	if *v1 == *v2 {
		return RoundScore{Outcome: OutcomeMatched, Points: [2]int{1, 1}, BothAnswered: true, Matched: true}
	}
	return RoundScore{Outcome: OutcomeDifferent, BothAnswered: true}
}

func nhieBadges(p PlayerTally, _ ResultsView) []string {
	var out []string
	if p.Yes >= 20 {
		out = append(out, "experienced")
	}
	if p.TimedOut == 0 {
		out = append(out, "committed")
	}
	return out
}

func choiceBadges(p PlayerTally, r ResultsView) []string {
	var out []string
	if r.CompatibilityPercent >= 80 {
		out = append(out, "inSync")
	}
	if p.TimedOut == 0 {
		out = append(out, "committed")
	}
	return out
}

func scenarioBadges(p PlayerTally, r ResultsView) []string {
	if r.TotalRounds > 0 && p.Answered == r.TotalRounds {
		return []string{"storyteller"}
	}
	return nil
}

// answerValue is nil for a missing or timed-out answer.
func answerValue(a *domain.GameAnswer) *string {
	if a == nil || a.TimedOut {
		return nil
	}
	return &a.Value
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(whole)) / 10
}

// ComputeResults derives the results of a session from its answer log and
// the family bank. It is a pure function of its inputs.
func ComputeResults(d *Descriptor, s *domain.GameSession, answers []domain.GameAnswer) *domain.GameResults {
	ids := [2]string{s.Player1.UserID, s.Player2.UserID}
	rounds := make(map[int]*[2]*domain.GameAnswer, len(s.QuestionOrder))
	for i := range answers {
		a := &answers[i]
		slot, ok := rounds[a.QuestionIndex]
		if !ok {
			slot = &[2]*domain.GameAnswer{}
			rounds[a.QuestionIndex] = slot
		}
		switch a.UserID {
		case ids[0]:
			slot[0] = a
		case ids[1]:
			slot[1] = a
		}
	}

	res := &domain.GameResults{
		Family:            d.ID,
		TotalRounds:       len(s.QuestionOrder),
		Outcomes:          map[string]int{},
		CategoryBreakdown: map[string]domain.CategoryStat{},
		Answered:          map[string]int{ids[0]: 0, ids[1]: 0},
	}
	if d.Score != nil {
		res.Points = map[string]int{ids[0]: 0, ids[1]: 0}
	}
	var tally [2]PlayerTally

	for idx, qid := range s.QuestionOrder {
		pair := [2]*domain.GameAnswer{}
		if slot := rounds[idx]; slot != nil {
			pair = *slot
		}
		for k, a := range pair {
			switch {
			case a == nil:
			case a.TimedOut:
				tally[k].TimedOut++
			default:
				tally[k].Answered++
				res.Answered[ids[k]]++
				if a.Value == "true" {
					tally[k].Yes++
				}
			}
		}

		category := "other"
		q, found := d.Question(qid)
		if found {
			category = q.Category
		}
		stat := res.CategoryBreakdown[category]
		stat.Rounds++

		if d.Score == nil {
			if answerValue(pair[0]) != nil && answerValue(pair[1]) != nil {
				res.BothAnswered++
				stat.BothAnswered++
				if found && len(res.ConversationStarters) < maxStarters {
					res.ConversationStarters = append(res.ConversationStarters,
						fmt.Sprintf("Compare your answers to: %s", q.Text))
				}
			}
			res.CategoryBreakdown[category] = stat
			continue
		}

		sc := d.Score(answerValue(pair[0]), answerValue(pair[1]))
		res.Outcomes[sc.Outcome]++
		for k := range ids {
			tally[k].Points += sc.Points[k]
			res.Points[ids[k]] += sc.Points[k]
		}
		if sc.BothAnswered {
			res.BothAnswered++
			stat.BothAnswered++
		}
		if sc.Matched {
			res.MatchedCount++
			stat.Matched++
		}
		res.CategoryBreakdown[category] = stat

		if found && len(res.ConversationStarters) < maxStarters {
			switch sc.Outcome {
			case OutcomeSecret:
				res.ConversationStarters = append(res.ConversationStarters,
					fmt.Sprintf("One of you has %s. Time for the story?", q.Text))
			case OutcomeDifferent:
				res.ConversationStarters = append(res.ConversationStarters,
					fmt.Sprintf("You split on %s vs %s. Who can convince whom?", q.Options[0], q.Options[1]))
			}
		}
	}

	for cat, stat := range res.CategoryBreakdown {
		stat.Percent = percent(stat.Matched, stat.BothAnswered)
		res.CategoryBreakdown[cat] = stat
	}
	res.CompatibilityPercent = percent(res.MatchedCount, res.BothAnswered)

	if d.Badges != nil {
		view := ResultsView{TotalRounds: res.TotalRounds, CompatibilityPercent: res.CompatibilityPercent}
		for k := range ids {
			if b := d.Badges(tally[k], view); len(b) > 0 {
				if res.Badges == nil {
					res.Badges = map[string][]string{}
				}
				res.Badges[ids[k]] = b
			}
		}
	}
	return res
}
