package game

import (
	"time"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// PlayerView is the public part of a player.
type PlayerView struct {
	UserID        string `json:"userId"`
	IsConnected   bool   `json:"isConnected"`
	Points        int    `json:"points"`
	TotalAnswered int    `json:"totalAnswered"`
}

// QuestionView is a question as shown to players.
type QuestionView struct {
	Index     int        `json:"index"`
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Category  string     `json:"category"`
	Options   []string   `json:"options,omitempty"`
	Spice     int        `json:"spice,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// StatePayload is the canonical per-recipient snapshot of a session.
type StatePayload struct {
	SessionID            string              `json:"sessionId"`
	Family               string              `json:"family"`
	Status               string              `json:"status"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
	TotalQuestions       int                 `json:"totalQuestions"`
	Progress             float64             `json:"progress"`
	You                  PlayerView          `json:"you"`
	Partner              PlayerView          `json:"partner"`
	CurrentQuestion      *QuestionView       `json:"currentQuestion,omitempty"`
	TimeRemaining        int64               `json:"timeRemaining"`
	MyAnswer             any                 `json:"myAnswer"`
	PartnerAnswered      bool                `json:"partnerAnswered"`
	PartnerAnswer        any                 `json:"partnerAnswer,omitempty"`
	Revealed             bool                `json:"revealed"`
	ExpiresAt            *time.Time          `json:"expiresAt,omitempty"`
	Deadline             *time.Time          `json:"deadline,omitempty"`
	Questions            []QuestionView      `json:"questions,omitempty"`
	MyAnswered           []int               `json:"myAnswered,omitempty"`
	Results              *domain.GameResults `json:"results,omitempty"`
	Insights             *domain.Insights    `json:"aiInsights,omitempty"`
}

func playerView(p *domain.PlayerState) PlayerView {
	return PlayerView{UserID: p.UserID, IsConnected: p.IsConnected, Points: p.Points, TotalAnswered: p.TotalAnswered}
}

func questionView(d *Descriptor, s *domain.GameSession, idx int) *QuestionView {
	if idx < 0 || idx >= len(s.QuestionOrder) {
		return nil
	}
	v := &QuestionView{Index: idx, ID: s.QuestionOrder[idx]}
	if q, ok := d.Question(v.ID); ok {
		v.Text, v.Category, v.Options, v.Spice = q.Text, q.Category, q.Options, q.Spice
	}
	return v
}

// BuildStatePayload renders the session for one recipient. answers may hold
// any subset of the session's answers; the partner's value for the current
// round is only read once the round has been revealed.
func BuildStatePayload(d *Descriptor, s *domain.GameSession, recipient string, answers []domain.GameAnswer, now time.Time) StatePayload {
	me, partner := s.Player(recipient), s.Partner(recipient)
	if me == nil {
		me = &domain.PlayerState{}
	}
	p := StatePayload{
		SessionID:            s.ID,
		Family:               s.Family,
		Status:               s.Status,
		CurrentQuestionIndex: s.CurrentIndex,
		TotalQuestions:       len(s.QuestionOrder),
		You:                  playerView(me),
		Partner:              playerView(partner),
		Deadline:             s.Deadline,
	}
	if s.Status == domain.SessionPending {
		exp := s.ExpiresAt
		p.ExpiresAt = &exp
	}

	if !d.Timed() {
		p.Progress = percent(me.TotalAnswered, len(s.QuestionOrder))
		if s.Status == domain.SessionPlaying {
			for i := range s.QuestionOrder {
				p.Questions = append(p.Questions, *questionView(d, s, i))
			}
		}
		for _, a := range answers {
			if a.UserID == recipient {
				p.MyAnswered = append(p.MyAnswered, a.QuestionIndex)
			}
		}
		p.Results, p.Insights = s.Results, s.Insights
		return p
	}

	p.Progress = percent(s.CurrentIndex, len(s.QuestionOrder))
	live := s.Status == domain.SessionPlaying || s.Status == domain.SessionPaused
	if live {
		p.CurrentQuestion = questionView(d, s, s.CurrentIndex)
		if p.CurrentQuestion != nil && s.Status == domain.SessionPlaying && !s.RoundRevealed {
			p.CurrentQuestion.ExpiresAt = s.CurrentQuestionExpiresAt
		}
		p.Revealed = s.RoundRevealed
		switch {
		case s.Status == domain.SessionPaused:
			p.TimeRemaining = s.PausedRemainingMs
		case !s.RoundRevealed && s.CurrentQuestionExpiresAt != nil:
			p.TimeRemaining = max(0, s.CurrentQuestionExpiresAt.Sub(now).Milliseconds())
		}
		for i := range answers {
			a := &answers[i]
			if a.QuestionIndex != s.CurrentIndex {
				continue
			}
			switch a.UserID {
			case recipient:
				p.MyAnswer = wireAnswer(d, a)
			case partner.UserID:
				p.PartnerAnswered = true
				if s.RoundRevealed {
					p.PartnerAnswer = wireAnswer(d, a)
				}
			}
		}
	}
	if s.Status == domain.SessionCompleted || s.Status == domain.SessionDiscussion {
		p.Progress = 100
		p.Results, p.Insights = s.Results, s.Insights
	}
	return p
}

// wireAnswer is nil for a timeout.
func wireAnswer(d *Descriptor, a *domain.GameAnswer) any {
	if a == nil || a.TimedOut {
		return nil
	}
	return d.Decode(a.Value)
}
