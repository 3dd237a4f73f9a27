package game

import (
	"time"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// Event names. On the wire they are prefixed with the family id.
const (
	EvInvitationSent    = "invitation_sent"
	EvInvited           = "invited"
	EvState             = "state"
	EvCountdown         = "countdown"
	EvWaiting           = "waiting"
	EvAnswerRecorded    = "answer_recorded"
	EvReveal            = "reveal"
	EvCompleted         = "completed"
	EvPartnerConnected  = "partner_connected"
	EvPartnerDisconnect = "partner_disconnected"
	EvDeclined          = "declined"
	EvAbandoned         = "abandoned"
	EvExpired           = "expired"
	EvVoiceNote         = "voice_note"
	EvResponseRecorded  = "response_recorded"
	EvPartnerProgress   = "partner_progress"
	EvInsights          = "insights"
	EvError             = "error"
)

type InvitationPayload struct {
	SessionID string    `json:"sessionId"`
	Family    string    `json:"family"`
	MatchID   string    `json:"matchId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CountdownPayload struct {
	SessionID string    `json:"sessionId"`
	Countdown int       `json:"countdown"`
	StartsAt  time.Time `json:"startsAt"`
}

type WaitingPayload struct {
	SessionID       string `json:"sessionId"`
	QuestionIndex   int    `json:"questionIndex"`
	PartnerAnswered bool   `json:"partnerAnswered"`
}

type AnswerRecordedPayload struct {
	SessionID     string `json:"sessionId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        any    `json:"answer"`
}

// RevealPayload answers are keyed "player1"/"player2"; points and totals
// are keyed by user id.
type RevealPayload struct {
	SessionID     string         `json:"sessionId"`
	QuestionIndex int            `json:"questionIndex"`
	QuestionID    string         `json:"questionId"`
	Answers       map[string]any `json:"answers"`
	Points        map[string]int `json:"points"`
	Outcome       string         `json:"outcome"`
	RunningTotal  map[string]int `json:"runningTotal"`
}

type CompletedPayload struct {
	SessionID string              `json:"sessionId"`
	Status    string              `json:"status"`
	Results   *domain.GameResults `json:"results"`
	Insights  *domain.Insights    `json:"aiInsights,omitempty"`
}

type PlayerPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type StatusPayload struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	By        string `json:"by,omitempty"`
}

type VoiceNotePayload struct {
	SessionID string            `json:"sessionId"`
	Note      *domain.VoiceNote `json:"note"`
}

type ProgressPayload struct {
	SessionID     string `json:"sessionId"`
	QuestionIndex *int   `json:"questionIndex,omitempty"`
	Answered      int    `json:"answered"`
	Total         int    `json:"total"`
}
