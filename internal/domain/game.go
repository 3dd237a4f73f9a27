package domain

import "time"

// Game session statuses.
const (
	SessionPending    = "pending"
	SessionStarting   = "starting"
	SessionPlaying    = "playing"
	SessionPaused     = "paused"
	SessionCompleted  = "completed"
	SessionDiscussion = "discussion"
	SessionDeclined   = "declined"
	SessionExpired    = "expired"
	SessionAbandoned  = "abandoned"
)

// IsTerminalSession reports whether no further gameplay transition is possible.
func IsTerminalSession(status string) bool {
	switch status {
	case SessionDeclined, SessionExpired, SessionAbandoned, SessionCompleted, SessionDiscussion:
		return true
	}
	return false
}

// IntMap is a JSON-serialized counter map.
type IntMap map[string]int

// PlayerState is embedded twice in GameSession (p1_ and p2_ columns).
// Answers live in game_answers; only rollups are kept inline.
type PlayerState struct {
	UserID        string `json:"user_id"        gorm:"column:user_id;type:varchar(64);index"`
	IsConnected   bool   `json:"is_connected"   gorm:"column:is_connected;not null;default:false"`
	IsReady       bool   `json:"is_ready"       gorm:"column:is_ready;not null;default:false"`
	TotalAnswered int    `json:"total_answered" gorm:"column:total_answered;not null;default:0"`
	TotalTimedOut int    `json:"total_timed_out" gorm:"column:total_timed_out;not null;default:0"`
	Points        int    `json:"points"         gorm:"column:points;not null;default:0"`
	Counters      IntMap `json:"counters"       gorm:"column:counters;type:text;serializer:json"`
}

// CategoryStat aggregates rounds of one bank category.
type CategoryStat struct {
	Rounds       int     `json:"rounds"`
	BothAnswered int     `json:"both_answered"`
	Matched      int     `json:"matched"`
	Percent      float64 `json:"percent"`
}

// GameResults is the deterministic summary of a finished session.
type GameResults struct {
	Family               string                  `json:"family"`
	TotalRounds          int                     `json:"total_rounds"`
	BothAnswered         int                     `json:"both_answered"`
	MatchedCount         int                     `json:"matched_count"`
	CompatibilityPercent float64                 `json:"compatibility_percent"`
	Points               map[string]int          `json:"points,omitempty"`
	Outcomes             map[string]int          `json:"outcomes,omitempty"`
	CategoryBreakdown    map[string]CategoryStat `json:"category_breakdown,omitempty"`
	Badges               map[string][]string     `json:"badges,omitempty"`
	ConversationStarters []string                `json:"conversation_starters,omitempty"`
	Answered             map[string]int          `json:"answered,omitempty"`
}

// Insights is the narrative enrichment attached once per session.
type Insights struct {
	Summary     string   `json:"summary"`
	Highlights  []string `json:"highlights"`
	Differences []string `json:"differences"`
	Tip         string   `json:"tip"`
}

// GameSession is one instance of a discovery game between two matched users.
//
// Fields:
//   - ActiveKey: "<family>|<pairKey>" while the session is non-terminal and
//     NULL afterwards. Its unique index enforces one active session per
//     family and pair.
//   - Player1: inviter. Player2: invitee.
//   - QuestionOrder: question ids drawn from the family bank at invite.
//   - RoundRevealed: the current round has been revealed and the advance
//     timer is pending.
//   - PausedFrom / PausedRemainingMs: where to resume after a pause.
//   - ExpiresAt: invitation TTL. Deadline: async completion deadline.
type GameSession struct {
	ID                       string       `json:"id"          gorm:"type:char(36);primaryKey"`
	Family                   string       `json:"family"      gorm:"type:varchar(32);not null;index:idx_session_pair,priority:1"`
	MatchID                  string       `json:"match_id"    gorm:"type:char(36);not null;index"`
	PairKey                  string       `json:"pair_key"    gorm:"type:varchar(160);not null;index:idx_session_pair,priority:2"`
	ActiveKey                *string      `json:"-"           gorm:"type:varchar(200);uniqueIndex"`
	Status                   string       `json:"status"      gorm:"type:varchar(16);not null;index"`
	Player1                  PlayerState  `json:"player1"     gorm:"embedded;embeddedPrefix:p1_"`
	Player2                  PlayerState  `json:"player2"     gorm:"embedded;embeddedPrefix:p2_"`
	QuestionOrder            StringList   `json:"question_order" gorm:"type:text;serializer:json"`
	CurrentIndex             int          `json:"current_index" gorm:"not null;default:0"`
	RoundRevealed            bool         `json:"round_revealed" gorm:"not null;default:false"`
	CurrentQuestionStartedAt *time.Time   `json:"current_question_started_at,omitempty"`
	CurrentQuestionExpiresAt *time.Time   `json:"current_question_expires_at,omitempty"`
	PausedFrom               string       `json:"paused_from,omitempty" gorm:"type:varchar(16)"`
	PausedRemainingMs        int64        `json:"paused_remaining_ms"`
	Results                  *GameResults `json:"results,omitempty"  gorm:"type:text;serializer:json"`
	Insights                 *Insights    `json:"insights,omitempty" gorm:"type:text;serializer:json"`
	InsightsGenerated        bool         `json:"insights_generated" gorm:"not null;default:false"`
	InsightsSource           string       `json:"insights_source,omitempty" gorm:"type:varchar(16)"`
	InvitedAt                time.Time    `json:"invited_at"`
	AcceptedAt               *time.Time   `json:"accepted_at,omitempty"`
	StartedAt                *time.Time   `json:"started_at,omitempty"`
	CompletedAt              *time.Time   `json:"completed_at,omitempty"`
	LastActivityAt           time.Time    `json:"last_activity_at"`
	ExpiresAt                time.Time    `json:"expires_at"`
	Deadline                 *time.Time   `json:"deadline,omitempty"`
	CreatedAt                time.Time    `json:"created_at"`
	UpdatedAt                time.Time    `json:"updated_at"`
}

// TableName returns the database table name for GameSession.
func (GameSession) TableName() string { return "game_sessions" }

// Player returns the state of userID, or nil if they are not in the session.
func (s *GameSession) Player(userID string) *PlayerState {
	switch userID {
	case s.Player1.UserID:
		return &s.Player1
	case s.Player2.UserID:
		return &s.Player2
	}
	return nil
}

// Partner returns the state of the other player.
func (s *GameSession) Partner(userID string) *PlayerState {
	if userID == s.Player1.UserID {
		return &s.Player2
	}
	return &s.Player1
}

// BothConnected reports whether both players have a live connection.
func (s *GameSession) BothConnected() bool { return s.Player1.IsConnected && s.Player2.IsConnected }

// GameAnswer is one player's answer for one round. The unique index is the
// at-most-once guard for (session, player, round).
type GameAnswer struct {
	ID             string    `json:"id"             gorm:"type:char(36);primaryKey"`
	SessionID      string    `json:"session_id"     gorm:"type:char(36);not null;uniqueIndex:ux_answer_round,priority:1"`
	UserID         string    `json:"user_id"        gorm:"type:varchar(64);not null;uniqueIndex:ux_answer_round,priority:2"`
	QuestionIndex  int       `json:"question_index" gorm:"not null;uniqueIndex:ux_answer_round,priority:3"`
	QuestionID     string    `json:"question_id"    gorm:"type:varchar(64);not null"`
	Value          string    `json:"value"          gorm:"type:text"`
	TimedOut       bool      `json:"timed_out"      gorm:"not null;default:false"`
	Transcript     string    `json:"transcript,omitempty" gorm:"type:text"`
	DurationSec    float64   `json:"duration_sec,omitempty"`
	ClientAnswerID string    `json:"-"              gorm:"type:varchar(128)"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// TableName returns the database table name for GameAnswer.
func (GameAnswer) TableName() string { return "game_answers" }

// VoiceNote is a post-completion discussion clip.
type VoiceNote struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	SessionID   string    `json:"session_id"   gorm:"type:char(36);not null;index"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);not null"`
	URL         string    `json:"url"          gorm:"type:varchar(1024);not null"`
	Key         string    `json:"-"            gorm:"type:varchar(512)"`
	DurationSec float64   `json:"duration_sec"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for VoiceNote.
func (VoiceNote) TableName() string { return "game_voice_notes" }
