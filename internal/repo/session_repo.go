// Package repo – game sessions, answers and voice notes.
//
// Session rows are written whole by the engine while it holds the session
// lock; the unique indexes on active_key and (session, user, round) are the
// storage-level conditionals that keep duplicates out even across processes.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// CreateSession inserts a session. A clash on active_key returns ErrDuplicate.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.GameSession) error {
	return translate(db.WithContext(ctx).Create(s).Error)
}

// GetSession fetches a session by id.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.GameSession, error) {
	var s domain.GameSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession writes every column of the session except the insight
// columns, which only ClaimInsights writes.
func SaveSession(ctx context.Context, db *gorm.DB, s *domain.GameSession) error {
	return translate(db.WithContext(ctx).
		Omit("insights", "insights_generated", "insights_source").
		Save(s).Error)
}

// FindActiveSession returns the non-terminal session of a family for a pair.
func FindActiveSession(ctx context.Context, db *gorm.DB, family, pairKey string) (*domain.GameSession, error) {
	var s domain.GameSession
	err := db.WithContext(ctx).
		Where("active_key = ?", family+"|"+pairKey).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindLatestSessionForUser returns the most recent session of a family the
// user plays in, preferring live ones.
func FindLatestSessionForUser(ctx context.Context, db *gorm.DB, family, userID string) (*domain.GameSession, error) {
	var s domain.GameSession
	g := db.Session(&gorm.Session{NewDB: true})
	err := db.WithContext(ctx).
		Where("family = ?", family).
		Where(g.Where("p1_user_id = ?", userID).Or("p2_user_id = ?", userID)).
		Order("CASE WHEN active_key IS NULL THEN 1 ELSE 0 END, invited_at DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessionsForPair returns every session of the pair with one of the
// given statuses, newest completion first.
func ListSessionsForPair(ctx context.Context, db *gorm.DB, pairKey string, statuses ...string) ([]domain.GameSession, error) {
	var out []domain.GameSession
	q := db.WithContext(ctx).Where("pair_key = ?", pairKey)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Order("completed_at DESC, invited_at DESC").Find(&out).Error
	return out, err
}

// ListLiveSessions returns sessions whose timers must be re-armed after a
// restart.
func ListLiveSessions(ctx context.Context, db *gorm.DB) ([]domain.GameSession, error) {
	var out []domain.GameSession
	err := db.WithContext(ctx).
		Where("status IN ?", []string{domain.SessionStarting, domain.SessionPlaying}).
		Find(&out).Error
	return out, err
}

// ClaimInsights writes insights only if none were written before. It
// reports whether this call won.
func ClaimInsights(ctx context.Context, db *gorm.DB, sessionID string, ins *domain.Insights, source string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.GameSession{ID: sessionID}).
		Where("insights_generated = ?", false).
		Select("insights", "insights_generated", "insights_source").
		Updates(&domain.GameSession{Insights: ins, InsightsGenerated: true, InsightsSource: source})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreateAnswer records one answer. A second answer for the same
// (session, user, round) returns ErrDuplicate.
func CreateAnswer(ctx context.Context, db *gorm.DB, a *domain.GameAnswer) error {
	return translate(db.WithContext(ctx).Create(a).Error)
}

// GetAnswer fetches the stored answer of a player for a round.
func GetAnswer(ctx context.Context, db *gorm.DB, sessionID, userID string, index int) (*domain.GameAnswer, error) {
	var a domain.GameAnswer
	err := db.WithContext(ctx).
		Where("session_id = ? AND user_id = ? AND question_index = ?", sessionID, userID, index).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnswers returns the full answer log of a session ordered by round.
func ListAnswers(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.GameAnswer, error) {
	var out []domain.GameAnswer
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("question_index ASC, user_id ASC").
		Find(&out).Error
	return out, err
}

// ListRoundAnswers returns the answers stored for one round.
func ListRoundAnswers(ctx context.Context, db *gorm.DB, sessionID string, index int) ([]domain.GameAnswer, error) {
	var out []domain.GameAnswer
	err := db.WithContext(ctx).
		Where("session_id = ? AND question_index = ?", sessionID, index).
		Find(&out).Error
	return out, err
}

// CountAnswersByUser returns how many answers each player has stored.
func CountAnswersByUser(ctx context.Context, db *gorm.DB, sessionID string) (map[string]int, error) {
	type row struct {
		UserID string
		N      int
	}
	var rows []row
	err := db.WithContext(ctx).
		Model(&domain.GameAnswer{}).
		Select("user_id, COUNT(*) AS n").
		Where("session_id = ?", sessionID).
		Group("user_id").
		Scan(&rows).Error
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.UserID] = r.N
	}
	return out, err
}

// CreateVoiceNote stores a discussion clip.
func CreateVoiceNote(ctx context.Context, db *gorm.DB, n *domain.VoiceNote) error {
	return db.WithContext(ctx).Create(n).Error
}

// ListVoiceNotes returns the discussion clips of a session, oldest first.
func ListVoiceNotes(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.VoiceNote, error) {
	var out []domain.VoiceNote
	err := db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC").Find(&out).Error
	return out, err
}

// ExpirePendingSessions marks invitations past their TTL as expired and
// releases their active key. Used by the periodic sweeper; reads also expire
// lazily.
func ExpirePendingSessions(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.GameSession{}).
		Where("status = ? AND expires_at < ?", domain.SessionPending, now).
		Updates(map[string]any{"status": domain.SessionExpired, "active_key": nil, "last_activity_at": now})
	return res.RowsAffected, res.Error
}
