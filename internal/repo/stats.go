package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// ConversationStats summarizes the conversation list of userID for
// conditional responses: the number of visible conversations and the most
// recent change to any of them or to any of their participant rows.
// latest is nil when the user has no visible conversations.
func ConversationStats(ctx context.Context, db *gorm.DB, userID string) (count int64, latest *time.Time, err error) {
	if count, err = CountConversations(ctx, db, userID); err != nil || count == 0 {
		return 0, nil, err
	}

	visible := func() *gorm.DB {
		return db.WithContext(ctx).
			Table("conversation_participants AS cp").
			Joins("JOIN conversations ON conversations.id = cp.conversation_id").
			Where("cp.user_id = ? AND cp.has_deleted = ? AND conversations.status <> ?", userID, false, domain.ConversationDeleted)
	}

	// ORDER BY + LIMIT instead of MAX(): SQLite returns MAX over timestamps as TEXT.
	var conv, part struct{ UpdatedAt time.Time }
	if err = visible().Select("conversations.updated_at AS updated_at").
		Order("conversations.updated_at DESC").Limit(1).Scan(&conv).Error; err != nil {
		return 0, nil, err
	}
	if err = visible().Joins("JOIN conversation_participants AS p ON p.conversation_id = cp.conversation_id").
		Select("p.updated_at AS updated_at").
		Order("p.updated_at DESC").Limit(1).Scan(&part).Error; err != nil {
		return 0, nil, err
	}
	ts := conv.UpdatedAt
	if part.UpdatedAt.After(ts) {
		ts = part.UpdatedAt
	}
	return count, &ts, nil
}
