// Package repo – conversations.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business rules, only persistence and query composition. The
// compound "message appended" update is one statement set executed inside
// the caller's transaction.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// CreateConversation inserts a conversation for a match with its two
// participants. A second conversation for the same match returns ErrDuplicate.
func CreateConversation(ctx context.Context, db *gorm.DB, matchID, userA, userB string, now time.Time) (*domain.Conversation, error) {
	id := uuid.NewString()
	c := &domain.Conversation{
		ID:        id,
		MatchID:   matchID,
		Status:    domain.ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []domain.Participant{
			{ConversationID: id, UserID: userA, JoinedAt: now},
			{ConversationID: id, UserID: userB, JoinedAt: now},
		},
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// GetConversation fetches a conversation with its participants.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Preload("Participants").
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversationByMatch fetches the conversation owned by matchID.
func GetConversationByMatch(ctx context.Context, db *gorm.DB, matchID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Preload("Participants").
		Where("match_id = ?", matchID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindConversationBetween returns the conversation shared by two users.
func FindConversationBetween(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	var id string
	err := db.WithContext(ctx).Raw(`
		SELECT p1.conversation_id FROM conversation_participants p1
		JOIN conversation_participants p2 ON p1.conversation_id = p2.conversation_id
		WHERE p1.user_id = ? AND p2.user_id = ? LIMIT 1`, a, b).Scan(&id).Error
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotFound
	}
	return GetConversation(ctx, db, id)
}

// ListConversationIDsForUser returns the ids of every conversation userID
// participates in. Presence uses it to address status broadcasts.
func ListConversationIDsForUser(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("user_id = ?", userID).
		Pluck("conversation_id", &ids).Error
	return ids, err
}

// CountConversations returns the number of visible conversations for userID.
func CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Participant{}).
		Joins("JOIN conversations ON conversations.id = conversation_participants.conversation_id").
		Where("conversation_participants.user_id = ? AND conversation_participants.has_deleted = ? AND conversations.status <> ?",
			userID, false, domain.ConversationDeleted).
		Count(&total).Error
	return total, err
}

// ListConversationsPage returns visible conversations for userID, most
// recently active first.
func ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Preload("Participants").
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ? AND cp.has_deleted = ? AND conversations.status <> ?", userID, false, domain.ConversationDeleted).
		Order("COALESCE(conversations.last_message_at, conversations.created_at) DESC, conversations.id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// NextSeq atomically reserves the next message sequence of a conversation.
func NextSeq(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumn("last_seq", gorm.Expr("last_seq + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	var seq int64
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Pluck("last_seq", &seq).Error
	return seq, err
}

// ApplyMessageAppended updates the list-view summary and bumps the unread
// counter of the recipient. Pass an empty recipientID to skip the counter
// (system messages).
func ApplyMessageAppended(ctx context.Context, db *gorm.DB, conversationID, recipientID, preview string, at time.Time) error {
	if err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{
			"last_message_preview": preview,
			"last_message_at":      at,
			"message_count":        gorm.Expr("message_count + 1"),
			"updated_at":           at,
		}).Error; err != nil {
		return err
	}
	if recipientID == "" {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, recipientID).
		Updates(map[string]any{
			"unread_count": gorm.Expr("unread_count + 1"),
			"has_deleted":  false,
		}).Error
}

// SetPreview overwrites the list-view preview (edits and deletes of the
// latest message).
func SetPreview(ctx context.Context, db *gorm.DB, conversationID, preview string) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_message_preview", preview).Error
}

// MarkParticipantRead moves the read cursor and clears the unread counter.
func MarkParticipantRead(ctx context.Context, db *gorm.DB, conversationID, userID, lastMessageID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]any{
			"last_read_at":         at,
			"last_seen_message_id": lastMessageID,
			"unread_count":         0,
		}).Error
}

// SetParticipantFlag sets one boolean participant column
// (is_blocked, is_muted, has_deleted).
func SetParticipantFlag(ctx context.Context, db *gorm.DB, conversationID, userID, column string, value bool) error {
	switch column {
	case "is_blocked", "is_muted", "has_deleted":
	default:
		return gorm.ErrInvalidField
	}
	res := db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConversationStatus updates the conversation status.
func SetConversationStatus(ctx context.Context, db *gorm.DB, conversationID, status string) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Update("status", status).Error
}
