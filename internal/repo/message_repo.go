// Package repo – messages and reactions.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// CreateMessage inserts a message. A clash on (conversation, sender,
// client_message_id) returns ErrDuplicate.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.ReadBy == nil {
		m.ReadBy = domain.StringList{}
	}
	return translate(db.WithContext(ctx).Omit("Reactions").Create(m).Error)
}

// GetMessage fetches a message by id with its reactions.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Preload("Reactions", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, user_id ASC") }).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMessageByClientID resolves a sender correlation id.
func FindMessageByClientID(ctx context.Context, db *gorm.DB, conversationID, senderID, clientMessageID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Preload("Reactions").
		Where("conversation_id = ? AND sender_id = ? AND client_message_id = ?", conversationID, senderID, clientMessageID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// visibleTo filters out messages the viewer deleted for themselves. Messages
// deleted for everyone stay in history as tombstones.
func visibleTo(db *gorm.DB, conversationID, viewerID string) *gorm.DB {
	return db.Where("conversation_id = ?", conversationID).
		Where("deleted_at IS NULL OR deleted_for_everyone = ? OR deleted_by <> ?", true, viewerID)
}

// CountVisibleMessages counts the messages viewerID can see.
func CountVisibleMessages(ctx context.Context, db *gorm.DB, conversationID, viewerID string) (int64, error) {
	var total int64
	err := visibleTo(db.WithContext(ctx).Model(&domain.Message{}), conversationID, viewerID).Count(&total).Error
	return total, err
}

// ListMessagesPage returns newest-first pages of visible history, each page
// ordered by sequence ascending.
func ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID, viewerID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := visibleTo(db.WithContext(ctx), conversationID, viewerID).
		Preload("Reactions").
		Order("seq DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListUnreadUpTo returns the messages not sent by readerID, with seq ≤ maxSeq,
// that are not yet read, ordered by seq.
func ListUnreadUpTo(ctx context.Context, db *gorm.DB, conversationID, readerID string, maxSeq int64) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND sender_id <> ? AND seq <= ? AND status <> ? AND kind <> ?",
			conversationID, readerID, maxSeq, domain.StatusRead, domain.KindSystem).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}

// MarkMessageRead moves one message to read. The status guard makes the
// update a no-op when the message already reached read.
func MarkMessageRead(ctx context.Context, db *gorm.DB, m *domain.Message, readerID string, at time.Time) (bool, error) {
	readBy := append(domain.StringList{}, m.ReadBy...)
	if !readBy.Contains(readerID) {
		readBy = append(readBy, readerID)
	}
	// Struct form so read_by goes through the JSON serializer.
	res := db.WithContext(ctx).
		Model(&domain.Message{ID: m.ID}).
		Where("status <> ?", domain.StatusRead).
		Select("status", "read_at", "read_by").
		Updates(&domain.Message{Status: domain.StatusRead, ReadAt: &at, ReadBy: readBy})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		m.Status = domain.StatusRead
		m.ReadAt = &at
		m.ReadBy = readBy
		return true, nil
	}
	return false, nil
}

// MarkDelivered advances every sent message addressed to recipientID to
// delivered and returns the ids that moved.
func MarkDelivered(ctx context.Context, db *gorm.DB, conversationID, recipientID string, at time.Time) ([]string, error) {
	var ids []string
	if err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND status = ?", conversationID, recipientID, domain.StatusSent).
		Order("seq ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id IN ? AND status = ?", ids, domain.StatusSent).
		Updates(map[string]any{"status": domain.StatusDelivered, "delivered_at": at}).Error
	return ids, err
}

// MarkMessageDelivered moves one message from sent to delivered. It
// reports false when the message had already moved on.
func MarkMessageDelivered(ctx context.Context, db *gorm.DB, messageID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND status = ?", messageID, domain.StatusSent).
		Updates(map[string]any{"status": domain.StatusDelivered, "delivered_at": at})
	return res.RowsAffected == 1, res.Error
}

// SaveMessageEdit persists an edit.
func SaveMessageEdit(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", m.ID).
		Updates(map[string]any{
			"body":                m.Body,
			"is_edited":           true,
			"edited_at":           m.EditedAt,
			"original_text":       m.OriginalText,
			"moderation_flagged":  m.ModerationFlagged,
			"moderation_reason":   m.ModerationReason,
			"moderation_severity": m.ModerationSeverity,
		}).Error
}

// SaveMessageDeletion persists a soft delete. A delete for everyone also
// blanks body and media columns.
func SaveMessageDeletion(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	updates := map[string]any{
		"deleted_at":           m.DeletedAt,
		"deleted_by":           m.DeletedBy,
		"deleted_for_everyone": m.DeletedForEveryone,
	}
	if m.DeletedForEveryone {
		updates["body"] = ""
		updates["original_text"] = nil
		updates["media_url"] = ""
		updates["media_thumbnail_url"] = ""
	}
	return db.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", m.ID).Updates(updates).Error
}

// SetModerationStatus records an asynchronous screening verdict.
func SetModerationStatus(ctx context.Context, db *gorm.DB, messageID, status, reason string) error {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]any{
			"moderation_status":  status,
			"moderation_flagged": status == domain.ModerationAutoFlagged,
			"moderation_reason":  reason,
		}).Error
}

// LatestMessage returns the newest message of a conversation.
func LatestMessage(ctx context.Context, db *gorm.DB, conversationID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("seq DESC").First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertReaction sets the user's single emoji on a message, replacing any
// previous one.
func UpsertReaction(ctx context.Context, db *gorm.DB, r *domain.MessageReaction) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "created_at"}),
	}).Create(r).Error
}

// DeleteReaction removes the user's emoji and reports whether one existed.
func DeleteReaction(ctx context.Context, db *gorm.DB, messageID, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&domain.MessageReaction{})
	return res.RowsAffected > 0, res.Error
}
