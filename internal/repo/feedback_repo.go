// Package repo – message feedback: moderation reports and bookmarks.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// CreateReport files a moderation report.
func CreateReport(ctx context.Context, db *gorm.DB, r *domain.MessageReport) error {
	return db.WithContext(ctx).Create(r).Error
}

// ListReports returns the reports filed against a message.
func ListReports(ctx context.Context, db *gorm.DB, messageID string) ([]domain.MessageReport, error) {
	var out []domain.MessageReport
	err := db.WithContext(ctx).Where("message_id = ?", messageID).Order("created_at ASC").Find(&out).Error
	return out, err
}

// ToggleSave bookmarks or un-bookmarks a message and returns the new state.
func ToggleSave(ctx context.Context, db *gorm.DB, messageID, userID string, now time.Time) (bool, error) {
	var saved bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("message_id = ? AND user_id = ?", messageID, userID).Delete(&domain.MessageSave{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			saved = false
			return nil
		}
		saved = true
		err := tx.Create(&domain.MessageSave{MessageID: messageID, UserID: userID, CreatedAt: now}).Error
		if IsDuplicate(err) {
			return nil
		}
		return err
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrNotFound
	}
	return saved, err
}
