package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// UpsertBlock creates the blocker→blocked edge or refreshes its expiry.
func UpsertBlock(ctx context.Context, db *gorm.DB, blockerID, blockedID, reason string, expiresAt *time.Time, now time.Time) (*domain.Block, error) {
	b := &domain.Block{
		ID:        uuid.NewString(),
		BlockerID: blockerID,
		BlockedID: blockedID,
		Reason:    reason,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "blocker_id"}, {Name: "blocked_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at", "reason", "created_at"}),
	}).Create(b).Error
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBlock removes the blocker→blocked edge and reports whether it existed.
func DeleteBlock(ctx context.Context, db *gorm.DB, blockerID, blockedID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&domain.Block{})
	return res.RowsAffected > 0, res.Error
}

// ActiveBlockExists reports whether an unexpired block exists in either
// direction: (a→b OR b→a) AND (no expiry OR expiry in the future).
func ActiveBlockExists(ctx context.Context, db *gorm.DB, a, b string, now time.Time) (bool, error) {
	var n int64
	g := db.Session(&gorm.Session{NewDB: true})
	err := db.WithContext(ctx).
		Model(&domain.Block{}).
		Where(g.Where("blocker_id = ? AND blocked_id = ?", a, b).Or("blocker_id = ? AND blocked_id = ?", b, a)).
		Where(g.Where("expires_at IS NULL").Or("expires_at > ?", now)).
		Count(&n).Error
	return n > 0, err
}

// ListBlocks returns the active blocks issued by blockerID.
func ListBlocks(ctx context.Context, db *gorm.DB, blockerID string, now time.Time) ([]domain.Block, error) {
	var out []domain.Block
	g := db.Session(&gorm.Session{NewDB: true})
	err := db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Where(g.Where("expires_at IS NULL").Or("expires_at > ?", now)).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}
