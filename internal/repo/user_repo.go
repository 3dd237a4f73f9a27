package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// GetUser fetches a user by id.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsers fetches users by id; missing ids are simply absent from the map.
func GetUsers(ctx context.Context, db *gorm.DB, ids ...string) (map[string]domain.User, error) {
	var rows []domain.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]domain.User, len(rows))
	for _, u := range rows {
		out[u.ID] = u
	}
	return out, nil
}

// UpsertUser inserts a user or refreshes its display fields.
func UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "avatar_url", "updated_at"}),
	}).Create(u).Error
}

// SetPresence records the online flag and last-seen instant. Unknown users
// are created so presence never fails for ids the profile service has not
// synced yet.
func SetPresence(ctx context.Context, db *gorm.DB, userID string, online bool, lastSeen time.Time) error {
	u := &domain.User{ID: userID, IsOnline: online, LastSeen: &lastSeen}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen", "updated_at"}),
	}).Create(u).Error
}

// CreateMatch inserts a match with canonical ordering.
func CreateMatch(ctx context.Context, db *gorm.DB, a, b, status string) (*domain.Match, error) {
	x, y := domain.CanonicalPair(a, b)
	m := &domain.Match{ID: uuid.NewString(), UserA: x, UserB: y, Status: status}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// GetMatch fetches a match by id.
func GetMatch(ctx context.Context, db *gorm.DB, id string) (*domain.Match, error) {
	var m domain.Match
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMatchByPair fetches the match between two users in either order.
func FindMatchByPair(ctx context.Context, db *gorm.DB, a, b string) (*domain.Match, error) {
	x, y := domain.CanonicalPair(a, b)
	var m domain.Match
	if err := db.WithContext(ctx).Where("user_a = ? AND user_b = ?", x, y).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
