// Package repotest opens throwaway SQLite databases with the full schema
// and seeds the reference rows (users, matches) other services consume.
package repotest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/repo"
)

// Open returns a migrated database file under t.TempDir().
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// Users inserts users with display names equal to their ids.
func Users(t testing.TB, db *gorm.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := repo.UpsertUser(context.Background(), db, &domain.User{ID: id, DisplayName: id}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
}

// Match inserts users a and b and a match between them with status.
func Match(t testing.TB, db *gorm.DB, a, b, status string) *domain.Match {
	t.Helper()
	Users(t, db, a, b)
	m, err := repo.CreateMatch(context.Background(), db, a, b, status)
	if err != nil {
		t.Fatalf("seed match: %v", err)
	}
	return m
}

// Conversation inserts a mutual match between a and b and its conversation.
func Conversation(t testing.TB, db *gorm.DB, a, b string, now time.Time) (*domain.Match, *domain.Conversation) {
	t.Helper()
	m := Match(t, db, a, b, domain.MatchMutual)
	c, err := repo.CreateConversation(context.Background(), db, m.ID, a, b, now)
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return m, c
}
