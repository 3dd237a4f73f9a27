package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/repo"
	"github.com/tbourn/go-dating-realtime/internal/repo/repotest"
)

func TestGetIdempotency_BlankKeyIsNotFound(t *testing.T) {
	db := repotest.Open(t)
	rec, err := repo.GetIdempotency(context.Background(), db, "u1", "react", "   ", time.Now())
	if rec != nil || !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound), got (%v, %v)", rec, err)
	}
}

func TestIdempotency_CreateGetAndScopes(t *testing.T) {
	db := repotest.Open(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rec, err := repo.CreateIdempotency(ctx, db, "u1", "invite:nhie", "k1", "session-1", now, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" || !rec.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := repo.GetIdempotency(ctx, db, "u1", "invite:nhie", "k1", now.Add(time.Minute))
	if err != nil || got.ResultID != "session-1" {
		t.Fatalf("get: %+v err=%v", got, err)
	}

	// Same key, other scope or other user: independent.
	if _, err := repo.GetIdempotency(ctx, db, "u1", "react", "k1", now); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("other scope: err=%v", err)
	}
	if _, err := repo.GetIdempotency(ctx, db, "u2", "invite:nhie", "k1", now); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("other user: err=%v", err)
	}
	if _, err := repo.CreateIdempotency(ctx, db, "u1", "react", "k1", "m-1", now, time.Hour); err != nil {
		t.Fatalf("other scope create: %v", err)
	}

	// Past expiry the record no longer resolves.
	if _, err := repo.GetIdempotency(ctx, db, "u1", "invite:nhie", "k1", now.Add(time.Hour)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expired: err=%v", err)
	}
}

func TestCreateIdempotency_DuplicateAndExpiredReplace(t *testing.T) {
	db := repotest.Open(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := repo.CreateIdempotency(ctx, db, "u1", "photo:c1", "k", "m-1", now, time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := repo.CreateIdempotency(ctx, db, "u1", "photo:c1", "k", "m-2", now.Add(time.Second), time.Minute)
	if !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("live duplicate: want ErrDuplicate, got %v", err)
	}

	later := now.Add(2 * time.Minute)
	rec, err := repo.CreateIdempotency(ctx, db, "u1", "photo:c1", "k", "m-3", later, time.Minute)
	if err != nil {
		t.Fatalf("replace expired: %v", err)
	}
	got, err := repo.GetIdempotency(ctx, db, "u1", "photo:c1", "k", later)
	if err != nil || got.ID != rec.ID || got.ResultID != "m-3" {
		t.Fatalf("replacement not visible: %+v err=%v", got, err)
	}
}

func TestPurgeIdempotency(t *testing.T) {
	db := repotest.Open(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, ttl := range []time.Duration{time.Minute, time.Hour, 2 * time.Hour} {
		key := string(rune('a' + i))
		if _, err := repo.CreateIdempotency(ctx, db, "u1", "react", key, "m", now, ttl); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	n, err := repo.PurgeIdempotency(ctx, db, now.Add(time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
	var left int64
	db.Model(&domain.Idempotency{}).Count(&left)
	if left != 1 {
		t.Fatalf("expected 1 row left, got %d", left)
	}
}

func TestIdempotency_ErrorWithoutTable(t *testing.T) {
	db := repotest.Open(t)
	if err := db.Migrator().DropTable(&domain.Idempotency{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, err := repo.GetIdempotency(context.Background(), db, "u1", "s", "k", time.Now()); err == nil || errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected driver error, got %v", err)
	}
	if _, err := repo.CreateIdempotency(context.Background(), db, "u1", "s", "k", "r", time.Now(), time.Hour); err == nil {
		t.Fatalf("expected create error")
	}
}
