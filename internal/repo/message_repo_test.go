package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/repo"
	"github.com/tbourn/go-dating-realtime/internal/repo/repotest"
)

func seedMessage(t *testing.T, db *gorm.DB, convID, sender string, clientID *string, at time.Time) *domain.Message {
	t.Helper()
	seq, err := repo.NextSeq(context.Background(), db, convID)
	if err != nil {
		t.Fatalf("next seq: %v", err)
	}
	m := &domain.Message{
		ID:              uuid.NewString(),
		ConversationID:  convID,
		Seq:             seq,
		SenderID:        sender,
		ClientMessageID: clientID,
		Kind:            domain.KindText,
		Body:            "hello",
		Status:          domain.StatusSent,
		SentAt:          at,
	}
	if err := repo.CreateMessage(context.Background(), db, m); err != nil {
		t.Fatalf("create message: %v", err)
	}
	return m
}

func ptr(s string) *string { return &s }

func TestCreateMessage_ClientIDUniquePerSender(t *testing.T) {
	db := repotest.Open(t)
	now := time.Now().UTC()
	_, c := repotest.Conversation(t, db, "alice", "bob", now)
	ctx := context.Background()

	m := seedMessage(t, db, c.ID, "alice", ptr("c-1"), now)

	dup := &domain.Message{ID: uuid.NewString(), ConversationID: c.ID, Seq: 99, SenderID: "alice",
		ClientMessageID: ptr("c-1"), Kind: domain.KindText, Status: domain.StatusSent, SentAt: now}
	if err := repo.CreateMessage(ctx, db, dup); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}

	// Another sender may reuse the id, and NULL ids never collide.
	seedMessage(t, db, c.ID, "bob", ptr("c-1"), now)
	seedMessage(t, db, c.ID, "alice", nil, now)
	seedMessage(t, db, c.ID, "alice", nil, now)

	got, err := repo.FindMessageByClientID(ctx, db, c.ID, "alice", "c-1")
	if err != nil || got.ID != m.ID {
		t.Fatalf("find by client id: %+v err=%v", got, err)
	}
	if got.ReadBy == nil {
		t.Fatalf("read_by should round-trip as an empty list")
	}
	if _, err := repo.FindMessageByClientID(ctx, db, c.ID, "alice", "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing: err=%v", err)
	}
}

func TestListMessagesPage_OrderAndVisibility(t *testing.T) {
	db := repotest.Open(t)
	now := time.Now().UTC()
	_, c := repotest.Conversation(t, db, "alice", "bob", now)
	ctx := context.Background()

	var msgs []*domain.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, seedMessage(t, db, c.ID, "alice", nil, now.Add(time.Duration(i)*time.Second)))
	}

	// Newest page first, ascending inside the page.
	page, err := repo.ListMessagesPage(ctx, db, c.ID, "bob", 0, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("page: len=%d err=%v", len(page), err)
	}
	if page[0].Seq != 4 || page[1].Seq != 5 {
		t.Fatalf("unexpected seqs: %d, %d", page[0].Seq, page[1].Seq)
	}
	page, _ = repo.ListMessagesPage(ctx, db, c.ID, "bob", 4, 2)
	if len(page) != 1 || page[0].Seq != 1 {
		t.Fatalf("last page: %+v", page)
	}

	// Deleted for bob only: hidden from bob, visible to alice.
	del := now
	msgs[0].DeletedAt, msgs[0].DeletedBy = &del, "bob"
	if err := repo.SaveMessageDeletion(ctx, db, msgs[0]); err != nil {
		t.Fatalf("delete for me: %v", err)
	}
	// Deleted for everyone: tombstone visible to both, body erased.
	msgs[1].DeletedAt, msgs[1].DeletedBy, msgs[1].DeletedForEveryone = &del, "alice", true
	if err := repo.SaveMessageDeletion(ctx, db, msgs[1]); err != nil {
		t.Fatalf("delete for everyone: %v", err)
	}

	if n, _ := repo.CountVisibleMessages(ctx, db, c.ID, "bob"); n != 4 {
		t.Fatalf("bob sees %d, want 4", n)
	}
	if n, _ := repo.CountVisibleMessages(ctx, db, c.ID, "alice"); n != 5 {
		t.Fatalf("alice sees %d, want 5", n)
	}
	tomb, err := repo.GetMessage(ctx, db, msgs[1].ID)
	if err != nil || tomb.Body != "" || !tomb.DeletedForEveryone {
		t.Fatalf("tombstone: %+v err=%v", tomb, err)
	}
}

func TestReadAndDeliveryTransitions(t *testing.T) {
	db := repotest.Open(t)
	now := time.Now().UTC()
	_, c := repotest.Conversation(t, db, "alice", "bob", now)
	ctx := context.Background()

	m1 := seedMessage(t, db, c.ID, "alice", nil, now)
	seedMessage(t, db, c.ID, "alice", nil, now)
	seedMessage(t, db, c.ID, "bob", nil, now)

	ids, err := repo.MarkDelivered(ctx, db, c.ID, "bob", now)
	if err != nil || len(ids) != 2 || ids[0] != m1.ID {
		t.Fatalf("delivered: %v err=%v", ids, err)
	}
	if ids, _ := repo.MarkDelivered(ctx, db, c.ID, "bob", now); len(ids) != 0 {
		t.Fatalf("second delivery pass moved %v", ids)
	}

	unread, err := repo.ListUnreadUpTo(ctx, db, c.ID, "bob", 1)
	if err != nil || len(unread) != 1 || unread[0].ID != m1.ID {
		t.Fatalf("unread: %+v err=%v", unread, err)
	}
	ok, err := repo.MarkMessageRead(ctx, db, &unread[0], "bob", now)
	if err != nil || !ok {
		t.Fatalf("mark read: ok=%v err=%v", ok, err)
	}
	again, _ := repo.GetMessage(ctx, db, m1.ID)
	if again.Status != domain.StatusRead || !again.ReadBy.Contains("bob") {
		t.Fatalf("read state not stored: %+v", again)
	}
	if ok, _ := repo.MarkMessageRead(ctx, db, again, "bob", now); ok {
		t.Fatalf("second read should be a no-op")
	}
}

func TestReactions_UpsertAndDelete(t *testing.T) {
	db := repotest.Open(t)
	now := time.Now().UTC()
	_, c := repotest.Conversation(t, db, "alice", "bob", now)
	ctx := context.Background()
	m := seedMessage(t, db, c.ID, "alice", nil, now)

	if err := repo.UpsertReaction(ctx, db, &domain.MessageReaction{MessageID: m.ID, UserID: "bob", Emoji: "❤️", CreatedAt: now}); err != nil {
		t.Fatalf("react: %v", err)
	}
	if err := repo.UpsertReaction(ctx, db, &domain.MessageReaction{MessageID: m.ID, UserID: "bob", Emoji: "😂", CreatedAt: now}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ := repo.GetMessage(ctx, db, m.ID)
	if len(got.Reactions) != 1 || got.Reactions[0].Emoji != "😂" {
		t.Fatalf("one reaction per user expected: %+v", got.Reactions)
	}

	removed, err := repo.DeleteReaction(ctx, db, m.ID, "bob")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if removed, _ := repo.DeleteReaction(ctx, db, m.ID, "bob"); removed {
		t.Fatalf("second delete should report nothing removed")
	}
}

func TestGetMessage_NotFound(t *testing.T) {
	db := repotest.Open(t)
	if _, err := repo.GetMessage(context.Background(), db, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := repo.LatestMessage(context.Background(), db, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("latest: want ErrNotFound, got %v", err)
	}
}
