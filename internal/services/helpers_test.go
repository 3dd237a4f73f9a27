package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/clock"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/lockmap"
	"github.com/tbourn/go-dating-realtime/internal/moderation"
	"github.com/tbourn/go-dating-realtime/internal/queue"
	"github.com/tbourn/go-dating-realtime/internal/realtime"
	"github.com/tbourn/go-dating-realtime/internal/realtime/realtimetest"
	"github.com/tbourn/go-dating-realtime/internal/repo"
	"github.com/tbourn/go-dating-realtime/internal/repo/repotest"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type chatEnv struct {
	db     *gorm.DB
	clk    *clock.Manual
	router *realtime.Router
	blocks *BlockService
	convs  *ConversationService
	msgs   *MessageService
	conv   *domain.Conversation
	match  *domain.Match
	a, b   *realtimetest.Recorder
	pushes *pushSink
}

type pushSink struct {
	mu      sync.Mutex
	intents []PushIntent
}

func (p *pushSink) handler(_ context.Context, t queue.Task) error {
	var in PushIntent
	if err := json.Unmarshal(t.Payload, &in); err != nil {
		return err
	}
	p.mu.Lock()
	p.intents = append(p.intents, in)
	p.mu.Unlock()
	return nil
}

func (p *pushSink) all() []PushIntent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PushIntent(nil), p.intents...)
}

// newChatEnv seeds users "A" and "B" with a mutual match and a
// conversation, and connects one recorder per user to the room.
func newChatEnv(t *testing.T) *chatEnv {
	t.Helper()
	db := repotest.Open(t)
	match, conv := repotest.Conversation(t, db, "A", "B", t0)
	clk := clock.NewManual(t0)
	router := realtime.NewRouter(zerolog.Nop())

	q := queue.NewInline(zerolog.Nop())
	q.Sync = true
	sink := &pushSink{}
	q.Register(TaskPushNotify, sink.handler)

	locks := lockmap.New()
	blocks := &BlockService{DB: db, Clock: clk}
	env := &chatEnv{
		db:     db,
		clk:    clk,
		router: router,
		blocks: blocks,
		convs:  &ConversationService{DB: db, Clock: clk, Blocks: blocks, Locks: locks},
		msgs: &MessageService{
			DB:         db,
			Clock:      clk,
			Fanout:     router,
			Blocks:     blocks,
			Moderation: moderation.NewGate(),
			Push:       &Pusher{Queue: q, Log: zerolog.Nop()},
			Locks:      locks,
			Log:        zerolog.Nop(),
			Async:      func(f func()) { f() },
		},
		conv:   conv,
		match:  match,
		a:      realtimetest.New("conn-a", "A"),
		b:      realtimetest.New("conn-b", "B"),
		pushes: sink,
	}
	for _, c := range []*realtimetest.Recorder{env.a, env.b} {
		router.Register(c)
		router.Join(realtime.ConversationRoom(conv.ID), c)
	}
	return env
}

func (e *chatEnv) participant(t *testing.T, userID string) domain.Participant {
	t.Helper()
	c, err := repo.GetConversation(context.Background(), e.db, e.conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	p := c.Participant(userID)
	if p == nil {
		t.Fatalf("no participant %s", userID)
	}
	return *p
}

func (e *chatEnv) send(t *testing.T, from, text string) *domain.Message {
	t.Helper()
	m, err := e.msgs.SendText(context.Background(), SendInput{ConversationID: e.conv.ID, SenderID: from, Text: text})
	if err != nil {
		t.Fatalf("send %q: %v", text, err)
	}
	return m
}

func messageText(f realtimetest.Frame) string {
	m, _ := f.Data["message"].(map[string]any)
	s, _ := m["text"].(string)
	return s
}
