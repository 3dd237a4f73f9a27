package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		User{}.TableName():            "users",
		Match{}.TableName():           "matches",
		Conversation{}.TableName():    "conversations",
		Participant{}.TableName():     "conversation_participants",
		Message{}.TableName():         "messages",
		MessageReaction{}.TableName(): "message_reactions",
		MessageReport{}.TableName():   "message_reports",
		MessageSave{}.TableName():     "message_saves",
		Block{}.TableName():           "blocks",
		GameSession{}.TableName():     "game_sessions",
		GameAnswer{}.TableName():      "game_answers",
		VoiceNote{}.TableName():       "game_voice_notes",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestPairHelpers(t *testing.T) {
	a, b := CanonicalPair("zed", "amy")
	if a != "amy" || b != "zed" {
		t.Fatalf("CanonicalPair = (%s, %s)", a, b)
	}
	if PairKey("zed", "amy") != PairKey("amy", "zed") || PairKey("amy", "zed") != "amy|zed" {
		t.Fatalf("PairKey not order-independent: %q", PairKey("zed", "amy"))
	}

	m := Match{UserA: "amy", UserB: "zed"}
	if !m.Has("amy") || !m.Has("zed") || m.Has("bob") {
		t.Fatalf("Has mismatch")
	}
	if m.Other("amy") != "zed" || m.Other("zed") != "amy" {
		t.Fatalf("Other mismatch")
	}
}

func TestConversationParticipantLookup(t *testing.T) {
	c := &Conversation{Participants: []Participant{{UserID: "amy"}, {UserID: "zed"}}}
	if p := c.Participant("zed"); p == nil || p.UserID != "zed" {
		t.Fatalf("Participant(zed) = %+v", p)
	}
	if c.Participant("bob") != nil {
		t.Fatalf("unknown user should be nil")
	}
	if p := c.OtherParticipant("amy"); p == nil || p.UserID != "zed" {
		t.Fatalf("OtherParticipant(amy) = %+v", p)
	}
	// The returned pointer aliases the slice element.
	c.Participant("amy").IsMuted = true
	if !c.Participants[0].IsMuted {
		t.Fatalf("Participant should return a pointer into Participants")
	}
}

func TestBlockActiveAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	if !(Block{}).ActiveAt(now) {
		t.Fatalf("permanent block should be active")
	}
	if !(Block{ExpiresAt: &later}).ActiveAt(now) {
		t.Fatalf("future expiry should be active")
	}
	if (Block{ExpiresAt: &now}).ActiveAt(now) {
		t.Fatalf("block expiring now should be inactive")
	}
}

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusSending, StatusSent, true},
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusRead, true},
		{StatusDelivered, StatusRead, true},
		{StatusSending, StatusFailed, true},
		{StatusRead, StatusDelivered, false},
		{StatusDelivered, StatusDelivered, false},
		{StatusSent, StatusFailed, false},
		{StatusFailed, StatusSent, false},
		{"bogus", StatusRead, false},
	}
	for _, tc := range cases {
		if got := CanAdvance(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanAdvance(%s, %s) = %v; want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestMessageHiddenFor(t *testing.T) {
	now := time.Now()
	if (&Message{}).HiddenFor("amy") {
		t.Fatalf("live message hidden")
	}
	mine := &Message{DeletedAt: &now, DeletedBy: "amy"}
	if !mine.HiddenFor("amy") || mine.HiddenFor("zed") {
		t.Fatalf("delete-for-me should hide only from the deleter")
	}
	all := &Message{DeletedAt: &now, DeletedBy: "amy", DeletedForEveryone: true}
	if !all.HiddenFor("zed") {
		t.Fatalf("delete-for-everyone should hide from both")
	}
	if !(StringList{"a", "b"}).Contains("b") || (StringList{}).Contains("a") {
		t.Fatalf("StringList.Contains mismatch")
	}
	if !(Media{}).Empty() || (Media{URL: "u"}).Empty() {
		t.Fatalf("Media.Empty mismatch")
	}
}

func TestGameSessionHelpers(t *testing.T) {
	s := &GameSession{Player1: PlayerState{UserID: "amy"}, Player2: PlayerState{UserID: "zed"}}
	if s.Player("zed") != &s.Player2 || s.Player("bob") != nil {
		t.Fatalf("Player lookup mismatch")
	}
	if s.Partner("amy") != &s.Player2 || s.Partner("zed") != &s.Player1 {
		t.Fatalf("Partner lookup mismatch")
	}
	if s.BothConnected() {
		t.Fatalf("nobody connected yet")
	}
	s.Player1.IsConnected, s.Player2.IsConnected = true, true
	if !s.BothConnected() {
		t.Fatalf("both connected")
	}

	for _, st := range []string{SessionDeclined, SessionExpired, SessionAbandoned, SessionCompleted, SessionDiscussion} {
		if !IsTerminalSession(st) {
			t.Fatalf("%s should be terminal", st)
		}
	}
	for _, st := range []string{SessionPending, SessionStarting, SessionPlaying, SessionPaused} {
		if IsTerminalSession(st) {
			t.Fatalf("%s should not be terminal", st)
		}
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Conversation{}, &Participant{}, &Message{}, &MessageReaction{}, &GameSession{}, &GameAnswer{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, idx := range []struct {
		model any
		name  string
	}{
		{&Message{}, "idx_conv_seq"},
		{&Message{}, "ux_msg_client"},
		{&GameAnswer{}, "ux_answer_round"},
		{&GameSession{}, "idx_session_pair"},
	} {
		if !m.HasIndex(idx.model, idx.name) {
			t.Fatalf("expected index %s on %T", idx.name, idx.model)
		}
	}

	now := time.Now().UTC()
	c := &Conversation{ID: "c1", MatchID: "m1", Status: ConversationActive, CreatedAt: now, UpdatedAt: now,
		Participants: []Participant{{ConversationID: "c1", UserID: "amy", JoinedAt: now}, {ConversationID: "c1", UserID: "zed", JoinedAt: now}}}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
	msg := &Message{ID: "m1", ConversationID: "c1", Seq: 1, SenderID: "amy", Kind: KindText, Body: "hi", SentAt: now, ReadBy: StringList{}}
	if err := db.Omit("Reactions").Create(msg).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if err := db.Create(&MessageReaction{MessageID: "m1", UserID: "zed", Emoji: "🔥", CreatedAt: now}).Error; err != nil {
		t.Fatalf("insert reaction: %v", err)
	}

	// Serialized columns round-trip.
	var back Message
	if err := db.First(&back, "id = ?", "m1").Error; err != nil || back.ReadBy == nil || back.Status != StatusSent {
		t.Fatalf("readback: %+v err=%v", back, err)
	}

	// Deleting a message drops its reactions; deleting a conversation drops
	// its participants.
	if err := db.Delete(&Message{}, "id = ?", "m1").Error; err != nil {
		t.Fatalf("delete message: %v", err)
	}
	var cnt int64
	db.Model(&MessageReaction{}).Where("message_id = ?", "m1").Count(&cnt)
	if cnt != 0 {
		t.Fatalf("reactions should cascade, got %d", cnt)
	}
	if err := db.Delete(&Conversation{}, "id = ?", "c1").Error; err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	db.Model(&Participant{}).Where("conversation_id = ?", "c1").Count(&cnt)
	if cnt != 0 {
		t.Fatalf("participants should cascade, got %d", cnt)
	}
}
