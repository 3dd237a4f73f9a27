package services

import (
	"sync"
	"time"

	"github.com/tbourn/go-dating-realtime/internal/clock"
	"github.com/tbourn/go-dating-realtime/internal/realtime"
)

// TypingEvent is the payload of typing:started and typing:stopped.
type TypingEvent struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// TypingService broadcasts typing indicators. Nothing is persisted. A start
// arms an auto-stop timer per (connection, conversation); a repeated start
// re-arms it without a second broadcast.
type TypingService struct {
	Fanout   Fanout
	Clock    clock.Clock
	AutoStop time.Duration

	mu     sync.Mutex
	timers map[typingKey]*typingTimer
}

type typingKey struct{ conn, conv string }

type typingTimer struct {
	userID string
	t      clock.Timer
}

// NewTypingService returns a TypingService with the given auto-stop delay.
func NewTypingService(f Fanout, clk clock.Clock, autoStop time.Duration) *TypingService {
	return &TypingService{Fanout: f, Clock: clk, AutoStop: autoStop, timers: map[typingKey]*typingTimer{}}
}

// Start broadcasts typing:started to the other connections of the room.
func (s *TypingService) Start(connID, userID, convID string) {
	k := typingKey{connID, convID}
	s.mu.Lock()
	prev, active := s.timers[k]
	if active {
		prev.t.Stop()
	}
	tt := &typingTimer{userID: userID}
	tt.t = s.Clock.AfterFunc(s.AutoStop, func() { s.expire(k, tt) })
	s.timers[k] = tt
	s.mu.Unlock()

	if !active {
		s.Fanout.EmitToRoomExcept(realtime.ConversationRoom(convID), connID, EventTypingStarted,
			TypingEvent{UserID: userID, ConversationID: convID})
	}
}

// Stop cancels the indicator and broadcasts typing:stopped.
func (s *TypingService) Stop(connID, userID, convID string) {
	k := typingKey{connID, convID}
	s.mu.Lock()
	if tt, ok := s.timers[k]; ok {
		tt.t.Stop()
		delete(s.timers, k)
	}
	s.mu.Unlock()
	s.Fanout.EmitToRoomExcept(realtime.ConversationRoom(convID), connID, EventTypingStopped,
		TypingEvent{UserID: userID, ConversationID: convID})
}

// StopAll stops every indicator of connID; used on disconnect.
func (s *TypingService) StopAll(connID string) {
	s.mu.Lock()
	var stopped []typingKey
	users := map[typingKey]string{}
	for k, tt := range s.timers {
		if k.conn == connID {
			tt.t.Stop()
			delete(s.timers, k)
			stopped = append(stopped, k)
			users[k] = tt.userID
		}
	}
	s.mu.Unlock()
	for _, k := range stopped {
		s.Fanout.EmitToRoomExcept(realtime.ConversationRoom(k.conv), connID, EventTypingStopped,
			TypingEvent{UserID: users[k], ConversationID: k.conv})
	}
}

// Shutdown cancels all timers without broadcasting.
func (s *TypingService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, tt := range s.timers {
		tt.t.Stop()
		delete(s.timers, k)
	}
}

func (s *TypingService) expire(k typingKey, tt *typingTimer) {
	s.mu.Lock()
	if cur, ok := s.timers[k]; !ok || cur != tt {
		s.mu.Unlock()
		return
	}
	delete(s.timers, k)
	s.mu.Unlock()
	s.Fanout.EmitToRoomExcept(realtime.ConversationRoom(k.conv), k.conn, EventTypingStopped,
		TypingEvent{UserID: tt.userID, ConversationID: k.conv})
}
