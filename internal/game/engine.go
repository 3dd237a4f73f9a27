// Package game – Engine
//
// Engine runs every family through one state machine:
//
//	pending → starting → playing ⇄ paused → completed → discussion
//	pending → declined | expired;  any live state → abandoned
//
// Concurrency: every mutation of a session, including timer callbacks,
// happens under the per-session lock. Timer callbacks claim their handle
// from the registry and re-read the session before acting, so a timer that
// lost a race with a transition does nothing.
//
// Egress: per-player snapshots always go through BuildStatePayload; the
// only events carrying answer values are answer_recorded (to the author)
// and reveal (after the round closed).
package game

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/clock"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/lockmap"
	"github.com/tbourn/go-dating-realtime/internal/observability"
	"github.com/tbourn/go-dating-realtime/internal/realtime"
	"github.com/tbourn/go-dating-realtime/internal/repo"
	"github.com/tbourn/go-dating-realtime/internal/services"
)

// Defaults applied by NewEngine.
const (
	DefaultCountdown      = 3 * time.Second
	DefaultRevealDelay    = 4 * time.Second
	DefaultReconnectGrace = 60 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
)

// Fanout is the slice of the room router the engine needs.
type Fanout interface {
	Join(room string, conn realtime.Conn)
	EmitToRoom(room, event string, data any) int
	EmitToRoomUser(room, userID, event string, data any) int
	EmitToUser(userID, event string, data any) int
	EmitToConn(connID, event string, data any) bool
	UserInRoom(room, userID string) bool
	HasConnections(userID string) bool
}

// Blocker rejects pairs with an active block.
type Blocker interface {
	Check(ctx context.Context, a, b string) error
}

// Enricher schedules insight generation for a completed session.
type Enricher interface {
	Enqueue(ctx context.Context, sessionID string) error
}

// Notifier forwards push intents for offline players.
type Notifier interface {
	Notify(ctx context.Context, in services.PushIntent)
}

// Engine is the game session engine.
type Engine struct {
	DB       *gorm.DB
	Clock    clock.Clock
	Fanout   Fanout
	Blocks   Blocker
	Enricher Enricher
	Push     Notifier
	Families Families
	Locks    *lockmap.Map
	Timers   *Timers
	Log      zerolog.Logger

	Countdown      time.Duration
	RevealDelay    time.Duration
	ReconnectGrace time.Duration
	IdempotencyTTL time.Duration

	// Draw picks the question order of a new session. Nil draws a random
	// sample of the bank.
	Draw func(d *Descriptor) []string
}

// NewEngine returns an engine with default timings.
func NewEngine(db *gorm.DB, clk clock.Clock, fan Fanout, families Families, log zerolog.Logger) *Engine {
	return &Engine{
		DB:             db,
		Clock:          clk,
		Fanout:         fan,
		Families:       families,
		Locks:          lockmap.New(),
		Timers:         NewTimers(clk),
		Log:            log,
		Countdown:      DefaultCountdown,
		RevealDelay:    DefaultRevealDelay,
		ReconnectGrace: DefaultReconnectGrace,
		IdempotencyTTL: DefaultIdempotencyTTL,
	}
}

// InviteInput is the payload of <family>:invite.
type InviteInput struct {
	Family         string
	InviterID      string
	MatchID        string
	ClientInviteID string
	Conn           realtime.Conn
}

// AnswerInput is the payload of <family>:answer. A nil QuestionIndex means
// the current round.
type AnswerInput struct {
	SessionID      string
	UserID         string
	QuestionIndex  *int
	Value          json.RawMessage
	ClientAnswerID string
}

func (e *Engine) tracer() trace.Tracer { return otel.Tracer("game/Engine") }

func (e *Engine) lock(sessionID string) func() { return e.Locks.Lock("session:" + sessionID) }

func (e *Engine) load(ctx context.Context, id string) (*domain.GameSession, *Descriptor, error) {
	s, err := repo.GetSession(ctx, e.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, apperr.TransientErr(err)
	}
	d, ok := e.Families[s.Family]
	if !ok {
		return nil, nil, apperr.Invalidf("unknown game %q", s.Family)
	}
	return s, d, nil
}

// CheckFamily rejects events addressed to sessionID under another game's
// name. A session's family never changes, so no lock is needed.
func (e *Engine) CheckFamily(ctx context.Context, sessionID, family string) error {
	s, err := repo.GetSession(ctx, e.DB, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return apperr.TransientErr(err)
	}
	if s.Family != family {
		return ErrWrongFamily
	}
	return nil
}

func (e *Engine) save(ctx context.Context, s *domain.GameSession) error {
	if err := repo.SaveSession(ctx, e.DB, s); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrActiveSession
		}
		return apperr.TransientErr(err)
	}
	return nil
}

func (e *Engine) setStatus(d *Descriptor, s *domain.GameSession, status string) {
	s.Status = status
	observability.GameTransitions.WithLabelValues(d.ID, status).Inc()
}

func (e *Engine) draw(d *Descriptor) []string {
	if e.Draw != nil {
		return e.Draw(d)
	}
	n := min(d.Rounds, len(d.Bank))
	out := make([]string, 0, n)
	for _, i := range rand.Perm(len(d.Bank))[:n] {
		out = append(out, d.Bank[i].ID)
	}
	return out
}

// toPlayer sends a private event to one player. Timed families address the
// session room; async families have no live room and use the user room.
func (e *Engine) toPlayer(d *Descriptor, s *domain.GameSession, userID, event string, data any) {
	if d.Timed() {
		e.Fanout.EmitToRoomUser(realtime.SessionRoom(s.ID), userID, d.Event(event), data)
		return
	}
	e.Fanout.EmitToUser(userID, d.Event(event), data)
}

func (e *Engine) toBoth(d *Descriptor, s *domain.GameSession, event string, data any) {
	if d.Timed() {
		e.Fanout.EmitToRoom(realtime.SessionRoom(s.ID), d.Event(event), data)
		return
	}
	e.Fanout.EmitToUser(s.Player1.UserID, d.Event(event), data)
	e.Fanout.EmitToUser(s.Player2.UserID, d.Event(event), data)
}

func (e *Engine) stateAnswers(ctx context.Context, d *Descriptor, s *domain.GameSession) []domain.GameAnswer {
	var (
		answers []domain.GameAnswer
		err     error
	)
	if d.Timed() {
		answers, err = repo.ListRoundAnswers(ctx, e.DB, s.ID, s.CurrentIndex)
	} else {
		answers, err = repo.ListAnswers(ctx, e.DB, s.ID)
	}
	if err != nil {
		e.Log.Warn().Err(err).Str("session.id", s.ID).Msg("load answers for state")
	}
	return answers
}

func (e *Engine) emitState(ctx context.Context, d *Descriptor, s *domain.GameSession) {
	answers := e.stateAnswers(ctx, d, s)
	now := e.Clock.Now()
	for _, uid := range []string{s.Player1.UserID, s.Player2.UserID} {
		e.toPlayer(d, s, uid, EvState, BuildStatePayload(d, s, uid, answers, now))
	}
}

func (e *Engine) notify(ctx context.Context, userID string, in services.PushIntent) {
	if e.Push == nil || e.Fanout.HasConnections(userID) {
		return
	}
	in.UserID = userID
	e.Push.Notify(ctx, in)
}

// expireIfDue applies lazy expiry: invitations past their TTL and async
// sessions past their deadline. It reports whether the session expired.
func (e *Engine) expireIfDue(ctx context.Context, d *Descriptor, s *domain.GameSession) (bool, error) {
	now := e.Clock.Now()
	switch {
	case s.Status == domain.SessionPending && !now.Before(s.ExpiresAt):
	case s.Status == domain.SessionPlaying && s.Deadline != nil && !now.Before(*s.Deadline):
	default:
		return false, nil
	}
	e.Timers.CancelSession(s.ID)
	e.setStatus(d, s, domain.SessionExpired)
	s.ActiveKey = nil
	s.LastActivityAt = now
	if err := e.save(ctx, s); err != nil {
		return false, err
	}
	ev := StatusPayload{SessionID: s.ID, Status: s.Status}
	e.Fanout.EmitToUser(s.Player1.UserID, d.Event(EvExpired), ev)
	e.Fanout.EmitToUser(s.Player2.UserID, d.Event(EvExpired), ev)
	return true, nil
}

// Invite creates a pending session between the inviter and their match.
// A replayed ClientInviteID returns the session it created.
func (e *Engine) Invite(ctx context.Context, in InviteInput) (*domain.GameSession, error) {
	ctx, span := e.tracer().Start(ctx, "Invite", trace.WithAttributes(
		attribute.String("game.family", in.Family),
		attribute.String("user.id", in.InviterID),
		attribute.String("match.id", in.MatchID),
	))
	defer span.End()

	d, err := e.Families.Get(in.Family)
	if err != nil {
		return nil, err
	}
	m, err := repo.GetMatch(ctx, e.DB, in.MatchID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, apperr.TransientErr(err)
	}
	if !m.Has(in.InviterID) {
		return nil, apperr.Forbiddenf("not part of this match")
	}
	if m.Status != domain.MatchMutual {
		return nil, ErrNotMutual
	}
	invitee := m.Other(in.InviterID)
	if e.Blocks != nil {
		if err := e.Blocks.Check(ctx, in.InviterID, invitee); err != nil {
			return nil, err
		}
	}

	now := e.Clock.Now()
	scope := "invite:" + d.ID
	if in.ClientInviteID != "" {
		rec, err := repo.GetIdempotency(ctx, e.DB, in.InviterID, scope, in.ClientInviteID, now)
		if err == nil {
			s, _, err := e.load(ctx, rec.ResultID)
			return s, err
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.TransientErr(err)
		}
	}

	pairKey := domain.PairKey(in.InviterID, invitee)
	unlock := e.Locks.Lock("pair:" + d.ID + "|" + pairKey)
	defer unlock()

	existing, err := repo.FindActiveSession(ctx, e.DB, d.ID, pairKey)
	switch {
	case err == nil:
		expired, err := e.expireLocked(ctx, d, existing.ID)
		if err != nil {
			return nil, err
		}
		if !expired {
			return nil, ErrActiveSession
		}
	case !errors.Is(err, repo.ErrNotFound):
		return nil, apperr.TransientErr(err)
	}

	active := d.ID + "|" + pairKey
	s := &domain.GameSession{
		ID:             uuid.NewString(),
		Family:         d.ID,
		MatchID:        m.ID,
		PairKey:        pairKey,
		ActiveKey:      &active,
		Player1:        domain.PlayerState{UserID: in.InviterID, Counters: domain.IntMap{}},
		Player2:        domain.PlayerState{UserID: invitee, Counters: domain.IntMap{}},
		QuestionOrder:  e.draw(d),
		InvitedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(d.InviteTTL),
	}
	e.setStatus(d, s, domain.SessionPending)
	if in.Conn != nil {
		e.Fanout.Join(realtime.SessionRoom(s.ID), in.Conn)
		s.Player1.IsConnected = true
	}
	if err := repo.CreateSession(ctx, e.DB, s); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrActiveSession
		}
		return nil, apperr.TransientErr(err)
	}
	if in.ClientInviteID != "" {
		if _, err := repo.CreateIdempotency(ctx, e.DB, in.InviterID, scope, in.ClientInviteID, s.ID, now, e.IdempotencyTTL); err != nil {
			e.Log.Warn().Err(err).Str("session.id", s.ID).Msg("record invite correlation id")
		}
	}

	ev := InvitationPayload{SessionID: s.ID, Family: d.ID, MatchID: m.ID, From: in.InviterID, To: invitee, ExpiresAt: s.ExpiresAt}
	e.Fanout.EmitToUser(in.InviterID, d.Event(EvInvitationSent), ev)
	e.Fanout.EmitToUser(invitee, d.Event(EvInvited), ev)
	e.notify(ctx, invitee, services.PushIntent{Kind: "game_invite", SessionID: s.ID, FromUserID: in.InviterID, Preview: d.Name})

	e.Log.Info().Str("session.id", s.ID).Str("game.family", d.ID).Str("user.id", in.InviterID).Msg("game invitation sent")
	return s, nil
}

func (e *Engine) expireLocked(ctx context.Context, d *Descriptor, sessionID string) (bool, error) {
	unlock := e.lock(sessionID)
	defer unlock()
	s, _, err := e.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return e.expireIfDue(ctx, d, s)
}

// Accept moves a pending invitation forward. Only the invitee may accept.
// A repeated accept on a running session is a no-op.
func (e *Engine) Accept(ctx context.Context, sessionID, userID string, conn realtime.Conn) (*domain.GameSession, error) {
	ctx, span := e.tracer().Start(ctx, "Accept", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	unlock := e.lock(sessionID)
	defer unlock()

	s, d, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Player(userID) == nil {
		return nil, ErrNotPlayer
	}
	if userID != s.Player2.UserID {
		return nil, ErrNotInvitee
	}
	switch s.Status {
	case domain.SessionPending:
	case domain.SessionStarting, domain.SessionPlaying, domain.SessionPaused:
		return s, nil
	case domain.SessionExpired:
		return nil, ErrInvitationExpired
	default:
		return nil, ErrAlreadyFinished
	}
	if expired, err := e.expireIfDue(ctx, d, s); err != nil || expired {
		if err == nil {
			err = ErrInvitationExpired
		}
		return nil, err
	}

	now := e.Clock.Now()
	s.AcceptedAt = &now
	s.LastActivityAt = now
	if conn != nil {
		e.Fanout.Join(realtime.SessionRoom(s.ID), conn)
		s.Player2.IsConnected = true
	}

	if !d.Timed() {
		deadline := now.Add(d.Deadline)
		s.StartedAt, s.Deadline = &now, &deadline
		e.setStatus(d, s, domain.SessionPlaying)
		if err := e.save(ctx, s); err != nil {
			return nil, err
		}
		e.emitState(ctx, d, s)
		return s, nil
	}

	e.setStatus(d, s, domain.SessionStarting)
	if err := e.save(ctx, s); err != nil {
		return nil, err
	}
	e.emitState(ctx, d, s)
	if s.BothConnected() {
		e.armCountdown(d, s)
	}
	return s, nil
}

// Decline refuses a pending invitation. Repeated declines are no-ops.
func (e *Engine) Decline(ctx context.Context, sessionID, userID string) (*domain.GameSession, error) {
	ctx, span := e.tracer().Start(ctx, "Decline", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	unlock := e.lock(sessionID)
	defer unlock()

	s, d, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Player(userID) == nil {
		return nil, ErrNotPlayer
	}
	if userID != s.Player2.UserID {
		return nil, ErrNotInvitee
	}
	switch s.Status {
	case domain.SessionDeclined:
		return s, nil
	case domain.SessionPending:
	case domain.SessionExpired:
		return nil, ErrInvitationExpired
	default:
		return nil, apperr.Conflictf("invitation was already answered")
	}
	if expired, err := e.expireIfDue(ctx, d, s); err != nil || expired {
		if err == nil {
			err = ErrInvitationExpired
		}
		return nil, err
	}

	e.Timers.CancelSession(s.ID)
	e.setStatus(d, s, domain.SessionDeclined)
	s.ActiveKey = nil
	s.LastActivityAt = e.Clock.Now()
	if err := e.save(ctx, s); err != nil {
		return nil, err
	}
	ev := StatusPayload{SessionID: s.ID, Status: s.Status, By: userID}
	e.Fanout.EmitToUser(s.Player1.UserID, d.Event(EvDeclined), ev)
	e.Fanout.EmitToUser(s.Player2.UserID, d.Event(EvDeclined), ev)
	return s, nil
}

// Join attaches a connection to a session. An empty sessionID picks the
// caller's most recent session of the family. The caller receives the
// current state; the partner learns that the caller is connected. A paused
// session resumes once both players are connected.
func (e *Engine) Join(ctx context.Context, family, sessionID, userID string, conn realtime.Conn) (*domain.GameSession, error) {
	ctx, span := e.tracer().Start(ctx, "Join", trace.WithAttributes(
		attribute.String("game.family", family),
		attribute.String("session.id", sessionID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	if sessionID == "" {
		d, err := e.Families.Get(family)
		if err != nil {
			return nil, err
		}
		latest, err := repo.FindLatestSessionForUser(ctx, e.DB, d.ID, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		if err != nil {
			return nil, apperr.TransientErr(err)
		}
		sessionID = latest.ID
	}

	unlock := e.lock(sessionID)
	defer unlock()

	s, d, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if family != "" && d.ID != family {
		return nil, ErrWrongFamily
	}
	me := s.Player(userID)
	if me == nil {
		return nil, ErrNotPlayer
	}
	if _, err := e.expireIfDue(ctx, d, s); err != nil {
		return nil, err
	}

	room := realtime.SessionRoom(s.ID)
	if conn != nil {
		e.Fanout.Join(room, conn)
	}
	if domain.IsTerminalSession(s.Status) {
		e.sendState(ctx, d, s, userID, conn)
		return s, nil
	}

	wasConnected := me.IsConnected
	me.IsConnected = true
	s.LastActivityAt = e.Clock.Now()
	e.Timers.Cancel(s.ID, graceTimer(userID))
	if !wasConnected {
		partner := s.Partner(userID)
		e.Fanout.EmitToRoomUser(room, partner.UserID, d.Event(EvPartnerConnected), PlayerPayload{SessionID: s.ID, UserID: userID})
	}

	resumed := false
	if s.Status == domain.SessionPaused && s.BothConnected() {
		e.resume(d, s)
		resumed = true
	}
	if err := e.save(ctx, s); err != nil {
		return nil, err
	}
	if s.Status == domain.SessionStarting && s.BothConnected() {
		e.armCountdown(d, s)
	}
	if resumed {
		e.emitState(ctx, d, s)
	} else {
		e.sendState(ctx, d, s, userID, conn)
	}
	return s, nil
}

func (e *Engine) sendState(ctx context.Context, d *Descriptor, s *domain.GameSession, userID string, conn realtime.Conn) {
	payload := BuildStatePayload(d, s, userID, e.stateAnswers(ctx, d, s), e.Clock.Now())
	if conn != nil {
		e.Fanout.EmitToConn(conn.ID(), d.Event(EvState), payload)
		return
	}
	e.toPlayer(d, s, userID, EvState, payload)
}

// resume restores the state a session was paused from. The caller saves.
func (e *Engine) resume(d *Descriptor, s *domain.GameSession) {
	from := s.PausedFrom
	s.PausedFrom = ""
	if from == domain.SessionStarting {
		s.PausedRemainingMs = 0
		e.setStatus(d, s, domain.SessionStarting)
		return
	}
	e.setStatus(d, s, domain.SessionPlaying)
	if s.RoundRevealed {
		e.armAdvance(s.ID, s.CurrentIndex, 0)
		return
	}
	remaining := min(time.Duration(s.PausedRemainingMs)*time.Millisecond, d.RoundTime)
	s.PausedRemainingMs = 0
	e.setRoundWindow(d, s, remaining)
	e.armRound(s.ID, s.CurrentIndex, remaining)
}

// setRoundWindow positions the current round so that remaining time is
// left and the full window stays d.RoundTime.
func (e *Engine) setRoundWindow(d *Descriptor, s *domain.GameSession, remaining time.Duration) {
	now := e.Clock.Now()
	started := now.Add(remaining - d.RoundTime)
	expires := now.Add(remaining)
	s.CurrentQuestionStartedAt, s.CurrentQuestionExpiresAt = &started, &expires
	s.LastActivityAt = now
}

func (e *Engine) armCountdown(d *Descriptor, s *domain.GameSession) {
	if e.Timers.Has(s.ID, TimerCountdown) {
		return
	}
	id := s.ID
	e.Timers.Arm(id, TimerCountdown, e.Countdown, func(h *Handle) { e.onCountdown(id, h) })
	e.toBoth(d, s, EvCountdown, CountdownPayload{
		SessionID: id,
		Countdown: int(e.Countdown / time.Second),
		StartsAt:  e.Clock.Now().Add(e.Countdown),
	})
}

func (e *Engine) armRound(id string, idx int, d time.Duration) {
	e.Timers.Arm(id, TimerRound, d, func(h *Handle) { e.onRoundTimeout(id, idx, h) })
}

func (e *Engine) armAdvance(id string, idx int, d time.Duration) {
	e.Timers.Arm(id, TimerAdvance, d, func(h *Handle) { e.onAdvance(id, idx, h) })
}

func (e *Engine) onCountdown(id string, h *Handle) {
	ctx := context.Background()
	unlock := e.lock(id)
	defer unlock()
	if !e.Timers.Claim(id, TimerCountdown, h) {
		return
	}
	s, d, err := e.load(ctx, id)
	if err != nil {
		e.Log.Error().Err(err).Str("session.id", id).Msg("countdown: load session")
		return
	}
	if s.Status != domain.SessionStarting || !s.BothConnected() {
		return
	}
	now := e.Clock.Now()
	s.StartedAt = &now
	e.setStatus(d, s, domain.SessionPlaying)
	if err := e.startRound(ctx, d, s, 0); err != nil {
		e.Log.Error().Err(err).Str("session.id", id).Msg("countdown: start first round")
	}
}

func (e *Engine) startRound(ctx context.Context, d *Descriptor, s *domain.GameSession, idx int) error {
	s.CurrentIndex = idx
	s.RoundRevealed = false
	e.setRoundWindow(d, s, d.RoundTime)
	if err := e.save(ctx, s); err != nil {
		return err
	}
	e.armRound(s.ID, idx, d.RoundTime)
	e.emitState(ctx, d, s)
	return nil
}

func (e *Engine) onRoundTimeout(id string, idx int, h *Handle) {
	ctx := context.Background()
	unlock := e.lock(id)
	defer unlock()
	if !e.Timers.Claim(id, TimerRound, h) {
		return
	}
	s, d, err := e.load(ctx, id)
	if err != nil {
		e.Log.Error().Err(err).Str("session.id", id).Msg("round timer: load session")
		return
	}
	if s.Status != domain.SessionPlaying || s.CurrentIndex != idx || s.RoundRevealed {
		return
	}

	answered := map[string]bool{}
	answers, err := repo.ListRoundAnswers(ctx, e.DB, id, idx)
	if err != nil {
		e.Log.Error().Err(err).Str("session.id", id).Int("round", idx).Msg("round timer: load answers")
	}
	for _, a := range answers {
		answered[a.UserID] = true
	}
	now := e.Clock.Now()
	for _, p := range []*domain.PlayerState{&s.Player1, &s.Player2} {
		if answered[p.UserID] {
			continue
		}
		err := repo.CreateAnswer(ctx, e.DB, &domain.GameAnswer{
			ID:            uuid.NewString(),
			SessionID:     id,
			UserID:        p.UserID,
			QuestionIndex: idx,
			QuestionID:    s.QuestionOrder[idx],
			TimedOut:      true,
			AnsweredAt:    now,
		})
		if err != nil && !errors.Is(err, repo.ErrDuplicate) {
			e.Log.Error().Err(err).Str("session.id", id).Str("user.id", p.UserID).Msg("round timer: record timeout")
		}
		p.TotalTimedOut++
		observability.GameAnswers.WithLabelValues(d.ID, "timedOut").Inc()
	}
	e.reveal(ctx, d, s)
}

// reveal scores the current round, broadcasts both answers and arms the
// advance timer.
func (e *Engine) reveal(ctx context.Context, d *Descriptor, s *domain.GameSession) {
	idx := s.CurrentIndex
	answers, err := repo.ListRoundAnswers(ctx, e.DB, s.ID, idx)
	if err != nil {
		e.Log.Error().Err(err).Str("session.id", s.ID).Int("round", idx).Msg("reveal: load answers")
	}
	var pair [2]*domain.GameAnswer
	for i := range answers {
		switch answers[i].UserID {
		case s.Player1.UserID:
			pair[0] = &answers[i]
		case s.Player2.UserID:
			pair[1] = &answers[i]
		}
	}

	sc := d.Score(answerValue(pair[0]), answerValue(pair[1]))
	players := [2]*domain.PlayerState{&s.Player1, &s.Player2}
	for k, p := range players {
		p.Points += sc.Points[k]
		if p.Counters == nil {
			p.Counters = domain.IntMap{}
		}
		p.Counters[sc.Outcome]++
		if v := answerValue(pair[k]); v != nil && *v == "true" {
			p.Counters["yes"]++
		}
	}
	s.RoundRevealed = true
	s.LastActivityAt = e.Clock.Now()
	if err := e.save(ctx, s); err != nil {
		e.Log.Error().Err(err).Str("session.id", s.ID).Msg("reveal: save session")
	}

	e.toBoth(d, s, EvReveal, RevealPayload{
		SessionID:     s.ID,
		QuestionIndex: idx,
		QuestionID:    s.QuestionOrder[idx],
		Answers:       map[string]any{"player1": wireAnswer(d, pair[0]), "player2": wireAnswer(d, pair[1])},
		Points:        map[string]int{s.Player1.UserID: sc.Points[0], s.Player2.UserID: sc.Points[1]},
		Outcome:       sc.Outcome,
		RunningTotal:  map[string]int{s.Player1.UserID: s.Player1.Points, s.Player2.UserID: s.Player2.Points},
	})
	e.armAdvance(s.ID, idx, e.RevealDelay)
}

func (e *Engine) onAdvance(id string, idx int, h *Handle) {
	ctx := context.Background()
	unlock := e.lock(id)
	defer unlock()
	if !e.Timers.Claim(id, TimerAdvance, h) {
		return
	}
	s, d, err := e.load(ctx, id)
	if err != nil {
		e.Log.Error().Err(err).Str("session.id", id).Msg("advance: load session")
		return
	}
	if s.Status != domain.SessionPlaying || s.CurrentIndex != idx || !s.RoundRevealed {
		return
	}
	if idx+1 >= len(s.QuestionOrder) {
		err = e.complete(ctx, d, s)
	} else {
		err = e.startRound(ctx, d, s, idx+1)
	}
	if err != nil {
		e.Log.Error().Err(err).Str("session.id", id).Int("round", idx).Msg("advance")
	}
}

// complete computes results from the answer log, releases the active key
// and schedules insights.
func (e *Engine) complete(ctx context.Context, d *Descriptor, s *domain.GameSession) error {
	answers, err := repo.ListAnswers(ctx, e.DB, s.ID)
	if err != nil {
		return apperr.TransientErr(err)
	}
	now := e.Clock.Now()
	e.Timers.CancelSession(s.ID)
	s.Results = ComputeResults(d, s, answers)
	s.CompletedAt = &now
	s.LastActivityAt = now
	s.ActiveKey = nil
	status := domain.SessionCompleted
	if d.Discussion == DiscussOnCompletion {
		status = domain.SessionDiscussion
	}
	e.setStatus(d, s, status)
	if err := e.save(ctx, s); err != nil {
		return err
	}

	ev := CompletedPayload{SessionID: s.ID, Status: s.Status, Results: s.Results, Insights: s.Insights}
	e.Fanout.EmitToUser(s.Player1.UserID, d.Event(EvCompleted), ev)
	e.Fanout.EmitToUser(s.Player2.UserID, d.Event(EvCompleted), ev)

	if e.Enricher != nil {
		if err := e.Enricher.Enqueue(ctx, s.ID); err != nil {
			e.Log.Warn().Err(err).Str("session.id", s.ID).Msg("enqueue insights")
		}
	}
	e.Log.Info().Str("session.id", s.ID).Str("game.family", d.ID).Msg("game completed")
	return nil
}

// Answer records the caller's answer for the current round. A replay with
// the same ClientAnswerID returns the stored answer; any other second
// answer for the round is a conflict.
func (e *Engine) Answer(ctx context.Context, in AnswerInput) (*domain.GameAnswer, error) {
	ctx, span := e.tracer().Start(ctx, "Answer", trace.WithAttributes(
		attribute.String("session.id", in.SessionID),
		attribute.String("user.id", in.UserID),
	))
	defer span.End()

	unlock := e.lock(in.SessionID)
	defer unlock()

	s, d, err := e.load(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	me := s.Player(in.UserID)
	if me == nil {
		return nil, ErrNotPlayer
	}
	if !d.Timed() {
		return nil, ErrWrongAnswerMode
	}
	if s.Status != domain.SessionPlaying {
		return nil, ErrNotPlaying
	}
	idx := s.CurrentIndex
	if in.QuestionIndex != nil && *in.QuestionIndex != idx {
		return nil, ErrRoundClosed
	}
	if prev, err := repo.GetAnswer(ctx, e.DB, s.ID, in.UserID, idx); err == nil {
		if in.ClientAnswerID != "" && prev.ClientAnswerID == in.ClientAnswerID {
			return prev, nil
		}
		return nil, ErrAlreadyAnswered
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.TransientErr(err)
	}
	if s.RoundRevealed {
		return nil, ErrRoundClosed
	}
	value, err := d.Normalize(in.Value)
	if err != nil {
		return nil, err
	}

	now := e.Clock.Now()
	a := &domain.GameAnswer{
		ID:             uuid.NewString(),
		SessionID:      s.ID,
		UserID:         in.UserID,
		QuestionIndex:  idx,
		QuestionID:     s.QuestionOrder[idx],
		Value:          value,
		ClientAnswerID: in.ClientAnswerID,
		AnsweredAt:     now,
	}
	if s.CurrentQuestionStartedAt != nil {
		a.ResponseTimeMs = now.Sub(*s.CurrentQuestionStartedAt).Milliseconds()
	}
	if err := repo.CreateAnswer(ctx, e.DB, a); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrAlreadyAnswered
		}
		return nil, apperr.TransientErr(err)
	}
	me.TotalAnswered++
	s.LastActivityAt = now
	observability.GameAnswers.WithLabelValues(d.ID, "answered").Inc()

	e.toPlayer(d, s, in.UserID, EvAnswerRecorded, AnswerRecordedPayload{SessionID: s.ID, QuestionIndex: idx, Answer: d.Decode(value)})

	partner := s.Partner(in.UserID)
	_, err = repo.GetAnswer(ctx, e.DB, s.ID, partner.UserID, idx)
	switch {
	case err == nil:
		e.Timers.Cancel(s.ID, TimerRound)
		e.reveal(ctx, d, s)
	case errors.Is(err, repo.ErrNotFound):
		if err := e.save(ctx, s); err != nil {
			return nil, err
		}
		e.toPlayer(d, s, partner.UserID, EvWaiting, WaitingPayload{SessionID: s.ID, QuestionIndex: idx, PartnerAnswered: true})
	default:
		return nil, apperr.TransientErr(err)
	}
	return a, nil
}

// Quit abandons a live session.
func (e *Engine) Quit(ctx context.Context, sessionID, userID string) (*domain.GameSession, error) {
	ctx, span := e.tracer().Start(ctx, "Quit", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	unlock := e.lock(sessionID)
	defer unlock()

	s, d, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Player(userID) == nil {
		return nil, ErrNotPlayer
	}
	switch s.Status {
	case domain.SessionAbandoned:
		return s, nil
	case domain.SessionPending, domain.SessionStarting, domain.SessionPlaying, domain.SessionPaused:
	default:
		return nil, ErrAlreadyFinished
	}

	e.Timers.CancelSession(s.ID)
	e.setStatus(d, s, domain.SessionAbandoned)
	s.ActiveKey = nil
	s.LastActivityAt = e.Clock.Now()
	if err := e.save(ctx, s); err != nil {
		return nil, err
	}
	ev := StatusPayload{SessionID: s.ID, Status: s.Status, By: userID}
	e.Fanout.EmitToUser(s.Player1.UserID, d.Event(EvAbandoned), ev)
	e.Fanout.EmitToUser(s.Player2.UserID, d.Event(EvAbandoned), ev)
	return s, nil
}

// Disconnect records that the user's last connection to the session is
// gone. Live timed sessions get a reconnect grace before pausing.
func (e *Engine) Disconnect(ctx context.Context, sessionID, userID string) error {
	unlock := e.lock(sessionID)
	defer unlock()

	s, d, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	me := s.Player(userID)
	if me == nil || !me.IsConnected || domain.IsTerminalSession(s.Status) {
		return nil
	}
	room := realtime.SessionRoom(s.ID)
	if e.Fanout.UserInRoom(room, userID) {
		return nil
	}

	me.IsConnected = false
	e.Fanout.EmitToRoomUser(room, s.Partner(userID).UserID, d.Event(EvPartnerDisconnect), PlayerPayload{SessionID: s.ID, UserID: userID})
	if s.Status == domain.SessionStarting {
		e.Timers.Cancel(s.ID, TimerCountdown)
	}
	if d.Timed() && (s.Status == domain.SessionStarting || s.Status == domain.SessionPlaying) {
		e.armGrace(s.ID, userID, e.ReconnectGrace)
	}
	return e.save(ctx, s)
}

func (e *Engine) armGrace(id, userID string, d time.Duration) {
	e.Timers.Arm(id, graceTimer(userID), d, func(h *Handle) { e.onGrace(id, userID, h) })
}

func (e *Engine) onGrace(id, userID string, h *Handle) {
	ctx := context.Background()
	unlock := e.lock(id)
	defer unlock()
	if !e.Timers.Claim(id, graceTimer(userID), h) {
		return
	}
	s, d, err := e.load(ctx, id)
	if err != nil {
		e.Log.Error().Err(err).Str("session.id", id).Msg("grace: load session")
		return
	}
	me := s.Player(userID)
	if me == nil || me.IsConnected {
		return
	}
	if s.Status != domain.SessionStarting && s.Status != domain.SessionPlaying {
		return
	}

	s.PausedRemainingMs = 0
	if s.Status == domain.SessionPlaying && !s.RoundRevealed && s.CurrentQuestionExpiresAt != nil {
		s.PausedRemainingMs = max(0, s.CurrentQuestionExpiresAt.Sub(e.Clock.Now()).Milliseconds())
	}
	e.Timers.Cancel(id, TimerRound)
	e.Timers.Cancel(id, TimerAdvance)
	e.Timers.Cancel(id, TimerCountdown)
	s.PausedFrom = s.Status
	e.setStatus(d, s, domain.SessionPaused)
	s.LastActivityAt = e.Clock.Now()
	if err := e.save(ctx, s); err != nil {
		e.Log.Error().Err(err).Str("session.id", id).Msg("grace: pause session")
		return
	}
	e.Log.Info().Str("session.id", id).Str("user.id", userID).Int64("remaining_ms", s.PausedRemainingMs).Msg("game paused")
	e.emitState(ctx, d, s)
}

// Get returns the caller's view of a session.
func (e *Engine) Get(ctx context.Context, sessionID, userID string) (StatePayload, error) {
	unlock := e.lock(sessionID)
	defer unlock()

	s, d, err := e.load(ctx, sessionID)
	if err != nil {
		return StatePayload{}, err
	}
	if s.Player(userID) == nil {
		return StatePayload{}, ErrNotPlayer
	}
	if _, err := e.expireIfDue(ctx, d, s); err != nil {
		return StatePayload{}, err
	}
	return BuildStatePayload(d, s, userID, e.stateAnswers(ctx, d, s), e.Clock.Now()), nil
}

// Restore re-arms timers for sessions that were live when the process
// stopped. No connection survives a restart, so every player starts
// disconnected and gets a reconnect grace.
func (e *Engine) Restore(ctx context.Context) error {
	sessions, err := repo.ListLiveSessions(ctx, e.DB)
	if err != nil {
		return err
	}
	now := e.Clock.Now()
	for i := range sessions {
		s := &sessions[i]
		d, ok := e.Families[s.Family]
		if !ok {
			continue
		}
		unlock := e.lock(s.ID)
		s.Player1.IsConnected, s.Player2.IsConnected = false, false
		if d.Timed() {
			if s.Status == domain.SessionPlaying {
				switch {
				case s.RoundRevealed:
					e.armAdvance(s.ID, s.CurrentIndex, 0)
				case s.CurrentQuestionExpiresAt != nil:
					e.armRound(s.ID, s.CurrentIndex, s.CurrentQuestionExpiresAt.Sub(now))
				}
			}
			e.armGrace(s.ID, s.Player1.UserID, e.ReconnectGrace)
			e.armGrace(s.ID, s.Player2.UserID, e.ReconnectGrace)
		}
		if err := e.save(ctx, s); err != nil {
			e.Log.Error().Err(err).Str("session.id", s.ID).Msg("restore session")
		}
		unlock()
	}
	e.Log.Info().Int("sessions", len(sessions)).Msg("game sessions restored")
	return nil
}

// Shutdown cancels every timer.
func (e *Engine) Shutdown() { e.Timers.Shutdown() }
