package game

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/observability"
	"github.com/tbourn/go-dating-realtime/internal/repo"
	"github.com/tbourn/go-dating-realtime/internal/services"
)

// ResponseInput is one voice response of an async family.
type ResponseInput struct {
	SessionID      string
	UserID         string
	QuestionIndex  int
	URL            string
	Transcript     string
	DurationSec    float64
	ClientAnswerID string
}

// VoiceNoteInput is a post-game discussion clip.
type VoiceNoteInput struct {
	SessionID   string
	UserID      string
	URL         string
	Key         string
	DurationSec float64
}

// SubmitResponse records a private voice response in an async family. The
// partner only learns the progress count. The session completes once both
// players answered every question.
func (e *Engine) SubmitResponse(ctx context.Context, in ResponseInput) (*domain.GameAnswer, error) {
	ctx, span := e.tracer().Start(ctx, "SubmitResponse", trace.WithAttributes(
		attribute.String("session.id", in.SessionID),
		attribute.String("user.id", in.UserID),
		attribute.Int("question.index", in.QuestionIndex),
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
	if d.Timed() {
		return nil, ErrWrongAnswerMode
	}
	if expired, err := e.expireIfDue(ctx, d, s); err != nil || expired {
		if err == nil {
			err = ErrDeadlinePassed
		}
		return nil, err
	}
	if s.Status != domain.SessionPlaying {
		return nil, ErrNotPlaying
	}
	if in.QuestionIndex < 0 || in.QuestionIndex >= len(s.QuestionOrder) {
		return nil, ErrBadIndex
	}
	if in.URL == "" {
		return nil, ErrMissingClip
	}
	if prev, err := repo.GetAnswer(ctx, e.DB, s.ID, in.UserID, in.QuestionIndex); err == nil {
		if in.ClientAnswerID != "" && prev.ClientAnswerID == in.ClientAnswerID {
			return prev, nil
		}
		return nil, ErrAlreadyAnswered
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.TransientErr(err)
	}

	now := e.Clock.Now()
	a := &domain.GameAnswer{
		ID:             uuid.NewString(),
		SessionID:      s.ID,
		UserID:         in.UserID,
		QuestionIndex:  in.QuestionIndex,
		QuestionID:     s.QuestionOrder[in.QuestionIndex],
		Value:          in.URL,
		Transcript:     in.Transcript,
		DurationSec:    in.DurationSec,
		ClientAnswerID: in.ClientAnswerID,
		AnsweredAt:     now,
	}
	if s.StartedAt != nil {
		a.ResponseTimeMs = now.Sub(*s.StartedAt).Milliseconds()
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

	total := len(s.QuestionOrder)
	idx := in.QuestionIndex
	e.toPlayer(d, s, in.UserID, EvResponseRecorded, ProgressPayload{SessionID: s.ID, QuestionIndex: &idx, Answered: me.TotalAnswered, Total: total})
	partner := s.Partner(in.UserID)
	e.toPlayer(d, s, partner.UserID, EvPartnerProgress, ProgressPayload{SessionID: s.ID, Answered: me.TotalAnswered, Total: total})

	if s.Player1.TotalAnswered >= total && s.Player2.TotalAnswered >= total {
		return a, e.complete(ctx, d, s)
	}
	if err := e.save(ctx, s); err != nil {
		return nil, err
	}
	if me.TotalAnswered == total {
		e.notify(ctx, partner.UserID, services.PushIntent{Kind: "game_partner_finished", SessionID: s.ID, FromUserID: in.UserID, Preview: d.Name})
	}
	return a, nil
}

// AddVoiceNote attaches a discussion clip to a finished session. Families
// that open discussion on the first note transition here.
func (e *Engine) AddVoiceNote(ctx context.Context, in VoiceNoteInput) (*domain.VoiceNote, error) {
	ctx, span := e.tracer().Start(ctx, "AddVoiceNote", trace.WithAttributes(
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
	if s.Player(in.UserID) == nil {
		return nil, ErrNotPlayer
	}
	if s.Status != domain.SessionCompleted && s.Status != domain.SessionDiscussion {
		return nil, ErrNotFinished
	}
	if in.URL == "" {
		return nil, ErrMissingClip
	}

	now := e.Clock.Now()
	n := &domain.VoiceNote{
		ID:          uuid.NewString(),
		SessionID:   s.ID,
		UserID:      in.UserID,
		URL:         in.URL,
		Key:         in.Key,
		DurationSec: in.DurationSec,
		CreatedAt:   now,
	}
	if err := repo.CreateVoiceNote(ctx, e.DB, n); err != nil {
		return nil, apperr.TransientErr(err)
	}
	if s.Status == domain.SessionCompleted && d.Discussion == DiscussOnFirstVoiceNote {
		e.setStatus(d, s, domain.SessionDiscussion)
	}
	s.LastActivityAt = now
	if err := e.save(ctx, s); err != nil {
		return nil, err
	}

	ev := VoiceNotePayload{SessionID: s.ID, Note: n}
	e.Fanout.EmitToUser(s.Player1.UserID, d.Event(EvVoiceNote), ev)
	e.Fanout.EmitToUser(s.Player2.UserID, d.Event(EvVoiceNote), ev)
	partner := s.Partner(in.UserID)
	e.notify(ctx, partner.UserID, services.PushIntent{Kind: "game_voice_note", SessionID: s.ID, FromUserID: in.UserID, Preview: d.Name})
	return n, nil
}

// VoiceNotes lists the discussion clips of a session the caller plays in.
func (e *Engine) VoiceNotes(ctx context.Context, sessionID, userID string) ([]domain.VoiceNote, error) {
	s, _, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Player(userID) == nil {
		return nil, ErrNotPlayer
	}
	notes, err := repo.ListVoiceNotes(ctx, e.DB, sessionID)
	if err != nil {
		return nil, apperr.TransientErr(err)
	}
	return notes, nil
}

// Sweep expires invitations past their TTL. Reads also expire lazily; the
// sweep keeps active keys from lingering on sessions nobody reads.
func (e *Engine) Sweep(ctx context.Context) (int64, error) {
	n, err := repo.ExpirePendingSessions(ctx, e.DB, e.Clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.Log.Info().Int64("sessions", n).Msg("expired pending invitations")
	}
	return n, nil
}
