// Package services – MessageService
//
// MessageService is the chat delivery pipeline. Every operation that
// changes what participants see runs under the per-conversation lock, and
// the lock is held from persistence through fan-out, so the order of
// message:new events equals the sequence order in the store.
//
// Send path: block check, conversation state, correlation-id replay,
// moderation, one transaction (seq reservation, insert, conversation
// summary, recipient unread counter, automatic report), fan-out, and a
// push intent when the recipient has no live connection.
//
// Observability: public methods are OpenTelemetry-instrumented with
// conversation and user attributes.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

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
	"github.com/tbourn/go-dating-realtime/internal/media"
	"github.com/tbourn/go-dating-realtime/internal/moderation"
	"github.com/tbourn/go-dating-realtime/internal/observability"
	"github.com/tbourn/go-dating-realtime/internal/realtime"
	"github.com/tbourn/go-dating-realtime/internal/repo"
	"github.com/tbourn/go-dating-realtime/internal/utils"
)

// Defaults applied when the corresponding MessageService field is zero.
const (
	DefaultMaxTextRunes = 1000
	DefaultEditWindow   = 5 * time.Minute
	previewRunes        = 100
)

// SystemSenderID is the sender of system messages.
const SystemSenderID = "system"

// AllowedEmoji is the fixed reaction set.
var AllowedEmoji = map[string]struct{}{
	"❤️": {}, "😂": {}, "😮": {}, "😢": {}, "😡": {}, "👍": {}, "🔥": {}, "😍": {},
}

// MessageService coordinates message persistence and fan-out.
type MessageService struct {
	DB         *gorm.DB
	Clock      clock.Clock
	Fanout     Fanout
	Blocks     *BlockService
	Moderation *moderation.Gate
	Images     moderation.ImageScreener
	Media      *media.Service
	Push       *Pusher
	Locks      *lockmap.Map
	Log        zerolog.Logger

	MaxTextRunes int
	EditWindow   time.Duration

	// Async runs post-persist work (image screening, blob release). Nil
	// means a new goroutine.
	Async func(func())
}

// MessageEvent is the payload of message:new and message:edited.
type MessageEvent struct {
	Message        *domain.Message `json:"message"`
	ConversationID string          `json:"conversationId"`
	EditedBy       string          `json:"editedBy,omitempty"`
}

// DeletedEvent is the payload of message:deleted.
type DeletedEvent struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	DeletedBy      string `json:"deletedBy"`
}

// ReactionEvent is the payload of message:reaction.
type ReactionEvent struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Emoji          string `json:"emoji,omitempty"`
	Action         string `json:"action"`
}

// ReceiptEvent is the payload of message:read:receipt.
type ReceiptEvent struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	ReadBy         string    `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

// DeliveredEvent is the payload of message:delivered.
type DeliveredEvent struct {
	ConversationID string    `json:"conversationId"`
	MessageIDs     []string  `json:"messageIds"`
	DeliveredAt    time.Time `json:"deliveredAt"`
}

// SendInput describes a text send. Kind may be empty (text) or
// domain.KindIceBreaker.
type SendInput struct {
	ConversationID   string
	SenderID         string
	Text             string
	ClientMessageID  string
	ReplyToMessageID string
	Kind             string
}

// draft is a message about to be persisted.
type draft struct {
	convID   string
	senderID string
	kind     string
	body     string
	media    domain.Media
	cid      string
	replyTo  string
	verdict  moderation.Verdict
}

func (s *MessageService) tracer() trace.Tracer { return otel.Tracer("services/MessageService") }

func (s *MessageService) maxRunes() int {
	if s.MaxTextRunes > 0 {
		return s.MaxTextRunes
	}
	return DefaultMaxTextRunes
}

func (s *MessageService) editWindow() time.Duration {
	if s.EditWindow > 0 {
		return s.EditWindow
	}
	return DefaultEditWindow
}

func (s *MessageService) async(f func()) {
	if s.Async != nil {
		s.Async(f)
		return
	}
	go f()
}

func (s *MessageService) lock(convID string) func() { return s.Locks.Lock("conv:" + convID) }

// SendText validates and delivers a text (or icebreaker) message. A repeated
// ClientMessageID returns the stored message without a second fan-out.
func (s *MessageService) SendText(ctx context.Context, in SendInput) (*domain.Message, error) {
	ctx, span := s.tracer().Start(ctx, "SendText", trace.WithAttributes(
		attribute.String("conversation.id", in.ConversationID),
		attribute.String("user.id", in.SenderID),
	))
	defer span.End()

	kind := in.Kind
	if kind == "" {
		kind = domain.KindText
	}
	if kind != domain.KindText && kind != domain.KindIceBreaker {
		return nil, apperr.Invalidf("unsupported message kind %q", kind)
	}
	body := strings.TrimSpace(in.Text)
	if body == "" {
		return nil, ErrEmptyText
	}
	if utf8.RuneCountInString(body) > s.maxRunes() {
		return nil, ErrTextTooLong
	}
	d := &draft{
		convID:   in.ConversationID,
		senderID: in.SenderID,
		kind:     kind,
		body:     body,
		cid:      strings.TrimSpace(in.ClientMessageID),
		replyTo:  strings.TrimSpace(in.ReplyToMessageID),
	}
	if s.Moderation != nil {
		d.verdict = s.Moderation.CheckText(body)
		if d.verdict.Action == moderation.Reject {
			return nil, apperr.E(apperr.Invalid, "message rejected by moderation")
		}
	}
	return s.deliver(ctx, d)
}

// SendPhoto uploads a photo and delivers it. The upload happens outside
// the conversation lock; the conversation is re-validated before persist
// and the blobs are released if the send does not go through.
func (s *MessageService) SendPhoto(ctx context.Context, convID, senderID string, data []byte, clientMessageID string) (*domain.Message, error) {
	ctx, span := s.tracer().Start(ctx, "SendPhoto", trace.WithAttributes(
		attribute.String("conversation.id", convID),
		attribute.String("user.id", senderID),
		attribute.Int("bytes", len(data)),
	))
	defer span.End()

	if s.Media == nil {
		return nil, apperr.E(apperr.Unavailable, "media uploads are not configured")
	}
	if m, ok, err := s.precheck(ctx, convID, senderID, clientMessageID); err != nil || ok {
		return m, err
	}
	up, err := s.Media.UploadPhoto(ctx, "conversations/"+convID, data)
	if err != nil {
		return nil, err
	}
	m, err := s.deliver(ctx, &draft{
		convID: convID, senderID: senderID, kind: domain.KindPhoto, media: up,
		cid: strings.TrimSpace(clientMessageID),
	})
	if err != nil || m.Media.Key != up.Key {
		s.async(func() { s.Media.Release(context.Background(), up) })
	}
	if err != nil {
		return nil, err
	}
	if m.Media.Key == up.Key {
		s.async(func() { s.screen(m.ID, up.URL) })
	}
	return m, nil
}

// SendVoice uploads a voice clip and delivers it. When transcription is
// enabled the transcript becomes the message text.
func (s *MessageService) SendVoice(ctx context.Context, convID, senderID, mime string, data []byte, durationSec float64, clientMessageID string) (*domain.Message, error) {
	ctx, span := s.tracer().Start(ctx, "SendVoice", trace.WithAttributes(
		attribute.String("conversation.id", convID),
		attribute.String("user.id", senderID),
		attribute.Float64("duration_sec", durationSec),
	))
	defer span.End()

	if s.Media == nil {
		return nil, apperr.E(apperr.Unavailable, "media uploads are not configured")
	}
	if m, ok, err := s.precheck(ctx, convID, senderID, clientMessageID); err != nil || ok {
		return m, err
	}
	up, transcript, err := s.Media.UploadVoice(ctx, "conversations/"+convID, mime, data, durationSec)
	if err != nil {
		return nil, err
	}
	d := &draft{
		convID: convID, senderID: senderID, kind: domain.KindVoice, media: up,
		body: transcript, cid: strings.TrimSpace(clientMessageID),
	}
	if transcript != "" && s.Moderation != nil {
		d.verdict = s.Moderation.CheckText(transcript)
	}
	m, err := s.deliver(ctx, d)
	if err != nil || m.Media.Key != up.Key {
		s.async(func() { s.Media.Release(context.Background(), up) })
	}
	return m, err
}

// precheck runs the cheap guards before an upload: participant, block,
// status, and correlation-id replay (ok=true returns the stored message).
func (s *MessageService) precheck(ctx context.Context, convID, senderID, cid string) (*domain.Message, bool, error) {
	conv, err := s.loadForSend(ctx, convID, senderID)
	if err != nil {
		return nil, false, err
	}
	if cid = strings.TrimSpace(cid); cid != "" {
		m, err := repo.FindMessageByClientID(ctx, s.DB, conv.ID, senderID, cid)
		if err == nil {
			return m, true, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, false, apperr.TransientErr(err)
		}
	}
	return nil, false, nil
}

// loadForSend returns the conversation if senderID may post into it.
func (s *MessageService) loadForSend(ctx context.Context, convID, senderID string) (*domain.Conversation, error) {
	conv, err := repo.GetConversation(ctx, s.DB, convID)
	if err != nil {
		return nil, notFoundOr(err, ErrConversationNotFound)
	}
	if conv.Participant(senderID) == nil {
		return nil, ErrNotParticipant
	}
	other := conv.OtherParticipant(senderID)
	if err := s.Blocks.Check(ctx, senderID, other.UserID); err != nil {
		return nil, err
	}
	if conv.Status == domain.ConversationBlocked {
		// The check above passed, so whatever blocked the pair has expired.
		if _, err := s.Blocks.Reopen(ctx, conv); err != nil {
			return nil, err
		}
	}
	if conv.Status != domain.ConversationActive {
		if conv.Status == domain.ConversationBlocked {
			return nil, apperr.Blocked()
		}
		return nil, ErrConversationInactive
	}
	return conv, nil
}

// deliver persists d and fans it out while holding the conversation lock.
func (s *MessageService) deliver(ctx context.Context, d *draft) (*domain.Message, error) {
	unlock := s.lock(d.convID)
	defer unlock()

	conv, err := s.loadForSend(ctx, d.convID, d.senderID)
	if err != nil {
		return nil, err
	}
	if d.cid != "" {
		existing, err := repo.FindMessageByClientID(ctx, s.DB, conv.ID, d.senderID, d.cid)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.TransientErr(err)
		}
	}
	var reply *domain.ReplySnapshot
	if d.replyTo != "" {
		rm, err := repo.GetMessage(ctx, s.DB, d.replyTo)
		if err != nil || rm.ConversationID != conv.ID || rm.HiddenFor(d.senderID) {
			return nil, apperr.Invalidf("reply target not found")
		}
		reply = &domain.ReplySnapshot{MessageID: rm.ID, SenderID: rm.SenderID, Kind: rm.Kind, Text: clip(rm.Body, previewRunes)}
	}

	now := s.Clock.Now()
	recipient := conv.OtherParticipant(d.senderID)
	m := &domain.Message{
		ID:               uuid.NewString(),
		ConversationID:   conv.ID,
		SenderID:         d.senderID,
		Kind:             d.kind,
		Body:             d.body,
		Media:            d.media,
		Status:           domain.StatusSent,
		SentAt:           now,
		ReplyTo:          reply,
		ModerationStatus: domain.ModerationNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if d.cid != "" {
		cid := d.cid
		m.ClientMessageID = &cid
	}
	if d.verdict.Flagged() {
		m.ModerationFlagged = true
		m.ModerationReason = d.verdict.Reason
		m.ModerationSeverity = d.verdict.Severity.String()
	}

	online := s.Fanout.HasConnections(recipient.UserID)

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := repo.NextSeq(ctx, tx, conv.ID)
		if err != nil {
			return err
		}
		m.Seq = seq
		if err := repo.CreateMessage(ctx, tx, m); err != nil {
			return err
		}
		if err := repo.ApplyMessageAppended(ctx, tx, conv.ID, recipient.UserID, previewOf(m), now); err != nil {
			return err
		}
		if d.verdict.Severity == moderation.SeverityHigh {
			return repo.CreateReport(ctx, tx, &domain.MessageReport{
				ID:         uuid.NewString(),
				MessageID:  m.ID,
				ReporterID: d.senderID,
				Reason:     d.verdict.Reason,
				Severity:   d.verdict.Severity.String(),
				Automatic:  true,
				CreatedAt:  now,
			})
		}
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) && d.cid != "" {
		existing, ferr := repo.FindMessageByClientID(ctx, s.DB, conv.ID, d.senderID, d.cid)
		if ferr == nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, apperr.TransientErr(err)
	}
	m.Reactions = []domain.MessageReaction{}

	observability.ChatMessages.WithLabelValues(m.Kind).Inc()
	if d.verdict.Flagged() {
		observability.ModerationFlags.WithLabelValues(d.verdict.Severity.String()).Inc()
		s.Log.Info().
			Str("conversation.id", conv.ID).
			Str("message.id", m.ID).
			Str("reason", d.verdict.Reason).
			Str("severity", d.verdict.Severity.String()).
			Msg("message flagged")
	}

	s.Fanout.EmitToRoom(realtime.ConversationRoom(conv.ID), EventMessageNew,
		MessageEvent{Message: m, ConversationID: conv.ID})

	if online {
		s.advanceDelivered(ctx, m)
	}
	if !online && !recipient.IsMuted {
		s.Push.Notify(ctx, PushIntent{
			UserID:         recipient.UserID,
			ConversationID: conv.ID,
			MessageID:      m.ID,
			Kind:           "message",
			Preview:        previewOf(m),
			FromUserID:     d.senderID,
		})
	}
	return m, nil
}

// advanceDelivered moves a freshly sent message to delivered when the
// recipient holds a live connection. Failure leaves it sent for the next
// MarkDelivered.
func (s *MessageService) advanceDelivered(ctx context.Context, m *domain.Message) {
	now := s.Clock.Now()
	ok, err := repo.MarkMessageDelivered(ctx, s.DB, m.ID, now)
	if err != nil {
		s.Log.Warn().Err(err).Str("message.id", m.ID).Msg("mark delivered")
		return
	}
	if !ok {
		return
	}
	m.Status = domain.StatusDelivered
	m.DeliveredAt = &now
	s.Fanout.EmitToRoom(realtime.ConversationRoom(m.ConversationID), EventMessageDelivered,
		DeliveredEvent{ConversationID: m.ConversationID, MessageIDs: []string{m.ID}, DeliveredAt: now})
}

// sendSystemLocked appends a system message. It must be called with the
// conversation lock held.
func (s *MessageService) sendSystemLocked(ctx context.Context, convID, body string) {
	now := s.Clock.Now()
	m := &domain.Message{
		ID:               uuid.NewString(),
		ConversationID:   convID,
		SenderID:         SystemSenderID,
		Kind:             domain.KindSystem,
		Body:             body,
		Status:           domain.StatusSent,
		SentAt:           now,
		ModerationStatus: domain.ModerationNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := repo.NextSeq(ctx, tx, convID)
		if err != nil {
			return err
		}
		m.Seq = seq
		if err := repo.CreateMessage(ctx, tx, m); err != nil {
			return err
		}
		return repo.ApplyMessageAppended(ctx, tx, convID, "", body, now)
	})
	if err != nil {
		s.Log.Warn().Err(err).Str("conversation.id", convID).Msg("system message")
		return
	}
	m.Reactions = []domain.MessageReaction{}
	observability.ChatMessages.WithLabelValues(m.Kind).Inc()
	s.Fanout.EmitToRoom(realtime.ConversationRoom(convID), EventMessageNew,
		MessageEvent{Message: m, ConversationID: convID})
}

// loadOwn fetches a message for a sender-only operation and returns it
// with its conversation.
func (s *MessageService) loadOwn(ctx context.Context, messageID, userID string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		return nil, notFoundOr(err, ErrMessageNotFound)
	}
	if m.SenderID != userID {
		conv, cerr := repo.GetConversation(ctx, s.DB, m.ConversationID)
		if cerr != nil || conv.Participant(userID) == nil {
			return nil, ErrMessageNotFound
		}
		return nil, ErrNotSender
	}
	if m.DeletedAt != nil {
		return nil, ErrMessageDeleted
	}
	if s.Clock.Now().Sub(m.SentAt) > s.editWindow() {
		return nil, ErrWindowClosed
	}
	return m, nil
}

// Edit replaces the text of the caller's own message within the edit
// window. The first edit keeps the original text.
func (s *MessageService) Edit(ctx context.Context, messageID, userID, text string) (*domain.Message, error) {
	ctx, span := s.tracer().Start(ctx, "Edit", trace.WithAttributes(
		attribute.String("message.id", messageID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > s.maxRunes() {
		return nil, ErrTextTooLong
	}

	probe, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		return nil, notFoundOr(err, ErrMessageNotFound)
	}
	unlock := s.lock(probe.ConversationID)
	defer unlock()

	m, err := s.loadOwn(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if m.Kind != domain.KindText && m.Kind != domain.KindIceBreaker {
		return nil, ErrNotEditable
	}
	if _, err := s.loadForSend(ctx, m.ConversationID, userID); err != nil {
		return nil, err
	}
	if text == m.Body {
		return m, nil
	}

	now := s.Clock.Now()
	if m.OriginalText == nil {
		orig := m.Body
		m.OriginalText = &orig
	}
	m.Body = text
	m.IsEdited = true
	m.EditedAt = &now
	if s.Moderation != nil {
		v := s.Moderation.CheckText(text)
		m.ModerationFlagged = v.Flagged()
		m.ModerationReason = v.Reason
		m.ModerationSeverity = v.Severity.String()
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SaveMessageEdit(ctx, tx, m); err != nil {
			return err
		}
		return s.refreshPreview(ctx, tx, m.ConversationID)
	})
	if err != nil {
		return nil, apperr.TransientErr(err)
	}
	s.Fanout.EmitToRoom(realtime.ConversationRoom(m.ConversationID), EventMessageEdited,
		MessageEvent{Message: m, ConversationID: m.ConversationID, EditedBy: userID})
	return m, nil
}

// Delete soft-deletes the caller's own message within the window. A
// delete for everyone erases the content, notifies the room, appends a
// system message and releases media blobs in the background.
func (s *MessageService) Delete(ctx context.Context, messageID, userID string, forEveryone bool) error {
	ctx, span := s.tracer().Start(ctx, "Delete", trace.WithAttributes(
		attribute.String("message.id", messageID),
		attribute.String("user.id", userID),
		attribute.Bool("for_everyone", forEveryone),
	))
	defer span.End()

	probe, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		return notFoundOr(err, ErrMessageNotFound)
	}
	unlock := s.lock(probe.ConversationID)
	defer unlock()

	m, err := s.loadOwn(ctx, messageID, userID)
	if err != nil {
		return err
	}
	now := s.Clock.Now()
	released := m.Media
	m.DeletedAt = &now
	m.DeletedBy = userID
	m.DeletedForEveryone = forEveryone

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SaveMessageDeletion(ctx, tx, m); err != nil {
			return err
		}
		if forEveryone {
			return s.refreshPreview(ctx, tx, m.ConversationID)
		}
		return nil
	})
	if err != nil {
		return apperr.TransientErr(err)
	}

	ev := DeletedEvent{MessageID: m.ID, ConversationID: m.ConversationID, DeletedBy: userID}
	if !forEveryone {
		s.Fanout.EmitToUser(userID, EventMessageDeleted, ev)
		return nil
	}
	s.Fanout.EmitToRoom(realtime.ConversationRoom(m.ConversationID), EventMessageDeleted, ev)
	s.sendSystemLocked(ctx, m.ConversationID, "This message was deleted")
	if !released.Empty() && s.Media != nil {
		s.async(func() { s.Media.Release(context.Background(), released) })
	}
	return nil
}

// React sets the caller's emoji on a message, replacing any previous one.
func (s *MessageService) React(ctx context.Context, messageID, userID, emoji string) error {
	ctx, span := s.tracer().Start(ctx, "React", trace.WithAttributes(
		attribute.String("message.id", messageID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	if _, ok := AllowedEmoji[emoji]; !ok {
		return ErrUnknownEmoji
	}
	m, unlock, err := s.lockVisible(ctx, messageID, userID)
	if err != nil {
		return err
	}
	defer unlock()

	err = repo.UpsertReaction(ctx, s.DB, &domain.MessageReaction{
		MessageID: m.ID, UserID: userID, Emoji: emoji, CreatedAt: s.Clock.Now(),
	})
	if err != nil {
		return apperr.TransientErr(err)
	}
	s.Fanout.EmitToRoom(realtime.ConversationRoom(m.ConversationID), EventMessageReaction, ReactionEvent{
		MessageID: m.ID, ConversationID: m.ConversationID, UserID: userID, Emoji: emoji, Action: "add",
	})
	return nil
}

// Unreact removes the caller's emoji. Removing nothing is a no-op.
func (s *MessageService) Unreact(ctx context.Context, messageID, userID string) error {
	m, unlock, err := s.lockVisible(ctx, messageID, userID)
	if err != nil {
		return err
	}
	defer unlock()

	removed, err := repo.DeleteReaction(ctx, s.DB, m.ID, userID)
	if err != nil {
		return apperr.TransientErr(err)
	}
	if removed {
		s.Fanout.EmitToRoom(realtime.ConversationRoom(m.ConversationID), EventMessageReaction, ReactionEvent{
			MessageID: m.ID, ConversationID: m.ConversationID, UserID: userID, Action: "remove",
		})
	}
	return nil
}

// lockVisible takes the conversation lock for a message the caller can
// see and interact with.
func (s *MessageService) lockVisible(ctx context.Context, messageID, userID string) (*domain.Message, func(), error) {
	probe, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		return nil, nil, notFoundOr(err, ErrMessageNotFound)
	}
	unlock := s.lock(probe.ConversationID)
	m, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		unlock()
		return nil, nil, notFoundOr(err, ErrMessageNotFound)
	}
	if _, err := s.loadForSend(ctx, m.ConversationID, userID); err != nil {
		unlock()
		return nil, nil, err
	}
	if m.HiddenFor(userID) {
		unlock()
		return nil, nil, ErrMessageDeleted
	}
	return m, unlock, nil
}

// MarkRead moves every unread message from the other participant up to
// upToMessageID to read, resets the reader's unread counter and sends one
// receipt per message to its sender.
func (s *MessageService) MarkRead(ctx context.Context, convID, readerID, upToMessageID string) (int, error) {
	ctx, span := s.tracer().Start(ctx, "MarkRead", trace.WithAttributes(
		attribute.String("conversation.id", convID),
		attribute.String("user.id", readerID),
	))
	defer span.End()

	unlock := s.lock(convID)
	defer unlock()

	conv, err := repo.GetConversation(ctx, s.DB, convID)
	if err != nil {
		return 0, notFoundOr(err, ErrConversationNotFound)
	}
	if conv.Participant(readerID) == nil {
		return 0, ErrNotParticipant
	}
	upTo, err := repo.GetMessage(ctx, s.DB, upToMessageID)
	if err != nil || upTo.ConversationID != convID {
		return 0, ErrMessageNotFound
	}

	now := s.Clock.Now()
	var read []domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending, err := repo.ListUnreadUpTo(ctx, tx, convID, readerID, upTo.Seq)
		if err != nil {
			return err
		}
		for i := range pending {
			ok, err := repo.MarkMessageRead(ctx, tx, &pending[i], readerID, now)
			if err != nil {
				return err
			}
			if ok {
				read = append(read, pending[i])
			}
		}
		return repo.MarkParticipantRead(ctx, tx, convID, readerID, upTo.ID, now)
	})
	if err != nil {
		return 0, apperr.TransientErr(err)
	}
	for _, m := range read {
		s.Fanout.EmitToUser(m.SenderID, EventReadReceipt, ReceiptEvent{
			ConversationID: convID, MessageID: m.ID, ReadBy: readerID, ReadAt: now,
		})
	}
	return len(read), nil
}

// MarkDelivered advances messages addressed to userID from sent to
// delivered; called when the user joins the conversation room.
func (s *MessageService) MarkDelivered(ctx context.Context, convID, userID string) error {
	unlock := s.lock(convID)
	defer unlock()

	now := s.Clock.Now()
	ids, err := repo.MarkDelivered(ctx, s.DB, convID, userID, now)
	if err != nil {
		return apperr.TransientErr(err)
	}
	if len(ids) > 0 {
		s.Fanout.EmitToRoom(realtime.ConversationRoom(convID), EventMessageDelivered,
			DeliveredEvent{ConversationID: convID, MessageIDs: ids, DeliveredAt: now})
	}
	return nil
}

// History returns a page of the messages userID can see, oldest first
// within the page. Pages count back from the newest message.
func (s *MessageService) History(ctx context.Context, convID, userID string, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := s.tracer().Start(ctx, "History", trace.WithAttributes(
		attribute.String("conversation.id", convID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	conv, err := repo.GetConversation(ctx, s.DB, convID)
	if err != nil {
		return nil, 0, notFoundOr(err, ErrConversationNotFound)
	}
	if conv.Participant(userID) == nil {
		return nil, 0, ErrNotParticipant
	}
	total, err := repo.CountVisibleMessages(ctx, s.DB, convID, userID)
	if err != nil {
		return nil, 0, apperr.TransientErr(err)
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, convID, userID, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, 0, apperr.TransientErr(err)
	}
	return items, total, nil
}

// ToggleSave bookmarks a visible message for userID, or removes the
// bookmark, and returns the new state.
func (s *MessageService) ToggleSave(ctx context.Context, messageID, userID string) (bool, error) {
	m, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		return false, notFoundOr(err, ErrMessageNotFound)
	}
	conv, err := repo.GetConversation(ctx, s.DB, m.ConversationID)
	if err != nil {
		return false, notFoundOr(err, ErrConversationNotFound)
	}
	if conv.Participant(userID) == nil || m.HiddenFor(userID) {
		return false, ErrMessageNotFound
	}
	saved, err := repo.ToggleSave(ctx, s.DB, messageID, userID, s.Clock.Now())
	return saved, storeErr(err)
}

// refreshPreview recomputes the conversation preview from its newest
// message.
func (s *MessageService) refreshPreview(ctx context.Context, tx *gorm.DB, convID string) error {
	last, err := repo.LatestMessage(ctx, tx, convID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return repo.SetPreview(ctx, tx, convID, previewOf(last))
}

func (s *MessageService) screen(messageID, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if moderation.ScreenImage(ctx, s.Images, url) != moderation.ImageUnsafe {
		return
	}
	if err := repo.SetModerationStatus(ctx, s.DB, messageID, domain.ModerationAutoFlagged, "unsafeImage"); err != nil {
		s.Log.Warn().Err(err).Str("message.id", messageID).Msg("record image verdict")
		return
	}
	observability.ModerationFlags.WithLabelValues(moderation.SeverityHigh.String()).Inc()
	s.Log.Info().Str("message.id", messageID).Msg("image auto-flagged")
}

func previewOf(m *domain.Message) string {
	if m.DeletedForEveryone {
		return "Message deleted"
	}
	switch m.Kind {
	case domain.KindPhoto:
		return "📷 Photo"
	case domain.KindVoice:
		return "🎤 Voice message"
	}
	return clip(m.Body, previewRunes)
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
