// Package services – ConversationService
//
// ConversationService owns the lifecycle of conversations: starting one for
// a mutual match, listing with pagination, per-participant soft delete and
// mute. Message traffic lives in MessageService.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/clock"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/lockmap"
	"github.com/tbourn/go-dating-realtime/internal/repo"
	"github.com/tbourn/go-dating-realtime/internal/utils"
)

// ConversationService provides conversation-level operations.
type ConversationService struct {
	DB     *gorm.DB
	Clock  clock.Clock
	Blocks *BlockService
	Locks  *lockmap.Map
}

// Start returns the conversation of matchID, creating it on first call.
// The caller must be in the match, the match must be mutual and the pair
// must not be blocked. created reports whether a new row was inserted.
func (s *ConversationService) Start(ctx context.Context, callerID, matchID string) (conv *domain.Conversation, created bool, err error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Start", trace.WithAttributes(
		attribute.String("user.id", callerID),
		attribute.String("match.id", matchID),
	))
	defer span.End()

	m, err := repo.GetMatch(ctx, s.DB, matchID)
	if err != nil {
		return nil, false, notFoundOr(err, ErrMatchNotFound)
	}
	if !m.Has(callerID) {
		return nil, false, apperr.Forbiddenf("not part of this match")
	}
	if err := s.Blocks.Check(ctx, m.UserA, m.UserB); err != nil {
		return nil, false, err
	}
	if m.Status != domain.MatchMutual {
		return nil, false, ErrNotMutual
	}

	unlock := s.Locks.Lock("match:" + matchID)
	defer unlock()

	existing, err := repo.GetConversationByMatch(ctx, s.DB, matchID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, apperr.TransientErr(err)
	}
	conv, err = repo.CreateConversation(ctx, s.DB, matchID, m.UserA, m.UserB, s.Clock.Now())
	if errors.Is(err, repo.ErrDuplicate) {
		conv, err = repo.GetConversationByMatch(ctx, s.DB, matchID)
		return conv, false, storeErr(err)
	}
	if err != nil {
		return nil, false, apperr.TransientErr(err)
	}
	return conv, true, nil
}

// Get returns a conversation the caller participates in.
func (s *ConversationService) Get(ctx context.Context, convID, userID string) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, s.DB, convID)
	if err != nil {
		return nil, notFoundOr(err, ErrConversationNotFound)
	}
	if c.Participant(userID) == nil {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// ListPage returns a page of the user's visible conversations, most
// recently active first. Invalid page/pageSize fall back to defaults.
func (s *ConversationService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListPage", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, apperr.TransientErr(err)
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}
	items, err := repo.ListConversationsPage(ctx, s.DB, userID, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, 0, apperr.TransientErr(err)
	}
	return items, total, nil
}

// Stats returns the size of the user's conversation list and the time of
// its latest change, for conditional GETs.
func (s *ConversationService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	count, latest, err := repo.ConversationStats(ctx, s.DB, userID)
	if err != nil {
		return 0, nil, apperr.TransientErr(err)
	}
	return count, latest, nil
}

// SoftDelete hides the conversation for userID. Once both participants
// have deleted it the conversation status becomes deleted.
func (s *ConversationService) SoftDelete(ctx context.Context, convID, userID string) error {
	unlock := s.Locks.Lock("conv:" + convID)
	defer unlock()

	c, err := s.Get(ctx, convID, userID)
	if err != nil {
		return err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SetParticipantFlag(ctx, tx, convID, userID, "has_deleted", true); err != nil {
			return err
		}
		if other := c.OtherParticipant(userID); other != nil && other.HasDeleted {
			return repo.SetConversationStatus(ctx, tx, convID, domain.ConversationDeleted)
		}
		return nil
	})
	return storeErr(err)
}

// SetMuted toggles push intents for userID in the conversation.
func (s *ConversationService) SetMuted(ctx context.Context, convID, userID string, muted bool) error {
	if _, err := s.Get(ctx, convID, userID); err != nil {
		return err
	}
	return storeErr(repo.SetParticipantFlag(ctx, s.DB, convID, userID, "is_muted", muted))
}
