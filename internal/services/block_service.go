// Package services – BlockService
//
// BlockService is the block registry consulted by every chat send, game
// invite and conversation start. Blocks are directed edges with an optional
// expiry; the predicate is symmetric.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/clock"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/repo"
)

// BlockService implements block/unblock and the blocked(a,b) predicate.
type BlockService struct {
	DB    *gorm.DB
	Clock clock.Clock
}

// IsEitherBlocked reports whether an active block exists from a to b or
// from b to a.
func (s *BlockService) IsEitherBlocked(ctx context.Context, a, b string) (bool, error) {
	return repo.ActiveBlockExists(ctx, s.DB, a, b, s.Clock.Now())
}

// Check returns apperr.Blocked when a and b may not interact. Store
// failures are transient.
func (s *BlockService) Check(ctx context.Context, a, b string) error {
	blocked, err := s.IsEitherBlocked(ctx, a, b)
	if err != nil {
		return apperr.TransientErr(err)
	}
	if blocked {
		return apperr.Blocked()
	}
	return nil
}

// Block creates or refreshes the blocker→blocked edge. A shared
// conversation flips to blocked and the blocker's participant row records
// the block.
func (s *BlockService) Block(ctx context.Context, blockerID, blockedID, reason string, expiresAt *time.Time) (*domain.Block, error) {
	tr := otel.Tracer("services/BlockService")
	ctx, span := tr.Start(ctx, "Block", trace.WithAttributes(
		attribute.String("user.id", blockerID),
		attribute.String("blocked.id", blockedID),
	))
	defer span.End()

	blockedID = strings.TrimSpace(blockedID)
	if blockedID == "" {
		return nil, apperr.Invalidf("user id is required")
	}
	if blockerID == blockedID {
		return nil, ErrSelfBlock
	}
	now := s.Clock.Now()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, apperr.Invalidf("expiry must be in the future")
	}

	var out *domain.Block
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := repo.UpsertBlock(ctx, tx, blockerID, blockedID, strings.TrimSpace(reason), expiresAt, now)
		if err != nil {
			return err
		}
		out = b
		conv, err := repo.FindConversationBetween(ctx, tx, blockerID, blockedID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := repo.SetParticipantFlag(ctx, tx, conv.ID, blockerID, "is_blocked", true); err != nil {
			return err
		}
		if conv.Status == domain.ConversationActive {
			return repo.SetConversationStatus(ctx, tx, conv.ID, domain.ConversationBlocked)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.TransientErr(err)
	}
	return out, nil
}

// Unblock removes the blocker→blocked edge. The shared conversation goes
// back to active when no block remains in either direction.
func (s *BlockService) Unblock(ctx context.Context, blockerID, blockedID string) error {
	tr := otel.Tracer("services/BlockService")
	ctx, span := tr.Start(ctx, "Unblock", trace.WithAttributes(
		attribute.String("user.id", blockerID),
		attribute.String("blocked.id", blockedID),
	))
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, err := repo.DeleteBlock(ctx, tx, blockerID, blockedID)
		if err != nil {
			return err
		}
		if !removed {
			return apperr.NotFoundf("block not found")
		}
		conv, err := repo.FindConversationBetween(ctx, tx, blockerID, blockedID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := repo.SetParticipantFlag(ctx, tx, conv.ID, blockerID, "is_blocked", false); err != nil {
			return err
		}
		still, err := repo.ActiveBlockExists(ctx, tx, blockerID, blockedID, s.Clock.Now())
		if err != nil {
			return err
		}
		if !still && conv.Status == domain.ConversationBlocked {
			return repo.SetConversationStatus(ctx, tx, conv.ID, domain.ConversationActive)
		}
		return nil
	})
	return storeErr(err)
}

// List returns the active blocks issued by blockerID.
func (s *BlockService) List(ctx context.Context, blockerID string) ([]domain.Block, error) {
	out, err := repo.ListBlocks(ctx, s.DB, blockerID, s.Clock.Now())
	if err != nil {
		return nil, apperr.TransientErr(err)
	}
	return out, nil
}

// Reopen moves a blocked conversation back to active once no block between
// its participants is active anymore, clearing the participants' block
// flags. Expired blocks have no sweeper, so senders reconcile lazily.
// It reports whether the conversation is active afterwards.
func (s *BlockService) Reopen(ctx context.Context, conv *domain.Conversation) (bool, error) {
	if conv.Status != domain.ConversationBlocked {
		return conv.Status == domain.ConversationActive, nil
	}
	if len(conv.Participants) != 2 {
		return false, nil
	}
	a, b := conv.Participants[0].UserID, conv.Participants[1].UserID
	reopened := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		still, err := repo.ActiveBlockExists(ctx, tx, a, b, s.Clock.Now())
		if err != nil || still {
			return err
		}
		for _, uid := range []string{a, b} {
			if err := repo.SetParticipantFlag(ctx, tx, conv.ID, uid, "is_blocked", false); err != nil {
				return err
			}
		}
		if err := repo.SetConversationStatus(ctx, tx, conv.ID, domain.ConversationActive); err != nil {
			return err
		}
		reopened = true
		return nil
	})
	if err != nil {
		return false, apperr.TransientErr(err)
	}
	if reopened {
		conv.Status = domain.ConversationActive
		for i := range conv.Participants {
			conv.Participants[i].IsBlocked = false
		}
	}
	return reopened, nil
}
