// Package services – ReportService
//
// ReportService lets a participant report a message from the other side of
// the conversation. Reports share the message_reports table with the
// automatic reports filed by the moderation gate.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/clock"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/moderation"
	"github.com/tbourn/go-dating-realtime/internal/repo"
)

const maxReasonRunes = 64

// ReportService implements user-filed message reports.
type ReportService struct {
	DB    *gorm.DB
	Clock clock.Clock
}

// Report files a report by userID against messageID.
//
// Semantics and validation:
//   - reason must be non-empty and at most 64 runes; otherwise ErrInvalidReason.
//   - the message must exist and userID must participate in its
//     conversation; otherwise ErrMessageNotFound.
//   - reporting your own message yields ErrOwnMessage.
//   - one manual report per (message, user); a second yields ErrDuplicateReport.
func (s *ReportService) Report(ctx context.Context, userID, messageID, reason string) (*domain.MessageReport, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || utf8.RuneCountInString(reason) > maxReasonRunes {
		return nil, ErrInvalidReason
	}

	var out *domain.MessageReport
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(ctx, tx, messageID)
		if err != nil {
			return notFoundOr(err, ErrMessageNotFound)
		}
		conv, err := repo.GetConversation(ctx, tx, msg.ConversationID)
		if err != nil || conv.Participant(userID) == nil {
			return ErrMessageNotFound
		}
		if msg.SenderID == userID {
			return ErrOwnMessage
		}
		existing, err := repo.ListReports(ctx, tx, messageID)
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.ReporterID == userID && !r.Automatic {
				return ErrDuplicateReport
			}
		}
		out = &domain.MessageReport{
			ID:         uuid.NewString(),
			MessageID:  messageID,
			ReporterID: userID,
			Reason:     reason,
			Severity:   moderation.SeverityMedium.String(),
			CreatedAt:  s.Clock.Now(),
		}
		return repo.CreateReport(ctx, tx, out)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}
