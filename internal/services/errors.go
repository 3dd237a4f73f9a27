// Package services holds the chat side of the realtime backend: the block
// registry, conversations, the message delivery pipeline, typing
// indicators, reports and push intents.
//
// This file centralizes the service-level errors. Each one is an
// *apperr.Error so transports can surface its Kind as the wire code;
// errors.Is matches by Kind.
package services

import (
	"errors"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/repo"
)

var (
	// ErrConversationNotFound indicates the conversation does not exist.
	ErrConversationNotFound = apperr.E(apperr.NotFound, "conversation not found")

	// ErrMessageNotFound indicates the message does not exist or is not
	// visible to the caller.
	ErrMessageNotFound = apperr.E(apperr.NotFound, "message not found")

	// ErrMatchNotFound indicates the match does not exist.
	ErrMatchNotFound = apperr.E(apperr.NotFound, "match not found")

	// ErrNotParticipant is returned when the caller is not one of the two
	// participants.
	ErrNotParticipant = apperr.E(apperr.Forbidden, "not a participant of this conversation")

	// ErrNotMutual is returned when starting a conversation on a match that
	// is not mutual.
	ErrNotMutual = apperr.E(apperr.Forbidden, "match is not mutual")

	// ErrConversationInactive is returned for sends into a conversation
	// that is deleted or archived.
	ErrConversationInactive = apperr.E(apperr.Forbidden, "conversation is not active")

	// ErrNotSender is returned when editing or deleting someone else's
	// message.
	ErrNotSender = apperr.E(apperr.Forbidden, "only the sender can change this message")

	ErrEmptyText   = apperr.E(apperr.Invalid, "text is empty")
	ErrTextTooLong = apperr.E(apperr.Invalid, "text too long")

	// ErrUnknownEmoji is returned for reactions outside the fixed set.
	ErrUnknownEmoji = apperr.E(apperr.Invalid, "emoji not allowed")

	// ErrNotEditable is returned when editing a non-text message.
	ErrNotEditable = apperr.E(apperr.Invalid, "only text messages can be edited")

	// ErrWindowClosed is returned when the edit/delete window has passed.
	ErrWindowClosed = apperr.E(apperr.Expired, "edit window has closed")

	// ErrMessageDeleted is returned for operations on a deleted message.
	ErrMessageDeleted = apperr.E(apperr.Conflict, "message was deleted")

	// ErrSelfBlock is returned when a user tries to block themselves.
	ErrSelfBlock = apperr.E(apperr.Invalid, "cannot block yourself")

	// ErrOwnMessage is returned when reporting your own message.
	ErrOwnMessage = apperr.E(apperr.Forbidden, "cannot report your own message")

	// ErrDuplicateReport is returned when the same user reports a message
	// twice.
	ErrDuplicateReport = apperr.E(apperr.Conflict, "message already reported")

	ErrInvalidReason = apperr.E(apperr.Invalid, "report reason is required")
)

// notFoundOr maps a repository lookup error: missing rows become nf and
// anything else is transient.
func notFoundOr(err error, nf *apperr.Error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return nf
	}
	return apperr.TransientErr(err)
}

// storeErr passes *apperr.Error values through and marks everything else
// transient.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.TransientErr(err)
}
