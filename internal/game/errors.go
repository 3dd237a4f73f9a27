package game

import "github.com/tbourn/go-dating-realtime/internal/apperr"

var (
	ErrSessionNotFound   = apperr.NotFoundf("session not found")
	ErrMatchNotFound     = apperr.NotFoundf("match not found")
	ErrNotPlayer         = apperr.Forbiddenf("not a player in this session")
	ErrNotInvitee        = apperr.Forbiddenf("only the invited player can respond")
	ErrNotMutual         = apperr.Forbiddenf("match is not mutual")
	ErrActiveSession     = apperr.Conflictf("a session of this game is already active for this match")
	ErrNotPlaying        = apperr.Conflictf("session is not in play")
	ErrRoundClosed       = apperr.Conflictf("round has advanced")
	ErrAlreadyAnswered   = apperr.Conflictf("already answered")
	ErrNotFinished       = apperr.Conflictf("session has not finished")
	ErrAlreadyFinished   = apperr.Conflictf("session has already finished")
	ErrInvitationExpired = apperr.Expiredf("invitation expired")
	ErrDeadlinePassed    = apperr.Expiredf("session deadline passed")
	ErrBadIndex          = apperr.Invalidf("question index out of range")
	ErrMissingClip       = apperr.Invalidf("voice clip url is required")
	ErrWrongAnswerMode   = apperr.Invalidf("this game does not take that kind of answer")
	ErrWrongFamily       = apperr.Invalidf("session belongs to another game")
)
