// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Service failures carry an apperr.Kind and surface with that kind as the
// code ("notFound", "blockedByPolicy", ...), the same taxonomy the websocket
// error events use. The constants below cover the transport-only cases.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "already answered"
//	}
package handlers

import "github.com/tbourn/go-dating-realtime/internal/apperr"

const (
	ErrCodeInvalid          = string(apperr.Invalid)
	ErrCodeUnauthenticated  = string(apperr.Unauthenticated)
	ErrCodeNotFound         = string(apperr.NotFound)
	ErrCodeRateLimited      = string(apperr.RateLimited)
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
