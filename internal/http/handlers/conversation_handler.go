// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversations and their messages:
//   - POST   /conversations                (start from a mutual match)
//   - GET    /conversations                (list, paginated)
//   - DELETE /conversations/{id}           (hide for the caller)
//   - PUT    /conversations/{id}/mute      (mute or unmute)
//   - GET    /conversations/{id}/messages  (history, paginated)
//   - POST   /conversations/{id}/photos    (photo message)
//   - POST   /conversations/{id}/voice     (voice message)
//
// Text messages, edits, reactions and receipts travel over the websocket.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// StartConversationRequest is the JSON payload for starting a conversation.
type StartConversationRequest struct {
	MatchID string `json:"matchId" binding:"required" example:"6c1f5c6e-8a36-4f59-9d0e-1c1b9f0e2f11"`
}

// MuteRequest toggles notifications for a conversation.
type MuteRequest struct {
	Muted bool `json:"muted" example:"true"`
}

// ConversationStater is implemented by conversation services that can
// summarize a user's list cheaply; ListConversations then answers
// If-None-Match with 304.
type ConversationStater interface {
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// ListConversationsResponse wraps a page of conversations.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// ListMessagesResponse wraps a page of messages, oldest first.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// MessageResponse wraps one message.
type MessageResponse struct {
	Message *domain.Message `json:"message"`
}

// StartConversation godoc
// @ID          startConversation
// @Summary     Start a conversation
// @Description Opens the conversation of a mutual match. Returns the existing one (200) when already started.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.StartConversationRequest  true  "Match"
// @Success     201  {object}  domain.Conversation
// @Success     200  {object}  domain.Conversation
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not mutual or blocked"
// @Failure     404  {object}  handlers.ErrorResponse  "Match not found"
// @Router      /conversations [post]
func (h *Handlers) StartConversation(c *gin.Context) {
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalid, "matchId is required")
		return
	}
	conv, created, err := h.convSvc.Start(c.Request.Context(), userID(c), req.MatchID)
	if err != nil {
		failErr(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, conv)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Returns the caller's visible conversations, most recent activity first. Supports a weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if the ETag matches"
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListConversationsResponse
// @Header      200  {string}  ETag  "Weak ETag of the list"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if st, isStater := h.convSvc.(ConversationStater); isStater {
		if count, latest, err := st.Stats(c.Request.Context(), userID(c)); err == nil {
			var ts int64
			if latest != nil {
				ts = latest.UnixNano()
			}
			etag := fmt.Sprintf(`W/"conversations:%s:%d:%d:%d:%d"`, userID(c), page, pageSize, count, ts)
			c.Header("ETag", etag)
			c.Header("Cache-Control", "private, no-cache")
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.convSvc.ListPage(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{
		Conversations: items,
		Pagination:    newPagination(page, pageSize, total),
	})
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Hide a conversation
// @Description Soft-deletes the conversation for the caller only.
// @Tags        Conversations
// @Security    BearerAuth
// @Param       id  path  string  true  "Conversation ID"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	if err := h.convSvc.SoftDelete(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// MuteConversation godoc
// @ID          muteConversation
// @Summary     Mute or unmute a conversation
// @Tags        Conversations
// @Accept      json
// @Security    BearerAuth
// @Param       id    path  string                   true  "Conversation ID"
// @Param       body  body  handlers.MuteRequest     true  "Mute flag"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/mute [put]
func (h *Handlers) MuteConversation(c *gin.Context) {
	var req MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalid, "invalid JSON body")
		return
	}
	if err := h.convSvc.SetMuted(c.Request.Context(), c.Param("id"), userID(c), req.Muted); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Message history (paginated)
// @Description Pages count back from the newest message; each page is ordered oldest first. Messages deleted for the caller are omitted.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "Conversation ID"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.msgSvc.History(c.Request.Context(), c.Param("id"), userID(c), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// SendPhoto godoc
// @ID          sendPhoto
// @Summary     Send a photo message
// @Description Uploads, re-encodes and thumbnails the image, then delivers it to the room. Idempotency-Key is the client message id.
// @Tags        Messages
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      string  true   "Conversation ID"
// @Param       Idempotency-Key  header    string  false  "Client message id"
// @Param       photo            formData  file    true   "JPEG, PNG or WebP"
// @Success     201  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Media store unavailable"
// @Router      /conversations/{id}/photos [post]
func (h *Handlers) SendPhoto(c *gin.Context) {
	u, err := h.readUpload(c, "photo")
	if err != nil {
		failErr(c, err)
		return
	}
	m, err := h.msgSvc.SendPhoto(c.Request.Context(), c.Param("id"), userID(c), u.data, clientID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, MessageResponse{Message: m})
}

// SendVoice godoc
// @ID          sendVoice
// @Summary     Send a voice message
// @Description Stores the clip and delivers it to the room. Idempotency-Key is the client message id.
// @Tags        Messages
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      string  true   "Conversation ID"
// @Param       Idempotency-Key  header    string  false  "Client message id"
// @Param       audio            formData  file    true   "Audio clip"
// @Param       duration         formData  number  true   "Duration in seconds"
// @Success     201  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Media store unavailable"
// @Router      /conversations/{id}/voice [post]
func (h *Handlers) SendVoice(c *gin.Context) {
	u, err := h.readUpload(c, "audio")
	if err != nil {
		failErr(c, err)
		return
	}
	m, err := h.msgSvc.SendVoice(c.Request.Context(), c.Param("id"), userID(c), u.mime, u.data, u.duration, clientID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, MessageResponse{Message: m})
}
