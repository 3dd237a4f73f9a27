// Message and block HTTP handlers.
//
//   - POST   /messages/{id}/save    (toggle bookmark)
//   - POST   /messages/{id}/report  (manual report)
//   - GET    /blocks                (caller's active blocks)
//   - POST   /blocks                (block a user)
//   - DELETE /blocks/{userId}       (unblock)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// SaveResponse reports the bookmark state after a toggle.
type SaveResponse struct {
	Saved bool `json:"saved" example:"true"`
}

// ReportRequest is the JSON payload for reporting a message.
type ReportRequest struct {
	Reason string `json:"reason" binding:"required,min=1" example:"harassment"`
}

// BlockRequest is the JSON payload for blocking a user. A nil ExpiresAt
// blocks indefinitely.
type BlockRequest struct {
	UserID    string     `json:"userId" binding:"required" example:"u_42"`
	Reason    string     `json:"reason,omitempty" example:"spam"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// ListBlocksResponse lists the caller's active blocks.
type ListBlocksResponse struct {
	Blocks []domain.Block `json:"blocks"`
}

// SaveMessage godoc
// @ID          saveMessage
// @Summary     Toggle a message bookmark
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Message ID"
// @Success     200  {object}  handlers.SaveResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /messages/{id}/save [post]
func (h *Handlers) SaveMessage(c *gin.Context) {
	saved, err := h.msgSvc.ToggleSave(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SaveResponse{Saved: saved})
}

// ReportMessage godoc
// @ID          reportMessage
// @Summary     Report a message
// @Description One report per user and message; reasons are capped at 64 characters.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                  true  "Message ID"
// @Param       body  body  handlers.ReportRequest  true  "Reason"
// @Success     201  {object}  domain.MessageReport
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Own message or not a participant"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Already reported"
// @Router      /messages/{id}/report [post]
func (h *Handlers) ReportMessage(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalid, "reason is required")
		return
	}
	r, err := h.reportSvc.Report(c.Request.Context(), userID(c), c.Param("id"), req.Reason)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListBlocks godoc
// @ID          listBlocks
// @Summary     List active blocks
// @Tags        Blocks
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListBlocksResponse
// @Router      /blocks [get]
func (h *Handlers) ListBlocks(c *gin.Context) {
	blocks, err := h.blockSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListBlocksResponse{Blocks: blocks})
}

// Block godoc
// @ID          blockUser
// @Summary     Block a user
// @Description Blocks chat and games in both directions. A shared conversation is marked blocked.
// @Tags        Blocks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.BlockRequest  true  "Block"
// @Success     201  {object}  domain.Block
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /blocks [post]
func (h *Handlers) Block(c *gin.Context) {
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalid, "userId is required")
		return
	}
	b, err := h.blockSvc.Block(c.Request.Context(), userID(c), req.UserID, req.Reason, req.ExpiresAt)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, b)
}

// Unblock godoc
// @ID          unblockUser
// @Summary     Unblock a user
// @Tags        Blocks
// @Security    BearerAuth
// @Param       userId  path  string  true  "Blocked user ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /blocks/{userId} [delete]
func (h *Handlers) Unblock(c *gin.Context) {
	if err := h.blockSvc.Unblock(c.Request.Context(), userID(c), c.Param("userId")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
