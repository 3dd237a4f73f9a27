package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/compat"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/game"
	"github.com/tbourn/go-dating-realtime/internal/http/middleware"
	"github.com/tbourn/go-dating-realtime/internal/utils"
)

//
// Service contracts (context-aware)
//

// ConversationService manages the caller's conversations.
type ConversationService interface {
	Start(ctx context.Context, callerID, matchID string) (*domain.Conversation, bool, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error)
	SoftDelete(ctx context.Context, convID, userID string) error
	SetMuted(ctx context.Context, convID, userID string, muted bool) error
}

// MessageService covers the REST half of the chat pipeline: history and
// media sends. Text sends arrive over the websocket.
type MessageService interface {
	History(ctx context.Context, convID, userID string, page, pageSize int) ([]domain.Message, int64, error)
	SendPhoto(ctx context.Context, convID, senderID string, data []byte, clientMessageID string) (*domain.Message, error)
	SendVoice(ctx context.Context, convID, senderID, mime string, data []byte, durationSec float64, clientMessageID string) (*domain.Message, error)
	ToggleSave(ctx context.Context, messageID, userID string) (bool, error)
}

// ReportService records manual message reports.
type ReportService interface {
	Report(ctx context.Context, userID, messageID, reason string) (*domain.MessageReport, error)
}

// BlockService is the block registry.
type BlockService interface {
	Block(ctx context.Context, blockerID, blockedID, reason string, expiresAt *time.Time) (*domain.Block, error)
	Unblock(ctx context.Context, blockerID, blockedID string) error
	List(ctx context.Context, blockerID string) ([]domain.Block, error)
}

// GameService is the REST surface of the session engine.
type GameService interface {
	Get(ctx context.Context, sessionID, userID string) (game.StatePayload, error)
	VoiceNotes(ctx context.Context, sessionID, userID string) ([]domain.VoiceNote, error)
	AddVoiceNote(ctx context.Context, in game.VoiceNoteInput) (*domain.VoiceNote, error)
	SubmitResponse(ctx context.Context, in game.ResponseInput) (*domain.GameAnswer, error)
}

// VoiceUploader stores session clips.
type VoiceUploader interface {
	UploadVoice(ctx context.Context, prefix, mime string, data []byte, durationSec float64) (domain.Media, string, error)
	Release(ctx context.Context, m domain.Media)
}

// CompatService builds compatibility profiles.
type CompatService interface {
	Aggregate(ctx context.Context, userID, partnerID string) (*compat.Profile, error)
}

//
// Handler wiring
//

// Deps lists the services behind the handlers.
type Deps struct {
	Conversations ConversationService
	Messages      MessageService
	Reports       ReportService
	Blocks        BlockService
	Games         GameService
	Families      game.Families
	Media         VoiceUploader
	Compat        CompatService
	MaxUpload     int64
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	convSvc   ConversationService
	msgSvc    MessageService
	reportSvc ReportService
	blockSvc  BlockService
	gameSvc   GameService
	families  game.Families
	media     VoiceUploader
	compatSvc CompatService
	maxUpload int64
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	if d.MaxUpload <= 0 {
		d.MaxUpload = 10 << 20
	}
	return &Handlers{
		convSvc:   d.Conversations,
		msgSvc:    d.Messages,
		reportSvc: d.Reports,
		blockSvc:  d.Blocks,
		gameSvc:   d.Games,
		families:  d.Families,
		media:     d.Media,
		compatSvc: d.Compat,
		maxUpload: d.MaxUpload,
	}
}

// userID is the authenticated caller; Authenticate guarantees it is set.
func userID(c *gin.Context) string { return middleware.UserID(c) }

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	return utils.PageBounds(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
}

// clientID is the Idempotency-Key of the request, used as the correlation
// id of uploads.
func clientID(c *gin.Context) string {
	k, _ := middleware.GetIdempotencyKey(c)
	return k
}

// upload is one multipart file read into memory.
type upload struct {
	data     []byte
	mime     string
	duration float64
}

// readUpload reads the multipart file field and the optional "duration"
// form value. Files above max are rejected as invalid.
func (h *Handlers) readUpload(c *gin.Context, field string) (*upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, apperr.Invalidf("multipart field %q is required", field)
	}
	if fh.Size > h.maxUpload {
		return nil, apperr.Invalidf("file exceeds %d bytes", h.maxUpload)
	}
	data, err := readAll(fh, h.maxUpload)
	if err != nil {
		return nil, err
	}
	u := &upload{data: data, mime: fh.Header.Get("Content-Type")}
	if i := strings.IndexByte(u.mime, ';'); i >= 0 {
		u.mime = strings.TrimSpace(u.mime[:i])
	}
	if raw := c.PostForm("duration"); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d <= 0 {
			return nil, apperr.Invalidf("duration must be a positive number of seconds")
		}
		u.duration = d
	}
	return u, nil
}

func readAll(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Invalidf("unreadable upload")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, apperr.Invalidf("unreadable upload")
	}
	if int64(len(data)) > limit {
		return nil, apperr.Invalidf("file exceeds %d bytes", limit)
	}
	return data, nil
}
