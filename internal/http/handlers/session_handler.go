// Game session HTTP handlers.
//
// Live play runs over the websocket; REST carries what needs an upload or
// a one-shot read:
//   - GET  /games                              (enabled families)
//   - GET  /sessions/{id}                      (caller's view)
//   - GET  /sessions/{id}/voice-notes          (discussion clips)
//   - POST /sessions/{id}/voice-notes          (upload a discussion clip)
//   - POST /sessions/{id}/responses/{index}    (async voice answer)
//   - GET  /compatibility/{partnerId}          (pair profile)
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/game"
)

// FamilyInfo describes one playable family.
type FamilyInfo struct {
	ID        string  `json:"id" example:"nhie"`
	Name      string  `json:"name" example:"Never Have I Ever"`
	Rounds    int     `json:"rounds" example:"30"`
	RoundTime float64 `json:"roundTimeSec,omitempty" example:"15"`
	Async     bool    `json:"async"`
}

// ListFamiliesResponse lists the enabled families.
type ListFamiliesResponse struct {
	Families []FamilyInfo `json:"families"`
}

// ListVoiceNotesResponse lists a session's discussion clips.
type ListVoiceNotesResponse struct {
	VoiceNotes []domain.VoiceNote `json:"voiceNotes"`
}

// ResponseRecorded acknowledges an async answer.
type ResponseRecorded struct {
	SessionID     string `json:"sessionId"`
	QuestionIndex int    `json:"questionIndex"`
	URL           string `json:"url"`
	Transcript    string `json:"transcript,omitempty"`
}

// ListFamilies godoc
// @ID          listFamilies
// @Summary     List game families
// @Tags        Games
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListFamiliesResponse
// @Router      /games [get]
func (h *Handlers) ListFamilies(c *gin.Context) {
	ids := h.families.IDs()
	out := make([]FamilyInfo, 0, len(ids))
	for _, id := range ids {
		d := h.families[id]
		out = append(out, FamilyInfo{
			ID:        d.ID,
			Name:      d.Name,
			Rounds:    d.Rounds,
			RoundTime: d.RoundTime.Seconds(),
			Async:     !d.Timed(),
		})
	}
	ok(c, http.StatusOK, ListFamiliesResponse{Families: out})
}

// GetSession godoc
// @ID          getSession
// @Summary     Session snapshot
// @Description The same payload as the <family>:state event, from the caller's perspective. Overdue invitations are expired on read.
// @Tags        Games
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     200  {object}  game.StatePayload
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	st, err := h.gameSvc.Get(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// ListVoiceNotes godoc
// @ID          listVoiceNotes
// @Summary     Discussion clips of a session
// @Tags        Games
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     200  {object}  handlers.ListVoiceNotesResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id}/voice-notes [get]
func (h *Handlers) ListVoiceNotes(c *gin.Context) {
	notes, err := h.gameSvc.VoiceNotes(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListVoiceNotesResponse{VoiceNotes: notes})
}

// UploadVoiceNote godoc
// @ID          uploadVoiceNote
// @Summary     Post a discussion clip
// @Description Stores the clip and broadcasts <family>:voice_note to both players. Allowed once the session has finished.
// @Tags        Games
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       id        path      string  true  "Session ID"
// @Param       audio     formData  file    true  "Audio clip"
// @Param       duration  formData  number  true  "Duration in seconds"
// @Success     201  {object}  domain.VoiceNote
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Session not finished"
// @Router      /sessions/{id}/voice-notes [post]
func (h *Handlers) UploadVoiceNote(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID, uid := c.Param("id"), userID(c)
	if _, err := h.gameSvc.Get(ctx, sessionID, uid); err != nil {
		failErr(c, err)
		return
	}
	u, err := h.readUpload(c, "audio")
	if err != nil {
		failErr(c, err)
		return
	}
	m, _, err := h.media.UploadVoice(ctx, fmt.Sprintf("sessions/%s/notes", sessionID), u.mime, u.data, u.duration)
	if err != nil {
		failErr(c, err)
		return
	}
	vn, err := h.gameSvc.AddVoiceNote(ctx, game.VoiceNoteInput{
		SessionID:   sessionID,
		UserID:      uid,
		URL:         m.URL,
		Key:         m.Key,
		DurationSec: u.duration,
	})
	if err != nil {
		h.media.Release(ctx, m)
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, vn)
}

// SubmitResponse godoc
// @ID          submitResponse
// @Summary     Answer an async question with a voice clip
// @Description A "transcript" form value is used as-is; otherwise the clip is transcribed when speech-to-text is enabled. Idempotency-Key is the client answer id.
// @Tags        Games
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      string  true   "Session ID"
// @Param       index            path      int     true   "Question index"
// @Param       Idempotency-Key  header    string  false  "Client answer id"
// @Param       audio            formData  file    true   "Audio clip"
// @Param       duration         formData  number  true   "Duration in seconds"
// @Param       transcript       formData  string  false  "Client-side transcript"
// @Success     201  {object}  handlers.ResponseRecorded
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Already answered"
// @Failure     410  {object}  handlers.ErrorResponse  "Deadline passed"
// @Router      /sessions/{id}/responses/{index} [post]
func (h *Handlers) SubmitResponse(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID, uid := c.Param("id"), userID(c)
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		fail(c, http.StatusBadRequest, ErrCodeInvalid, "index must be a non-negative integer")
		return
	}
	if _, err := h.gameSvc.Get(ctx, sessionID, uid); err != nil {
		failErr(c, err)
		return
	}
	u, err := h.readUpload(c, "audio")
	if err != nil {
		failErr(c, err)
		return
	}
	m, transcript, err := h.media.UploadVoice(ctx, fmt.Sprintf("sessions/%s/responses", sessionID), u.mime, u.data, u.duration)
	if err != nil {
		failErr(c, err)
		return
	}
	if t := strings.TrimSpace(c.PostForm("transcript")); t != "" {
		transcript = t
	}
	_, err = h.gameSvc.SubmitResponse(ctx, game.ResponseInput{
		SessionID:      sessionID,
		UserID:         uid,
		QuestionIndex:  index,
		URL:            m.URL,
		Transcript:     transcript,
		DurationSec:    u.duration,
		ClientAnswerID: clientID(c),
	})
	if err != nil {
		h.media.Release(ctx, m)
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, ResponseRecorded{
		SessionID:     sessionID,
		QuestionIndex: index,
		URL:           m.URL,
		Transcript:    transcript,
	})
}

// Compatibility godoc
// @ID          compatibility
// @Summary     Compatibility profile with a match
// @Description Folds the pair's finished games into per-family standings, an overall score and, after three families, a summary.
// @Tags        Games
// @Produce     json
// @Security    BearerAuth
// @Param       partnerId  path  string  true  "Partner user ID"
// @Success     200  {object}  compat.Profile
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not matched"
// @Router      /compatibility/{partnerId} [get]
func (h *Handlers) Compatibility(c *gin.Context) {
	p, err := h.compatSvc.Aggregate(c.Request.Context(), userID(c), c.Param("partnerId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
