package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/compat"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/game"
	"github.com/tbourn/go-dating-realtime/internal/http/middleware"
)

// ---- fakes ----

type fakeConvs struct {
	created  bool
	lastPage [2]int
	muted    *bool
}

func (f *fakeConvs) Start(_ context.Context, caller, matchID string) (*domain.Conversation, bool, error) {
	if matchID == "m-missing" {
		return nil, false, apperr.NotFoundf("match not found")
	}
	return &domain.Conversation{ID: "c1", MatchID: matchID}, f.created, nil
}

func (f *fakeConvs) ListPage(_ context.Context, _ string, page, size int) ([]domain.Conversation, int64, error) {
	f.lastPage = [2]int{page, size}
	return []domain.Conversation{{ID: "c1"}}, 41, nil
}

func (f *fakeConvs) SoftDelete(_ context.Context, convID, _ string) error {
	if convID != "c1" {
		return apperr.NotFoundf("conversation not found")
	}
	return nil
}

func (f *fakeConvs) SetMuted(_ context.Context, _, _ string, muted bool) error {
	f.muted = &muted
	return nil
}

type fakeMsgs struct {
	photo     []byte
	clientID  string
	voiceMime string
	voiceDur  float64
}

func (f *fakeMsgs) History(_ context.Context, convID, userID string, page, size int) ([]domain.Message, int64, error) {
	if userID == "mallory" {
		return nil, 0, apperr.Forbiddenf("not a participant of this conversation")
	}
	return []domain.Message{{ID: "m1", ConversationID: convID}}, 1, nil
}

func (f *fakeMsgs) SendPhoto(_ context.Context, convID, sender string, data []byte, cid string) (*domain.Message, error) {
	f.photo, f.clientID = data, cid
	return &domain.Message{ID: "m2", ConversationID: convID, SenderID: sender, ClientMessageID: &cid}, nil
}

func (f *fakeMsgs) SendVoice(_ context.Context, convID, sender, mime string, data []byte, dur float64, cid string) (*domain.Message, error) {
	f.voiceMime, f.voiceDur, f.clientID = mime, dur, cid
	return &domain.Message{ID: "m3", ConversationID: convID, SenderID: sender}, nil
}

func (f *fakeMsgs) ToggleSave(_ context.Context, msgID, _ string) (bool, error) {
	return msgID == "m1", nil
}

type fakeReports struct{ reason string }

func (f *fakeReports) Report(_ context.Context, uid, msgID, reason string) (*domain.MessageReport, error) {
	if msgID == "own" {
		return nil, apperr.Forbiddenf("cannot report your own message")
	}
	f.reason = reason
	return &domain.MessageReport{ID: "r1", MessageID: msgID, ReporterID: uid, Reason: reason}, nil
}

type fakeBlocks struct{ expires *time.Time }

func (f *fakeBlocks) Block(_ context.Context, blocker, blocked, reason string, exp *time.Time) (*domain.Block, error) {
	f.expires = exp
	return &domain.Block{ID: "b1", BlockerID: blocker, BlockedID: blocked, Reason: reason, ExpiresAt: exp}, nil
}

func (f *fakeBlocks) Unblock(_ context.Context, _, blocked string) error {
	if blocked != "bob" {
		return apperr.NotFoundf("block not found")
	}
	return nil
}

func (f *fakeBlocks) List(context.Context, string) ([]domain.Block, error) {
	return []domain.Block{{ID: "b1", BlockedID: "bob"}}, nil
}

type fakeGames struct {
	getErr      error
	submitErr   error
	response    game.ResponseInput
	voiceNote   game.VoiceNoteInput
	voiceNoteOK bool
}

func (f *fakeGames) Get(_ context.Context, id, _ string) (game.StatePayload, error) {
	if f.getErr != nil {
		return game.StatePayload{}, f.getErr
	}
	return game.StatePayload{SessionID: id, Family: "scenario", Status: "playing"}, nil
}

func (f *fakeGames) VoiceNotes(_ context.Context, id, _ string) ([]domain.VoiceNote, error) {
	return []domain.VoiceNote{{ID: "v1", SessionID: id}}, nil
}

func (f *fakeGames) AddVoiceNote(_ context.Context, in game.VoiceNoteInput) (*domain.VoiceNote, error) {
	f.voiceNote = in
	if !f.voiceNoteOK {
		return nil, apperr.Conflictf("session not finished")
	}
	return &domain.VoiceNote{ID: "v2", SessionID: in.SessionID, URL: in.URL}, nil
}

func (f *fakeGames) SubmitResponse(_ context.Context, in game.ResponseInput) (*domain.GameAnswer, error) {
	f.response = in
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &domain.GameAnswer{}, nil
}

type fakeMedia struct {
	prefix   string
	released []domain.Media
}

func (f *fakeMedia) UploadVoice(_ context.Context, prefix, mime string, _ []byte, _ float64) (domain.Media, string, error) {
	f.prefix = prefix
	return domain.Media{URL: "/media/" + prefix + "/a.webm", Key: prefix + "/a.webm", Mime: mime}, "server transcript", nil
}

func (f *fakeMedia) Release(_ context.Context, m domain.Media) { f.released = append(f.released, m) }

type fakeCompat struct{}

func (fakeCompat) Aggregate(_ context.Context, uid, partner string) (*compat.Profile, error) {
	if partner == "stranger" {
		return nil, apperr.Forbiddenf("not matched")
	}
	return &compat.Profile{UserID: uid, PartnerID: partner}, nil
}

// ---- harness ----

type env struct {
	r      *gin.Engine
	convs  *fakeConvs
	msgs   *fakeMsgs
	rep    *fakeReports
	blocks *fakeBlocks
	games  *fakeGames
	media  *fakeMedia
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{
		convs: &fakeConvs{}, msgs: &fakeMsgs{}, rep: &fakeReports{},
		blocks: &fakeBlocks{}, games: &fakeGames{}, media: &fakeMedia{},
	}
	fams := game.DefaultFamilies()
	fams["wyr"].Disabled = true
	h := New(Deps{
		Conversations: e.convs,
		Messages:      e.msgs,
		Reports:       e.rep,
		Blocks:        e.blocks,
		Games:         e.games,
		Families:      fams,
		Media:         e.media,
		Compat:        fakeCompat{},
		MaxUpload:     64,
	})

	r := gin.New()
	auth := middleware.AuthenticatorFunc(func(_ context.Context, tok string) (string, error) { return tok, nil })
	api := r.Group("", middleware.Authenticate(auth), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	api.POST("/conversations", h.StartConversation)
	api.GET("/conversations", h.ListConversations)
	api.DELETE("/conversations/:id", h.DeleteConversation)
	api.PUT("/conversations/:id/mute", h.MuteConversation)
	api.GET("/conversations/:id/messages", h.ListMessages)
	api.POST("/conversations/:id/photos", h.SendPhoto)
	api.POST("/conversations/:id/voice", h.SendVoice)
	api.POST("/messages/:id/save", h.SaveMessage)
	api.POST("/messages/:id/report", h.ReportMessage)
	api.GET("/blocks", h.ListBlocks)
	api.POST("/blocks", h.Block)
	api.DELETE("/blocks/:userId", h.Unblock)
	api.GET("/games", h.ListFamilies)
	api.GET("/sessions/:id", h.GetSession)
	api.GET("/sessions/:id/voice-notes", h.ListVoiceNotes)
	api.POST("/sessions/:id/voice-notes", h.UploadVoiceNote)
	api.POST("/sessions/:id/responses/:index", h.SubmitResponse)
	api.GET("/compatibility/:partnerId", h.Compatibility)
	e.r = r
	return e
}

func (e *env) do(t *testing.T, method, path, user string, body []byte, contentType string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) json(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, user, []byte(body), "application/json")
}

type part struct {
	field, filename, mime string
	data                  []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...part) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field: %v", err)
		}
	}
	for _, p := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		hdr.Set("Content-Type", p.mime)
		w, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("part: %v", err)
		}
		_, _ = w.Write(p.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return er
}

// ---- tests ----

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/conversations", "", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decodeError(t, w); er.Code != ErrCodeUnauthenticated {
		t.Fatalf("code=%q", er.Code)
	}
}

func TestStartConversation(t *testing.T) {
	e := newEnv(t)

	e.convs.created = true
	if w := e.json(t, http.MethodPost, "/conversations", "alice", `{"matchId":"m1"}`); w.Code != http.StatusCreated {
		t.Fatalf("new: status=%d", w.Code)
	}
	e.convs.created = false
	if w := e.json(t, http.MethodPost, "/conversations", "alice", `{"matchId":"m1"}`); w.Code != http.StatusOK {
		t.Fatalf("existing: status=%d", w.Code)
	}
	w := e.json(t, http.MethodPost, "/conversations", "alice", `{}`)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Code != "invalid" {
		t.Fatalf("missing matchId: %d %s", w.Code, w.Body.String())
	}
	w = e.json(t, http.MethodPost, "/conversations", "alice", `{"matchId":"m-missing"}`)
	if w.Code != http.StatusNotFound || decodeError(t, w).Code != "notFound" {
		t.Fatalf("unknown match: %d %s", w.Code, w.Body.String())
	}
}

func TestListConversations_Pagination(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/conversations?page=2&page_size=500", "alice", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if e.convs.lastPage != [2]int{2, 100} {
		t.Fatalf("clamped page=%v", e.convs.lastPage)
	}
	var resp ListConversationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	p := resp.Pagination
	if p.Total != 41 || p.TotalPages != 1 || p.HasNext {
		t.Fatalf("pagination=%+v", p)
	}

	e.do(t, http.MethodGet, "/conversations?page=-3&page_size=x", "alice", nil, "")
	if e.convs.lastPage != [2]int{1, 20} {
		t.Fatalf("defaults=%v", e.convs.lastPage)
	}
}

func TestConversationMutations(t *testing.T) {
	e := newEnv(t)
	if w := e.do(t, http.MethodDelete, "/conversations/c1", "alice", nil, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/conversations/zz", "alice", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("delete unknown: %d", w.Code)
	}
	if w := e.json(t, http.MethodPut, "/conversations/c1/mute", "alice", `{"muted":true}`); w.Code != http.StatusNoContent {
		t.Fatalf("mute: %d", w.Code)
	}
	if e.convs.muted == nil || !*e.convs.muted {
		t.Fatalf("mute flag not passed")
	}
}

func TestListMessages_Forbidden(t *testing.T) {
	e := newEnv(t)
	if w := e.do(t, http.MethodGet, "/conversations/c1/messages", "alice", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("participant: %d", w.Code)
	}
	w := e.do(t, http.MethodGet, "/conversations/c1/messages", "mallory", nil, "")
	if w.Code != http.StatusForbidden || decodeError(t, w).Code != "forbidden" {
		t.Fatalf("outsider: %d %s", w.Code, w.Body.String())
	}
}

func TestSendPhoto(t *testing.T) {
	e := newEnv(t)
	body, ct := multipartBody(t, nil, part{"photo", "p.jpg", "image/jpeg", []byte("jpeg")})
	w := e.do(t, http.MethodPost, "/conversations/c1/photos", "alice", body, ct, middleware.HeaderIdempotencyKey, "cid-7")
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d %s", w.Code, w.Body.String())
	}
	if string(e.msgs.photo) != "jpeg" || e.msgs.clientID != "cid-7" {
		t.Fatalf("photo=%q cid=%q", e.msgs.photo, e.msgs.clientID)
	}

	body, ct = multipartBody(t, nil, part{"file", "p.jpg", "image/jpeg", []byte("jpeg")})
	if w := e.do(t, http.MethodPost, "/conversations/c1/photos", "alice", body, ct); w.Code != http.StatusBadRequest {
		t.Fatalf("wrong field: %d", w.Code)
	}

	body, ct = multipartBody(t, nil, part{"photo", "big.jpg", "image/jpeg", bytes.Repeat([]byte("x"), 65)})
	w = e.do(t, http.MethodPost, "/conversations/c1/photos", "alice", body, ct)
	if w.Code != http.StatusBadRequest || !strings.Contains(decodeError(t, w).Message, "exceeds") {
		t.Fatalf("oversize: %d %s", w.Code, w.Body.String())
	}
}

func TestSendVoice(t *testing.T) {
	e := newEnv(t)
	body, ct := multipartBody(t, map[string]string{"duration": "4.5"}, part{"audio", "v.webm", "audio/webm;codecs=opus", []byte("ogg")})
	w := e.do(t, http.MethodPost, "/conversations/c1/voice", "alice", body, ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d %s", w.Code, w.Body.String())
	}
	if e.msgs.voiceMime != "audio/webm" || e.msgs.voiceDur != 4.5 {
		t.Fatalf("mime=%q dur=%v", e.msgs.voiceMime, e.msgs.voiceDur)
	}

	body, ct = multipartBody(t, map[string]string{"duration": "-1"}, part{"audio", "v.webm", "audio/webm", []byte("ogg")})
	if w := e.do(t, http.MethodPost, "/conversations/c1/voice", "alice", body, ct); w.Code != http.StatusBadRequest {
		t.Fatalf("negative duration: %d", w.Code)
	}
}

func TestMessageActions(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/messages/m1/save", "alice", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"saved":true`) {
		t.Fatalf("save: %d %s", w.Code, w.Body.String())
	}
	if w := e.json(t, http.MethodPost, "/messages/m1/report", "alice", `{"reason":"spam"}`); w.Code != http.StatusCreated || e.rep.reason != "spam" {
		t.Fatalf("report: %d reason=%q", w.Code, e.rep.reason)
	}
	if w := e.json(t, http.MethodPost, "/messages/m1/report", "alice", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("report without reason: %d", w.Code)
	}
	if w := e.json(t, http.MethodPost, "/messages/own/report", "alice", `{"reason":"x"}`); w.Code != http.StatusForbidden {
		t.Fatalf("own report: %d", w.Code)
	}
}

func TestBlocks(t *testing.T) {
	e := newEnv(t)

	w := e.json(t, http.MethodPost, "/blocks", "alice", `{"userId":"bob","reason":"spam","expiresAt":"2030-01-02T03:04:05Z"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("block: %d %s", w.Code, w.Body.String())
	}
	if e.blocks.expires == nil || e.blocks.expires.Year() != 2030 {
		t.Fatalf("expiresAt not parsed: %v", e.blocks.expires)
	}
	if w := e.json(t, http.MethodPost, "/blocks", "alice", `{"reason":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("block without user: %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/blocks", "alice", nil, ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"blocks"`) {
		t.Fatalf("list: %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/blocks/bob", "alice", nil, ""); w.Code != http.StatusNoContent {
		t.Fatalf("unblock: %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/blocks/carol", "alice", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("unblock unknown: %d", w.Code)
	}
}

func TestListFamilies(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/games", "alice", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ListFamiliesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	var ids []string
	async := map[string]bool{}
	for _, f := range resp.Families {
		ids = append(ids, f.ID)
		async[f.ID] = f.Async
	}
	if strings.Join(ids, ",") != "nhie,scenario,thisorthat" {
		t.Fatalf("ids=%v", ids)
	}
	if !async["scenario"] || async["nhie"] {
		t.Fatalf("async flags=%v", async)
	}
}

func TestSessionReads(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/sessions/s1", "alice", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"sessionId":"s1"`) {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodGet, "/sessions/s1/voice-notes", "alice", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("voice notes: %d", w.Code)
	}

	e.games.getErr = apperr.Expiredf("invitation expired")
	if w := e.do(t, http.MethodGet, "/sessions/s1", "alice", nil, ""); w.Code != http.StatusGone {
		t.Fatalf("expired: %d", w.Code)
	}
}

func TestUploadVoiceNote(t *testing.T) {
	e := newEnv(t)
	body, ct := multipartBody(t, map[string]string{"duration": "12"}, part{"audio", "n.webm", "audio/webm", []byte("ogg")})

	e.games.voiceNoteOK = true
	w := e.do(t, http.MethodPost, "/sessions/s1/voice-notes", "alice", body, ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d %s", w.Code, w.Body.String())
	}
	if e.media.prefix != "sessions/s1/notes" || e.games.voiceNote.Key != "sessions/s1/notes/a.webm" || e.games.voiceNote.DurationSec != 12 {
		t.Fatalf("upload wiring: prefix=%q in=%+v", e.media.prefix, e.games.voiceNote)
	}

	e.games.voiceNoteOK = false
	w = e.do(t, http.MethodPost, "/sessions/s1/voice-notes", "alice", body, ct)
	if w.Code != http.StatusConflict || len(e.media.released) != 1 {
		t.Fatalf("rejected note: %d released=%d", w.Code, len(e.media.released))
	}

	e = newEnv(t)
	e.games.getErr = apperr.Forbiddenf("not a player")
	if w := e.do(t, http.MethodPost, "/sessions/s1/voice-notes", "mallory", body, ct); w.Code != http.StatusForbidden || e.media.prefix != "" {
		t.Fatalf("outsider upload: %d prefix=%q", w.Code, e.media.prefix)
	}
}

func TestSubmitResponse(t *testing.T) {
	e := newEnv(t)

	body, ct := multipartBody(t, map[string]string{"duration": "20", "transcript": " I'd pick the beach "}, part{"audio", "r.webm", "audio/webm", []byte("ogg")})
	w := e.do(t, http.MethodPost, "/sessions/s1/responses/3", "alice", body, ct, middleware.HeaderIdempotencyKey, "ans-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d %s", w.Code, w.Body.String())
	}
	in := e.games.response
	if in.QuestionIndex != 3 || in.Transcript != "I'd pick the beach" || in.ClientAnswerID != "ans-1" || in.UserID != "alice" {
		t.Fatalf("input=%+v", in)
	}
	if e.media.prefix != "sessions/s1/responses" {
		t.Fatalf("prefix=%q", e.media.prefix)
	}

	body, ct = multipartBody(t, map[string]string{"duration": "20"}, part{"audio", "r.webm", "audio/webm", []byte("ogg")})
	e.do(t, http.MethodPost, "/sessions/s1/responses/4", "alice", body, ct)
	if e.games.response.Transcript != "server transcript" {
		t.Fatalf("fallback transcript=%q", e.games.response.Transcript)
	}

	if w := e.do(t, http.MethodPost, "/sessions/s1/responses/x", "alice", body, ct); w.Code != http.StatusBadRequest {
		t.Fatalf("bad index: %d", w.Code)
	}

	e.games.submitErr = apperr.Expiredf("deadline passed")
	w = e.do(t, http.MethodPost, "/sessions/s1/responses/5", "alice", body, ct)
	if w.Code != http.StatusGone || len(e.media.released) != 1 {
		t.Fatalf("late answer: %d released=%d", w.Code, len(e.media.released))
	}
}

func TestCompatibility(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/compatibility/bob", "alice", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"partnerId":"bob"`) {
		t.Fatalf("profile: %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodGet, "/compatibility/stranger", "alice", nil, ""); w.Code != http.StatusForbidden {
		t.Fatalf("stranger: %d", w.Code)
	}
}
