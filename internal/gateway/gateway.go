// Package gateway is the websocket ingress. It upgrades authenticated
// requests, registers each connection with the room router and the
// presence registry, and dispatches inbound event frames to the chat
// pipeline and the game engine.
//
// Every inbound frame is an envelope {event, data}. Failures are answered
// on the same connection only, never broadcast: chat events with
// "error" {code, message, clientMessageId?}, game events with
// "<family>:error" {code, message}.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/game"
	"github.com/tbourn/go-dating-realtime/internal/http/middleware"
	"github.com/tbourn/go-dating-realtime/internal/observability"
	"github.com/tbourn/go-dating-realtime/internal/realtime"
	"github.com/tbourn/go-dating-realtime/internal/services"
)

// EventError is the chat error event.
const EventError = "error"

const defaultEventTimeout = 10 * time.Second

// Presence is the slice of the presence registry the gateway drives.
type Presence interface {
	Attach(ctx context.Context, connID, userID string)
	Detach(ctx context.Context, connID string)
}

// Conversations authorizes room joins.
type Conversations interface {
	Get(ctx context.Context, convID, userID string) (*domain.Conversation, error)
}

// Messages is the chat pipeline.
type Messages interface {
	SendText(ctx context.Context, in services.SendInput) (*domain.Message, error)
	Edit(ctx context.Context, messageID, userID, text string) (*domain.Message, error)
	Delete(ctx context.Context, messageID, userID string, forEveryone bool) error
	React(ctx context.Context, messageID, userID, emoji string) error
	Unreact(ctx context.Context, messageID, userID string) error
	MarkRead(ctx context.Context, convID, readerID, upToMessageID string) (int, error)
	MarkDelivered(ctx context.Context, convID, userID string) error
}

// Typing tracks typing indicators per connection.
type Typing interface {
	Start(connID, userID, convID string)
	Stop(connID, userID, convID string)
	StopAll(connID string)
}

// Games is the game session engine.
type Games interface {
	Invite(ctx context.Context, in game.InviteInput) (*domain.GameSession, error)
	Accept(ctx context.Context, sessionID, userID string, conn realtime.Conn) (*domain.GameSession, error)
	Decline(ctx context.Context, sessionID, userID string) (*domain.GameSession, error)
	Join(ctx context.Context, family, sessionID, userID string, conn realtime.Conn) (*domain.GameSession, error)
	Answer(ctx context.Context, in game.AnswerInput) (*domain.GameAnswer, error)
	SubmitResponse(ctx context.Context, in game.ResponseInput) (*domain.GameAnswer, error)
	AddVoiceNote(ctx context.Context, in game.VoiceNoteInput) (*domain.VoiceNote, error)
	Quit(ctx context.Context, sessionID, userID string) (*domain.GameSession, error)
	Disconnect(ctx context.Context, sessionID, userID string) error
	CheckFamily(ctx context.Context, sessionID, family string) error
}

var (
	_ Messages = (*services.MessageService)(nil)
	_ Games    = (*game.Engine)(nil)
)

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// Gateway serves /ws. Zero limits fall back to the realtime defaults.
type Gateway struct {
	Router        *realtime.Router
	Presence      Presence
	Conversations Conversations
	Messages      Messages
	Typing        Typing
	Games         Games
	Families      game.Families
	Log           zerolog.Logger

	EventRPS      float64
	EventBurst    int
	SendBuffer    int
	MaxFrameBytes int64
	EventTimeout  time.Duration
	CheckOrigin   func(*http.Request) bool
}

// client is one live connection with its ingress budget.
type client struct {
	conn    realtime.Conn
	limiter *rate.Limiter
}

func (g *Gateway) newClient(conn realtime.Conn) *client {
	rps, burst := g.EventRPS, g.EventBurst
	if rps <= 0 {
		rps = 20
	}
	if burst < 1 {
		burst = 40
	}
	return &client{conn: conn, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// OriginChecker allows any Origin when allowed is empty, otherwise only the
// listed ones. Requests without an Origin header are native clients.
func OriginChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
// It must be mounted behind middleware.Authenticate.
func (g *Gateway) ServeWS(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": string(apperr.Unauthenticated), "message": "missing identity"})
		return
	}
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.CheckOrigin,
	}
	if up.CheckOrigin == nil {
		up.CheckOrigin = OriginChecker(nil)
	}
	ws, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the response.
		g.Log.Debug().Err(err).Str("user.id", userID).Msg("ws upgrade failed")
		return
	}

	conn := realtime.NewConnection(userID, ws, g.SendBuffer)
	conn.Start()
	g.serve(conn)
}

func (g *Gateway) serve(conn *realtime.Connection) {
	ctx := g.Log.With().Str("conn.id", conn.ID()).Str("user.id", conn.UserID()).Logger().WithContext(context.Background())
	cl := g.attach(ctx, conn)
	defer g.detach(ctx, cl)

	ws := conn.WS()
	limit := g.MaxFrameBytes
	if limit <= 0 {
		limit = 64 << 10
	}
	ws.SetReadLimit(limit)
	_ = ws.SetReadDeadline(time.Now().Add(realtime.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(realtime.PongWait))
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				zerolog.Ctx(ctx).Debug().Err(err).Msg("ws read ended")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(realtime.PongWait))
		if kind != websocket.TextMessage {
			g.replyError(cl, "", apperr.Invalidf("text frames only"), "")
			continue
		}
		g.handle(ctx, cl, data)
	}
}

// attach registers conn everywhere a live connection must be known.
func (g *Gateway) attach(ctx context.Context, conn realtime.Conn) *client {
	g.Router.Register(conn)
	if g.Presence != nil {
		g.Presence.Attach(ctx, conn.ID(), conn.UserID())
	}
	observability.WSConnections.Inc()
	zerolog.Ctx(ctx).Debug().Msg("ws connected")
	return g.newClient(conn)
}

// detach undoes attach. Sessions the connection had joined learn about the
// disconnect after the router forgot it, so a second device of the same
// user keeps the player connected.
func (g *Gateway) detach(ctx context.Context, cl *client) {
	conn := cl.conn
	if g.Typing != nil {
		g.Typing.StopAll(conn.ID())
	}
	rooms := g.Router.Unregister(conn)
	for _, room := range rooms {
		id, ok := strings.CutPrefix(room, realtime.SessionRoom(""))
		if !ok || g.Games == nil {
			continue
		}
		if err := g.Games.Disconnect(ctx, id, conn.UserID()); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("session.id", id).Msg("game disconnect")
		}
	}
	if g.Presence != nil {
		g.Presence.Detach(ctx, conn.ID())
	}
	conn.Close(websocket.CloseNormalClosure, "session closed")
	observability.WSConnections.Dec()
	zerolog.Ctx(ctx).Debug().Msg("ws disconnected")
}

// handle decodes one frame, applies the ingress budget and dispatches it.
func (g *Gateway) handle(ctx context.Context, cl *client, frame []byte) {
	var env realtime.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		g.replyError(cl, "", apperr.Invalidf("malformed frame"), "")
		observability.WSEvents.WithLabelValues("unknown", string(apperr.Invalid)).Inc()
		return
	}

	route, label := g.route(env.Event)
	errEvent := EventError
	if route.family != nil {
		errEvent = route.family.Event(game.EvError)
	}

	if !cl.limiter.Allow() {
		g.replyError(cl, errEvent, apperr.E(apperr.RateLimited, "too many events"), clientIDOf(env.Data))
		observability.WSEvents.WithLabelValues(label, string(apperr.RateLimited)).Inc()
		return
	}
	if route.chat == nil && route.game == nil {
		g.replyError(cl, errEvent, apperr.Invalidf("unknown event %q", env.Event), "")
		observability.WSEvents.WithLabelValues(label, string(apperr.Invalid)).Inc()
		return
	}

	timeout := g.EventTimeout
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if route.chat != nil {
		err = route.chat(g, ctx, cl, env.Data)
	} else {
		err = route.game(g, ctx, cl, route.family, env.Data)
	}

	code := "ok"
	if err != nil {
		code = string(apperr.KindOf(err))
		g.replyError(cl, errEvent, err, clientIDOf(env.Data))
		if code == string(apperr.Transient) {
			zerolog.Ctx(ctx).Error().Err(err).Str("event", env.Event).Msg("ws event failed")
		}
	}
	observability.WSEvents.WithLabelValues(label, code).Inc()
}

// replyError sends err to the originating connection only.
func (g *Gateway) replyError(cl *client, event string, err error, clientID string) {
	if event == "" {
		event = EventError
	}
	p := ErrorPayload{Code: string(apperr.KindOf(err)), Message: apperr.MessageOf(err)}
	if event == EventError {
		p.ClientMessageID = clientID
	}
	g.Router.EmitToConn(cl.conn.ID(), event, p)
}

// clientIDOf digs the correlation id out of a payload for error replies.
func clientIDOf(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var probe struct {
		ClientMessageID string `json:"clientMessageId"`
	}
	_ = json.Unmarshal(data, &probe)
	return probe.ClientMessageID
}

// decode unmarshals an event payload into T.
func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, apperr.Wrap(apperr.Invalid, "malformed payload", err)
	}
	return v, nil
}

func required(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return apperr.Invalidf("%s is required", name)
	}
	return nil
}
