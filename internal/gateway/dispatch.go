package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/game"
	"github.com/tbourn/go-dating-realtime/internal/realtime"
	"github.com/tbourn/go-dating-realtime/internal/services"
)

type chatHandler func(g *Gateway, ctx context.Context, cl *client, data json.RawMessage) error

type gameHandler func(g *Gateway, ctx context.Context, cl *client, d *game.Descriptor, data json.RawMessage) error

type route struct {
	chat   chatHandler
	game   gameHandler
	family *game.Descriptor
}

var chatRoutes = map[string]chatHandler{
	"conversation:join":  (*Gateway).joinConversation,
	"conversation:leave": (*Gateway).leaveConversation,
	"message:send":       (*Gateway).sendMessage,
	"typing:start":       (*Gateway).typingStart,
	"typing:stop":        (*Gateway).typingStop,
	"message:read":       (*Gateway).readMessages,
	"message:delete":     (*Gateway).deleteMessage,
	"message:edit":       (*Gateway).editMessage,
	"message:react":      (*Gateway).react,
	"message:unreact":    (*Gateway).unreact,
}

var gameRoutes = map[string]gameHandler{
	"invite":     (*Gateway).invite,
	"join":       (*Gateway).joinSession,
	"accept":     (*Gateway).accept,
	"decline":    (*Gateway).decline,
	"answer":     (*Gateway).answer,
	"quit":       (*Gateway).quit,
	"voice_note": (*Gateway).voiceNote,
}

// route resolves an event name. The label is the metrics value: the event
// itself when known, "unknown" otherwise.
func (g *Gateway) route(event string) (route, string) {
	if h, ok := chatRoutes[event]; ok {
		return route{chat: h}, event
	}
	family, op, ok := strings.Cut(event, ":")
	if !ok {
		return route{}, "unknown"
	}
	d, ok := g.Families[family]
	if !ok || d.Disabled {
		return route{}, "unknown"
	}
	h, ok := gameRoutes[op]
	if !ok {
		return route{family: d}, "unknown"
	}
	return route{game: h, family: d}, event
}

// ---- chat ----

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

func (g *Gateway) joinConversation(ctx context.Context, cl *client, data json.RawMessage) error {
	in, err := decode[conversationRef](data)
	if err != nil {
		return err
	}
	if err := required("conversationId", in.ConversationID); err != nil {
		return err
	}
	userID := cl.conn.UserID()
	if _, err := g.Conversations.Get(ctx, in.ConversationID, userID); err != nil {
		return err
	}
	g.Router.Join(realtime.ConversationRoom(in.ConversationID), cl.conn)
	return g.Messages.MarkDelivered(ctx, in.ConversationID, userID)
}

func (g *Gateway) leaveConversation(_ context.Context, cl *client, data json.RawMessage) error {
	in, err := decode[conversationRef](data)
	if err != nil {
		return err
	}
	if err := required("conversationId", in.ConversationID); err != nil {
		return err
	}
	room := realtime.ConversationRoom(in.ConversationID)
	if g.Router.InRoom(room, cl.conn.ID()) {
		g.Typing.Stop(cl.conn.ID(), cl.conn.UserID(), in.ConversationID)
	}
	g.Router.Leave(room, cl.conn)
	return nil
}

type sendPayload struct {
	ConversationID   string `json:"conversationId"`
	Text             string `json:"text"`
	ClientMessageID  string `json:"clientMessageId"`
	ReplyToMessageID string `json:"replyToMessageId"`
}

func (g *Gateway) sendMessage(ctx context.Context, cl *client, data json.RawMessage) error {
	in, err := decode[sendPayload](data)
	if err != nil {
		return err
	}
	if err := required("conversationId", in.ConversationID); err != nil {
		return err
	}
	_, err = g.Messages.SendText(ctx, services.SendInput{
		ConversationID:   in.ConversationID,
		SenderID:         cl.conn.UserID(),
		Text:             in.Text,
		ClientMessageID:  in.ClientMessageID,
		ReplyToMessageID: in.ReplyToMessageID,
	})
	return err
}

// typing requires the connection to be in the room; joining the room is
// what proves participation.
func (g *Gateway) typing(cl *client, data json.RawMessage, start bool) error {
	in, err := decode[conversationRef](data)
	if err != nil {
		return err
	}
	if err := required("conversationId", in.ConversationID); err != nil {
		return err
	}
	if !g.Router.InRoom(realtime.ConversationRoom(in.ConversationID), cl.conn.ID()) {
		return apperr.Forbiddenf("join the conversation first")
	}
	if start {
		g.Typing.Start(cl.conn.ID(), cl.conn.UserID(), in.ConversationID)
	} else {
		g.Typing.Stop(cl.conn.ID(), cl.conn.UserID(), in.ConversationID)
	}
	return nil
}

func (g *Gateway) typingStart(_ context.Context, cl *client, data json.RawMessage) error {
	return g.typing(cl, data, true)
}

func (g *Gateway) typingStop(_ context.Context, cl *client, data json.RawMessage) error {
	return g.typing(cl, data, false)
}

type readPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

func (g *Gateway) readMessages(ctx context.Context, cl *client, data json.RawMessage) error {
	in, err := decode[readPayload](data)
	if err != nil {
		return err
	}
	if err := required("conversationId", in.ConversationID); err != nil {
		return err
	}
	if err := required("messageId", in.MessageID); err != nil {
		return err
	}
	_, err = g.Messages.MarkRead(ctx, in.ConversationID, cl.conn.UserID(), in.MessageID)
	return err
}

type deletePayload struct {
	MessageID   string `json:"messageId"`
	ForEveryone *bool  `json:"forEveryone"`
}

// deleteMessage removes for everyone unless forEveryone is explicitly false.
func (g *Gateway) deleteMessage(ctx context.Context, cl *client, data json.RawMessage) error {
	in, err := decode[deletePayload](data)
	if err != nil {
		return err
	}
	if err := required("messageId", in.MessageID); err != nil {
		return err
	}
	everyone := in.ForEveryone == nil || *in.ForEveryone
	return g.Messages.Delete(ctx, in.MessageID, cl.conn.UserID(), everyone)
}

type editPayload struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

func (g *Gateway) editMessage(ctx context.Context, cl *client, data json.RawMessage) error {
	in, err := decode[editPayload](data)
	if err != nil {
		return err
	}
	if err := required("messageId", in.MessageID); err != nil {
		return err
	}
	_, err = g.Messages.Edit(ctx, in.MessageID, cl.conn.UserID(), in.Text)
	return err
}

type reactPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

func (g *Gateway) react(ctx context.Context, cl *client, data json.RawMessage) error {
	in, err := decode[reactPayload](data)
	if err != nil {
		return err
	}
	if err := required("messageId", in.MessageID); err != nil {
		return err
	}
	return g.Messages.React(ctx, in.MessageID, cl.conn.UserID(), in.Emoji)
}

func (g *Gateway) unreact(ctx context.Context, cl *client, data json.RawMessage) error {
	in, err := decode[reactPayload](data)
	if err != nil {
		return err
	}
	if err := required("messageId", in.MessageID); err != nil {
		return err
	}
	return g.Messages.Unreact(ctx, in.MessageID, cl.conn.UserID())
}

// ---- game ----

type invitePayload struct {
	MatchID        string `json:"matchId"`
	ClientInviteID string `json:"clientInviteId"`
}

func (g *Gateway) invite(ctx context.Context, cl *client, d *game.Descriptor, data json.RawMessage) error {
	in, err := decode[invitePayload](data)
	if err != nil {
		return err
	}
	if err := required("matchId", in.MatchID); err != nil {
		return err
	}
	_, err = g.Games.Invite(ctx, game.InviteInput{
		Family:         d.ID,
		InviterID:      cl.conn.UserID(),
		MatchID:        in.MatchID,
		ClientInviteID: in.ClientInviteID,
		Conn:           cl.conn,
	})
	return err
}

type sessionRef struct {
	SessionID string `json:"sessionId"`
}

// joinSession accepts an empty sessionId: the latest session of the family
// for the caller.
func (g *Gateway) joinSession(ctx context.Context, cl *client, d *game.Descriptor, data json.RawMessage) error {
	in, err := decode[sessionRef](data)
	if err != nil {
		return err
	}
	_, err = g.Games.Join(ctx, d.ID, in.SessionID, cl.conn.UserID(), cl.conn)
	return err
}

func (g *Gateway) accept(ctx context.Context, cl *client, d *game.Descriptor, data json.RawMessage) error {
	in, err := decode[sessionRef](data)
	if err != nil {
		return err
	}
	if err := required("sessionId", in.SessionID); err != nil {
		return err
	}
	if err := g.Games.CheckFamily(ctx, in.SessionID, d.ID); err != nil {
		return err
	}
	_, err = g.Games.Accept(ctx, in.SessionID, cl.conn.UserID(), cl.conn)
	return err
}

func (g *Gateway) decline(ctx context.Context, cl *client, d *game.Descriptor, data json.RawMessage) error {
	in, err := decode[sessionRef](data)
	if err != nil {
		return err
	}
	if err := required("sessionId", in.SessionID); err != nil {
		return err
	}
	if err := g.Games.CheckFamily(ctx, in.SessionID, d.ID); err != nil {
		return err
	}
	_, err = g.Games.Decline(ctx, in.SessionID, cl.conn.UserID())
	return err
}

func (g *Gateway) quit(ctx context.Context, cl *client, d *game.Descriptor, data json.RawMessage) error {
	in, err := decode[sessionRef](data)
	if err != nil {
		return err
	}
	if err := required("sessionId", in.SessionID); err != nil {
		return err
	}
	if err := g.Games.CheckFamily(ctx, in.SessionID, d.ID); err != nil {
		return err
	}
	_, err = g.Games.Quit(ctx, in.SessionID, cl.conn.UserID())
	return err
}

type answerPayload struct {
	SessionID      string          `json:"sessionId"`
	QuestionIndex  *int            `json:"questionIndex"`
	Answer         json.RawMessage `json:"answer"`
	ClientAnswerID string          `json:"clientAnswerId"`

	// voice families
	URL         string  `json:"url"`
	Transcript  string  `json:"transcript"`
	DurationSec float64 `json:"durationSec"`
}

// answer routes to the round answer of timed families and to the private
// voice response of async ones.
func (g *Gateway) answer(ctx context.Context, cl *client, d *game.Descriptor, data json.RawMessage) error {
	in, err := decode[answerPayload](data)
	if err != nil {
		return err
	}
	if err := required("sessionId", in.SessionID); err != nil {
		return err
	}
	if err := g.Games.CheckFamily(ctx, in.SessionID, d.ID); err != nil {
		return err
	}
	if d.AnswerType == game.AnswerVoice {
		if in.QuestionIndex == nil {
			return apperr.Invalidf("questionIndex is required")
		}
		_, err = g.Games.SubmitResponse(ctx, game.ResponseInput{
			SessionID:      in.SessionID,
			UserID:         cl.conn.UserID(),
			QuestionIndex:  *in.QuestionIndex,
			URL:            in.URL,
			Transcript:     in.Transcript,
			DurationSec:    in.DurationSec,
			ClientAnswerID: in.ClientAnswerID,
		})
		return err
	}
	if len(in.Answer) == 0 {
		return apperr.Invalidf("answer is required")
	}
	_, err = g.Games.Answer(ctx, game.AnswerInput{
		SessionID:      in.SessionID,
		UserID:         cl.conn.UserID(),
		QuestionIndex:  in.QuestionIndex,
		Value:          in.Answer,
		ClientAnswerID: in.ClientAnswerID,
	})
	return err
}

type voiceNotePayload struct {
	SessionID   string  `json:"sessionId"`
	URL         string  `json:"url"`
	Key         string  `json:"key"`
	DurationSec float64 `json:"durationSec"`
}

// voiceNote attaches a clip already uploaded through REST.
func (g *Gateway) voiceNote(ctx context.Context, cl *client, d *game.Descriptor, data json.RawMessage) error {
	in, err := decode[voiceNotePayload](data)
	if err != nil {
		return err
	}
	if err := required("sessionId", in.SessionID); err != nil {
		return err
	}
	if err := g.Games.CheckFamily(ctx, in.SessionID, d.ID); err != nil {
		return err
	}
	if err := required("url", in.URL); err != nil {
		return err
	}
	_, err = g.Games.AddVoiceNote(ctx, game.VoiceNoteInput{
		SessionID:   in.SessionID,
		UserID:      cl.conn.UserID(),
		URL:         in.URL,
		Key:         in.Key,
		DurationSec: in.DurationSec,
	})
	return err
}
