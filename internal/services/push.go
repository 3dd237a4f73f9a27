package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-dating-realtime/internal/queue"
)

// TaskPushNotify is the queue task type carrying a PushIntent.
const TaskPushNotify = "push:notify"

// PushIntent asks the external push service to notify an offline user.
type PushIntent struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	Kind           string `json:"kind"`
	Preview        string `json:"preview,omitempty"`
	FromUserID     string `json:"fromUserId,omitempty"`
}

// Pusher enqueues push intents. A nil Queue drops them.
type Pusher struct {
	Queue queue.Client
	Log   zerolog.Logger
}

// Notify enqueues p. Failures are logged and never surface to the caller.
func (p *Pusher) Notify(ctx context.Context, in PushIntent) {
	if p == nil || p.Queue == nil {
		return
	}
	payload, err := json.Marshal(in)
	if err != nil {
		p.Log.Error().Err(err).Msg("encode push intent")
		return
	}
	opt := queue.EnqueueOption{Queue: "push", MaxRetry: 3}
	if in.MessageID != "" {
		opt.TaskID = "push:" + in.MessageID + ":" + in.UserID
	}
	if _, err := p.Queue.Enqueue(ctx, queue.Task{Type: TaskPushNotify, Payload: payload}, opt); err != nil && err != queue.ErrDuplicateTask {
		p.Log.Warn().Err(err).Str("user.id", in.UserID).Msg("enqueue push intent")
	}
}

// PushLogHandler is the worker for TaskPushNotify. Delivery belongs to an
// external push provider; this process records the intent.
func PushLogHandler(log zerolog.Logger) queue.Handler {
	return func(_ context.Context, t queue.Task) error {
		var in PushIntent
		if err := json.Unmarshal(t.Payload, &in); err != nil {
			return fmt.Errorf("decode push intent: %w", err)
		}
		log.Info().
			Str("user.id", in.UserID).
			Str("push.kind", in.Kind).
			Str("conversation.id", in.ConversationID).
			Str("session.id", in.SessionID).
			Msg("push intent")
		return nil
	}
}
