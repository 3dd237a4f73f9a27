// Package insights enriches completed game sessions with a narrative
// summary. Generation runs off the request path through the job queue;
// the LLM result is validated and replaced by a deterministic template when
// the call fails or returns something malformed. Insights are written once
// per session.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/game"
	"github.com/tbourn/go-dating-realtime/internal/observability"
	"github.com/tbourn/go-dating-realtime/internal/queue"
	"github.com/tbourn/go-dating-realtime/internal/repo"
)

// TaskEnrich is the queue task type; its payload is an EnrichPayload.
const TaskEnrich = "insights:enrich"

// Insight sources.
const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"
)

// EnrichPayload is the body of a TaskEnrich task.
type EnrichPayload struct {
	SessionID string `json:"sessionId"`
}

// Event is the payload of <family>:insights.
type Event struct {
	SessionID string           `json:"sessionId"`
	Insights  *domain.Insights `json:"aiInsights"`
}

// Emitter delivers events to a user's connections.
type Emitter interface {
	EmitToUser(userID, event string, data any) int
}

// Enricher implements game.Enricher.
type Enricher struct {
	DB        *gorm.DB
	Queue     queue.Client
	Generator Generator // nil always uses the fallback
	Families  game.Families
	Fanout    Emitter
	Log       zerolog.Logger
}

var _ game.Enricher = (*Enricher)(nil)

// Enqueue schedules enrichment. The session id is the task id, so a
// session is enqueued at most once.
func (e *Enricher) Enqueue(ctx context.Context, sessionID string) error {
	payload, err := json.Marshal(EnrichPayload{SessionID: sessionID})
	if err != nil {
		return err
	}
	_, err = e.Queue.Enqueue(ctx, queue.Task{Type: TaskEnrich, Payload: payload}, queue.EnqueueOption{
		Queue:    "insights",
		TaskID:   sessionID,
		MaxRetry: 3,
	})
	if errors.Is(err, queue.ErrDuplicateTask) {
		return nil
	}
	return err
}

// Handler is the queue worker for TaskEnrich.
func (e *Enricher) Handler() queue.Handler {
	return func(ctx context.Context, t queue.Task) error {
		var p EnrichPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return fmt.Errorf("decode enrich payload: %w", err)
		}
		return e.Enrich(ctx, p.SessionID)
	}
}

// Enrich generates and stores insights for a finished session, then pushes
// them to both players. Sessions that already have insights or are not
// finished are skipped.
func (e *Enricher) Enrich(ctx context.Context, sessionID string) error {
	tr := otel.Tracer("insights/Enricher")
	ctx, span := tr.Start(ctx, "Enrich", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	s, err := repo.GetSession(ctx, e.DB, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.InsightsGenerated || (s.Status != domain.SessionCompleted && s.Status != domain.SessionDiscussion) {
		return nil
	}
	d, ok := e.Families[s.Family]
	if !ok {
		return fmt.Errorf("unknown family %q", s.Family)
	}

	ins, source := e.generate(ctx, d, s)

	won, err := repo.ClaimInsights(ctx, e.DB, s.ID, ins, source)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	observability.InsightsGenerated.WithLabelValues(source).Inc()
	e.Log.Info().Str("session.id", s.ID).Str("source", source).Msg("insights generated")

	if e.Fanout != nil {
		ev := Event{SessionID: s.ID, Insights: ins}
		e.Fanout.EmitToUser(s.Player1.UserID, d.Event(game.EvInsights), ev)
		e.Fanout.EmitToUser(s.Player2.UserID, d.Event(game.EvInsights), ev)
	}
	return nil
}

func (e *Enricher) generate(ctx context.Context, d *game.Descriptor, s *domain.GameSession) (*domain.Insights, string) {
	answers, err := repo.ListAnswers(ctx, e.DB, s.ID)
	if err != nil {
		e.Log.Warn().Err(err).Str("session.id", s.ID).Msg("load answers for insights")
		return Fallback(d, s.Results), SourceFallback
	}
	fallback := func() *domain.Insights {
		return AddEchoes(Fallback(d, s.Results), Echoes(answers, s.Player1.UserID, s.Player2.UserID))
	}
	if e.Generator == nil {
		return fallback(), SourceFallback
	}
	ins, err := e.Generator.Generate(ctx, BuildPrompt(d, s, answers))
	if err == nil {
		err = Validate(ins)
	}
	if err != nil {
		e.Log.Warn().Err(err).Str("session.id", s.ID).Msg("llm insights rejected, using template")
		return fallback(), SourceFallback
	}
	return ins, SourceLLM
}
