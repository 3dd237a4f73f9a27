package insights

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/game"
	"github.com/tbourn/go-dating-realtime/internal/queue"
	"github.com/tbourn/go-dating-realtime/internal/realtime"
	"github.com/tbourn/go-dating-realtime/internal/realtime/realtimetest"
	"github.com/tbourn/go-dating-realtime/internal/repo"
	"github.com/tbourn/go-dating-realtime/internal/repo/repotest"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubGenerator struct {
	out    *domain.Insights
	err    error
	calls  int
	prompt string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (*domain.Insights, error) {
	g.calls++
	g.prompt = prompt
	return g.out, g.err
}

// seedCompleted stores a finished two-round nhie session between A and B.
func seedCompleted(t *testing.T, db *gorm.DB, status string) *domain.GameSession {
	t.Helper()
	ctx := context.Background()
	fams := game.DefaultFamilies()
	d := fams["nhie"]
	s := &domain.GameSession{
		ID:             "sess-1",
		Family:         "nhie",
		MatchID:        "m1",
		PairKey:        domain.PairKey("A", "B"),
		Status:         status,
		Player1:        domain.PlayerState{UserID: "A"},
		Player2:        domain.PlayerState{UserID: "B"},
		QuestionOrder:  domain.StringList{"nhie-001", "nhie-002"},
		InvitedAt:      t0,
		LastActivityAt: t0,
		ExpiresAt:      t0.Add(time.Hour),
	}
	answers := []domain.GameAnswer{
		{ID: "a1", SessionID: s.ID, UserID: "A", QuestionIndex: 0, QuestionID: "nhie-001", Value: "true", AnsweredAt: t0},
		{ID: "a2", SessionID: s.ID, UserID: "B", QuestionIndex: 0, QuestionID: "nhie-001", Value: "false", AnsweredAt: t0},
		{ID: "a3", SessionID: s.ID, UserID: "A", QuestionIndex: 1, QuestionID: "nhie-002", TimedOut: true, AnsweredAt: t0},
		{ID: "a4", SessionID: s.ID, UserID: "B", QuestionIndex: 1, QuestionID: "nhie-002", Value: "true", AnsweredAt: t0},
	}
	s.Results = game.ComputeResults(d, s, answers)
	require.NoError(t, repo.CreateSession(ctx, db, s))
	for i := range answers {
		require.NoError(t, repo.CreateAnswer(ctx, db, &answers[i]))
	}
	return s
}

type enrichEnv struct {
	db       *gorm.DB
	enricher *Enricher
	a, b     *realtimetest.Recorder
}

func newEnrichEnv(t *testing.T, gen Generator) *enrichEnv {
	t.Helper()
	db := repotest.Open(t)
	router := realtime.NewRouter(zerolog.Nop())
	a, b := realtimetest.New("conn-a", "A"), realtimetest.New("conn-b", "B")
	router.Register(a)
	router.Register(b)
	q := queue.NewInline(zerolog.Nop())
	q.Sync = true
	e := &Enricher{DB: db, Queue: q, Generator: gen, Families: game.DefaultFamilies(), Fanout: router, Log: zerolog.Nop()}
	q.Register(TaskEnrich, e.Handler())
	return &enrichEnv{db: db, enricher: e, a: a, b: b}
}

func validInsights() *domain.Insights {
	return &domain.Insights{
		Summary:     "You two are an honest pair.",
		Highlights:  []string{"Both of you love adventure."},
		Differences: []string{},
		Tip:         "Ask about the skydiving story.",
	}
}

func TestEnrich_StoresLLMInsightsOnce(t *testing.T) {
	gen := &stubGenerator{out: validInsights()}
	env := newEnrichEnv(t, gen)
	ctx := context.Background()
	s := seedCompleted(t, env.db, domain.SessionCompleted)

	require.NoError(t, env.enricher.Enqueue(ctx, s.ID))
	require.NoError(t, env.enricher.Enqueue(ctx, s.ID), "duplicate enqueue is absorbed")
	require.NoError(t, env.enricher.Enrich(ctx, s.ID))

	assert.Equal(t, 1, gen.calls)
	got, err := repo.GetSession(ctx, env.db, s.ID)
	require.NoError(t, err)
	assert.True(t, got.InsightsGenerated)
	assert.Equal(t, SourceLLM, got.InsightsSource)
	assert.Equal(t, "You two are an honest pair.", got.Insights.Summary)

	for _, r := range []*realtimetest.Recorder{env.a, env.b} {
		f, ok := r.Last("nhie:insights")
		require.True(t, ok)
		assert.Equal(t, s.ID, f.Data["sessionId"])
	}
	assert.Equal(t, 1, env.a.Count("nhie:insights"))

	assert.Contains(t, gen.prompt, "cheated on someone")
	assert.Contains(t, gen.prompt, "I have not")
	assert.Contains(t, gen.prompt, "(no answer)")
}

func TestEnrich_FallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name string
		gen  Generator
	}{
		{"no generator", nil},
		{"llm error", &stubGenerator{err: errors.New("boom")}},
		{"malformed", &stubGenerator{out: &domain.Insights{Summary: "ok"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newEnrichEnv(t, tc.gen)
			ctx := context.Background()
			s := seedCompleted(t, env.db, domain.SessionDiscussion)

			require.NoError(t, env.enricher.Enrich(ctx, s.ID))

			got, err := repo.GetSession(ctx, env.db, s.ID)
			require.NoError(t, err)
			assert.Equal(t, SourceFallback, got.InsightsSource)
			require.NotNil(t, got.Insights)
			assert.NoError(t, Validate(got.Insights))
		})
	}
}

func TestEnrich_SkipsUnfinishedAndMissing(t *testing.T) {
	gen := &stubGenerator{out: validInsights()}
	env := newEnrichEnv(t, gen)
	ctx := context.Background()
	s := seedCompleted(t, env.db, domain.SessionPlaying)

	require.NoError(t, env.enricher.Enrich(ctx, s.ID))
	require.NoError(t, env.enricher.Enrich(ctx, "missing"))
	assert.Zero(t, gen.calls)
	got, err := repo.GetSession(ctx, env.db, s.ID)
	require.NoError(t, err)
	assert.False(t, got.InsightsGenerated)
}

func TestSaveSessionKeepsInsights(t *testing.T) {
	env := newEnrichEnv(t, nil)
	ctx := context.Background()
	s := seedCompleted(t, env.db, domain.SessionCompleted)
	stale, err := repo.GetSession(ctx, env.db, s.ID)
	require.NoError(t, err)

	require.NoError(t, env.enricher.Enrich(ctx, s.ID))
	stale.Status = domain.SessionDiscussion
	require.NoError(t, repo.SaveSession(ctx, env.db, stale))

	got, err := repo.GetSession(ctx, env.db, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionDiscussion, got.Status)
	assert.True(t, got.InsightsGenerated, "a stale whole-row save must not erase insights")
}

func TestValidate(t *testing.T) {
	ok := validInsights()
	ok.Highlights = []string{"  spaced  ", ""}
	require.NoError(t, Validate(ok))
	assert.Equal(t, []string{"spaced"}, ok.Highlights)

	bad := []*domain.Insights{
		nil,
		{Highlights: []string{"x"}, Tip: "t"},
		{Summary: "s", Tip: "t"},
		{Summary: "s", Highlights: []string{"x"}},
		{Summary: strings.Repeat("a", maxSummaryRunes+1), Highlights: []string{"x"}, Tip: "t"},
		{Summary: "s", Highlights: []string{"1", "2", "3", "4", "5", "6"}, Tip: "t"},
	}
	for i, in := range bad {
		assert.Error(t, Validate(in), "case %d", i)
	}
}

func TestFallback(t *testing.T) {
	fams := game.DefaultFamilies()
	r := &domain.GameResults{
		TotalRounds:  4,
		BothAnswered: 4,
		MatchedCount: 3,
		Outcomes:     map[string]int{game.OutcomeShared: 2, game.OutcomeSecret: 1},
		CategoryBreakdown: map[string]domain.CategoryStat{
			"travel":    {Rounds: 2, BothAnswered: 2, Matched: 2, Percent: 100},
			"adventure": {Rounds: 2, BothAnswered: 2, Matched: 0, Percent: 0},
		},
		ConversationStarters: []string{"One of you has gone skydiving. Time for the story?"},
	}

	in := Fallback(fams["nhie"], r)
	assert.Contains(t, in.Summary, "share 2 experiences and unlocked 1 secrets")
	assert.Equal(t, []string{"You both opened up about travel."}, in.Highlights)
	assert.Equal(t, []string{"You see adventure differently."}, in.Differences)
	assert.Equal(t, r.ConversationStarters[0], in.Tip)
	assert.NoError(t, Validate(in))

	empty := Fallback(fams["scenario"], nil)
	assert.NoError(t, Validate(empty))
}

func TestOpenAIGenerator_UsesJSONMode(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		content, _ := json.Marshal(validInsights())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": string(content)}, "finish_reason": "stop"}},
		})
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("test-key", srv.URL+"/v1", "test-model", time.Second)
	got, err := g.Generate(context.Background(), "Game: Never Have I Ever")
	require.NoError(t, err)
	assert.Equal(t, "Ask about the skydiving story.", got.Tip)

	assert.Equal(t, "test-model", req["model"])
	format := req["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}
