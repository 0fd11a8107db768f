package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evapo/evapo/internal/convlog"
	"github.com/evapo/evapo/internal/log"
	"github.com/evapo/evapo/internal/retrieval"
	"github.com/evapo/evapo/internal/session"
	"github.com/evapo/evapo/internal/testutil"
	"github.com/evapo/evapo/internal/tools"
)

type recordingSearcher struct {
	mu       sync.Mutex
	queries  []string
	excerpts []retrieval.Excerpt
	err      error
}

func (r *recordingSearcher) Retrieve(_ context.Context, query string, _ int) ([]retrieval.Excerpt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	return r.excerpts, r.err
}

func (r *recordingSearcher) queryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

type fixture struct {
	agent    *Agent
	model    *testutil.ScriptedModel
	store    *session.Store
	searcher *recordingSearcher
	sink     *convlog.Sink
	genkit   *genkit.Genkit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	g := testutil.NewGenkit(t)
	model := testutil.NewScriptedModel("scripted fallback reply")
	model.Register(g)

	registered, err := tools.Register(g, tools.NewHandler(nil, log.NewNop()))
	require.NoError(t, err)

	store := session.NewStore()
	searcher := &recordingSearcher{}

	sink, err := convlog.Open(t.TempDir() + "/convlog.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	a, err := New(Config{
		Genkit:        g,
		Sessions:      store,
		Gate:          retrieval.NewGate(true, nil),
		Searcher:      searcher,
		ConvLog:       sink,
		Tools:         registered,
		Logger:        log.NewNop(),
		ModelName:     "mock/assistant",
		MaxToolRounds: 4,
		ModelTimeout:  5 * time.Second,
		TopK:          3,
	})
	require.NoError(t, err)

	return &fixture{agent: a, model: model, store: store, searcher: searcher, sink: sink, genkit: g}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.Error(t, err)
}

func TestExecute_AppendsTurnsAfterSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.model.Script("hello", "Hi! How can I help with your dehumidifier?")
	sess := f.store.Create()

	resp, err := f.agent.Execute(context.Background(), Request{
		SessionID: sess.ID, Input: "hello there", SourceIP: "198.51.100.7",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi! How can I help with your dehumidifier?", resp.FinalText)

	turns, err := f.store.History(sess.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "hello there", turns[0].Content)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, resp.FinalText, turns[1].Content)

	logged, err := f.sink.BySession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, "hello there", logged[0].UserText)
	assert.Equal(t, "198.51.100.7", logged[0].SourceIP)
}

func TestExecute_ModelFailureRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.model.FailWith(errors.New("provider unavailable"))
	sess := f.store.Create()

	_, err := f.agent.Execute(context.Background(), Request{SessionID: sess.ID, Input: "hello"})
	require.ErrorIs(t, err, ErrModelCall)

	// A failed turn leaves no trace, not even the user message.
	turns, err := f.store.History(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)

	logged, err := f.sink.BySession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, logged)
}

func TestExecute_UnknownSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.agent.Execute(context.Background(), Request{SessionID: uuid.New(), Input: "hello"})
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestExecute_EmptyOutputGetsFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.model.Script("blank", "")
	sess := f.store.Create()

	resp, err := f.agent.Execute(context.Background(), Request{SessionID: sess.ID, Input: "blank please"})
	require.NoError(t, err)
	assert.Equal(t, fallbackMessage, resp.FinalText)
}

func TestExecute_GatedRetrieval(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.model.Script("", "ok") // matches everything
	f.searcher.excerpts = []retrieval.Excerpt{{Source: "manual-sp500c.md", Text: "mount level", Score: 0.9}}
	sess := f.store.Create()

	// Technical question passes the gate.
	_, err := f.agent.Execute(context.Background(), Request{SessionID: sess.ID, Input: "how do I install the SP500C?"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.searcher.queryCount())

	// Small talk does not.
	_, err = f.agent.Execute(context.Background(), Request{SessionID: sess.ID, Input: "thanks, that was helpful"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.searcher.queryCount())
}

func TestExecute_RetrievalFailureDegrades(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.model.Script("install", "mount it on the wall")
	f.searcher.err = errors.New("index offline")
	sess := f.store.Create()

	resp, err := f.agent.Execute(context.Background(), Request{SessionID: sess.ID, Input: "how do I install it?"})
	require.NoError(t, err)
	assert.Equal(t, "mount it on the wall", resp.FinalText)
}

func TestExecuteStream_DeliversChunks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.model.Script("hello", "streamed reply")
	sess := f.store.Create()

	var chunks []string
	resp, err := f.agent.ExecuteStream(context.Background(), Request{SessionID: sess.ID, Input: "hello"},
		func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			for _, p := range chunk.Content {
				chunks = append(chunks, p.Text)
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "streamed reply", resp.FinalText)
	assert.Equal(t, "streamed reply", strings.Join(chunks, ""))
}

func TestExecute_ToolRoundtrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.model.ScriptToolCall("which unit",
		"For 45 liters per day over a pool, the CDP-50 is the smallest adequate unit.",
		&ai.ToolRequest{
			Name:  tools.RecommendProductsName,
			Input: map[string]any{"loadLitersPerDay": 45.0, "poolRated": true},
		})
	sess := f.store.Create()

	resp, err := f.agent.Execute(context.Background(), Request{
		SessionID: sess.ID, Input: "which unit should I buy for my pool room?",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.FinalText, "CDP-50")

	// The first round requested the tool, the second saw its executed
	// result before answering.
	calls := f.model.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{tools.RecommendProductsName}, calls[0].RequestedTools)
	require.NotEmpty(t, calls[1].ToolResponses)
	assert.Equal(t, tools.RecommendProductsName, calls[1].ToolResponses[0].Name)
	raw, err := json.Marshal(calls[1].ToolResponses[0].Output)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "CDP-50")

	turns, err := f.store.History(sess.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, resp.FinalText, turns[1].Content)
}

func TestExecute_ToolBudgetExhaustedForcesFinalAnswer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.model.ScriptToolLoop("pool room",
		"Based on the recommendations gathered, the CDP-50 is the best fit.",
		&ai.ToolRequest{
			Name:  tools.RecommendProductsName,
			Input: map[string]any{"loadLitersPerDay": 45.0, "poolRated": true},
		})
	sess := f.store.Create()

	resp, err := f.agent.Execute(context.Background(), Request{
		SessionID: sess.ID, Input: "size my pool room", SourceIP: "203.0.113.9",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.FinalText, "CDP-50")

	// The closing call runs without tools, so it cannot loop again.
	calls := f.model.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	last := calls[len(calls)-1]
	assert.Empty(t, last.RequestedTools)
	assert.NotEmpty(t, calls[0].RequestedTools)

	// The turn persists normally instead of rolling back.
	turns, err := f.store.History(sess.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)

	logged, err := f.sink.BySession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, resp.FinalText, logged[0].AssistantText)
}

func TestToolBudgetExhausted(t *testing.T) {
	t.Parallel()

	assert.True(t, toolBudgetExhausted(errors.New("exceeded maximum tool call iterations (4)")))
	assert.False(t, toolBudgetExhausted(errors.New("provider unavailable")))
	assert.False(t, toolBudgetExhausted(nil))
}

func TestExecute_HistoryCarriesAcrossTurns(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.model.Script("first", "first reply")
	f.model.Script("second", "second reply")
	sess := f.store.Create()

	_, err := f.agent.Execute(context.Background(), Request{SessionID: sess.ID, Input: "first question"})
	require.NoError(t, err)
	_, err = f.agent.Execute(context.Background(), Request{SessionID: sess.ID, Input: "second question"})
	require.NoError(t, err)

	turns, err := f.store.History(sess.ID)
	require.NoError(t, err)
	assert.Len(t, turns, 4)

	// The second model call saw the first exchange in its message list.
	calls := f.model.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "second question", calls[1].UserText)
}
