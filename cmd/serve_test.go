package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellardex/cellarid/internal/cost"
	"github.com/cellardex/cellarid/internal/engine"
	"github.com/cellardex/cellarid/internal/llm"
	"github.com/cellardex/cellarid/internal/model"
	"github.com/cellardex/cellarid/internal/resilience"
	"github.com/cellardex/cellarid/internal/score"
	"github.com/cellardex/cellarid/internal/store"
	"github.com/cellardex/cellarid/internal/stream"
)

type recordingEmitter struct {
	events []stream.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev stream.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func testCandidate(name string, conf int) model.Candidate {
	return model.Candidate{Name: &name, Confidence: conf}
}

func TestSummarySinkForwardsEvents(t *testing.T) {
	next := &recordingEmitter{}
	sink := newSummarySink(next)
	ctx := context.Background()

	require.NoError(t, sink.Emit(ctx, stream.Field("name", "Barolo")))
	require.NoError(t, sink.Emit(ctx, stream.Result(testCandidate("Barolo", 90), 95, false)))
	require.NoError(t, sink.Emit(ctx, stream.Done()))

	require.Len(t, next.events, 3)
	assert.Equal(t, stream.EventField, next.events[0].Type)
	assert.Equal(t, stream.EventDone, next.events[2].Type)
}

func TestSummarySinkNoResult(t *testing.T) {
	sink := newSummarySink(&recordingEmitter{})
	_, ok := sink.summary(model.IdentificationRequest{ID: "r1"})
	assert.False(t, ok)
}

func TestSummarySinkResultOnly(t *testing.T) {
	sink := newSummarySink(&recordingEmitter{})
	ctx := context.Background()

	require.NoError(t, sink.Emit(ctx, stream.Result(testCandidate("Barolo", 90), 95, false)))

	req := model.IdentificationRequest{ID: "r1", Kind: model.InputText, Text: "a barolo"}
	sum, ok := sink.summary(req)
	require.True(t, ok)
	assert.Equal(t, "r1", sum.RequestID)
	assert.Equal(t, model.InputText, sum.Kind)
	assert.Equal(t, "a barolo", sum.Input)
	assert.Equal(t, 95, sum.Confidence)
	assert.False(t, sum.Improved)
	require.NotNil(t, sum.Candidate)
	assert.Equal(t, "Barolo", *sum.Candidate.Name)
	assert.False(t, sum.CreatedAt.IsZero())
}

func TestSummarySinkRefinedOverridesResult(t *testing.T) {
	sink := newSummarySink(&recordingEmitter{})
	ctx := context.Background()

	require.NoError(t, sink.Emit(ctx, stream.Result(testCandidate("Barolo", 60), 60, true)))
	recs := []model.EscalationRecord{
		{RequestID: "r1", Tier: model.TierFast, CostUSD: 0.001},
		{RequestID: "r1", Tier: model.TierDetailed, Improved: true, CostUSD: 0.01},
	}
	require.NoError(t, sink.Emit(ctx, stream.Refined(true, testCandidate("Barolo Riserva", 92), 97, recs)))

	sum, ok := sink.summary(model.IdentificationRequest{ID: "r1", Kind: model.InputText})
	require.True(t, ok)
	assert.True(t, sum.Improved)
	assert.Equal(t, 97, sum.Confidence)
	assert.Equal(t, "Barolo Riserva", *sum.Candidate.Name)
	assert.InDelta(t, 0.011, sum.CostUSD, 1e-9)
}

// scriptedStream replays fixed chunks as a live token stream.
type scriptedStream struct {
	chunks []string
	pos    int
	cur    string
}

func (s *scriptedStream) Next() bool {
	if s.pos >= len(s.chunks) {
		return false
	}
	s.cur = s.chunks[s.pos]
	s.pos++
	return true
}

func (s *scriptedStream) Text() string { return s.cur }
func (s *scriptedStream) Usage() model.TokenUsage {
	return model.TokenUsage{InputTokens: 100, OutputTokens: 40}
}
func (s *scriptedStream) Err() error   { return nil }
func (s *scriptedStream) Close() error { return nil }

// scriptedAdapter serves every tier call from a fixed response.
type scriptedAdapter struct {
	response string
}

func (a *scriptedAdapter) Provider() string { return "fake" }

func (a *scriptedAdapter) Stream(_ context.Context, _ llm.Prompt, _ model.TierConfig) (llm.TokenStream, error) {
	return &scriptedStream{chunks: []string{a.response}}, nil
}

func (a *scriptedAdapter) Complete(_ context.Context, _ llm.Prompt, _ model.TierConfig) (*llm.Completion, error) {
	return &llm.Completion{
		Text:  a.response,
		Usage: model.TokenUsage{InputTokens: 200, OutputTokens: 60},
	}, nil
}

func newTestEnv(t *testing.T, response string) *identifyEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cellarid.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	breakers := resilience.NewProviderBreakers(resilience.DefaultCircuitBreakerConfig())
	eng := engine.New(
		engine.Config{
			Tiers: []model.TierConfig{
				{Name: model.TierFast, Provider: "fake", Model: "fast-model", Timeout: 5 * time.Second},
			},
			FieldDelay: time.Millisecond,
		},
		llm.NewRegistry(&scriptedAdapter{response: response}),
		breakers,
		score.NewScorer(),
		cost.NewCalculator(cost.DefaultRates()),
		nil,
	)

	return &identifyEnv{Store: st, Engine: eng, Breakers: breakers}
}

func TestHandleIdentifyDeliversRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, `{"name":"Château Margaux 2015","producer":"Château Margaux","vintage":2015,"category":"red","grapes":["Cabernet Sauvignon"],"confidence":90}`)

	r := httptest.NewRequest(http.MethodPost, "/v1/identify",
		strings.NewReader(`{"kind":"text","text":"a 2015 margaux"}`))
	rec := httptest.NewRecorder()
	handleIdentify(env, rec, r)

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	// The request ID must reach the client so it can query the audit log.
	id := res.Header.Get("X-Request-Id")
	require.NotEmpty(t, id)

	body := rec.Body.String()
	assert.Contains(t, body, "event: result")
	assert.Contains(t, body, "event: done")
	assert.NotContains(t, body, "event: refining")

	sum, _, err := env.Store.GetIdentification(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, sum.RequestID)
	assert.Equal(t, 100, sum.Confidence)
}

// disconnectOnDone simulates a client that drops the connection the moment
// the terminal frame is written.
type disconnectOnDone struct {
	*httptest.ResponseRecorder
	cancel context.CancelFunc
}

func (w *disconnectOnDone) Write(b []byte) (int, error) {
	n, err := w.ResponseRecorder.Write(b)
	if strings.Contains(string(b), "event: done") {
		w.cancel()
	}
	return n, err
}

func TestHandleIdentifySavesAfterClientDisconnect(t *testing.T) {
	env := newTestEnv(t, `{"name":"Château Margaux 2015","producer":"Château Margaux","vintage":2015,"category":"red","grapes":["Cabernet Sauvignon"],"confidence":90}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := httptest.NewRequest(http.MethodPost, "/v1/identify",
		strings.NewReader(`{"kind":"text","text":"a 2015 margaux"}`)).WithContext(ctx)
	rec := &disconnectOnDone{ResponseRecorder: httptest.NewRecorder(), cancel: cancel}
	handleIdentify(env, rec, r)

	id := rec.Result().Header.Get("X-Request-Id")
	require.NotEmpty(t, id)

	// The audit row must exist even though the request context died with the
	// client right after done.
	sum, _, err := env.Store.GetIdentification(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, sum.RequestID)
}

func TestHandleIdentifyRejectsBadBody(t *testing.T) {
	env := newTestEnv(t, "{}")

	r := httptest.NewRequest(http.MethodPost, "/v1/identify", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	handleIdentify(env, rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandleIdentifyRejectsEmptyInput(t *testing.T) {
	env := newTestEnv(t, "{}")

	r := httptest.NewRequest(http.MethodPost, "/v1/identify", strings.NewReader(`{"kind":"text","text":""}`))
	rec := httptest.NewRecorder()
	handleIdentify(env, rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuessMime(t *testing.T) {
	assert.Equal(t, "image/png", guessMime("label.png"))
	assert.Equal(t, "image/webp", guessMime("label.WEBP"))
	assert.Equal(t, "image/jpeg", guessMime("label.jpg"))
	assert.Equal(t, "image/jpeg", guessMime("label"))
}
