package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/llm"
	"github.com/fleveque/site-ledger/internal/model"
)

const testUser = "user-1"

type harness struct {
	store    *fakeStore
	recorder *fakeRecorder
	gemini   *fakeProvider
	claude   *fakeProvider
	openai   *fakeProvider
	svc      *AIService
}

// newHarness wires an AIService whose every session shares the same three
// fakes. Tests that need per-user isolation build their own factory.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    &fakeStore{},
		recorder: &fakeRecorder{},
		gemini:   newFake(model.ProviderGemini),
		claude:   newFake(model.ProviderClaude),
		openai:   newFake(model.ProviderOpenAI),
	}
	h.svc = NewAIService(h.store, func() *llm.Registry {
		return llm.NewRegistry(h.gemini, h.claude, h.openai)
	}, zap.NewNop(), WithCallRecorder(h.recorder))
	return h
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	sess, res := h.svc.Initialize(context.Background(), testUser)
	require.NoError(t, res.Err)
	return sess
}

func names(ranked []RankedProvider) []model.ProviderName {
	out := make([]model.ProviderName, len(ranked))
	for i, r := range ranked {
		out[i] = r.Provider.Name()
	}
	return out
}

func TestRankedAvailableProviders_SortsByPriority(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 3)
	h.store.add(testUser, model.ProviderClaude, "c-key", 1)
	h.store.add(testUser, model.ProviderOpenAI, "o-key", 2)

	ranked, err := h.session(t).RankedAvailableProviders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []model.ProviderName{model.ProviderClaude, model.ProviderOpenAI, model.ProviderGemini}, names(ranked))
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Priority, ranked[1].Priority, ranked[2].Priority})
}

func TestRankedAvailableProviders_TiesKeepStoreOrder(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderOpenAI, "o-key", 1)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)

	ranked, err := h.session(t).RankedAvailableProviders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ProviderName{model.ProviderOpenAI, model.ProviderGemini}, names(ranked))
}

func TestRankedAvailableProviders_SkipsUnusableKeys(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "undefined", 1)
	h.store.add(testUser, model.ProviderClaude, "c-key", 2)
	sess := h.session(t)

	// An empty key is skipped at initialize time; set it directly to prove
	// the ranking itself also rejects it.
	h.openai.SetAPIKey("")
	h.store.add(testUser, model.ProviderOpenAI, "", 0)

	ranked, err := sess.RankedAvailableProviders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ProviderName{model.ProviderClaude}, names(ranked))
}

func TestRankedAvailableProviders_ReadsStoreEveryCall(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.store.add(testUser, model.ProviderClaude, "c-key", 2)
	sess := h.session(t)

	first, err := sess.RankedAvailableProviders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ProviderGemini, first[0].Provider.Name())

	h.store.setPriority(testUser, model.ProviderGemini, 5)

	second, err := sess.RankedAvailableProviders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ProviderClaude, second[0].Provider.Name())
}

func TestRankedAvailableProviders_NoUser(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.svc.Initialize(context.Background(), "")

	ranked, err := sess.RankedAvailableProviders(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestAnalyzeTransaction_NoProvidersConfigured(t *testing.T) {
	h := newHarness(t)
	h.gemini.analyze = analyzeOK(&model.TransactionAnalysis{})

	_, err := h.session(t).AnalyzeTransaction(context.Background(), "data:image/jpeg;base64,aGVsbG8=")

	assert.ErrorIs(t, err, llm.ErrNoProvidersConfigured)
	assert.Zero(t, h.gemini.Calls())
	assert.Empty(t, h.recorder.calls)
}

func TestAnalyzeTransaction_ReturnsProviderResultUnchanged(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	want := &model.TransactionAnalysis{Amount: 5000, Type: model.TypeExpense, Category: "Materials"}
	h.gemini.analyze = analyzeOK(want)

	got, err := h.session(t).AnalyzeTransaction(context.Background(), "data:image/jpeg;base64,aGVsbG8=")

	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, "Materials", got.Category)
}

func TestAnalyzeTransaction_OnlyAvailableProviderIsAttempted(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "", 1)
	h.store.add(testUser, model.ProviderClaude, "c-key", 2)
	h.gemini.analyze = analyzeOK(&model.TransactionAnalysis{Amount: 1})
	h.claude.analyze = analyzeOK(&model.TransactionAnalysis{Amount: 2})

	got, err := h.session(t).AnalyzeTransaction(context.Background(), "data:image/jpeg;base64,aGVsbG8=")

	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Amount)
	assert.Zero(t, h.gemini.Calls())
	assert.Equal(t, 1, h.claude.Calls())
}

func TestAnalyzeTransaction_FailsOverToNextProvider(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.store.add(testUser, model.ProviderClaude, "c-key", 2)
	h.gemini.analyze = analyzeErr(&llm.ProviderError{Provider: model.ProviderGemini, Kind: llm.ErrTransport})
	h.claude.analyze = analyzeOK(&model.TransactionAnalysis{Amount: 750, Type: model.TypeExpense})

	uri := "data:image/jpeg;base64,aGVsbG8="
	got, err := h.session(t).AnalyzeTransaction(context.Background(), uri)

	require.NoError(t, err)
	assert.Equal(t, 750.0, got.Amount)
	assert.Equal(t, 1, h.gemini.Calls())
	assert.Equal(t, 1, h.claude.Calls())
	assert.Equal(t, uri, h.claude.lastInput, "next provider gets the same input")

	require.Len(t, h.recorder.calls, 2)
	assert.False(t, h.recorder.calls[0].Success)
	assert.NotNil(t, h.recorder.calls[0].ErrorMessage)
	assert.True(t, h.recorder.calls[1].Success)
	assert.Equal(t, model.OperationAnalyzeImage, h.recorder.calls[1].Operation)
	assert.Equal(t, "claude-test", h.recorder.calls[1].Model)
}

func TestAnalyzeTransaction_ExhaustionReturnsLastError(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.store.add(testUser, model.ProviderClaude, "c-key", 2)
	first := &llm.ProviderError{Provider: model.ProviderGemini, Kind: llm.ErrMalformedOutput}
	last := &llm.ProviderError{Provider: model.ProviderClaude, Kind: llm.ErrTransport, Err: errors.New("503")}
	h.gemini.analyze = analyzeErr(first)
	h.claude.analyze = analyzeErr(last)

	_, err := h.session(t).AnalyzeTransaction(context.Background(), "data:image/jpeg;base64,aGVsbG8=")

	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrAllProvidersFailed)
	assert.ErrorIs(t, err, last)
	assert.ErrorIs(t, err, llm.ErrTransport)
	assert.NotErrorIs(t, err, llm.ErrMalformedOutput, "earlier failures are not aggregated")

	var exhausted *llm.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Same(t, last, exhausted.Last)
}

func TestAnalyzeTransaction_StoreFailureLooksUnconfigured(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	sess := h.session(t)
	h.store.setErr(errors.New("connection refused"))

	_, err := sess.AnalyzeTransaction(context.Background(), "data:image/jpeg;base64,aGVsbG8=")
	assert.ErrorIs(t, err, llm.ErrNoProvidersConfigured)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAnalyzeTransaction_CancelledContext(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.gemini.analyze = analyzeOK(&model.TransactionAnalysis{})
	sess := h.session(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sess.AnalyzeTransaction(ctx, "data:image/jpeg;base64,aGVsbG8=")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.gemini.Calls())
}

func TestAnalyzeTextTransaction_ParsesChatReply(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderClaude, "c-key", 1)
	h.claude.chat = chatReply(`Sure: {"amount": 100000, "type": "income", "category": "Current Account", "confidence": 0.9}`)

	got, err := h.session(t).AnalyzeTextTransaction(context.Background(), "Received 1 lakh")

	require.NoError(t, err)
	assert.Equal(t, 100000.0, got.Amount)
	assert.Equal(t, model.TypeIncome, got.Type)
	assert.Contains(t, h.claude.lastInput, `"Received 1 lakh"`, "prompt embeds the message")
	assert.Contains(t, h.claude.lastInput, "lakh")
}

func TestAnalyzeTextTransaction_LeavesMissingTypeUnresolved(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderClaude, "c-key", 1)
	h.claude.chat = chatReply(`{"amount": 4000, "type": null}`)

	got, err := h.session(t).AnalyzeTextTransaction(context.Background(), "4000 for tiles")

	require.NoError(t, err)
	assert.Equal(t, model.TransactionType(""), got.Type)
	assert.Empty(t, got.Category)
	assert.Equal(t, "4000 for tiles", got.Description)
	assert.Equal(t, 0.7, got.Confidence)
}

func TestAnalyzeTextTransaction_UnparsableReplyFailsOver(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.store.add(testUser, model.ProviderClaude, "c-key", 2)
	h.gemini.chat = chatReply("I am not sure what you mean.")
	h.claude.chat = chatReply(`{"amount": 50000, "type": "expense"}`)

	got, err := h.session(t).AnalyzeTextTransaction(context.Background(), "Paid 50000 for cement")

	require.NoError(t, err)
	assert.Equal(t, 50000.0, got.Amount)
	assert.Equal(t, 1, h.gemini.Calls())

	require.Len(t, h.recorder.calls, 2)
	require.NotNil(t, h.recorder.calls[0].ErrorMessage)
	assert.Contains(t, *h.recorder.calls[0].ErrorMessage, "no JSON object")
}

func TestAnalyzeTextTransaction_EmptyMessage(t *testing.T) {
	h := newHarness(t)
	_, err := h.session(t).AnalyzeTextTransaction(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestChat_FailsOver(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.store.add(testUser, model.ProviderOpenAI, "o-key", 2)
	h.gemini.chat = func(context.Context, string, string) (string, error) {
		return "", &llm.ProviderError{Provider: model.ProviderGemini, Kind: llm.ErrTransport}
	}
	var gotHistory string
	h.openai.chat = func(_ context.Context, _ string, history string) (string, error) {
		gotHistory = history
		return "Your labour spend is ₹2,50,000.", nil
	}

	got, err := h.session(t).Chat(context.Background(), "labour total?", "project: Villa")

	require.NoError(t, err)
	assert.Equal(t, "Your labour spend is ₹2,50,000.", got)
	assert.Equal(t, "project: Villa", gotHistory)
}

func TestInitialize_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.store.add(testUser, model.ProviderClaude, "undefined", 2)

	sess, first := h.svc.Initialize(context.Background(), testUser)
	before := sess.ProviderStatus()

	again, second := h.svc.Initialize(context.Background(), testUser)
	after := again.ProviderStatus()

	assert.Same(t, sess, again)
	assert.Equal(t, before, after)
	assert.Equal(t, first.Configured, second.Configured)
	assert.Equal(t, []model.ProviderName{model.ProviderGemini}, second.Configured)
	assert.Equal(t, []ProviderStatus{
		{Provider: model.ProviderGemini, Available: true},
		{Provider: model.ProviderClaude, Available: false},
		{Provider: model.ProviderOpenAI, Available: false},
	}, after)
}

func TestInitialize_StoreFailureKeepsPreviousKeys(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.session(t)

	h.store.setErr(errors.New("timeout"))
	_, res := h.svc.Initialize(context.Background(), testUser)

	assert.True(t, res.Degraded())
	assert.Empty(t, res.Configured)
	assert.Equal(t, "g-key", h.gemini.Key())
}

func TestSessions_AreIsolatedPerUser(t *testing.T) {
	store := &fakeStore{}
	store.add("alice", model.ProviderGemini, "alice-key", 1)
	store.add("bob", model.ProviderClaude, "bob-key", 1)

	svc := NewAIService(store, func() *llm.Registry {
		return llm.NewRegistry(newFake(model.ProviderGemini), newFake(model.ProviderClaude))
	}, zap.NewNop())

	alice := svc.Session(context.Background(), "alice")
	bob := svc.Session(context.Background(), "bob")

	assert.Equal(t, []ProviderStatus{
		{Provider: model.ProviderGemini, Available: true},
		{Provider: model.ProviderClaude, Available: false},
	}, alice.ProviderStatus())
	assert.Equal(t, []ProviderStatus{
		{Provider: model.ProviderGemini, Available: false},
		{Provider: model.ProviderClaude, Available: true},
	}, bob.ProviderStatus())
}

func TestSession_InitializesOnce(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)

	first := h.svc.Session(context.Background(), testUser)
	second := h.svc.Session(context.Background(), testUser)

	assert.Same(t, first, second)
	assert.Equal(t, 1, h.store.reads)
}

func TestConfigureAndForget(t *testing.T) {
	h := newHarness(t)
	sess := h.session(t)
	assert.False(t, h.claude.IsAvailable())

	h.svc.Configure(testUser, model.ProviderClaude, "new-key")
	assert.Equal(t, "new-key", h.claude.Key())

	h.svc.Forget(testUser)
	assert.NotSame(t, sess, h.svc.session(testUser))

	// No session: nothing to reconfigure and nothing panics.
	h.svc.Forget(testUser)
	h.svc.Configure(testUser, model.ProviderOpenAI, "x")
}

func TestSession_RetriesAfterFailedFirstLoad(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.gemini.analyze = analyzeOK(&model.TransactionAnalysis{Amount: 1200})

	h.store.setErr(errors.New("connection refused"))
	sess := h.svc.Session(context.Background(), testUser)
	assert.False(t, h.gemini.IsAvailable())

	h.store.setErr(nil)
	again := h.svc.Session(context.Background(), testUser)
	assert.Same(t, sess, again)
	assert.Equal(t, "g-key", h.gemini.Key())

	got, err := again.AnalyzeTransaction(context.Background(), "data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, 1200.0, got.Amount)
	assert.Equal(t, 2, h.store.reads)
}

func TestSession_LoadIgnoresCallerCancellation(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.svc.Session(ctx, testUser)
	h.svc.Session(context.Background(), testUser)

	assert.Equal(t, "g-key", h.gemini.Key())
	assert.Equal(t, 1, h.store.reads)
}

func TestInitialize_ClearedKeyDisablesProvider(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	sess := h.session(t)
	require.True(t, h.gemini.IsAvailable())

	h.store.setKey(testUser, model.ProviderGemini, "")
	_, res := h.svc.Initialize(context.Background(), testUser)
	require.NoError(t, res.Err)

	assert.Empty(t, res.Configured)
	assert.Equal(t, "", h.gemini.Key())
	ranked, err := sess.RankedAvailableProviders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRanked_SkipsRowWithClearedKey(t *testing.T) {
	h := newHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	sess := h.session(t)

	// Row cleared behind the session's back; the adapter still holds g-key.
	h.store.setKey(testUser, model.ProviderGemini, "")
	ranked, err := sess.RankedAvailableProviders(context.Background())

	require.NoError(t, err)
	assert.Empty(t, ranked)
	assert.Equal(t, "g-key", h.gemini.Key())
}

func TestSessions_IdleSessionsAreEvicted(t *testing.T) {
	store := &fakeStore{}
	svc := NewAIService(store, func() *llm.Registry {
		return llm.NewRegistry(newFake(model.ProviderGemini))
	}, zap.NewNop(), WithSessionTTL(time.Hour))
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	alice := svc.Session(context.Background(), "alice")
	now = now.Add(30 * time.Minute)
	svc.Session(context.Background(), "bob")
	assert.Equal(t, 2, svc.Sessions())

	now = now.Add(45 * time.Minute)
	svc.Session(context.Background(), "carol")
	assert.Equal(t, 2, svc.Sessions(), "alice idle for 75m")

	assert.NotSame(t, alice, svc.Session(context.Background(), "alice"))
}

func TestSessions_NoTTLKeepsSessions(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return now }

	first := h.svc.Session(context.Background(), testUser)
	now = now.Add(30 * 24 * time.Hour)
	h.svc.Session(context.Background(), "other")

	assert.Same(t, first, h.svc.Session(context.Background(), testUser))
	assert.Equal(t, 2, h.svc.Sessions())
}
