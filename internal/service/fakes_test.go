package service

import (
	"context"
	"errors"
	"sync"

	"github.com/fleveque/site-ledger/internal/llm"
	"github.com/fleveque/site-ledger/internal/model"
)

// fakeProvider is a scriptable llm.Provider. Availability follows the same
// key rules as the real adapters.
type fakeProvider struct {
	name model.ProviderName

	mu        sync.Mutex
	key       string
	analyze   func(ctx context.Context, uri string) (*model.TransactionAnalysis, error)
	chat      func(ctx context.Context, message, history string) (string, error)
	calls     int
	lastInput string
}

func newFake(name model.ProviderName) *fakeProvider {
	return &fakeProvider{name: name}
}

func (f *fakeProvider) Name() model.ProviderName { return f.name }
func (f *fakeProvider) ModelName() string        { return string(f.name) + "-test" }

func (f *fakeProvider) SetAPIKey(key string) {
	f.mu.Lock()
	f.key = key
	f.mu.Unlock()
}

func (f *fakeProvider) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return llm.UsableKey(f.key)
}

func (f *fakeProvider) Key() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) AnalyzeTransaction(ctx context.Context, uri string) (*model.TransactionAnalysis, error) {
	f.mu.Lock()
	f.calls++
	f.lastInput = uri
	fn := f.analyze
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("analyze not scripted")
	}
	return fn(ctx, uri)
}

func (f *fakeProvider) Chat(ctx context.Context, message, history string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastInput = message
	fn := f.chat
	f.mu.Unlock()
	if fn == nil {
		return "", errors.New("chat not scripted")
	}
	return fn(ctx, message, history)
}

// fakeStore is an in-memory CredentialStore. Rows are returned in the order
// they were added, unsorted, so tests can check the service's own ranking.
type fakeStore struct {
	mu    sync.Mutex
	rows  []model.ProviderConfig
	err   error
	reads int
}

func (s *fakeStore) add(userID string, provider model.ProviderName, key string, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, model.ProviderConfig{
		UserID: userID, Provider: provider, APIKey: key, IsActive: true, Priority: priority,
	})
}

func (s *fakeStore) setPriority(userID string, provider model.ProviderName, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].UserID == userID && s.rows[i].Provider == provider {
			s.rows[i].Priority = priority
		}
	}
}

func (s *fakeStore) setKey(userID string, provider model.ProviderName, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].UserID == userID && s.rows[i].Provider == provider {
			s.rows[i].APIKey = key
		}
	}
}

func (s *fakeStore) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *fakeStore) ListActive(_ context.Context, userID string) ([]model.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	var out []model.ProviderConfig
	for _, r := range s.rows {
		if r.UserID == userID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []model.LLMCall
}

func (r *fakeRecorder) Create(_ context.Context, call *model.LLMCall) error {
	r.mu.Lock()
	r.calls = append(r.calls, *call)
	r.mu.Unlock()
	return nil
}

func analyzeOK(a *model.TransactionAnalysis) func(context.Context, string) (*model.TransactionAnalysis, error) {
	return func(context.Context, string) (*model.TransactionAnalysis, error) { return a, nil }
}

func analyzeErr(err error) func(context.Context, string) (*model.TransactionAnalysis, error) {
	return func(context.Context, string) (*model.TransactionAnalysis, error) { return nil, err }
}

func chatReply(text string) func(context.Context, string, string) (string, error) {
	return func(context.Context, string, string) (string, error) { return text, nil }
}
