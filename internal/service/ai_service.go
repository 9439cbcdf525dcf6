// Package service contains the business logic of the site ledger: provider
// failover for AI transaction extraction, credential settings, the chat
// assistant and confirmed transactions.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fleveque/site-ledger/internal/llm"
	"github.com/fleveque/site-ledger/internal/model"
)

// CredentialStore is the read side of the provider settings table.
// storage.ProviderConfigRepository satisfies it.
type CredentialStore interface {
	ListActive(ctx context.Context, userID string) ([]model.ProviderConfig, error)
}

// CallRecorder stores one row per provider attempt for cost tracking.
// storage.LLMCallRepository satisfies it.
type CallRecorder interface {
	Create(ctx context.Context, call *model.LLMCall) error
}

// RegistryFactory builds a fresh set of adapters. Each session gets its own
// so that credentials never leak between users.
type RegistryFactory func() *llm.Registry

// AIService hands out per-user Sessions. It replaces a process-wide
// "current user": two users never share adapter credentials, and requests
// of the same user share one Session.
type AIService struct {
	store       CredentialStore
	newRegistry RegistryFactory
	recorder    CallRecorder  // optional
	limiter     *rate.Limiter // optional, shared by every session
	logger      *zap.Logger

	mu         sync.Mutex
	sessions   map[string]*Session
	sessionTTL time.Duration // zero keeps sessions until Forget
	now        func() time.Time
}

// AIServiceOption configures optional AIService collaborators.
type AIServiceOption func(*AIService)

// WithCallRecorder records every provider attempt.
func WithCallRecorder(r CallRecorder) AIServiceOption {
	return func(s *AIService) { s.recorder = r }
}

// WithRateLimit caps outbound LLM calls per minute across all users.
// Zero or negative disables the cap.
func WithRateLimit(perMinute int) AIServiceOption {
	return func(s *AIService) {
		if perMinute <= 0 {
			s.limiter = nil
			return
		}
		// rate.Every turns the interval between events into a rate.Limit.
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

// WithSessionTTL drops sessions that have not been used for ttl. The sweep
// runs whenever a new session is created. Zero keeps sessions until Forget.
func WithSessionTTL(ttl time.Duration) AIServiceOption {
	return func(s *AIService) { s.sessionTTL = ttl }
}

// NewAIService creates the orchestration entry point.
func NewAIService(store CredentialStore, newRegistry RegistryFactory, logger *zap.Logger, opts ...AIServiceOption) *AIService {
	s := &AIService{
		store:       store,
		newRegistry: newRegistry,
		logger:      logger,
		sessions:    make(map[string]*Session),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitResult reports what an initialize pass configured. A non-nil Err means
// the credential store could not be read; adapters keep their previous keys
// and the session stays usable (it will most likely report no providers).
type InitResult struct {
	Configured []model.ProviderName `json:"configured"`
	Err        error                `json:"-"`
}

// Degraded reports whether the credential load failed.
func (r InitResult) Degraded() bool { return r.Err != nil }

// Initialize (re)loads the user's active credentials into their session,
// creating the session if needed. Calling it twice with unchanged settings
// leaves the session in the same state.
func (s *AIService) Initialize(ctx context.Context, userID string) (*Session, InitResult) {
	sess := s.session(userID)
	res := sess.Initialize(ctx)
	return sess, res
}

// Session returns the user's session, loading its credentials if no load
// has succeeded yet. A failed load is retried on the next call. The load
// outlives a cancelled request so one aborted call does not cost the next.
func (s *AIService) Session(ctx context.Context, userID string) *Session {
	sess := s.session(userID)
	sess.ensureInitialized(context.WithoutCancel(ctx))
	return sess
}

func (s *AIService) session(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[userID]
	if !ok {
		s.evictIdleLocked(now)
		sess = &Session{userID: userID, registry: s.newRegistry(), svc: s}
		s.sessions[userID] = sess
	}
	sess.lastUsed = now
	return sess
}

// evictIdleLocked drops sessions idle for longer than sessionTTL.
// s.mu must be held.
func (s *AIService) evictIdleLocked(now time.Time) {
	if s.sessionTTL <= 0 {
		return
	}
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > s.sessionTTL {
			delete(s.sessions, id)
			s.logger.Debug("idle session evicted", zap.String("user_id", id))
		}
	}
}

// Sessions reports how many users currently hold a session.
func (s *AIService) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Configure pushes a freshly saved key into the user's live session, if
// there is one. Without a session the key is picked up on first use.
func (s *AIService) Configure(userID string, provider model.ProviderName, apiKey string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return
	}
	if p, ok := sess.registry.Get(provider); ok {
		p.SetAPIKey(apiKey)
		s.logger.Info("provider reconfigured",
			zap.String("user_id", userID),
			zap.String("provider", string(provider)),
			zap.Bool("available", p.IsAvailable()),
		)
	}
}

// Forget drops the user's session, e.g. on sign-out.
func (s *AIService) Forget(userID string) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

func (s *AIService) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *AIService) record(ctx context.Context, userID string, p llm.Provider, op model.CallOperation, elapsed time.Duration, callErr error) {
	if s.recorder == nil {
		return
	}
	ms := elapsed.Milliseconds()
	call := &model.LLMCall{
		UserID:     userID,
		Provider:   p.Name(),
		Model:      p.ModelName(),
		Operation:  op,
		Success:    callErr == nil,
		DurationMs: &ms,
	}
	if callErr != nil {
		msg := callErr.Error()
		call.ErrorMessage = &msg
	}
	// The request may already be cancelled; the record should still land.
	if err := s.recorder.Create(context.WithoutCancel(ctx), call); err != nil {
		s.logger.Error("recording LLM call", zap.Error(err))
	}
}

// Session is one user's view of the providers: their adapters, configured
// with their keys. All methods are safe for concurrent use.
type Session struct {
	userID   string
	registry *llm.Registry
	svc      *AIService

	lastUsed time.Time // guarded by svc.mu

	initMu      sync.Mutex
	initialized bool // a load has succeeded; guarded by initMu
}

// RankedProvider pairs an available adapter with its configured priority.
type RankedProvider struct {
	Provider llm.Provider
	Priority int
}

// ProviderStatus is one row of the in-memory availability snapshot.
type ProviderStatus struct {
	Provider  model.ProviderName `json:"provider"`
	Available bool               `json:"available"`
}

func (s *Session) UserID() string { return s.userID }

// Initialize loads the user's active configs and hands each key to the
// matching adapter.
func (s *Session) Initialize(ctx context.Context) InitResult {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.load(ctx)
}

// ensureInitialized loads credentials unless a load already succeeded.
func (s *Session) ensureInitialized(ctx context.Context) {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if !s.initialized {
		s.load(ctx)
	}
}

// load hands each active row's key to its adapter, including an empty key,
// which switches the adapter off. initMu must be held.
func (s *Session) load(ctx context.Context) InitResult {
	log := s.svc.logger.With(zap.String("user_id", s.userID))

	cfgs, err := s.svc.store.ListActive(ctx, s.userID)
	if err != nil {
		log.Warn("loading provider settings failed, keeping previous configuration", zap.Error(err))
		return InitResult{Err: fmt.Errorf("loading provider settings: %w", err)}
	}

	var res InitResult
	for _, cfg := range cfgs {
		if !cfg.IsActive {
			continue
		}
		p, ok := s.registry.Get(cfg.Provider)
		if !ok {
			log.Warn("no adapter for configured provider", zap.String("provider", string(cfg.Provider)))
			continue
		}
		p.SetAPIKey(cfg.APIKey)
		if p.IsAvailable() {
			res.Configured = append(res.Configured, cfg.Provider)
		}
		log.Info("provider configured",
			zap.String("provider", string(cfg.Provider)),
			zap.Int("priority", cfg.Priority),
			zap.Bool("available", p.IsAvailable()),
		)
	}
	s.initialized = true
	return res
}

// RankedAvailableProviders re-reads the active configs (so priority and
// activation edits apply immediately), keeps the adapters that are
// available and orders them by ascending priority. Equal priorities keep
// the store's order.
func (s *Session) RankedAvailableProviders(ctx context.Context) ([]RankedProvider, error) {
	if s.userID == "" {
		return nil, nil
	}

	cfgs, err := s.svc.store.ListActive(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("loading provider settings: %w", err)
	}

	ranked := make([]RankedProvider, 0, len(cfgs))
	for _, cfg := range cfgs {
		// The row's key is checked too: an adapter may still hold a key
		// the user has since cleared.
		if !cfg.IsActive || !llm.UsableKey(cfg.APIKey) {
			continue
		}
		p, ok := s.registry.Get(cfg.Provider)
		if !ok || !p.IsAvailable() {
			continue
		}
		ranked = append(ranked, RankedProvider{Provider: p, Priority: cfg.Priority})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Priority < ranked[j].Priority })
	return ranked, nil
}

// ProviderStatus reports in-memory availability for every registered
// adapter, in registration order. It does not consult the store.
func (s *Session) ProviderStatus() []ProviderStatus {
	all := s.registry.All()
	out := make([]ProviderStatus, 0, len(all))
	for _, p := range all {
		out = append(out, ProviderStatus{Provider: p.Name(), Available: p.IsAvailable()})
	}
	return out
}

// AnalyzeTransaction extracts a transaction from a data-URI receipt image.
func (s *Session) AnalyzeTransaction(ctx context.Context, imageDataURI string) (*model.TransactionAnalysis, error) {
	return failover(ctx, s, model.OperationAnalyzeImage,
		func(ctx context.Context, p llm.Provider) (*model.TransactionAnalysis, error) {
			return p.AnalyzeTransaction(ctx, imageDataURI)
		})
}

// AnalyzeTextTransaction extracts a transaction from a free-text message by
// sending a structured prompt through Chat. Unlike the image path an
// unresolved type stays empty.
func (s *Session) AnalyzeTextTransaction(ctx context.Context, message string) (*model.TransactionAnalysis, error) {
	if strings.TrimSpace(message) == "" {
		return nil, invalidInput("message is empty")
	}
	prompt := llm.TextTransactionPrompt(message)
	opts := llm.TextDefaults(message)

	return failover(ctx, s, model.OperationAnalyzeText,
		func(ctx context.Context, p llm.Provider) (*model.TransactionAnalysis, error) {
			reply, err := p.Chat(ctx, prompt, "")
			if err != nil {
				return nil, err
			}
			analysis, err := llm.ParseAnalysis(reply, opts)
			if err != nil {
				return nil, llm.ParseError(p.Name(), err)
			}
			return analysis, nil
		})
}

// Chat returns the first successful free-form reply.
func (s *Session) Chat(ctx context.Context, message, history string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", invalidInput("message is empty")
	}
	return failover(ctx, s, model.OperationChat,
		func(ctx context.Context, p llm.Provider) (string, error) {
			return p.Chat(ctx, message, history)
		})
}

// failover tries each ranked provider once, in order, and returns the first
// success. Failures are logged and the next provider is tried; once the
// list is exhausted the last provider's error is returned inside an
// *llm.ExhaustedError. No provider is attempted twice.
//
// Go note: a generic function, not a method, because methods cannot have
// type parameters.
func failover[T any](ctx context.Context, s *Session, op model.CallOperation, call func(context.Context, llm.Provider) (T, error)) (T, error) {
	var zero T
	log := s.svc.logger.With(zap.String("user_id", s.userID), zap.String("operation", string(op)))

	ranked, err := s.RankedAvailableProviders(ctx)
	if err != nil {
		// Fail open: an unreadable store looks like "nothing configured".
		log.Warn("ranking providers failed", zap.Error(err))
		return zero, fmt.Errorf("%w (%v)", llm.ErrNoProvidersConfigured, err)
	}
	if len(ranked) == 0 {
		return zero, llm.ErrNoProvidersConfigured
	}

	var lastErr error
	attempts := 0
	for i, rp := range ranked {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if err := s.svc.wait(ctx); err != nil {
			return zero, fmt.Errorf("rate limit wait: %w", err)
		}

		name := string(rp.Provider.Name())
		log.Debug("attempting provider", zap.String("provider", name), zap.Int("priority", rp.Priority))

		attempts++
		start := time.Now()
		result, err := call(ctx, rp.Provider)
		s.svc.record(ctx, s.userID, rp.Provider, op, time.Since(start), err)

		if err == nil {
			log.Info("provider succeeded", zap.String("provider", name), zap.Int("priority", rp.Priority))
			return result, nil
		}

		lastErr = err
		if i < len(ranked)-1 {
			log.Warn("provider failed, trying next",
				zap.String("provider", name),
				zap.Int("priority", rp.Priority),
				zap.Error(err),
			)
		}
	}

	log.Error("all providers failed", zap.Int("attempts", attempts), zap.Error(lastErr))
	return zero, &llm.ExhaustedError{Attempts: attempts, Last: lastErr}
}
