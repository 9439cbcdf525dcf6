package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/fleveque/site-ledger/internal/model"
)

// ContentGenerator is the slice of the genai client the adapter uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClientFactory builds a ContentGenerator for an API key.
type GeminiClientFactory func(ctx context.Context, apiKey, baseURL string) (ContentGenerator, error)

// NewGenAIClient is the production factory.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string) (ContentGenerator, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// The Gemini client handle is in exactly one of these states.
type geminiClient interface{ isGeminiClient() }

type (
	clientUnset  struct{}
	clientReady  struct{ models ContentGenerator }
	clientFailed struct{ err error }
)

func (clientUnset) isGeminiClient()  {}
func (clientReady) isGeminiClient()  {}
func (clientFailed) isGeminiClient() {}

// GeminiConfig holds the Gemini adapter settings.
type GeminiConfig struct {
	Model   string
	BaseURL string
	// NewClient overrides the client factory, mainly for tests.
	NewClient GeminiClientFactory
}

// GeminiProvider implements Provider with the Google GenAI SDK. Unlike the
// other adapters it holds a constructed client, rebuilt on every SetAPIKey.
// A failed build makes the adapter unavailable until the next key arrives.
type GeminiProvider struct {
	cfg    GeminiConfig
	logger *zap.Logger

	mu     sync.RWMutex
	key    string
	client geminiClient
}

// NewGeminiProvider creates a Gemini adapter with no credential set.
func NewGeminiProvider(cfg GeminiConfig, logger *zap.Logger) *GeminiProvider {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.NewClient == nil {
		cfg.NewClient = NewGenAIClient
	}
	return &GeminiProvider{cfg: cfg, logger: logger, client: clientUnset{}}
}

func (g *GeminiProvider) Name() model.ProviderName { return model.ProviderGemini }
func (g *GeminiProvider) ModelName() string        { return g.cfg.Model }

// SetAPIKey stores the key and reinitializes the client. It never fails.
func (g *GeminiProvider) SetAPIKey(key string) {
	state := g.build(key)

	g.mu.Lock()
	g.key = key
	g.client = state
	g.mu.Unlock()
}

func (g *GeminiProvider) build(key string) geminiClient {
	if !UsableKey(key) {
		return clientUnset{}
	}
	models, err := g.cfg.NewClient(context.Background(), key, g.cfg.BaseURL)
	if err != nil {
		g.logger.Warn("gemini: client initialization failed", zap.Error(err))
		return clientFailed{err: err}
	}
	if models == nil {
		return clientFailed{err: fmt.Errorf("gemini: factory returned no client")}
	}
	return clientReady{models: models}
}

func (g *GeminiProvider) IsAvailable() bool {
	_, ok := g.ready()
	return ok
}

// ready returns the client if the key is usable and the client was built.
func (g *GeminiProvider) ready() (ContentGenerator, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !UsableKey(g.key) {
		return nil, false
	}
	c, ok := g.client.(clientReady)
	if !ok {
		return nil, false
	}
	return c.models, true
}

// InitError reports why the last client build failed, or nil.
func (g *GeminiProvider) InitError() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if f, ok := g.client.(clientFailed); ok {
		return f.err
	}
	return nil
}

func (g *GeminiProvider) AnalyzeTransaction(ctx context.Context, imageDataURI string) (*model.TransactionAnalysis, error) {
	models, ok := g.ready()
	if !ok {
		return nil, providerErr(g.Name(), ErrProviderUnavailable, g.InitError())
	}

	img, err := DecodeDataURI(imageDataURI)
	if err != nil {
		return nil, providerErr(g.Name(), ErrInvalidImageData, err)
	}

	text, err := g.generate(ctx, models, []*genai.Part{
		{Text: ImageAnalysisPrompt()},
		{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
	})
	if err != nil {
		return nil, err
	}

	analysis, err := ParseAnalysis(text, ImageDefaults)
	if err != nil {
		return nil, providerErr(g.Name(), kindOf(err), err)
	}
	return analysis, nil
}

func (g *GeminiProvider) Chat(ctx context.Context, message, history string) (string, error) {
	models, ok := g.ready()
	if !ok {
		return "", providerErr(g.Name(), ErrProviderUnavailable, g.InitError())
	}
	return g.generate(ctx, models, []*genai.Part{{Text: ChatPrompt(message, history)}})
}

func (g *GeminiProvider) generate(ctx context.Context, models ContentGenerator, parts []*genai.Part) (string, error) {
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.7),
		TopP:        genai.Ptr[float32](0.95),
	}

	resp, err := models.GenerateContent(ctx, g.cfg.Model, contents, config)
	if err != nil {
		return "", providerErr(g.Name(), ErrTransport, fmt.Errorf("gemini generate content: %w", err))
	}
	return resp.Text(), nil
}
