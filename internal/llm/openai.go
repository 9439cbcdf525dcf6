package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/model"
)

// OpenAIConfig holds the OpenAI adapter settings. BaseURL also lets the
// adapter talk to any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	Model     string
	BaseURL   string
	MaxTokens int
}

// OpenAIProvider implements Provider using the Chat Completions API.
// Images are sent as data-URI image_url parts.
type OpenAIProvider struct {
	cred   credential
	cfg    OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIProvider creates an OpenAI adapter with no credential set.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &OpenAIProvider{cfg: cfg, logger: logger}
}

func (o *OpenAIProvider) Name() model.ProviderName { return model.ProviderOpenAI }
func (o *OpenAIProvider) ModelName() string        { return o.cfg.Model }
func (o *OpenAIProvider) SetAPIKey(key string)     { o.cred.set(key) }
func (o *OpenAIProvider) IsAvailable() bool        { return o.cred.usable() }

func (o *OpenAIProvider) client() *openai.Client {
	cfg := openai.DefaultConfig(o.cred.get())
	if o.cfg.BaseURL != "" {
		cfg.BaseURL = o.cfg.BaseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func (o *OpenAIProvider) AnalyzeTransaction(ctx context.Context, imageDataURI string) (*model.TransactionAnalysis, error) {
	if !o.IsAvailable() {
		return nil, providerErr(o.Name(), ErrProviderUnavailable, nil)
	}

	// Decoded only to validate; the API takes the data URI as-is.
	img, err := DecodeDataURI(imageDataURI)
	if err != nil {
		return nil, providerErr(o.Name(), ErrInvalidImageData, err)
	}

	text, err := o.complete(ctx, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: ImageAnalysisPrompt()},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    EncodeDataURI(img.MIMEType, img.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	analysis, err := ParseAnalysis(text, ImageDefaults)
	if err != nil {
		return nil, providerErr(o.Name(), kindOf(err), err)
	}
	return analysis, nil
}

func (o *OpenAIProvider) Chat(ctx context.Context, message, history string) (string, error) {
	if !o.IsAvailable() {
		return "", providerErr(o.Name(), ErrProviderUnavailable, nil)
	}
	return o.complete(ctx, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: ChatPrompt(message, history),
	})
}

func (o *OpenAIProvider) complete(ctx context.Context, msg openai.ChatCompletionMessage) (string, error) {
	resp, err := o.client().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.cfg.Model,
		MaxTokens: o.cfg.MaxTokens,
		Messages:  []openai.ChatCompletionMessage{msg},
	})
	if err != nil {
		return "", providerErr(o.Name(), ErrTransport, fmt.Errorf("openai API call: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", providerErr(o.Name(), ErrNoStructuredOutput, fmt.Errorf("openai returned no choices"))
	}

	o.logger.Debug("openai: completion done",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
