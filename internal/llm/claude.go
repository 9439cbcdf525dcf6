package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/model"
)

// ClaudeConfig holds the Claude adapter settings.
//
// When ProxyURL is set, requests go to the proxy instead of the Anthropic API
// and carry ProxyToken as a bearer token. The user's API key still gates
// availability and is still sent, so the proxy can forward it.
type ClaudeConfig struct {
	Model      string
	BaseURL    string
	ProxyURL   string
	ProxyToken string
	MaxTokens  int64
}

// ClaudeProvider implements Provider using the Anthropic Messages API.
type ClaudeProvider struct {
	cred   credential
	cfg    ClaudeConfig
	logger *zap.Logger
}

// NewClaudeProvider creates a Claude adapter with no credential set.
func NewClaudeProvider(cfg ClaudeConfig, logger *zap.Logger) *ClaudeProvider {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &ClaudeProvider{cfg: cfg, logger: logger}
}

func (c *ClaudeProvider) Name() model.ProviderName { return model.ProviderClaude }
func (c *ClaudeProvider) ModelName() string        { return c.cfg.Model }
func (c *ClaudeProvider) SetAPIKey(key string)     { c.cred.set(key) }
func (c *ClaudeProvider) IsAvailable() bool        { return c.cred.usable() }

// client builds an SDK client for the current key. Construction is cheap
// and never fails, so there is no cached handle to invalidate on SetAPIKey.
//
// Go note: the SDK retries 429/5xx twice by default. Failover across
// vendors is the retry strategy here, so a provider gets exactly one attempt.
func (c *ClaudeProvider) client() anthropic.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(c.cred.get()),
		option.WithMaxRetries(0),
	}
	switch {
	case c.cfg.ProxyURL != "":
		opts = append(opts, option.WithBaseURL(c.cfg.ProxyURL))
		if c.cfg.ProxyToken != "" {
			opts = append(opts, option.WithHeader("Authorization", "Bearer "+c.cfg.ProxyToken))
		}
	case c.cfg.BaseURL != "":
		opts = append(opts, option.WithBaseURL(c.cfg.BaseURL))
	}
	return anthropic.NewClient(opts...)
}

func (c *ClaudeProvider) AnalyzeTransaction(ctx context.Context, imageDataURI string) (*model.TransactionAnalysis, error) {
	if !c.IsAvailable() {
		return nil, providerErr(c.Name(), ErrProviderUnavailable, nil)
	}

	img, err := DecodeDataURI(imageDataURI)
	if err != nil {
		return nil, providerErr(c.Name(), ErrInvalidImageData, err)
	}

	c.logger.Debug("claude: analyzing image",
		zap.String("mime", img.MIMEType),
		zap.Int("bytes", len(img.Data)),
	)

	// Image first, then the instructions, as Anthropic recommends for vision.
	text, err := c.send(ctx, anthropic.NewUserMessage(
		anthropic.NewImageBlockBase64(img.MIMEType, img.Base64),
		anthropic.NewTextBlock(ImageAnalysisPrompt()),
	))
	if err != nil {
		return nil, err
	}

	analysis, err := ParseAnalysis(text, ImageDefaults)
	if err != nil {
		return nil, providerErr(c.Name(), kindOf(err), err)
	}
	return analysis, nil
}

func (c *ClaudeProvider) Chat(ctx context.Context, message, history string) (string, error) {
	if !c.IsAvailable() {
		return "", providerErr(c.Name(), ErrProviderUnavailable, nil)
	}
	return c.send(ctx, anthropic.NewUserMessage(anthropic.NewTextBlock(ChatPrompt(message, history))))
}

// send makes one Messages call and joins the text blocks of the reply.
func (c *ClaudeProvider) send(ctx context.Context, msg anthropic.MessageParam) (string, error) {
	client := c.client()
	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		Messages:  []anthropic.MessageParam{msg},
	})
	if err != nil {
		return "", providerErr(c.Name(), ErrTransport, fmt.Errorf("anthropic API call: %w", err))
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
