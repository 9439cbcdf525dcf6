package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/model"
)

func TestUsableKey(t *testing.T) {
	assert.True(t, UsableKey("sk-live-123"))
	for _, k := range []string{"", "   ", "undefined", "null"} {
		assert.False(t, UsableKey(k), "%q", k)
	}
}

func TestRegistry_OrderAndLookup(t *testing.T) {
	logger := zap.NewNop()
	gemini := NewGeminiProvider(GeminiConfig{}, logger)
	claude := NewClaudeProvider(ClaudeConfig{}, logger)
	openai := NewOpenAIProvider(OpenAIConfig{}, logger)

	r := NewRegistry(gemini, claude, nil, openai)

	all := r.All()
	if assert.Len(t, all, 3) {
		assert.Equal(t, model.ProviderGemini, all[0].Name())
		assert.Equal(t, model.ProviderClaude, all[1].Name())
		assert.Equal(t, model.ProviderOpenAI, all[2].Name())
	}

	p, ok := r.Get(model.ProviderClaude)
	assert.True(t, ok)
	assert.Same(t, claude, p)

	_, ok = r.Get("mistral")
	assert.False(t, ok)
}

func TestSetAPIKey_PlaceholderLeavesAdapterUnavailable(t *testing.T) {
	p := NewClaudeProvider(ClaudeConfig{}, zap.NewNop())
	assert.False(t, p.IsAvailable())

	p.SetAPIKey("undefined")
	assert.False(t, p.IsAvailable())

	p.SetAPIKey("sk-ant-123")
	assert.True(t, p.IsAvailable())

	p.SetAPIKey("")
	assert.False(t, p.IsAvailable())
}
