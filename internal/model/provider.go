package model

import (
	"strings"
	"time"
)

// ProviderName identifies an LLM vendor. It doubles as the credential store key.
type ProviderName string

const (
	ProviderGemini ProviderName = "gemini"
	ProviderClaude ProviderName = "claude"
	ProviderOpenAI ProviderName = "openai"
)

// KnownProviders lists every vendor the service can build an adapter for.
var KnownProviders = []ProviderName{ProviderGemini, ProviderClaude, ProviderOpenAI}

// ValidProvider checks if a string names a known vendor.
func ValidProvider(s string) bool {
	for _, p := range KnownProviders {
		if string(p) == s {
			return true
		}
	}
	return false
}

// ProviderConfig is a per-user credential row: which vendor, which key,
// whether it is switched on, and where it sits in the failover order.
// At most one row exists per (user_id, provider).
type ProviderConfig struct {
	ID        string       `db:"id" json:"id"`
	UserID    string       `db:"user_id" json:"user_id" validate:"required"`
	Provider  ProviderName `db:"provider" json:"provider" validate:"required,oneof=gemini claude openai"`
	APIKey    string       `db:"api_key" json:"api_key,omitempty" validate:"max=512"`
	IsActive  bool         `db:"is_active" json:"is_active"`
	Priority  int          `db:"priority" json:"priority" validate:"min=1"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// MaskedKey returns the API key with everything but the edges hidden,
// for display in settings listings.
func (c ProviderConfig) MaskedKey() string {
	k := c.APIKey
	if len(k) <= 8 {
		return strings.Repeat("*", len(k))
	}
	return k[:4] + strings.Repeat("*", len(k)-8) + k[len(k)-4:]
}
