// Package llm wraps each LLM vendor behind one Provider interface and holds
// the shared pieces every adapter needs: prompts, JSON extraction from free
// text, and normalization of model output into a TransactionAnalysis.
//
// Shared behavior is composed from free functions, not inherited. Each
// adapter embeds a credential and calls the same helpers.
package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/fleveque/site-ledger/internal/model"
)

// Provider is the capability every vendor adapter exposes.
//
// SetAPIKey never fails: a key that cannot be used (empty, a placeholder, or
// one the vendor client refuses) leaves the adapter unavailable instead.
type Provider interface {
	Name() model.ProviderName
	ModelName() string
	SetAPIKey(key string)
	IsAvailable() bool
	AnalyzeTransaction(ctx context.Context, imageDataURI string) (*model.TransactionAnalysis, error)
	Chat(ctx context.Context, message, history string) (string, error)
}

// placeholderKeys are values that leak in from unset environment variables
// or form fields and must never count as a real credential.
var placeholderKeys = map[string]struct{}{
	"undefined": {},
	"null":      {},
}

// UsableKey reports whether key looks like a real credential.
func UsableKey(key string) bool {
	k := strings.TrimSpace(key)
	if k == "" {
		return false
	}
	_, placeholder := placeholderKeys[k]
	return !placeholder
}

// credential holds one API key. Adapters are shared by concurrent requests
// of the same user, so access goes through a lock.
type credential struct {
	mu  sync.RWMutex
	key string
}

func (c *credential) set(key string) {
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()
}

func (c *credential) get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

func (c *credential) usable() bool {
	return UsableKey(c.get())
}

// Registry is a fixed, ordered table of adapters keyed by vendor name.
// Registration order is the order status snapshots are reported in.
type Registry struct {
	order  []model.ProviderName
	byName map[model.ProviderName]Provider
}

// NewRegistry builds a registry from the given adapters. A later adapter
// with the same name replaces an earlier one.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byName: make(map[model.ProviderName]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, exists := r.byName[p.Name()]; !exists {
			r.order = append(r.order, p.Name())
		}
		r.byName[p.Name()] = p
	}
	return r
}

// Get looks up the adapter for a vendor.
func (r *Registry) Get(name model.ProviderName) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// All returns the adapters in registration order.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
