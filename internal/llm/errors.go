package llm

import (
	"errors"
	"fmt"

	"github.com/fleveque/site-ledger/internal/model"
)

// Failure kinds. Per-provider errors carry one of the first five and are
// caught by the failover loop; the last two are terminal.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrInvalidImageData    = errors.New("invalid image data")
	ErrNoStructuredOutput  = errors.New("no JSON object found in model response")
	ErrMalformedOutput     = errors.New("model returned malformed JSON")
	ErrTransport           = errors.New("provider request failed")

	ErrNoProvidersConfigured = errors.New("no AI providers configured, add your API keys in Settings")
	ErrAllProvidersFailed    = errors.New("all AI providers failed")
)

// ProviderError is a failure from one adapter. errors.Is matches both the
// Kind sentinel and anything in the wrapped cause.
type ProviderError struct {
	Provider model.ProviderName
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	case errors.Is(e.Err, e.Kind):
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
	}
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func providerErr(name model.ProviderName, kind, cause error) *ProviderError {
	return &ProviderError{Provider: name, Kind: kind, Err: cause}
}

// ExhaustedError is returned once every ranked provider has been tried.
// Only the last provider's error is kept; earlier ones are logged.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", ErrAllProvidersFailed, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrAllProvidersFailed, e.Last}
}

// kindOf picks the sentinel a parse error should be reported under.
func kindOf(err error) error {
	for _, kind := range []error{ErrInvalidImageData, ErrNoStructuredOutput, ErrMalformedOutput, ErrTransport} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrMalformedOutput
}

// ParseError wraps a ParseAnalysis failure as a per-provider error.
func ParseError(name model.ProviderName, err error) error {
	return providerErr(name, kindOf(err), err)
}
