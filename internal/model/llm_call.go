package model

import "time"

// CallOperation names the kind of work an LLM call was made for.
type CallOperation string

const (
	OperationAnalyzeImage CallOperation = "analyze_image"
	OperationAnalyzeText  CallOperation = "analyze_text"
	OperationChat         CallOperation = "chat"
)

// LLMCall tracks each attempt against an LLM provider, successful or not,
// for cost monitoring and failover diagnostics.
type LLMCall struct {
	ID           string        `db:"id" json:"id"`
	UserID       string        `db:"user_id" json:"user_id"`
	Provider     ProviderName  `db:"provider" json:"provider"`
	Model        string        `db:"model" json:"model"`
	Operation    CallOperation `db:"operation" json:"operation"`
	Success      bool          `db:"success" json:"success"`
	DurationMs   *int64        `db:"duration_ms" json:"duration_ms,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// ProviderCallStats aggregates llm_calls rows for one provider.
type ProviderCallStats struct {
	Provider  ProviderName `db:"provider" json:"provider"`
	Total     int64        `db:"total" json:"total"`
	Succeeded int64        `db:"succeeded" json:"succeeded"`
}
