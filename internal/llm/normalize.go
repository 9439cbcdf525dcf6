package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/fleveque/site-ledger/internal/model"
)

// NormalizeOptions controls the defaults applied to missing fields.
type NormalizeOptions struct {
	// FallbackType is used when the model's type is not exactly "income" or
	// "expense". The empty value leaves the type unresolved.
	FallbackType model.TransactionType

	// FallbackDescription replaces a missing description.
	FallbackDescription string

	// DefaultConfidence replaces a missing or out-of-range confidence.
	DefaultConfidence float64
}

// ImageDefaults are applied to receipt-image analyses: an unresolved type
// becomes an expense.
var ImageDefaults = NormalizeOptions{
	FallbackType:        model.TypeExpense,
	FallbackDescription: "Transaction",
	DefaultConfidence:   0.8,
}

// TextDefaults are applied to free-text analyses. Unlike the image path the
// type stays unresolved when the model leaves it out, and the user's own
// message stands in for a missing description.
func TextDefaults(message string) NormalizeOptions {
	desc := strings.TrimSpace(message)
	if desc == "" {
		desc = "Transaction"
	}
	return NormalizeOptions{
		FallbackDescription: desc,
		DefaultConfidence:   0.7,
	}
}

// Normalize coerces an untrusted decoded JSON object into a
// TransactionAnalysis. It never fails: bad fields fall back to defaults.
func Normalize(raw map[string]any, opts NormalizeOptions) model.TransactionAnalysis {
	if raw == nil {
		raw = map[string]any{}
	}

	out := model.TransactionAnalysis{
		Amount:          amountField(raw["amount"]),
		Type:            opts.FallbackType,
		Subcategory:     stringField(raw["subcategory"]),
		Description:     stringField(raw["description"]),
		VendorName:      stringField(raw["vendorName"]),
		TransactionDate: stringField(raw["transactionDate"]),
		PaymentMethod:   stringField(raw["paymentMethod"]),
		Confidence:      opts.DefaultConfidence,
	}

	if s, ok := raw["type"].(string); ok {
		if t := model.TransactionType(s); t.Valid() {
			out.Type = t
		}
	}

	out.Category = stringField(raw["category"])
	if out.Category == "" {
		out.Category = model.DefaultCategory(out.Type)
	}

	if out.Description == "" {
		out.Description = opts.FallbackDescription
	}

	if c, ok := raw["confidence"].(float64); ok && !math.IsNaN(c) && c >= 0 && c <= 1 {
		out.Confidence = c
	}

	return out
}

// ParseAnalysis pulls the JSON object out of a model reply and normalizes it.
func ParseAnalysis(text string, opts NormalizeOptions) (*model.TransactionAnalysis, error) {
	span, ok := ExtractJSONObject(text)
	if !ok {
		return nil, ErrNoStructuredOutput
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	analysis := Normalize(raw, opts)
	return &analysis, nil
}

// amountField accepts finite numbers and, leniently, numeric strings such as
// "₹12,500" or "2.5 lakh". Anything else is the undetermined sentinel 0.
// Amounts are magnitudes; the sign is carried by the transaction type.
func amountField(v any) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return math.Abs(n)
	case string:
		if d, ok := ParseVernacularAmount(n); ok {
			f, _ := d.Abs().Float64()
			return f
		}
	}
	return 0
}

func stringField(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
