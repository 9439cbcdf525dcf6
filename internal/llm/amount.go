package llm

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleveque/site-ledger/internal/model"
)

// Indian-English magnitude words. decimal keeps "2.5 lakh" exactly 250000
// instead of drifting through float multiplication.
var magnitudes = map[string]decimal.Decimal{
	"thousand": decimal.NewFromInt(1_000),
	"k":        decimal.NewFromInt(1_000),
	"lakh":     decimal.NewFromInt(100_000),
	"lakhs":    decimal.NewFromInt(100_000),
	"lac":      decimal.NewFromInt(100_000),
	"lacs":     decimal.NewFromInt(100_000),
	"crore":    decimal.NewFromInt(10_000_000),
	"crores":   decimal.NewFromInt(10_000_000),
	"cr":       decimal.NewFromInt(10_000_000),
}

var amountPattern = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)(?:\s*(thousand|lakhs?|lacs?|crores?|cr|k)\b)?`)

// ParseVernacularAmount finds the first amount in text, applying a trailing
// magnitude word if present. "2.5 lakh" is 250000, "1 crore" is 10000000,
// "1,00,000" is 100000.
func ParseVernacularAmount(text string) (decimal.Decimal, bool) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}

	value, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Zero, false
	}

	if unit := strings.ToLower(m[2]); unit != "" {
		value = value.Mul(magnitudes[unit])
	}
	return value, true
}

var datePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`\b(\d{4})[/-](\d{1,2})[/-](\d{1,2})\b`), "2006-1-2"},
	{regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`), "2-1-2006"},
	{regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{2})\b`), "2-1-06"},
}

// ParseDate finds the first date in text. Day-first order is assumed for
// non-ISO dates, as written on Indian receipts.
func ParseDate(text string) (time.Time, bool) {
	for _, p := range datePatterns {
		m := p.re.FindString(text)
		if m == "" {
			continue
		}
		t, err := time.Parse(p.layout, strings.ReplaceAll(m, "/", "-"))
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var (
	incomeKeywords  = []string{"received", "receive", "payment", "advance", "income", "credit", "credited", "got"}
	expenseKeywords = []string{"paid", "pay", "expense", "cost", "purchase", "bought", "debit", "debited", "spent"}
)

// DetectTransactionType guesses income vs expense from keywords. The first
// keyword in reading order wins; no keyword leaves the type unresolved.
func DetectTransactionType(text string) model.TransactionType {
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		for _, k := range expenseKeywords {
			if word == k {
				return model.TypeExpense
			}
		}
		for _, k := range incomeKeywords {
			if word == k {
				return model.TypeIncome
			}
		}
	}
	return ""
}
