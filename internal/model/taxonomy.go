package model

// The category taxonomy is closed: models are told to pick from these lists
// and drafts are snapped back onto them.
var (
	IncomeCategories = []string{
		"Current Account",
		"Savings Account",
		"Cash",
		"Cheque",
		"Others",
	}

	ExpenseCategories = []string{
		"Measurements",
		"Designer/Architect",
		"Construction Material",
		"Labour",
		"Carpentry",
		"Electrical",
		"Plumbing",
		"Painting",
		"Furniture & Fixtures",
		"Transport",
		"Site Expenses",
		"Others",
	}
)

// Categories returns the allowed categories for a transaction type, or nil
// when the type is unresolved.
func Categories(t TransactionType) []string {
	switch t {
	case TypeIncome:
		return IncomeCategories
	case TypeExpense:
		return ExpenseCategories
	default:
		return nil
	}
}

// IsCategory reports whether category is an exact member of the list for t.
func IsCategory(t TransactionType, category string) bool {
	for _, c := range Categories(t) {
		if c == category {
			return true
		}
	}
	return false
}

// DefaultCategory is what the normalizer fills in when a model omits the
// category: "Current Account" for income, "Others" for expense.
func DefaultCategory(t TransactionType) string {
	switch t {
	case TypeIncome:
		return "Current Account"
	case TypeExpense:
		return "Others"
	default:
		return ""
	}
}

// DraftCategory is the category a pending draft starts with when the
// analysis had none. Expense drafts lean towards material purchases, which
// dominate site spending.
func DraftCategory(t TransactionType) string {
	switch t {
	case TypeIncome:
		return "Current Account"
	case TypeExpense:
		return "Construction Material"
	default:
		return ""
	}
}
