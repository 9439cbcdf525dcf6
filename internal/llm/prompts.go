package llm

import (
	"fmt"
	"strings"

	"github.com/fleveque/site-ledger/internal/model"
)

// categoryBlock renders the closed taxonomy so the model can only pick from it.
func categoryBlock() string {
	var b strings.Builder
	b.WriteString("category MUST be EXACTLY one of these (case-sensitive):\n")
	b.WriteString("  Income: " + quoteList(model.IncomeCategories) + "\n")
	b.WriteString("  Expense: " + quoteList(model.ExpenseCategories) + "\n")
	b.WriteString("Use ONLY the categories listed above. Do not create new categories.\n")
	return b.String()
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

// ImageAnalysisPrompt is sent alongside a receipt image.
func ImageAnalysisPrompt() string {
	return "Analyze this receipt/transaction image and extract the following information as a JSON object:\n" +
		"{\n" +
		"  \"amount\": number (total amount),\n" +
		"  \"type\": \"income\" or \"expense\",\n" +
		"  \"category\": string,\n" +
		"  \"subcategory\": string (optional detail, e.g. \"Cement\"),\n" +
		"  \"description\": string (brief description of what this payment is for),\n" +
		"  \"vendorName\": string (merchant/vendor name or recipient name),\n" +
		"  \"transactionDate\": string (date in YYYY-MM-DD format),\n" +
		"  \"paymentMethod\": string (cash, card, UPI, cheque, bank transfer, ...),\n" +
		"  \"confidence\": number (0-1, your confidence in this analysis)\n" +
		"}\n\n" +
		categoryBlock() + "\n" +
		"Focus on:\n" +
		"- The total amount paid or received\n" +
		"- Whether this is income (money received) or expense (money paid)\n" +
		"- Who the vendor or recipient is\n" +
		"- Payment method if visible\n\n" +
		"If you cannot determine a field with confidence, omit it or use null.\n" +
		"Return ONLY the JSON object, no other text and no code fences."
}

// TextTransactionPrompt asks the model to turn a free-text message into the
// same JSON shape the image path produces.
func TextTransactionPrompt(message string) string {
	return fmt.Sprintf("Analyze this transaction message and extract details in JSON format.\n\n"+
		"Message: %q\n\n"+
		"Extract:\n"+
		"- amount: numeric value (convert words: \"thousand\" or \"k\" = 1000, \"lakh\" = 100000, \"crore\" = 10000000)\n"+
		"- type: \"income\" or \"expense\"\n"+
		"- %s"+
		"- description: brief description\n"+
		"- vendorName: vendor or client name if mentioned\n"+
		"- paymentMethod: cash, UPI, cheque, bank transfer if mentioned\n"+
		"- confidence: 0-1 score\n\n"+
		"Examples:\n"+
		"\"Received 1 lakh\" -> {\"amount\": 100000, \"type\": \"income\", \"category\": \"Current Account\", \"description\": \"Payment received\", \"confidence\": 0.9}\n"+
		"\"Paid 50000 for cement\" -> {\"amount\": 50000, \"type\": \"expense\", \"category\": \"Construction Material\", \"subcategory\": \"Cement\", \"description\": \"Cement purchase\", \"confidence\": 0.9}\n"+
		"\"Spent 2.5 lakh on labour\" -> {\"amount\": 250000, \"type\": \"expense\", \"category\": \"Labour\", \"description\": \"Labour payment\", \"confidence\": 0.9}\n"+
		"\"Got advance from client in cash\" -> {\"amount\": 0, \"type\": \"income\", \"category\": \"Cash\", \"description\": \"Client advance\", \"paymentMethod\": \"cash\", \"confidence\": 0.7}\n"+
		"\"Electrician Ramesh 12k for wiring\" -> {\"amount\": 12000, \"type\": \"expense\", \"category\": \"Electrical\", \"vendorName\": \"Ramesh\", \"description\": \"Wiring work\", \"confidence\": 0.85}\n\n"+
		"Respond with ONLY the JSON object, no other text.",
		message, categoryBlock())
}

// ChatPrompt prefixes an optional context block to a conversational message.
func ChatPrompt(message, context string) string {
	if strings.TrimSpace(context) == "" {
		return message
	}
	return "Context: " + context + "\n\nUser: " + message
}
