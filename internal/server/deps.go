package server

import (
	"github.com/fleveque/site-ledger/internal/handler"
	"github.com/fleveque/site-ledger/internal/service"
	"github.com/fleveque/site-ledger/internal/storage"
)

// Deps holds everything the routes need. main builds it; tests build it
// against a temp database and fake providers.
type Deps struct {
	DB           handler.Pinger
	AI           *service.AIService
	Settings     *service.SettingsService
	Assistant    *service.AssistantService
	Transactions *service.TransactionService
	Receipts     *service.ReceiptProcessor
	LLMCallRepo  storage.LLMCallRepository
}
