package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/llm"
	"github.com/fleveque/site-ledger/internal/model"
)

// Below this confidence the assistant asks follow-up questions.
const lowConfidence = 0.7

// Category names this close to a known one are treated as typos of it.
const maxSnapDistance = 2

// AssistantRequest is one user message: text, a receipt image, or both.
// When an image is present it is what gets analyzed.
type AssistantRequest struct {
	ProjectID string
	Message   string
	Image     []byte
}

// AssistantReply is what the chat shows back: the reply text, the raw
// analysis, and a pending draft the user can edit and confirm.
type AssistantReply struct {
	Reply     string                     `json:"reply"`
	Analysis  *model.TransactionAnalysis `json:"analysis,omitempty"`
	Draft     *model.TransactionDraft    `json:"draft,omitempty"`
	ReceiptID string                     `json:"receipt_id,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// AssistantService drives the chat flow on top of a user's Session.
type AssistantService struct {
	ai       *AIService
	receipts *ReceiptProcessor
	now      func() time.Time
	logger   *zap.Logger
}

// NewAssistantService creates an AssistantService.
func NewAssistantService(ai *AIService, receipts *ReceiptProcessor, logger *zap.Logger) *AssistantService {
	return &AssistantService{ai: ai, receipts: receipts, now: time.Now, logger: logger}
}

// HandleMessage analyzes a message and builds the reply. Provider failures
// never surface as errors: they become an apology in the reply. Only bad
// input and local storage failures are returned as errors.
func (s *AssistantService) HandleMessage(ctx context.Context, userID string, req AssistantRequest) (*AssistantReply, error) {
	if req.ProjectID == "" {
		return nil, invalidInput("project_id is required")
	}
	if strings.TrimSpace(req.Message) == "" && len(req.Image) == 0 {
		return nil, invalidInput("message or image is required")
	}

	sess := s.ai.Session(ctx, userID)
	reply := &AssistantReply{}

	var (
		analysis *model.TransactionAnalysis
		err      error
	)
	if len(req.Image) > 0 {
		prepared, perr := s.receipts.Prepare(req.Image)
		if perr != nil {
			return nil, perr
		}
		reply.ReceiptID, err = s.receipts.Save(userID, prepared)
		if err != nil {
			return nil, err
		}
		analysis, err = sess.AnalyzeTransaction(ctx, llm.EncodeDataURI("image/jpeg", prepared))
	} else {
		analysis, err = sess.AnalyzeTextTransaction(ctx, req.Message)
	}

	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		s.logger.Warn("assistant analysis failed", zap.String("user_id", userID), zap.Error(err))
		reply.Reply = apology(err)
		reply.Error = err.Error()
		return reply, nil
	}

	reply.Analysis = analysis

	// The text path may leave the type unresolved. Keywords in the user's
	// own message are enough to seed the draft; the analysis stays as the
	// model returned it.
	seed := *analysis
	if !seed.Type.Valid() && len(req.Image) == 0 {
		seed.Type = llm.DetectTransactionType(req.Message)
	}

	reply.Reply = describe(&seed)
	reply.Draft = s.draft(req.ProjectID, reply.ReceiptID, &seed)
	return reply, nil
}

func apology(err error) string {
	switch {
	case errors.Is(err, llm.ErrNoProvidersConfigured):
		return "Sorry, I can't analyze that yet: no AI providers are configured. Add your API keys in Settings."
	case errors.Is(err, llm.ErrAllProvidersFailed):
		return "Sorry, I couldn't analyze that. " + err.Error() + ". Please check your AI provider configuration in Settings."
	default:
		return "Sorry, I encountered an error: " + err.Error()
	}
}

// describe renders the analysis as the assistant's chat reply.
func describe(a *model.TransactionAnalysis) string {
	parts := []string{"I've analyzed your transaction."}

	if a.Amount > 0 {
		parts = append(parts, fmt.Sprintf("I found an amount of %s.", FormatINR(a.Amount)))
	} else {
		parts = append(parts, "I couldn't detect a specific amount.")
	}

	if a.Type.Valid() {
		parts = append(parts, fmt.Sprintf("This appears to be an %s.", a.Type))
	} else {
		parts = append(parts, "Could you clarify if this is income or expense?")
	}

	if a.Category != "" {
		parts = append(parts, fmt.Sprintf("I've categorized this as %q.", a.Category))
	}

	if a.Confidence < lowConfidence {
		parts = append(parts, "Let me ask a few questions to get more details.")
	} else {
		parts = append(parts, "The details look good!")
	}
	return strings.Join(parts, " ")
}

// draft seeds a pending transaction. There is nothing to confirm without
// both an amount and a type.
func (s *AssistantService) draft(projectID, receiptID string, a *model.TransactionAnalysis) *model.TransactionDraft {
	if a.Amount <= 0 || !a.Type.Valid() {
		return nil
	}

	date := s.now().Format(time.DateOnly)
	if d, ok := llm.ParseDate(a.TransactionDate); ok {
		date = d.Format(time.DateOnly)
	}

	return &model.TransactionDraft{
		ProjectID:       projectID,
		Amount:          a.Amount,
		Type:            a.Type,
		Category:        snapCategory(a.Type, a.Category),
		Subcategory:     a.Subcategory,
		Description:     a.Description,
		VendorName:      a.VendorName,
		PaymentMethod:   a.PaymentMethod,
		TransactionDate: date,
		ReceiptID:       receiptID,
	}
}

// snapCategory maps a model-supplied category onto the closed taxonomy:
// exact match, then case-insensitive, then the nearest name within
// maxSnapDistance edits. Anything else becomes the type's draft category.
func snapCategory(t model.TransactionType, category string) string {
	c := strings.TrimSpace(category)
	if c == "" {
		return model.DraftCategory(t)
	}
	if model.IsCategory(t, c) {
		return c
	}

	lower := strings.ToLower(c)
	best, bestDist := "", maxSnapDistance+1
	for _, known := range model.Categories(t) {
		if strings.EqualFold(known, c) {
			return known
		}
		if d := levenshtein.ComputeDistance(strings.ToLower(known), lower); d < bestDist {
			best, bestDist = known, d
		}
	}
	if best != "" {
		return best
	}
	return model.DraftCategory(t)
}
