package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/h2non/bimg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/llm"
	"github.com/fleveque/site-ledger/internal/model"
	"github.com/fleveque/site-ledger/internal/storage"
)

// createTestPNG generates a solid-color PNG in memory.
func createTestPNG(width, height int, c color.Color) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err) // only in tests
	}
	return buf.Bytes()
}

func newAssistantHarness(t *testing.T) (*AssistantService, *harness, *storage.ReceiptStore) {
	t.Helper()
	h := newHarness(t)
	store, err := storage.NewReceiptStore(t.TempDir())
	require.NoError(t, err)

	a := NewAssistantService(h.svc, NewReceiptProcessor(store, 0), zap.NewNop())
	a.now = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }
	return a, h, store
}

func TestAssistant_TextMessageBuildsDraft(t *testing.T) {
	a, h, _ := newAssistantHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.gemini.chat = chatReply(`{"amount": 250000, "type": "expense", "category": "labor", "description": "Labour payment", "confidence": 0.9}`)

	got, err := a.HandleMessage(context.Background(), testUser, AssistantRequest{ProjectID: "villa", Message: "Spent 2.5 lakh on labour"})
	require.NoError(t, err)

	assert.Equal(t,
		`I've analyzed your transaction. I found an amount of ₹2,50,000. This appears to be an expense. I've categorized this as "labor". The details look good!`,
		got.Reply)
	require.NotNil(t, got.Draft)
	assert.Equal(t, "villa", got.Draft.ProjectID)
	assert.Equal(t, "Labour", got.Draft.Category, "near-miss category snaps onto the taxonomy")
	assert.Equal(t, "2024-06-01", got.Draft.TransactionDate)
	assert.Empty(t, got.Error)
}

func TestAssistant_NoDraftWithoutType(t *testing.T) {
	a, h, _ := newAssistantHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.gemini.chat = chatReply(`{"amount": 4000, "confidence": 0.5}`)

	got, err := a.HandleMessage(context.Background(), testUser, AssistantRequest{ProjectID: "villa", Message: "4000 tiles"})
	require.NoError(t, err)

	assert.Nil(t, got.Draft)
	assert.Contains(t, got.Reply, "Could you clarify if this is income or expense?")
	assert.Contains(t, got.Reply, "Let me ask a few questions")
}

func TestAssistant_TypeFromMessageKeywords(t *testing.T) {
	a, h, _ := newAssistantHarness(t)
	h.store.add(testUser, model.ProviderGemini, "g-key", 1)
	h.gemini.chat = chatReply(`{"amount": 100000, "confidence": 0.9}`)

	got, err := a.HandleMessage(context.Background(), testUser, AssistantRequest{ProjectID: "villa", Message: "Received 1 lakh advance"})
	require.NoError(t, err)

	assert.False(t, got.Analysis.Type.Valid(), "analysis is returned as the model gave it")
	require.NotNil(t, got.Draft)
	assert.Equal(t, model.TypeIncome, got.Draft.Type)
	assert.Equal(t, "Current Account", got.Draft.Category)
	assert.Contains(t, got.Reply, "This appears to be an income.")
}

func TestAssistant_ProviderFailureBecomesApology(t *testing.T) {
	a, _, _ := newAssistantHarness(t)

	got, err := a.HandleMessage(context.Background(), testUser, AssistantRequest{ProjectID: "villa", Message: "Paid 500"})
	require.NoError(t, err)

	assert.Contains(t, got.Reply, "Sorry")
	assert.Contains(t, got.Reply, "Settings")
	assert.Equal(t, llm.ErrNoProvidersConfigured.Error(), got.Error)
	assert.Nil(t, got.Draft)
}

func TestAssistant_RejectsEmptyRequest(t *testing.T) {
	a, _, _ := newAssistantHarness(t)

	_, err := a.HandleMessage(context.Background(), testUser, AssistantRequest{ProjectID: "villa"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.HandleMessage(context.Background(), testUser, AssistantRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssistant_ImageMessageStoresReceipt(t *testing.T) {
	a, h, store := newAssistantHarness(t)
	h.store.add(testUser, model.ProviderClaude, "c-key", 1)
	h.claude.analyze = analyzeOK(&model.TransactionAnalysis{
		Amount: 1200, Type: model.TypeIncome, Description: "Advance", TransactionDate: "15/03/2024", Confidence: 0.8,
	})

	got, err := a.HandleMessage(context.Background(), testUser, AssistantRequest{
		ProjectID: "villa",
		Image:     createTestPNG(64, 32, color.RGBA{R: 200, G: 200, B: 200, A: 255}),
	})
	require.NoError(t, err)

	require.NotEmpty(t, got.ReceiptID)
	assert.True(t, store.Exists(testUser, got.ReceiptID))
	assert.Contains(t, h.claude.lastInput, "data:image/jpeg;base64,")

	require.NotNil(t, got.Draft)
	assert.Equal(t, "Current Account", got.Draft.Category)
	assert.Equal(t, "2024-03-15", got.Draft.TransactionDate)
	assert.Equal(t, got.ReceiptID, got.Draft.ReceiptID)
}

func TestAssistant_UndecodableImage(t *testing.T) {
	a, _, _ := newAssistantHarness(t)

	_, err := a.HandleMessage(context.Background(), testUser, AssistantRequest{ProjectID: "villa", Image: []byte("not an image")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReceiptProcessor_DownscalesToJPEG(t *testing.T) {
	store, err := storage.NewReceiptStore(t.TempDir())
	require.NoError(t, err)
	p := NewReceiptProcessor(store, 100)

	out, err := p.Prepare(createTestPNG(400, 200, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)

	img := bimg.NewImage(out)
	assert.Equal(t, "jpeg", img.Type())
	size, err := img.Size()
	require.NoError(t, err)
	assert.Equal(t, 100, size.Width)
	assert.Equal(t, 50, size.Height)
}

func TestReceiptProcessor_KeepsSmallImages(t *testing.T) {
	store, err := storage.NewReceiptStore(t.TempDir())
	require.NoError(t, err)
	p := NewReceiptProcessor(store, 0)

	out, err := p.Prepare(createTestPNG(40, 80, color.White))
	require.NoError(t, err)

	size, err := bimg.NewImage(out).Size()
	require.NoError(t, err)
	assert.Equal(t, 40, size.Width)
	assert.Equal(t, 80, size.Height)
}

func TestSnapCategory(t *testing.T) {
	tests := []struct {
		typ  model.TransactionType
		in   string
		want string
	}{
		{model.TypeExpense, "Plumbing", "Plumbing"},
		{model.TypeExpense, "plumbing", "Plumbing"},
		{model.TypeExpense, "Electricals", "Electrical"},
		{model.TypeExpense, "Materials", "Construction Material"},
		{model.TypeExpense, "", "Construction Material"},
		{model.TypeIncome, "current acount", "Current Account"},
		{model.TypeIncome, "Salary", "Current Account"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, snapCategory(tt.typ, tt.in), "%s/%q", tt.typ, tt.in)
	}
}

func TestFormatINR(t *testing.T) {
	tests := map[float64]string{
		0:        "₹0",
		999:      "₹999",
		1000:     "₹1,000",
		250000:   "₹2,50,000",
		1234567:  "₹12,34,567",
		10000000: "₹1,00,00,000",
		4999.6:   "₹5,000",
		-15000:   "-₹15,000",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatINR(in), "%v", in)
	}
}
