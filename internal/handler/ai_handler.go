package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/llm"
	"github.com/fleveque/site-ledger/internal/middleware"
	"github.com/fleveque/site-ledger/internal/service"
)

// AIHandler exposes the orchestration operations of the caller's session.
type AIHandler struct {
	ai        *service.AIService
	receipts  *service.ReceiptProcessor
	maxUpload int64
	logger    *zap.Logger
}

// NewAIHandler creates a new AIHandler. maxUpload caps multipart image
// uploads in bytes.
func NewAIHandler(ai *service.AIService, receipts *service.ReceiptProcessor, maxUpload int64, logger *zap.Logger) *AIHandler {
	return &AIHandler{ai: ai, receipts: receipts, maxUpload: maxUpload, logger: logger}
}

// Initialize (re)loads the caller's provider keys.
// Route: POST /api/v1/ai/initialize
func (h *AIHandler) Initialize(c *gin.Context) {
	_, res := h.ai.Initialize(c.Request.Context(), middleware.UserID(c))

	body := gin.H{"configured": res.Configured}
	if res.Configured == nil {
		body["configured"] = []string{}
	}
	if res.Degraded() {
		body["warning"] = res.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// Status reports in-memory adapter availability.
// Route: GET /api/v1/ai/status
func (h *AIHandler) Status(c *gin.Context) {
	sess := h.ai.Session(c.Request.Context(), middleware.UserID(c))
	c.JSON(http.StatusOK, sess.ProviderStatus())
}

// Ranked lists the providers a request would try, in order.
// Route: GET /api/v1/ai/providers/ranked
func (h *AIHandler) Ranked(c *gin.Context) {
	sess := h.ai.Session(c.Request.Context(), middleware.UserID(c))
	ranked, err := sess.RankedAvailableProviders(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := make([]gin.H, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, gin.H{
			"provider": r.Provider.Name(),
			"model":    r.Provider.ModelName(),
			"priority": r.Priority,
		})
	}
	c.JSON(http.StatusOK, out)
}

type analyzeImageRequest struct {
	Image string `json:"image" binding:"required"`
}

// AnalyzeImage extracts a transaction from a receipt. The image is either a
// data URI in a JSON body or a multipart "file" field.
// Route: POST /api/v1/ai/analyze/image
func (h *AIHandler) AnalyzeImage(c *gin.Context) {
	var uri string
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		data, ok := readUpload(c, "file", h.maxUpload)
		if !ok {
			return
		}
		prepared, err := h.receipts.Prepare(data)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		uri = llm.EncodeDataURI("image/jpeg", prepared)
	} else {
		var req analyzeImageRequest
		if !bindJSON(c, &req) {
			return
		}
		uri = req.Image
	}

	sess := h.ai.Session(c.Request.Context(), middleware.UserID(c))
	analysis, err := sess.AnalyzeTransaction(c.Request.Context(), uri)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

type messageRequest struct {
	Message string `json:"message" binding:"required"`
	Context string `json:"context"`
}

// AnalyzeText extracts a transaction from a free-text message.
// Route: POST /api/v1/ai/analyze/text
func (h *AIHandler) AnalyzeText(c *gin.Context) {
	var req messageRequest
	if !bindJSON(c, &req) {
		return
	}

	sess := h.ai.Session(c.Request.Context(), middleware.UserID(c))
	analysis, err := sess.AnalyzeTextTransaction(c.Request.Context(), req.Message)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// Chat returns a free-form reply.
// Route: POST /api/v1/ai/chat
func (h *AIHandler) Chat(c *gin.Context) {
	var req messageRequest
	if !bindJSON(c, &req) {
		return
	}

	sess := h.ai.Session(c.Request.Context(), middleware.UserID(c))
	reply, err := sess.Chat(c.Request.Context(), req.Message, req.Context)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

// readUpload reads a multipart file field, capped at limit bytes. On failure
// it has already written a 400.
func readUpload(c *gin.Context, field string, limit int64) ([]byte, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + field + " upload"})
		return nil, false
	}
	if limit > 0 && fh.Size > limit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return nil, false
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return nil, false
	}
	return data, true
}
