package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/middleware"
	"github.com/fleveque/site-ledger/internal/model"
	"github.com/fleveque/site-ledger/internal/service"
)

// AssistantHandler serves the chat assistant and draft confirmation.
type AssistantHandler struct {
	assistant    *service.AssistantService
	transactions *service.TransactionService
	maxUpload    int64
	logger       *zap.Logger
}

// NewAssistantHandler creates a new AssistantHandler.
func NewAssistantHandler(assistant *service.AssistantService, transactions *service.TransactionService, maxUpload int64, logger *zap.Logger) *AssistantHandler {
	return &AssistantHandler{
		assistant:    assistant,
		transactions: transactions,
		maxUpload:    maxUpload,
		logger:       logger,
	}
}

type assistantMessageRequest struct {
	ProjectID string `json:"project_id"`
	Message   string `json:"message"`
}

// Message handles one chat message. JSON bodies carry text; multipart
// bodies may add a receipt "file" next to project_id and message fields.
// Provider failures come back as 200 with an apology in "reply".
// Route: POST /api/v1/assistant/messages
func (h *AssistantHandler) Message(c *gin.Context) {
	var req service.AssistantRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req.ProjectID = c.PostForm("project_id")
		req.Message = c.PostForm("message")
		if _, err := c.FormFile("file"); err == nil {
			data, ok := readUpload(c, "file", h.maxUpload)
			if !ok {
				return
			}
			req.Image = data
		}
	} else {
		var body assistantMessageRequest
		if !bindJSON(c, &body) {
			return
		}
		req.ProjectID = body.ProjectID
		req.Message = body.Message
	}

	reply, err := h.assistant.HandleMessage(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// Confirm stores an (edited) draft as a transaction.
// Route: POST /api/v1/transactions
func (h *AssistantHandler) Confirm(c *gin.Context) {
	var draft model.TransactionDraft
	if !bindJSON(c, &draft) {
		return
	}

	conf, err := h.transactions.Confirm(c.Request.Context(), middleware.UserID(c), draft)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, conf)
}

// List returns a project's transactions.
// Route: GET /api/v1/transactions?project_id=
func (h *AssistantHandler) List(c *gin.Context) {
	txs, err := h.transactions.List(c.Request.Context(), middleware.UserID(c), c.Query("project_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	c.JSON(http.StatusOK, txs)
}
