package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"payment-engine/internal/models"
	"payment-engine/internal/services"
	"payment-engine/pkg/common"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type TransactionHandler struct {
	Transactions *services.TransactionService
	Receipts     *services.ReceiptService
	Reports      *services.ReconciliationService
}

func NewTransactionHandler(transactions *services.TransactionService, receipts *services.ReceiptService, reports *services.ReconciliationService) *TransactionHandler {
	return &TransactionHandler{
		Transactions: transactions,
		Receipts:     receipts,
		Reports:      reports,
	}
}

func (h *TransactionHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/transactions", h.CreateTransaction)
	r.GET("/transactions/:id", h.GetTransaction)
	r.POST("/transactions/:id/initialize", h.InitializeTransaction)
	r.POST("/transactions/:id/retry", h.RetryTransaction)
	r.POST("/transactions/:id/refund", h.RefundTransaction)
	r.POST("/transactions/:id/verify", h.VerifyTransaction)
	r.GET("/transactions/:id/receipt", h.GetReceipt)
	r.GET("/transactions/:id/receipt/download", h.DownloadReceipt)
	r.GET("/users/:userId/transactions", h.ListUserTransactions)
	r.GET("/reports/summary", h.GetSummary)
}

type CreateTransactionRequest struct {
	Reference  string          `json:"reference"`
	UserID     string          `json:"user_id" binding:"required"`
	PropertyID string          `json:"property_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" binding:"required"`
	Type       string          `json:"type" binding:"required"`
	Method     string          `json:"method" binding:"required"`
	Gateway    string          `json:"gateway" binding:"required"`
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%s: %w", err.Error(), models.ErrInvalidInput), nil)
		return
	}

	tx, created, err := h.Transactions.CreateTransaction(c.Request.Context(), services.CreateTransactionInput{
		Reference:  req.Reference,
		UserID:     req.UserID,
		PropertyID: req.PropertyID,
		Amount:     req.Amount,
		Currency:   models.Currency(req.Currency),
		Type:       models.TransactionType(req.Type),
		Method:     models.PaymentMethod(req.Method),
		Gateway:    req.Gateway,
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}

	if created {
		respondOK(c, http.StatusCreated, newTransactionView(tx), "Transaction created")
		return
	}
	respondOK(c, http.StatusOK, newTransactionView(tx), "Transaction already exists")
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	tx, err := h.Transactions.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, http.StatusOK, newTransactionView(tx), "success")
}

func (h *TransactionHandler) InitializeTransaction(c *gin.Context) {
	tx, err := h.Transactions.InitializeGatewaySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, tx)
		return
	}
	respondOK(c, http.StatusOK, newTransactionView(tx), "Gateway session opened")
}

func (h *TransactionHandler) RetryTransaction(c *gin.Context) {
	tx, err := h.Transactions.RetryTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, tx)
		return
	}
	respondOK(c, http.StatusOK, newTransactionView(tx), "Transaction retried")
}

func (h *TransactionHandler) RefundTransaction(c *gin.Context) {
	tx, err := h.Transactions.RequestRefund(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, http.StatusOK, newTransactionView(tx), "Transaction refunded")
}

func (h *TransactionHandler) VerifyTransaction(c *gin.Context) {
	tx, err := h.Transactions.VerifyTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, tx)
		return
	}
	respondOK(c, http.StatusOK, newTransactionView(tx), "success")
}

func (h *TransactionHandler) GetReceipt(c *gin.Context) {
	receipt, err := h.Receipts.GenerateReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, http.StatusOK, receipt, "success")
}

func (h *TransactionHandler) DownloadReceipt(c *gin.Context) {
	receipt, err := h.Receipts.GenerateReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.txt"`, receipt.ID))
	c.Header("ETag", `"`+receipt.Checksum+`"`)
	c.Data(http.StatusOK, receipt.ContentType, receipt.Content)
}

func (h *TransactionHandler) ListUserTransactions(c *gin.Context) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(c, "limit", defaultPageLimit)
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	txs, total, err := h.Transactions.ListUserTransactions(c.Request.Context(), c.Param("userId"), page, limit)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	views := make([]*TransactionView, 0, len(txs))
	for i := range txs {
		views = append(views, newTransactionView(&txs[i]))
	}
	c.JSON(http.StatusOK, common.PaginateResponse(views, total, page, limit, ""))
}

func (h *TransactionHandler) GetSummary(c *gin.Context) {
	report, err := h.Reports.Summarize(c.Request.Context(), services.ReportFilter{UserID: c.Query("user_id")})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, http.StatusOK, report, "success")
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}
