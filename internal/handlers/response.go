package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"payment-engine/internal/logger"
	"payment-engine/internal/models"
	"payment-engine/pkg/common"
)

type errorClass struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters: the first match wins. A refund failure wraps the gateway
// error, and a non-retryable failure wraps the permanent gateway error.
var errorClasses = []errorClass{
	{models.ErrInvalidInput, http.StatusBadRequest, "invalid_input", "The request is invalid"},
	{models.ErrNotFound, http.StatusNotFound, "not_found", "Transaction not found"},
	{models.ErrDuplicateReference, http.StatusConflict, "duplicate_reference", "A transaction with this reference already exists"},
	{models.ErrInvalidState, http.StatusConflict, "invalid_state", "The transaction status does not allow this operation"},
	{models.ErrNotRetryable, http.StatusUnprocessableEntity, "not_retryable", "The transaction cannot be retried"},
	{models.ErrRefundFailed, http.StatusBadGateway, "refund_failed", "The gateway did not accept the refund"},
	{models.ErrGatewayTimeout, http.StatusGatewayTimeout, "gateway_timeout", "The gateway did not answer in time"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "gateway_timeout", "The gateway did not answer in time"},
	{models.ErrTransientGateway, http.StatusServiceUnavailable, "gateway_unavailable", "The gateway is temporarily unavailable"},
	{models.ErrPermanentGateway, http.StatusUnprocessableEntity, "gateway_rejected", "The gateway rejected the request"},
}

func classify(err error) (int, string, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.status, c.code, c.message
		}
	}
	return http.StatusInternalServerError, "internal_error", "Something went wrong"
}

// respondError maps a service error onto the HTTP error envelope. tx, when
// set, rides along, e.g. the failed record after a gateway error.
func respondError(c *gin.Context, err error, tx *models.Transaction) {
	status, code, message := classify(err)

	log := logger.FromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Msg("Request failed")
	} else {
		log.Warn().Err(err).Str("code", code).Msg("Request rejected")
	}

	body := gin.H{"error": err.Error()}
	if status == http.StatusInternalServerError {
		body = gin.H{}
	}
	if tx != nil {
		body["transaction"] = newTransactionView(tx)
	}
	c.JSON(status, common.NewErrorResponse(message, body, status).WithCode(code))
}

func respondOK(c *gin.Context, status int, data interface{}, message string) {
	resp := common.NewSuccessResponse(data, message)
	resp.Status = status
	c.JSON(status, resp)
}

// TransactionView is the API shape of a transaction.
type TransactionView struct {
	*models.Transaction
	FormattedAmount string `json:"formatted_amount"`
}

func newTransactionView(tx *models.Transaction) *TransactionView {
	if tx == nil {
		return nil
	}
	return &TransactionView{
		Transaction:     tx,
		FormattedAmount: common.FormatAmount(tx.Amount, string(tx.Currency)),
	}
}
