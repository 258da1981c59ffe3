package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"payment-engine/internal/gateway"
	"payment-engine/pkg/common"
)

const maxWebhookBody = 1 << 20

// CallbackDispatcher accepts a raw callback for processing, either on a
// queue or inline.
type CallbackDispatcher interface {
	DispatchCallback(ctx context.Context, gateway string, headers http.Header, body []byte) error
}

type WebhookHandler struct {
	Gateways   *gateway.Registry
	Dispatcher CallbackDispatcher
}

func NewWebhookHandler(gateways *gateway.Registry, dispatcher CallbackDispatcher) *WebhookHandler {
	return &WebhookHandler{Gateways: gateways, Dispatcher: dispatcher}
}

func (h *WebhookHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhooks/:gateway", h.Receive)
}

// Receive acknowledges a gateway callback once it has been accepted for
// processing. Gateways redeliver anything that is not acknowledged with 2xx.
func (h *WebhookHandler) Receive(c *gin.Context) {
	name := c.Param("gateway")
	if _, err := h.Gateways.Get(name); err != nil {
		c.JSON(http.StatusNotFound, common.NewErrorResponse("Unknown gateway", nil, http.StatusNotFound).WithCode("unknown_gateway"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Unreadable body", nil, http.StatusBadRequest).WithCode("invalid_input"))
		return
	}

	err = h.Dispatcher.DispatchCallback(c.Request.Context(), name, c.Request.Header.Clone(), body)
	switch {
	case err == nil:
		respondOK(c, http.StatusOK, gin.H{"received": true}, "Callback received")
	case gateway.IsPermanent(err):
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Callback rejected", gin.H{"error": err.Error()}, http.StatusBadRequest).WithCode("callback_rejected"))
	default:
		respondError(c, err, nil)
	}
}
