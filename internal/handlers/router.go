package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the gin engine with every API route under /api/v1.
func NewRouter(transactions *TransactionHandler, webhooks *WebhookHandler) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(), RequestLogger())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Welcome To Payment Engine",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	transactions.RegisterRoutes(v1)
	webhooks.RegisterRoutes(v1)

	return r
}
