package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceName 服务名称
const ServiceName = "M-Pesa AI Analyzer"

type SystemHandler struct{}

func NewSystemHandler() *SystemHandler {
	return &SystemHandler{}
}

// Health 存活检查
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": ServiceName,
	})
}

// Index 服务说明和接口列表
// GET /
func (h *SystemHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": ServiceName + " API",
		"endpoints": gin.H{
			"session":  "POST /api/v1/session",
			"analyze":  "POST /api/v1/analyze-mpesa",
			"history":  "GET /api/v1/history",
			"record":   "GET /api/v1/history/:id",
			"delete":   "DELETE /api/v1/history/:id",
			"clear":    "DELETE /api/v1/history",
			"progress": "GET /api/v1/ws",
			"health":   "GET /health",
		},
	})
}
