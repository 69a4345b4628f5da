package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mpesa_anal_server/internal/model/dto"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/response"
	"github.com/qs3c/mpesa_anal_server/internal/service"
)

type HistoryHandler struct {
	historyService *service.HistoryService
}

func NewHistoryHandler(historyService *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

// List 历史记录列表，最新在前
// GET /api/v1/history
func (h *HistoryHandler) List(c *gin.Context) {
	items, err := h.historyService.List(c.Request.Context())
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.SuccessList(c, len(items), items)
}

// Get 历史记录详情
// GET /api/v1/history/:id
func (h *HistoryHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	item, err := h.historyService.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, item)
}

// Delete 删除一条记录；记录不存在时 deleted 为 false
// DELETE /api/v1/history/:id
func (h *HistoryHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	deleted, err := h.historyService.Delete(c.Request.Context(), id)
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, dto.DeleteHistoryResponse{Deleted: deleted})
}

// Clear 清空历史
// DELETE /api/v1/history
func (h *HistoryHandler) Clear(c *gin.Context) {
	if err := h.historyService.Clear(c.Request.Context()); err != nil {
		response.ServerError(c, "")
		return
	}
	response.SuccessWithMessage(c, "history cleared", nil)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid record id")
		return 0, false
	}
	return id, true
}
