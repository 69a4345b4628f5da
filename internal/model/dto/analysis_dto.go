package dto

import (
	"time"

	"github.com/qs3c/mpesa_anal_server/internal/model"
)

// AnalyzeResponse 提交分析的响应
type AnalyzeResponse struct {
	RecordID      int64                `json:"record_id"`
	Filename      string               `json:"filename"`
	Status        string               `json:"status"`
	DisplayStatus string               `json:"display_status"`
	Result        model.AnalysisResult `json:"result"`
}

// HistoryItem 历史记录
type HistoryItem struct {
	ID            int64                `json:"id"`
	Filename      string               `json:"filename"`
	Timestamp     time.Time            `json:"timestamp"`
	Status        string               `json:"status"`
	DisplayStatus string               `json:"display_status"`
	Result        model.AnalysisResult `json:"result"`
}

// DeleteHistoryResponse 删除结果
type DeleteHistoryResponse struct {
	Deleted bool `json:"deleted"`
}

// SessionResponse 会话令牌
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"` // 秒
}

// NewHistoryItem 记录转换为响应
func NewHistoryItem(r model.HistoryRecord) HistoryItem {
	return HistoryItem{
		ID:            r.ID,
		Filename:      r.Filename,
		Timestamp:     r.Timestamp,
		Status:        r.Status,
		DisplayStatus: model.DisplayStatus(r.Status),
		Result:        r.Result,
	}
}

// NewAnalyzeResponse 新记录转换为提交响应
func NewAnalyzeResponse(r model.HistoryRecord) AnalyzeResponse {
	return AnalyzeResponse{
		RecordID:      r.ID,
		Filename:      r.Filename,
		Status:        r.Status,
		DisplayStatus: model.DisplayStatus(r.Status),
		Result:        r.Result,
	}
}
