package model

import "time"

// StatusProcessed 结果缺少决策状态时的默认状态
const StatusProcessed = "processed"

// HistoryRecord 一次完成的分析记录，创建后不再修改
type HistoryRecord struct {
	ID        int64          `json:"id"`
	Filename  string         `json:"filename"`
	Timestamp time.Time      `json:"timestamp"`
	Result    AnalysisResult `json:"result"`
	Status    string         `json:"status"`
}

// StatusFor 记录状态跟随结果的决策状态
func StatusFor(result AnalysisResult) string {
	if result.DecisionStatus == "" {
		return StatusProcessed
	}
	return string(result.DecisionStatus)
}

// Clone 深拷贝
func (h HistoryRecord) Clone() HistoryRecord {
	out := h
	out.Result = h.Result.Clone()
	return out
}
