package testutil

import (
	"time"

	"github.com/qs3c/mpesa_anal_server/internal/intake"
	"github.com/qs3c/mpesa_anal_server/internal/model"
)

// TestResult 创建测试分析结果
func TestResult(opts ...func(*model.AnalysisResult)) *model.AnalysisResult {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	result := &model.AnalysisResult{
		CreditScore:    78,
		DecisionStatus: model.DecisionApproved,
		InterestRate:   model.Float(11.9),
		ReasonCodes: []string{
			"Strong consistent income pattern",
			"Excellent transaction frequency",
		},
		ExtractedData: &model.ExtractedData{
			MonthlyIncome:             model.Float(52000),
			MonthlyExpenses:           model.Float(31000),
			AvgDailyBalance:           model.Float(14500),
			TransactionConsistency:    model.Float(88),
			SavingsRate:               model.Float(22),
			CreditHistoryLengthMonths: model.Int(18),
		},
		ConfidenceScore:   0.87,
		AnalysisTimestamp: &ts,
	}

	for _, opt := range opts {
		opt(result)
	}

	return result
}

// WithScore 设置信用分
func WithScore(score int) func(*model.AnalysisResult) {
	return func(r *model.AnalysisResult) {
		r.CreditScore = score
	}
}

// WithDecision 设置决策状态
func WithDecision(status model.DecisionStatus) func(*model.AnalysisResult) {
	return func(r *model.AnalysisResult) {
		r.DecisionStatus = status
	}
}

// TestFile 创建测试上传文件
func TestFile(name string, size int64) *intake.File {
	return &intake.File{Name: name, Size: size}
}
