package model

import (
	"strings"
	"time"
)

// DecisionStatus 授信决策
type DecisionStatus string

const (
	DecisionApproved   DecisionStatus = "APPROVED"
	DecisionDeclined   DecisionStatus = "DECLINED"
	DecisionSecondLook DecisionStatus = "SECOND_LOOK"
	DecisionUnknown    DecisionStatus = "UNKNOWN"
)

// Valid 是否为已知的决策状态
func (d DecisionStatus) Valid() bool {
	switch d {
	case DecisionApproved, DecisionDeclined, DecisionSecondLook, DecisionUnknown:
		return true
	}
	return false
}

// ExtractedData 从账单中提取的指标，所有字段都可能缺失
type ExtractedData struct {
	MonthlyIncome             *float64 `json:"monthly_income,omitempty"`
	MonthlyExpenses           *float64 `json:"monthly_expenses,omitempty"`
	AvgDailyBalance           *float64 `json:"avg_daily_balance,omitempty"`
	TransactionConsistency    *float64 `json:"transaction_consistency,omitempty"` // 0-100
	SavingsRate               *float64 `json:"savings_rate,omitempty"`            // 0-100
	CreditHistoryLengthMonths *int     `json:"credit_history_length,omitempty"`
}

// AnalysisResult 分析服务返回的评估结果
type AnalysisResult struct {
	CreditScore       int            `json:"credit_score"` // 0-100
	DecisionStatus    DecisionStatus `json:"decision_status,omitempty"`
	InterestRate      *float64       `json:"interest_rate,omitempty"`
	ReasonCodes       []string       `json:"reason_codes,omitempty"`
	ExtractedData     *ExtractedData `json:"extracted_data,omitempty"`
	ConfidenceScore   float64        `json:"confidence_score"` // 0-1
	AnalysisTimestamp *time.Time     `json:"analysis_timestamp,omitempty"`
}

// Clone 深拷贝，存储层只保存副本
func (r AnalysisResult) Clone() AnalysisResult {
	out := r
	if r.InterestRate != nil {
		v := *r.InterestRate
		out.InterestRate = &v
	}
	if r.ReasonCodes != nil {
		out.ReasonCodes = append([]string(nil), r.ReasonCodes...)
	}
	if r.ExtractedData != nil {
		out.ExtractedData = r.ExtractedData.clone()
	}
	if r.AnalysisTimestamp != nil {
		ts := *r.AnalysisTimestamp
		out.AnalysisTimestamp = &ts
	}
	return out
}

func (d *ExtractedData) clone() *ExtractedData {
	out := &ExtractedData{}
	out.MonthlyIncome = cloneFloat(d.MonthlyIncome)
	out.MonthlyExpenses = cloneFloat(d.MonthlyExpenses)
	out.AvgDailyBalance = cloneFloat(d.AvgDailyBalance)
	out.TransactionConsistency = cloneFloat(d.TransactionConsistency)
	out.SavingsRate = cloneFloat(d.SavingsRate)
	if d.CreditHistoryLengthMonths != nil {
		v := *d.CreditHistoryLengthMonths
		out.CreditHistoryLengthMonths = &v
	}
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float 返回指向 v 的指针，便于填充可选字段
func Float(v float64) *float64 { return &v }

// Int 返回指向 v 的指针
func Int(v int) *int { return &v }

// DisplayStatus 用于展示的状态文本（SECOND_LOOK -> SECOND LOOK）
func DisplayStatus(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}
