// Package analyzer 账单分析服务。当前只有本地模拟实现，按扩展名模拟耗时并随机生成评估结果
package analyzer

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/intake"
	"github.com/qs3c/mpesa_anal_server/internal/model"
)

// 决策阈值
const (
	approveThreshold    = 75
	secondLookThreshold = 60
	secondLookRate      = 16.5
)

var (
	approvedReasons = []string{
		"Strong consistent income pattern",
		"Excellent transaction frequency",
		"Healthy account balance history",
		"Regular bill payment behavior",
	}
	secondLookReasons = []string{
		"Moderate income consistency",
		"Average transaction volume",
		"Some irregular payment patterns",
		"Requires additional verification",
	}
	declinedReasons = []string{
		"Insufficient transaction history",
		"Irregular income pattern",
		"High transaction volatility",
		"Limited credit history data",
	}
)

// Mock 模拟分析服务
type Mock struct {
	cfg config.AnalysisConfig
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock rng 为空时使用当前时间作为种子
func NewMock(cfg config.AnalysisConfig, rng *rand.Rand) *Mock {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Mock{cfg: cfg, now: time.Now, rng: rng}
}

// Analyze 等待模拟耗时后返回结果；ctx 取消时立即返回
func (m *Mock) Analyze(ctx context.Context, f *intake.File) (*model.AnalysisResult, error) {
	delay := m.cfg.DelayFor(f.Ext())
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	result := m.generate()
	log.Debug().
		Str("filename", f.Name).
		Int("credit_score", result.CreditScore).
		Str("decision", string(result.DecisionStatus)).
		Msg("mock analysis done")
	return result, nil
}

func (m *Mock) generate() *model.AnalysisResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	score := 60 + m.rng.Intn(26) // 60-85
	result := &model.AnalysisResult{CreditScore: score}

	switch {
	case score >= approveThreshold:
		result.DecisionStatus = model.DecisionApproved
		result.InterestRate = model.Float(round2(12.5 - float64(score-approveThreshold)*0.2))
		result.ReasonCodes = append([]string(nil), approvedReasons...)
	case score >= secondLookThreshold:
		result.DecisionStatus = model.DecisionSecondLook
		result.InterestRate = model.Float(secondLookRate)
		result.ReasonCodes = append([]string(nil), secondLookReasons...)
	default:
		result.DecisionStatus = model.DecisionDeclined
		result.ReasonCodes = append([]string(nil), declinedReasons...)
	}

	result.ExtractedData = &model.ExtractedData{
		MonthlyIncome:             model.Float(roundHundred(30000 + m.rng.Intn(50001))),
		MonthlyExpenses:           model.Float(roundHundred(20000 + m.rng.Intn(40001))),
		AvgDailyBalance:           model.Float(roundHundred(5000 + m.rng.Intn(145001))),
		TransactionConsistency:    model.Float(float64(70 + m.rng.Intn(26))),
		SavingsRate:               model.Float(float64(10 + m.rng.Intn(31))),
		CreditHistoryLengthMonths: model.Int(6 + m.rng.Intn(43)),
	}
	result.ConfidenceScore = round2(0.75 + m.rng.Float64()*0.2)

	ts := m.now().UTC()
	result.AnalysisTimestamp = &ts
	return result
}

// roundHundred 取整到百位
func roundHundred(v int) float64 {
	return math.Round(float64(v)/100) * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
