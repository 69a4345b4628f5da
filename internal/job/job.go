// Package job 一次性的异步分析任务：推送模拟进度，等待分析服务返回结果
package job

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/internal/intake"
	"github.com/qs3c/mpesa_anal_server/internal/model"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/errs"
)

// DefaultTickInterval 进度心跳间隔
const DefaultTickInterval = 300 * time.Millisecond

// ErrAlreadyStarted 任务只能运行一次
var ErrAlreadyStarted = errors.New("job already started")

// Analyzer 分析服务，对核心逻辑是黑盒
type Analyzer interface {
	Analyze(ctx context.Context, f *intake.File) (*model.AnalysisResult, error)
}

// Event 进度事件
type Event struct {
	JobID    string  `json:"job_id"`
	Progress float64 `json:"progress"`
	Phase    Phase   `json:"phase"`
	Err      error   `json:"-"`
}

// Observer 接收进度事件，在 Run 所在的协程中按顺序调用
type Observer func(Event)

type Options struct {
	TickInterval time.Duration
	MaxIncrement float64
	Rand         *rand.Rand
}

type Job struct {
	id       string
	analyzer Analyzer
	opts     Options

	mu       sync.Mutex
	phase    Phase
	progress float64
	started  bool
}

func New(analyzer Analyzer, opts Options) *Job {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.MaxIncrement <= 0 {
		opts.MaxIncrement = DefaultMaxIncrement
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Job{
		id:       uuid.NewString(),
		analyzer: analyzer,
		opts:     opts,
		phase:    PhaseIdle,
	}
}

func (j *Job) ID() string {
	return j.id
}

// Phase 当前阶段
func (j *Job) Phase() Phase {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.phase
}

// Progress 当前进度
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

type outcome struct {
	result *model.AnalysisResult
	err    error
}

// Run 运行任务直到分析服务返回或 ctx 取消。
// 成功时最后一个进度事件为 100，随后是 succeeded 事件；失败时以 failed 事件结束
func (j *Job) Run(ctx context.Context, f *intake.File, observe Observer) (*model.AnalysisResult, error) {
	if f == nil {
		return nil, errs.ErrMissingFile
	}

	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	j.started = true
	j.mu.Unlock()

	if observe == nil {
		observe = func(Event) {}
	}
	emit := func(progress float64, phase Phase, err error) {
		j.mu.Lock()
		j.progress = progress
		j.phase = phase
		j.mu.Unlock()
		observe(Event{JobID: j.id, Progress: progress, Phase: phase, Err: err})
	}

	logger := log.With().Str("job_id", j.id).Str("filename", f.Name).Logger()
	logger.Debug().Msg("job started")

	emit(0, PhaseUploading, nil)

	// 缓冲为 1：任务被放弃后分析协程仍可写入并退出
	done := make(chan outcome, 1)
	go func() {
		res, err := j.analyzer.Analyze(ctx, f)
		done <- outcome{result: res, err: err}
	}()

	hb := NewHeartbeat(j.opts.Rand, j.opts.MaxIncrement)
	ticker := time.NewTicker(j.opts.TickInterval)
	defer ticker.Stop()
	tick := ticker.C

	for {
		select {
		case <-ctx.Done():
			emit(hb.Progress(), PhaseFailed, ctx.Err())
			logger.Info().Err(ctx.Err()).Msg("job abandoned")
			return nil, ctx.Err()

		case <-tick:
			p, ok := hb.Next()
			if !ok {
				// 进度已到 100，等待结果
				tick = nil
				continue
			}
			emit(p, PhaseFor(p), nil)

		case out := <-done:
			// 调用方已经放弃时不交付结果
			if ctx.Err() != nil {
				emit(hb.Progress(), PhaseFailed, ctx.Err())
				return nil, ctx.Err()
			}

			err := out.err
			if err == nil {
				err = validateResult(out.result)
			}
			if err != nil {
				failure := errs.Wrap(errs.KindAnalysisFailed, err)
				emit(hb.Progress(), PhaseFailed, failure)
				logger.Warn().Err(err).Msg("job failed")
				return nil, failure
			}

			if !hb.Done() {
				emit(100, PhaseFinalizing, nil)
			}
			emit(100, PhaseSucceeded, nil)
			logger.Debug().Int("credit_score", out.result.CreditScore).Msg("job succeeded")
			return out.result, nil
		}
	}
}

func validateResult(r *model.AnalysisResult) error {
	if r == nil {
		return errors.New("analysis returned no result")
	}
	if r.CreditScore < 0 || r.CreditScore > 100 {
		return fmt.Errorf("credit score %d out of range", r.CreditScore)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("confidence score %v out of range", r.ConfidenceScore)
	}
	if r.InterestRate != nil && *r.InterestRate < 0 {
		return fmt.Errorf("negative interest rate %v", *r.InterestRate)
	}
	return nil
}
