package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/history"
	"github.com/qs3c/mpesa_anal_server/internal/intake"
	"github.com/qs3c/mpesa_anal_server/internal/job"
	"github.com/qs3c/mpesa_anal_server/internal/model"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/errs"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/pubsub"
)

// DefaultSessionID 未携带令牌的调用方
const DefaultSessionID = "local"

const (
	publishTimeout   = 2 * time.Second
	subscriberBuffer = 64
)

// ProgressPublisher 进度消息的去向（本机 ws 或 Redis 频道）
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error
}

// AnalysisService 校验 → 分析任务 → 写入历史
type AnalysisService struct {
	gate       *intake.Gate
	analyzer   job.Analyzer
	store      *history.Store
	cfg        config.AnalysisConfig
	publishers []ProgressPublisher

	mu       sync.Mutex
	inflight map[string]*job.Job
	subs     map[string]map[chan pubsub.ProgressMessage]struct{}
}

func NewAnalysisService(
	gate *intake.Gate,
	analyzer job.Analyzer,
	store *history.Store,
	cfg config.AnalysisConfig,
	publishers ...ProgressPublisher,
) *AnalysisService {
	return &AnalysisService{
		gate:       gate,
		analyzer:   analyzer,
		store:      store,
		cfg:        cfg,
		publishers: publishers,
		inflight:   make(map[string]*job.Job),
		subs:       make(map[string]map[chan pubsub.ProgressMessage]struct{}),
	}
}

// Submit 提交文件。校验失败时不创建任务也不访问存储；
// 成功时追加一条历史记录并返回该记录，记录中的结果即分析结果
func (s *AnalysisService) Submit(ctx context.Context, sessionID string, f *intake.File) (*model.HistoryRecord, error) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	if err := s.gate.Check(f); err != nil {
		return nil, err
	}

	j, err := s.begin(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.finish(sessionID)

	logger := log.With().
		Str("session_id", sessionID).
		Str("job_id", j.ID()).
		Str("filename", f.Name).
		Logger()

	base := pubsub.ProgressMessage{
		SessionID: sessionID,
		JobID:     j.ID(),
		Filename:  f.Name,
	}

	observe := func(ev job.Event) {
		// 成功的终止消息在写入历史之后再发
		if ev.Phase == job.PhaseSucceeded {
			return
		}
		msg := base
		msg.Phase = string(ev.Phase)
		msg.Progress = ev.Progress
		msg.Message = ev.Phase.Message()
		msg.Status = pubsub.StatusRunning
		if ev.Phase == job.PhaseFailed {
			msg.Status = pubsub.StatusFailed
			msg.Error = failureMessage(ev.Err)
		}
		s.publish(ctx, msg)
	}

	result, err := j.Run(ctx, f, observe)
	if err != nil {
		logger.Warn().Err(err).Msg("analysis failed")
		return nil, err
	}

	// 调用方已放弃，结果作废
	if ctx.Err() != nil {
		s.publishFailure(ctx, base, ctx.Err())
		return nil, ctx.Err()
	}

	record, err := s.store.Append(ctx, *result, f.Name)
	if err != nil {
		logger.Error().Err(err).Msg("save history failed")
		s.publishFailure(ctx, base, err)
		return nil, fmt.Errorf("save history: %w", err)
	}

	done := base
	done.Phase = string(job.PhaseSucceeded)
	done.Progress = 100
	done.Message = job.PhaseSucceeded.Message()
	done.Status = pubsub.StatusSucceeded
	done.RecordID = record.ID
	s.publish(ctx, done)

	logger.Info().
		Int64("record_id", record.ID).
		Int("credit_score", record.Result.CreditScore).
		Str("status", record.Status).
		Msg("analysis completed")
	return &record, nil
}

// Subscribe 订阅某个会话的进度消息，返回的函数用于取消订阅
func (s *AnalysisService) Subscribe(sessionID string) (<-chan pubsub.ProgressMessage, func()) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	ch := make(chan pubsub.ProgressMessage, subscriberBuffer)

	s.mu.Lock()
	if s.subs[sessionID] == nil {
		s.subs[sessionID] = make(map[chan pubsub.ProgressMessage]struct{})
	}
	s.subs[sessionID][ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if subs, ok := s.subs[sessionID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(s.subs, sessionID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// InFlight 会话是否有正在运行的任务
func (s *AnalysisService) InFlight(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[sessionID]
	return ok
}

func (s *AnalysisService) begin(sessionID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[sessionID]; busy {
		return nil, errs.ErrBusy
	}
	j := job.New(s.analyzer, job.Options{
		TickInterval: s.cfg.TickInterval(),
		MaxIncrement: s.cfg.MaxIncrement,
	})
	s.inflight[sessionID] = j
	return j, nil
}

func (s *AnalysisService) finish(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, sessionID)
}

func (s *AnalysisService) publishFailure(ctx context.Context, base pubsub.ProgressMessage, err error) {
	msg := base
	msg.Phase = string(job.PhaseFailed)
	msg.Progress = 100
	msg.Message = job.PhaseFailed.Message()
	msg.Status = pubsub.StatusFailed
	msg.Error = failureMessage(err)
	s.publish(ctx, msg)
}

// publish 发给本地订阅者和所有发布者。请求取消后仍要送达终止消息
func (s *AnalysisService) publish(ctx context.Context, msg pubsub.ProgressMessage) {
	s.mu.Lock()
	for ch := range s.subs[msg.SessionID] {
		deliver(ch, msg)
	}
	s.mu.Unlock()

	if len(s.publishers) == 0 {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, p := range s.publishers {
		m := msg
		if err := p.PublishProgress(pctx, &m); err != nil {
			log.Warn().Err(err).Str("job_id", msg.JobID).Msg("publish progress failed")
		}
	}
}

// deliver 不阻塞。订阅者跟不上时丢弃普通进度；
// 终止消息遇到缓冲已满时挤掉最旧的一条
func deliver(ch chan pubsub.ProgressMessage, msg pubsub.ProgressMessage) {
	select {
	case ch <- msg:
		return
	default:
	}
	if !msg.Terminal() {
		return
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

func failureMessage(err error) string {
	switch {
	case err == nil:
		return errs.KindAnalysisFailed.Message()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Analysis cancelled."
	case errs.KindOf(err) == errs.KindUnknown:
		return errs.KindAnalysisFailed.Message()
	default:
		return errs.UserMessage(err)
	}
}
