package cron

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const pruneTimeout = 30 * time.Second

// Pruner 按时间清理历史记录
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time, dryRun bool) (int, error)
}

type Service struct {
	pruner    Pruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	done     chan struct{}
}

func NewService(pruner Pruner, retention, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		pruner:    pruner,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start 启动定时任务，重复调用无效。保留时长为 0 时不启动
func (s *Service) Start() {
	if s.retention <= 0 {
		log.Info().Msg("history retention disabled, cron not started")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	go s.runPrune()
	log.Info().
		Dur("retention", s.retention).
		Dur("interval", s.interval).
		Msg("cron service started (history retention)")
}

// Stop 停止定时任务并等待正在执行的清理结束
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	close(s.stopChan)
	s.mu.Unlock()

	if started {
		<-s.done
	}
	log.Info().Msg("cron service stopped")
}

// runPrune 按间隔清理过期历史
func (s *Service) runPrune() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.RunNow(); err != nil {
				log.Error().Err(err).Msg("history prune failed")
			}
		}
	}
}

// RunNow 立即执行一次清理（用于测试或手动触发）
func (s *Service) RunNow() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.retention)
	removed, err := s.pruner.Prune(ctx, cutoff, false)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("expired history pruned")
	}
	return removed, nil
}
