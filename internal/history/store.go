// Package history 保存已完成的分析记录。
// 全部记录以 JSON 数组（最新在前）存放在一个键下，每次修改都是底层存储中原子的读-改-写
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/model"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/errs"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/kv"
)

type Option func(*Store)

// WithClock 替换时间来源，测试用
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store 历史记录存储
type Store struct {
	backing kv.Store
	key     string
	now     func() time.Time

	mu     sync.Mutex
	lastID int64
	closed bool
}

// Open 打开存储。已有数据用于确定下一个 ID 的起点，损坏的数据按空处理
func Open(ctx context.Context, backing kv.Store, key string, opts ...Option) (*Store, error) {
	if key == "" {
		key = config.HistoryStorageKey
	}
	s := &Store{
		backing: backing,
		key:     key,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	s.lastID = maxID(records)

	log.Debug().Str("key", key).Int("records", len(records)).Msg("history store opened")
	return s, nil
}

// Close 关闭存储及其底层 KV
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.backing.Close()
}

// Append 创建新记录并插入到最前面
func (s *Store) Append(ctx context.Context, result model.AnalysisResult, filename string) (model.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.HistoryRecord{}, kv.ErrClosed
	}

	var record model.HistoryRecord
	err := s.update(ctx, func(records []model.HistoryRecord) ([]model.HistoryRecord, bool) {
		now := s.now().UTC()
		record = model.HistoryRecord{
			ID:        s.nextID(now, records),
			Filename:  filename,
			Timestamp: now,
			Result:    result.Clone(),
			Status:    model.StatusFor(result),
		}
		return append([]model.HistoryRecord{record}, records...), true
	})
	if err != nil {
		return model.HistoryRecord{}, err
	}

	s.lastID = record.ID
	return record.Clone(), nil
}

// List 返回全部记录，最新在前
func (s *Store) List(ctx context.Context) ([]model.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, kv.ErrClosed
	}

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.HistoryRecord{}
	}
	return records, nil
}

// Get 按 ID 查找记录，不存在时返回 errs.ErrNotFound
func (s *Store) Get(ctx context.Context, id int64) (model.HistoryRecord, error) {
	records, err := s.List(ctx)
	if err != nil {
		return model.HistoryRecord{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return model.HistoryRecord{}, errs.ErrNotFound
}

// Delete 删除指定记录，返回是否删除了记录
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, kv.ErrClosed
	}

	deleted := false
	err := s.update(ctx, func(records []model.HistoryRecord) ([]model.HistoryRecord, bool) {
		kept := make([]model.HistoryRecord, 0, len(records))
		for _, r := range records {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		deleted = len(kept) != len(records)
		return kept, deleted
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// Prune 删除早于 cutoff 的记录，返回删除数量。dryRun 时只统计不写入
func (s *Store) Prune(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, kv.ErrClosed
	}

	removed := 0
	err := s.update(ctx, func(records []model.HistoryRecord) ([]model.HistoryRecord, bool) {
		kept := make([]model.HistoryRecord, 0, len(records))
		for _, r := range records {
			if !r.Timestamp.Before(cutoff) {
				kept = append(kept, r)
			}
		}
		removed = len(records) - len(kept)
		return kept, removed > 0 && !dryRun
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Clear 删除全部记录以及存储键
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}

	if err := s.backing.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// load 读取并解析记录。键不存在或内容损坏时返回空列表
func (s *Store) load(ctx context.Context) ([]model.HistoryRecord, error) {
	data, _, err := s.backing.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return s.decode(data), nil
}

// update 在底层存储的原子读-改-写中修改记录。
// 多个进程共享同一后端时，fn 看到的总是最新的记录，冲突时可能被调用多次
func (s *Store) update(ctx context.Context, fn func([]model.HistoryRecord) ([]model.HistoryRecord, bool)) error {
	err := s.backing.Update(ctx, s.key, func(current []byte) ([]byte, bool, error) {
		next, write := fn(s.decode(current))
		if !write {
			return nil, false, nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return nil, false, fmt.Errorf("encode history: %w", err)
		}
		return data, true, nil
	})
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// decode 损坏的内容记录警告后按空处理
func (s *Store) decode(data []byte) []model.HistoryRecord {
	records, err := decodeRecords(data)
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("history payload unreadable, treating as empty")
		return nil
	}
	return records
}

func decodeRecords(data []byte) ([]model.HistoryRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []model.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreCorrupt, err)
	}
	return records, nil
}

// nextID 以毫秒时间戳为 ID，与已用过的 ID 冲突时顺延
func (s *Store) nextID(now time.Time, records []model.HistoryRecord) int64 {
	id := now.UnixMilli()
	floor := s.lastID
	if m := maxID(records); m > floor {
		floor = m
	}
	if id <= floor {
		id = floor + 1
	}
	return id
}

func maxID(records []model.HistoryRecord) int64 {
	var m int64
	for _, r := range records {
		if r.ID > m {
			m = r.ID
		}
	}
	return m
}
