package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/internal/history"
	"github.com/qs3c/mpesa_anal_server/internal/model/dto"
)

type HistoryService struct {
	store *history.Store
}

func NewHistoryService(store *history.Store) *HistoryService {
	return &HistoryService{store: store}
}

// List 全部历史记录，最新在前
func (s *HistoryService) List(ctx context.Context) ([]dto.HistoryItem, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]dto.HistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, dto.NewHistoryItem(r))
	}
	return items, nil
}

// Get 单条记录，不存在时返回 errs.ErrNotFound
func (s *HistoryService) Get(ctx context.Context, id int64) (*dto.HistoryItem, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	item := dto.NewHistoryItem(record)
	return &item, nil
}

// Delete 删除一条记录，记录不存在时返回 false
func (s *HistoryService) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		log.Info().Int64("record_id", id).Msg("history record deleted")
	}
	return deleted, nil
}

// Clear 清空历史
func (s *HistoryService) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	log.Info().Msg("history cleared")
	return nil
}
