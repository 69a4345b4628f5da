package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/mpesa_anal_server/internal/model"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/kv"
)

// KVRepository 基于 SQL 表的键值存储，实现 kv.Store
type KVRepository struct {
	db *gorm.DB
}

func NewKVRepository(db *gorm.DB) *KVRepository {
	return &KVRepository{db: db}
}

// Migrate 创建 kv_entries 表
func (r *KVRepository) Migrate() error {
	return r.db.AutoMigrate(&model.KVEntry{})
}

func (r *KVRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry model.KVEntry
	err := r.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value, true, nil
}

func (r *KVRepository) Set(ctx context.Context, key string, value []byte) error {
	return upsert(r.db.WithContext(ctx), key, value)
}

// Update 在事务中锁住该键所在行（SELECT ... FOR UPDATE）后读-改-写。
// 行不存在时先插入空行再加锁，保证并发的首次写入也互斥
func (r *KVRepository) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, found, err := lockEntry(tx, key)
		if err != nil {
			return err
		}

		placeholder := false
		if !found {
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&model.KVEntry{Key: key, Value: []byte{}, UpdatedAt: time.Now()}).Error
			if err != nil {
				return err
			}
			entry, found, err = lockEntry(tx, key)
			if err != nil {
				return err
			}
			// 其他事务抢先写入时 found 的行带有内容
			placeholder = found && len(entry.Value) == 0
		}

		var current []byte
		if found && !placeholder {
			current = entry.Value
		}

		next, write, err := fn(current)
		if err != nil {
			return err
		}
		if !write {
			if placeholder {
				return tx.Where(map[string]interface{}{"key": key}).Delete(&model.KVEntry{}).Error
			}
			return nil
		}
		return upsert(tx, key, next)
	})
}

func lockEntry(tx *gorm.DB, key string) (model.KVEntry, bool, error) {
	var entry model.KVEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(map[string]interface{}{"key": key}).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	return entry, true, nil
}

func upsert(db *gorm.DB, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	entry := &model.KVEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry).Error
}

func (r *KVRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).Delete(&model.KVEntry{}).Error
}

// Close 关闭底层连接
func (r *KVRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
