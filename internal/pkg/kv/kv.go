// Package kv 定义历史记录使用的持久化键值存储
package kv

import (
	"context"
	"errors"
)

var (
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("kv store is closed")
	// ErrConflict 并发修改重试次数用尽
	ErrConflict = errors.New("kv update conflict")
)

// UpdateFunc 根据当前值计算新值。键不存在时 current 为 nil；
// write 为 false 时不写入。Redis 后端冲突时会重新调用，函数不能有外部副作用
type UpdateFunc func(current []byte) (next []byte, write bool, err error)

// Store 键值存储。Get 在键不存在时返回 found=false 且 err=nil。
// Update 对单个键做原子的读-改-写，多个进程共享同一后端时也成立
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Delete(ctx context.Context, key string) error
	Close() error
}
