package kv

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/patrickmn/go-cache"
)

// Memory 进程内存储，用于测试和单机运行
type Memory struct {
	c      *cache.Cache
	mu     sync.Mutex // 串行化写操作
	closed atomic.Bool
}

func NewMemory() *Memory {
	// 不过期，也不需要清理协程
	return &Memory{c: cache.New(cache.NoExpiration, 0)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.closed.Load() {
		return nil, false, ErrClosed
	}
	b, ok := m.get(key)
	return b, ok, nil
}

func (m *Memory) get(key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	b := v.([]byte)
	return append([]byte(nil), b...), true
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Set(key, append([]byte(nil), value...), cache.NoExpiration)
	return nil
}

func (m *Memory) Update(_ context.Context, key string, fn UpdateFunc) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, _ := m.get(key)
	next, write, err := fn(current)
	if err != nil || !write {
		return err
	}
	m.c.Set(key, append([]byte(nil), next...), cache.NoExpiration)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Delete(key)
	return nil
}

func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}
