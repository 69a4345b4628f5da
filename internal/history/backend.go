package history

import (
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/database"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/kv"
	"github.com/qs3c/mpesa_anal_server/internal/repository"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
)

var ErrRedisRequired = errors.New("redis backend requires a redis client")

// OpenBacking 按 history.backend 创建底层 KV。
// redis 后端使用调用方传入的客户端，关闭存储时不会关闭该客户端
func OpenBacking(cfg *config.Config, rdb *redis.Client) (kv.Store, error) {
	switch cfg.History.Backend {
	case "", BackendMemory:
		return kv.NewMemory(), nil

	case BackendRedis:
		if rdb == nil {
			return nil, ErrRedisRequired
		}
		return kv.NewRedis(rdb), nil

	case BackendSQL:
		db, err := database.NewDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		repo := repository.NewKVRepository(db)
		if err := repo.Migrate(); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate kv table: %w", err)
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported history backend: %s", cfg.History.Backend)
	}
}

// NeedsRedis 当前配置是否需要 Redis 连接
func NeedsRedis(cfg *config.Config) bool {
	return cfg.History.Backend == BackendRedis || cfg.Progress.Broker == BackendRedis
}
