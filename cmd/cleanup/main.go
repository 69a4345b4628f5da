package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/database"
	"github.com/qs3c/mpesa_anal_server/internal/history"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/logger"
)

var (
	dryRun      = flag.Bool("dry-run", true, "Dry run mode, don't actually delete records")
	expireHours = flag.Int("expire", 0, "Hours to keep history records (0 uses history.retention_hours)")
	clearAll    = flag.Bool("all", false, "Delete every history record")
)

func main() {
	flag.Parse()

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Setup(cfg.Log)

	if cfg.History.Backend == history.BackendMemory || cfg.History.Backend == "" {
		log.Fatal().Msg("memory history backend lives inside the server process, nothing to clean")
	}

	retention := cfg.History.Retention()
	if *expireHours > 0 {
		retention = time.Duration(*expireHours) * time.Hour
	}
	if retention <= 0 && !*clearAll {
		log.Fatal().Msg("no retention configured, pass -expire or -all")
	}

	ctx := context.Background()

	// 连接存储
	var rdb *redis.Client
	if cfg.History.Backend == history.BackendRedis {
		rdb, err = database.NewRedis(&cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
	}
	backing, err := history.OpenBacking(cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open history backend")
	}
	store, err := history.Open(ctx, backing, cfg.History.Key)
	if err != nil {
		backing.Close()
		log.Fatal().Err(err).Msg("failed to open history store")
	}
	defer store.Close()

	records, err := store.List(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list history")
	}

	// -all 等价于截止到当前时刻之后
	cutoff := time.Now().Add(time.Second)
	if !*clearAll {
		cutoff = time.Now().Add(-retention)
	}

	removed, err := store.Prune(ctx, cutoff, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prune history")
	}

	event := log.Info().
		Str("backend", cfg.History.Backend).
		Int("total", len(records)).
		Int("expired", removed).
		Time("cutoff", cutoff).
		Bool("dry_run", *dryRun)
	if *dryRun {
		event.Msg("dry run, no records deleted (run with -dry-run=false to delete)")
		return
	}
	event.Msg("history cleanup completed")
}
