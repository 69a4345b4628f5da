package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/analyzer"
	"github.com/qs3c/mpesa_anal_server/internal/api"
	"github.com/qs3c/mpesa_anal_server/internal/api/handler"
	"github.com/qs3c/mpesa_anal_server/internal/database"
	"github.com/qs3c/mpesa_anal_server/internal/history"
	"github.com/qs3c/mpesa_anal_server/internal/intake"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/cron"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/logger"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/pubsub"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/ws"
	"github.com/qs3c/mpesa_anal_server/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
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

	// 日志级别支持热更新，其他配置需要重启
	config.Watch(func(next *config.Config) {
		if next.Log.Level != cfg.Log.Level {
			level := logger.SetLevel(next.Log.Level)
			cfg.Log.Level = next.Log.Level
			log.Info().Str("level", level.String()).Msg("log level updated")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化 Redis（历史后端或进度广播需要时）
	var rdb *redis.Client
	if history.NeedsRedis(cfg) {
		rdb, err = database.NewRedis(&cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		log.Info().Msg("redis connected")
	}

	// 初始化历史存储
	backing, err := history.OpenBacking(cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.History.Backend).Msg("failed to open history backend")
	}
	store, err := history.Open(ctx, backing, cfg.History.Key)
	if err != nil {
		backing.Close()
		log.Fatal().Err(err).Msg("failed to open history store")
	}
	defer store.Close()
	log.Info().Str("backend", cfg.History.Backend).Msg("history store ready")

	// 历史保留清理
	cronService := cron.NewService(store, cfg.History.Retention(), cfg.History.PruneEvery())
	cronService.Start()
	defer cronService.Stop()

	// 初始化 WebSocket Hub 和进度广播
	wsHub := ws.NewHub()
	var progress service.ProgressPublisher = wsHub
	if cfg.Progress.Broker == history.BackendRedis {
		progress = pubsub.NewPublisher(rdb)
		if err := startProgressBridge(ctx, rdb, wsHub); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe progress channel")
		}
	}

	// 初始化 Service
	gate := intake.NewGateFromConfig(cfg.Upload)
	analysisService := service.NewAnalysisService(
		gate,
		analyzer.NewMock(cfg.Analysis, nil),
		store,
		cfg.Analysis,
		progress,
	)
	historyService := service.NewHistoryService(store)

	// 初始化 Handler
	sessionHandler := handler.NewSessionHandler(cfg.JWT)
	analysisHandler := handler.NewAnalysisHandler(analysisService, cfg.Upload)
	historyHandler := handler.NewHistoryHandler(historyService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS)
	systemHandler := handler.NewSystemHandler()

	// 初始化 Router
	router := api.NewRouter(
		sessionHandler,
		analysisHandler,
		historyHandler,
		websocketHandler,
		systemHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("server shutdown complete")
}

// startProgressBridge 订阅 Redis 进度频道并转发给本机的 WebSocket 连接
func startProgressBridge(ctx context.Context, rdb *redis.Client, hub *ws.Hub) error {
	subscriber := pubsub.NewSubscriber(rdb)
	ready := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		errCh <- subscriber.Subscribe(ctx, func(msg *pubsub.ProgressMessage) {
			if !hub.IsOnline(msg.SessionID) {
				return
			}
			if err := hub.PublishProgress(ctx, msg); err != nil {
				log.Debug().Err(err).Str("session_id", msg.SessionID).Msg("progress not delivered")
			}
		}, ready)
	}()

	select {
	case <-ready:
		log.Info().Str("channel", pubsub.ChannelAnalysisProgress).Msg("progress bridge subscribed")
		go func() {
			if err := <-errCh; err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("progress bridge stopped")
			}
		}()
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
