package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// HistoryStorageKey 历史记录在 KV 存储中的键
const HistoryStorageKey = "mpesaAnalysisHistory"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	History   HistoryConfig   `mapstructure:"history"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // sqlite, mysql, postgres
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`           // 最大文件大小（字节）
	AllowedExtensions []string `mapstructure:"allowed_extensions"` // 允许的扩展名
}

type AnalysisConfig struct {
	TickIntervalMs int     `mapstructure:"tick_interval_ms"` // 进度心跳间隔
	MaxIncrement   float64 `mapstructure:"max_increment"`    // 单次心跳最大增量
	PDFDelayMs     int     `mapstructure:"pdf_delay_ms"`
	CSVDelayMs     int     `mapstructure:"csv_delay_ms"`
}

type HistoryConfig struct {
	Backend        string `mapstructure:"backend"` // memory, redis, sql
	Key            string `mapstructure:"key"`
	RetentionHours int    `mapstructure:"retention_hours"` // 0 表示永久保留
	PruneInterval  int    `mapstructure:"prune_interval_minutes"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type ProgressConfig struct {
	Broker string `mapstructure:"broker"` // local, redis（多实例时经 Redis 频道转发）
}

// Retention 历史保留时长，0 表示不清理
func (c HistoryConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// PruneEvery 清理任务间隔
func (c HistoryConfig) PruneEvery() time.Duration {
	if c.PruneInterval <= 0 {
		return time.Hour
	}
	return time.Duration(c.PruneInterval) * time.Minute
}

// TickInterval 进度心跳间隔
func (c AnalysisConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// DelayFor 按扩展名返回模拟分析耗时
func (c AnalysisConfig) DelayFor(ext string) time.Duration {
	if strings.EqualFold(strings.TrimPrefix(ext, "."), "pdf") {
		return time.Duration(c.PDFDelayMs) * time.Millisecond
	}
	return time.Duration(c.CSVDelayMs) * time.Millisecond
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000, Mode: "debug"},
		Log:    LogConfig{Level: "info", Format: "console"},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "mpesa.db",
			MaxIdleConns: 5,
			MaxOpenConns: 10,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379, PoolSize: 10},
		JWT:   JWTConfig{Secret: "change-me", ExpireHours: 24},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		},
		Upload: UploadConfig{
			MaxSize:           5 * 1024 * 1024,
			AllowedExtensions: []string{".pdf", ".csv"},
		},
		Analysis: AnalysisConfig{
			TickIntervalMs: 300,
			MaxIncrement:   10,
			PDFDelayMs:     3000,
			CSVDelayMs:     2000,
		},
		History:   HistoryConfig{Backend: "memory", Key: HistoryStorageKey, PruneInterval: 60},
		RateLimit: RateLimitConfig{RequestsPerSecond: 2, Burst: 5},
		Progress:  ProgressConfig{Broker: "local"},
	}
}

func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Watch 监听配置文件变化，变化后重新解析并回调
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := Default()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}
