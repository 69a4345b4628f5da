package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/config"
)

// Setup 初始化全局 logger
func Setup(cfg config.LogConfig) {
	SetupWithWriter(cfg, os.Stderr)
}

// SetupWithWriter 使用指定输出初始化全局 logger
func SetupWithWriter(cfg config.LogConfig, out io.Writer) {
	var w io.Writer = out
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	SetLevel(cfg.Level)
}

// SetLevel 设置全局日志级别，无法解析时回退到 info
func SetLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return lvl
}
