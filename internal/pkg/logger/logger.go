package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault 根据日志级别字符串创建默认的 slog.Logger。
//
// 支持的级别: debug / info / warn / error，无法识别时回退到 info。
func NewDefault(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lv,
	})
	return slog.New(handler)
}
