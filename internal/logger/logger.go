package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fleetwatch/fleetwatch/internal/models"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the default slog logger from config. Output goes to
// stdout and, when a file is configured, to a size-rotated log file.
func Setup(cfg models.LogConfig) {
	var w io.Writer = os.Stdout
	if cfg.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
