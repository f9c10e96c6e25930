package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// LogLevel читает уровень логирования из LOG_LEVEL (debug/info/warn/error,
// регистр не важен). Нераспознанное значение трактуется как info.
func LogLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger настраивает и устанавливает глобальный slog-логгер.
//
// LOG_FORMAT=text переключает на человекочитаемый handler для разработки;
// по умолчанию пишется JSON. На уровне debug в записи добавляется источник.
func SetupLogger() *slog.Logger {
	level := LogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
