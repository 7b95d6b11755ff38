// Package logger создаёт slog.Logger в зависимости от окружения.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Окружения, поддерживаемые конфигурацией.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// New возвращает логгер для stdout.
func New(env string) *slog.Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter возвращает логгер, пишущий в w.
// local — текстовый формат и уровень debug, dev — JSON и debug, prod — JSON и info.
// Неизвестное окружение трактуется как prod.
func NewWithWriter(env string, w io.Writer) *slog.Logger {
	switch env {
	case EnvLocal:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case EnvDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

// NewNoop возвращает логгер, отбрасывающий все записи. Используется в тестах.
func NewNoop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}
