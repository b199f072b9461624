package logging

import (
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Service string
	Env     string
	Level   string
}

func New(opts Options) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(opts.Level),
	})
	log := slog.New(h)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Env != "" {
		log = log.With("env", opts.Env)
	}
	return log
}

// Discard is used by tests and by adapters constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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
