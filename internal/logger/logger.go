// Package logger configures structured logging for PacketMill.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/packetmill/packetmill/internal/config"
)

const asyncWorkers = 2

// Closer flushes buffered log records on shutdown.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// New builds the process logger: JSON records on stdout, the request ID
// lifted from the context onto every record, and a "service" attribute.
// With cfg.Buffer > 0 records pass through an async handler; the returned
// Closer drains it and must be called before exit.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	closer := Closer(nopCloser{})
	if cfg.Buffer > 0 {
		ah := NewAsyncHandler(h, cfg.Buffer, asyncWorkers)
		h, closer = ah, ah
	}

	return slog.New(ctxHandler{h}).With("service", cfg.Service), closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
