package observability

import (
	"log/slog"
	"os"
	"strings"

	"github.com/evalmesh/pipeline/internal/config"
)

// SetupLogger builds the process-wide structured logger, grounded on the
// teacher's observability.SetupLogger: JSON output, level derived from
// config, service/env fields attached to every record.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel, cfg.IsDev())}
	h := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}

func parseLevel(level string, dev bool) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		return slog.LevelInfo
	default:
		if dev {
			return slog.LevelDebug
		}
		return slog.LevelInfo
	}
}
