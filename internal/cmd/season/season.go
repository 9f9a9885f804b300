// Package season parses season daemon flags and launches its runtime.
package season

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/outlast/internal/platform/cmd"
	"github.com/louisbranch/outlast/internal/platform/logging"
	seasonserver "github.com/louisbranch/outlast/internal/services/season/app"
)

// Config holds season daemon configuration.
type Config struct {
	seasonserver.Config
	Logging logging.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The season HTTP API listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "The season gRPC control plane listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The season SQLite database path")
	fs.StringVar(&cfg.FeedDir, "feed-dir", cfg.FeedDir, "The notice feed directory")
	fs.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "Maximum concurrent HTTP connections")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Longest a runner sleeps before re-reading its season")
	fs.DurationVar(&cfg.ResyncInterval, "resync-interval", cfg.ResyncInterval, "How often seasons in play are re-listed")
	fs.IntVar(&cfg.Retry.MaxAttempts, "max-attempts", cfg.Retry.MaxAttempts, "Step attempts before a season stalls")
	fs.DurationVar(&cfg.Retry.BaseDelay, "retry-backoff", cfg.Retry.BaseDelay, "Base retry backoff delay")
	fs.DurationVar(&cfg.Retry.MaxDelay, "retry-max-delay", cfg.Retry.MaxDelay, "Maximum retry delay")
	fs.BoolVar(&cfg.Defaults.FastForward, "fast-forward", cfg.Defaults.FastForward, "Run new seasons with minute-long windows")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	fs.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "Log format (json or console)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the season daemon.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.Setup(entrypoint.ServiceSeason, cfg.Logging)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeason, func(ctx context.Context) error {
		return seasonserver.Run(ctx, cfg.Config, logger)
	})
}
