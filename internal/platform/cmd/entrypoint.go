// Package cmd holds the startup plumbing shared by the season binaries.
package cmd

import (
	"context"
	"errors"
	"flag"
	"strings"

	"github.com/louisbranch/outlast/internal/platform/config"
	"github.com/louisbranch/outlast/internal/platform/otel"
	"github.com/louisbranch/outlast/internal/platform/timeouts"
	"github.com/rs/zerolog/log"
)

// Service names double as the OpenTelemetry service.name and the CLI name.
const (
	ServiceSeason    = "season"
	ServiceSeasonCtl = "seasonctl"
)

// ParseConfig loads environment defaults into cfg. Flags parsed afterwards
// override whatever the environment supplied.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags. A nil args slice parses as empty so
// tests never fall through to os.Args.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry installs the tracer provider for service, runs run, and
// flushes pending spans before returning run's error.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warn().Err(err).Str("service", service).Msg("flush traces")
		}
	}()
	return run(ctx)
}
