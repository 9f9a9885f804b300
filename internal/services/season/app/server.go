// Package server wires the season runtime: storage, notice feed, runner
// supervision, and the HTTP and gRPC listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/outlast/internal/platform/logging"
	"github.com/louisbranch/outlast/internal/platform/timeouts"
	"github.com/louisbranch/outlast/internal/services/season/api/gmauth"
	"github.com/louisbranch/outlast/internal/services/season/api/grpc/control"
	"github.com/louisbranch/outlast/internal/services/season/api/rest"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/notify"
	"github.com/louisbranch/outlast/internal/services/season/orchestrator"
	"github.com/louisbranch/outlast/internal/services/season/service"
	"github.com/louisbranch/outlast/internal/services/season/storage/integrity"
	"github.com/louisbranch/outlast/internal/services/season/storage/sqlite"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Config is the season daemon runtime configuration.
type Config struct {
	HTTPAddr       string        `env:"SEASON_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr       string        `env:"SEASON_GRPC_ADDR" envDefault:":8090"`
	DBPath         string        `env:"SEASON_DB_PATH" envDefault:"data/season.db"`
	FeedDir        string        `env:"SEASON_FEED_DIR" envDefault:"data/season-feed"`
	GMTokenSecret  string        `env:"SEASON_GM_TOKEN_SECRET"`
	MaxConnections int           `env:"SEASON_HTTP_MAX_CONNECTIONS" envDefault:"512"`
	PollInterval   time.Duration `env:"SEASON_POLL_INTERVAL" envDefault:"30s"`
	ResyncInterval time.Duration `env:"SEASON_RESYNC_INTERVAL" envDefault:"1m"`

	Retry     orchestrator.RetryPolicy `envPrefix:"SEASON_RETRY_"`
	Defaults  season.Config            `envPrefix:"SEASON_DEFAULT_"`
	Integrity integrity.Env
}

// Validate reports configuration the daemon cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" && strings.TrimSpace(c.GRPCAddr) == "" {
		return errors.New("at least one of the HTTP or gRPC addresses is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("season db path is required")
	}
	if err := c.auth().Validate(); err != nil {
		return err
	}
	return c.Defaults.WithDefaults().Validate()
}

func (c Config) auth() gmauth.Config {
	return gmauth.Config{Secret: []byte(c.GMTokenSecret)}
}

// Server hosts the season APIs and supervises season runners.
type Server struct {
	logger     zerolog.Logger
	store      *sqlite.Store
	feed       *notify.Feed
	hub        *notify.Hub
	manager    *orchestrator.Manager
	httpLn     net.Listener
	httpServer *http.Server
	grpcLn     net.Listener
	grpcServer *grpc.Server
	health     *health.Server
}

// New opens storage and binds listeners. Nothing is served until Serve.
func New(cfg Config, logger zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	keyring, err := cfg.Integrity.Keyring()
	if err != nil {
		return nil, err
	}

	s := &Server{logger: logging.Component(logger, "season_server")}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	s.store, err = openStore(cfg.DBPath, keyring)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.FeedDir) != "" {
		s.feed, err = notify.OpenFeed(cfg.FeedDir)
		if err != nil {
			return nil, err
		}
	}
	s.hub = notify.NewHub(s.feed, logging.Component(logger, "notify_hub"))

	noticeLog := logging.Component(logger, "notices")
	orch := orchestrator.New(s.store,
		orchestrator.WithLogger(logger),
		orchestrator.WithNotifier(notify.Multi{
			s.hub,
			notify.NotifierFunc(func(_ context.Context, n notify.Notice) {
				noticeLog.Debug().Str("season_id", n.SeasonID).Str("kind", n.Kind).Msg("notice")
			}),
		}),
	)
	s.manager = orchestrator.NewManager(orch, orchestrator.ManagerConfig{
		Retry:          cfg.Retry,
		PollInterval:   cfg.PollInterval,
		ResyncInterval: cfg.ResyncInterval,
	})
	svc := service.New(orch,
		service.WithWaker(s.manager),
		service.WithLogger(logger),
		service.WithSeasonDefaults(cfg.Defaults),
	)
	auth := cfg.auth()

	if addr := strings.TrimSpace(cfg.HTTPAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", addr, err)
		}
		if cfg.MaxConnections > 0 {
			ln = netutil.LimitListener(ln, cfg.MaxConnections)
		}
		s.httpLn = ln
		s.httpServer = &http.Server{
			Handler:           rest.NewHandler(svc, auth, rest.WithLive(s.hub), rest.WithLogger(logger)),
			ReadHeaderTimeout: timeouts.ReadHeader,
		}
	}

	if addr := strings.TrimSpace(cfg.GRPCAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", addr, err)
		}
		s.grpcLn = ln
		s.grpcServer = grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(control.AuthInterceptor(auth)),
		)
		control.Register(s.grpcServer, control.NewService(svc))
		s.health = health.NewServer()
		grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
		s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(control.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}

	ok = true
	return s, nil
}

// HTTPAddr returns the bound HTTP address, or "" when HTTP is disabled.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpLn == nil {
		return ""
	}
	return s.httpLn.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcLn == nil {
		return ""
	}
	return s.grpcLn.Addr().String()
}

// Run creates and serves a season server until ctx ends.
func Run(ctx context.Context, cfg Config, logger zerolog.Logger) error {
	server, err := New(cfg, logger)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs the runner manager and every listener until ctx ends or one of
// them fails, then shuts the rest down.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.manager.Run(groupCtx)
	})
	if s.httpServer != nil {
		s.logger.Info().Str("addr", s.HTTPAddr()).Msg("season HTTP API listening")
		group.Go(func() error {
			err := s.httpServer.Serve(s.httpLn)
			if err == nil || errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve http: %w", err)
		})
	}
	if s.grpcServer != nil {
		s.logger.Info().Str("addr", s.GRPCAddr()).Msg("season gRPC control plane listening")
		group.Go(func() error {
			err := s.grpcServer.Serve(s.grpcLn)
			if err == nil || errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return fmt.Errorf("serve gRPC: %w", err)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		return s.shutdown()
	})

	err := group.Wait()
	s.logger.Info().Msg("season server stopped")
	return err
}

func (s *Server) shutdown() error {
	if s.health != nil {
		s.health.Shutdown()
	}
	s.hub.Close()

	var errs []error
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
		cancel()
	}
	if s.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(timeouts.Shutdown):
			s.grpcServer.Stop()
		}
	}
	return errors.Join(errs...)
}

// Close releases listeners and storage. It is safe to call more than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.httpLn != nil {
		_ = s.httpLn.Close()
	}
	if s.grpcLn != nil {
		_ = s.grpcLn.Close()
	}
	if s.feed != nil {
		if err := s.feed.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("close notice feed")
		}
		s.feed = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("close season store")
		}
		s.store = nil
	}
}

func openStore(path string, keyring *integrity.Keyring) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path, keyring)
	if err != nil {
		return nil, fmt.Errorf("open season sqlite store: %w", err)
	}
	return store, nil
}
