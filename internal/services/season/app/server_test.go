package server

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/outlast/internal/platform/grpc"
	"github.com/louisbranch/outlast/internal/services/season/api/grpc/control"
	"github.com/louisbranch/outlast/internal/services/season/storage/integrity"
	"github.com/rs/zerolog"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	dir := t.TempDir()
	return Config{
		HTTPAddr:       "127.0.0.1:0",
		GRPCAddr:       "127.0.0.1:0",
		DBPath:         filepath.Join(dir, "db", "season.db"),
		FeedDir:        filepath.Join(dir, "feed"),
		GMTokenSecret:  "server-test-secret-0123456789",
		MaxConnections: 8,
		PollInterval:   time.Second,
		Integrity:      integrity.Env{Key: "server-root-key-0123456789abcdef"},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no listeners", mutate: func(c *Config) { c.HTTPAddr, c.GRPCAddr = "", "" }},
		{name: "no db path", mutate: func(c *Config) { c.DBPath = " " }},
		{name: "short gm secret", mutate: func(c *Config) { c.GMTokenSecret = "short" }},
		{name: "bad season defaults", mutate: func(c *Config) { c.Defaults.FinaleThreshold = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := testConfig(t).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestNewRequiresKeyring(t *testing.T) {
	cfg := testConfig(t)
	cfg.Integrity = integrity.Env{}
	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected missing hmac key to fail")
	}
}

func TestServeAndShutdown(t *testing.T) {
	server, err := New(testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if server.HTTPAddr() == "" || server.GRPCAddr() == "" {
		t.Fatal("expected bound listeners")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()

	resp, err := http.Get("http://" + server.HTTPAddr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	conn, err := platformgrpc.Dial(ctx, platformgrpc.Target{
		Addr:    server.GRPCAddr(),
		Service: control.ServiceName,
		Timeout: 5 * time.Second,
	}, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		t.Fatalf("dial control plane: %v", err)
	}
	_ = conn.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
