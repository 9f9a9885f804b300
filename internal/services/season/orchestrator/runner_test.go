package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/outlast/internal/services/season/domain/season"
)

func waitForPhase(t *testing.T, f *fixture, phase season.Phase) season.Season {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sn, err := f.store.GetSeason(context.Background(), "s1")
		if err != nil {
			t.Fatalf("get season: %v", err)
		}
		if sn.NextPhase == phase {
			return sn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("season never reached %s", phase)
	return season.Season{}
}

func TestRunnerAdvancesUntilWindow(t *testing.T) {
	f := newFixture(t)
	f.startSeason(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	runner := NewRunner(f.orch, "s1", RetryPolicy{}, 5*time.Millisecond)
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx)
	}()

	sn := waitForPhase(t, f, season.PhaseCampClose)
	if sn.Phase != season.PhaseCampOpen {
		t.Fatalf("expected camp_open to be the last phase, got %s", sn.Phase)
	}
	runner.Wake()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	attempts, err := f.store.ListAttempts(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected three recorded attempts, got %d", len(attempts))
	}
	for _, a := range attempts {
		if a.Outcome != OutcomeSucceeded {
			t.Fatalf("expected succeeded attempts, got %+v", a)
		}
	}
}

func TestRetryPolicyNormalizes(t *testing.T) {
	tests := []struct {
		name string
		in   RetryPolicy
		want RetryPolicy
	}{
		{name: "zero", in: RetryPolicy{}, want: RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}},
		{name: "kept", in: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Minute}, want: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Minute}},
		{name: "max below base", in: RetryPolicy{MaxAttempts: 1, BaseDelay: time.Minute, MaxDelay: time.Second}, want: RetryPolicy{MaxAttempts: 1, BaseDelay: time.Minute, MaxDelay: time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.normalized(); got != tt.want {
				t.Fatalf("normalized() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestManagerRecoversSeasonsInPlay(t *testing.T) {
	f := newFixture(t)
	f.startSeason(testConfig())

	manager := NewManager(f.orch, ManagerConfig{PollInterval: 5 * time.Millisecond, ResyncInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- manager.Run(ctx)
	}()

	waitForPhase(t, f, season.PhaseCampClose)
	if !manager.Running("s1") {
		t.Fatal("expected a runner for the recovered season")
	}
	manager.Wake("s1")
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
	if manager.Running("s1") {
		t.Fatal("expected runner to be released after shutdown")
	}
}
