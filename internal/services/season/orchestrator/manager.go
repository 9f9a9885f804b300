package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"golang.org/x/sync/errgroup"
)

// defaultResyncInterval is how often the manager re-lists seasons in play to
// pick up work started by another process.
const defaultResyncInterval = time.Minute

// ManagerConfig tunes season supervision.
type ManagerConfig struct {
	Retry          RetryPolicy
	PollInterval   time.Duration
	ResyncInterval time.Duration
}

// Manager supervises one Runner per season in play. On start it recovers
// every active or finale season from storage, so a restart resumes each
// season at its stored NextPhase.
type Manager struct {
	orch *Orchestrator
	cfg  ManagerConfig

	mu      sync.Mutex
	ctx     context.Context
	group   *errgroup.Group
	runners map[string]*runnerHandle
}

type runnerHandle struct {
	runner *Runner
	cancel context.CancelFunc
}

// NewManager builds a manager around orch.
func NewManager(orch *Orchestrator, cfg ManagerConfig) *Manager {
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = defaultResyncInterval
	}
	return &Manager{
		orch:    orch,
		cfg:     cfg,
		runners: make(map[string]*runnerHandle),
	}
}

// Run recovers seasons in play and supervises their runners until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	m.mu.Lock()
	m.ctx = groupCtx
	m.group = group
	m.mu.Unlock()

	if err := m.Recover(groupCtx); err != nil {
		m.orch.logger.Warn().Err(err).Msg("recover seasons")
	}

	ticker := time.NewTicker(m.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-groupCtx.Done():
			m.mu.Lock()
			for _, h := range m.runners {
				h.cancel()
			}
			m.mu.Unlock()
			err := group.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		case <-ticker.C:
			if err := m.Recover(groupCtx); err != nil {
				m.orch.logger.Warn().Err(err).Msg("resync seasons")
			}
		}
	}
}

// Recover starts a runner for every season in play that lacks one.
func (m *Manager) Recover(ctx context.Context) error {
	seasons, err := m.orch.store.ListSeasons(ctx, season.StatusActive, season.StatusFinale)
	if err != nil {
		return err
	}
	started := 0
	for _, sn := range seasons {
		if !sn.InPlay() {
			continue
		}
		if m.ensure(sn.ID) {
			started++
		}
	}
	if started > 0 {
		m.orch.logger.Info().Int("seasons", started).Msg("recovered season runners")
	}
	return nil
}

// Ensure starts the season's runner if it is not running and wakes it
// otherwise. Calls before Run are picked up by its recovery pass.
func (m *Manager) Ensure(seasonID string) {
	m.ensure(seasonID)
}

// Wake makes the season's runner re-read its state now.
func (m *Manager) Wake(seasonID string) {
	m.ensure(seasonID)
}

// Running reports whether the season has a live runner.
func (m *Manager) Running(seasonID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runners[strings.TrimSpace(seasonID)]
	return ok
}

func (m *Manager) ensure(seasonID string) bool {
	seasonID = strings.TrimSpace(seasonID)
	if seasonID == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.runners[seasonID]; ok {
		h.runner.Wake()
		return false
	}
	if m.group == nil || m.ctx.Err() != nil {
		return false
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	h := &runnerHandle{
		runner: NewRunner(m.orch, seasonID, m.cfg.Retry, m.cfg.PollInterval),
		cancel: cancel,
	}
	m.runners[seasonID] = h
	m.group.Go(func() error {
		defer m.release(seasonID, h)
		return h.runner.Run(runCtx)
	})
	return true
}

func (m *Manager) release(seasonID string, h *runnerHandle) {
	h.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.runners[seasonID]; ok && current == h {
		delete(m.runners, seasonID)
	}
}
