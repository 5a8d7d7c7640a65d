package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/logging"
	"github.com/omni/bridge-relayer/utils"
)

type HealthChecker interface {
	IsHealthy(chainID string) bool
}

// HealthMonitor marks a chain unhealthy after threshold consecutive failed
// height requests, and healthy again after a single successful one.
type HealthMonitor struct {
	logger    logging.Logger
	repo      entity.ChainStatesRepo
	chains    []*Chain
	interval  time.Duration
	threshold uint

	mu       sync.RWMutex
	healthy  map[string]bool
	failures map[string]uint
}

func NewHealthMonitor(ctx context.Context, logger logging.Logger, repo entity.ChainStatesRepo, chains []*Chain, interval time.Duration, threshold uint) (*HealthMonitor, error) {
	if threshold == 0 {
		threshold = 1
	}
	m := &HealthMonitor{
		logger:    logger,
		repo:      repo,
		chains:    chains,
		interval:  interval,
		threshold: threshold,
		healthy:   make(map[string]bool, len(chains)),
		failures:  make(map[string]uint, len(chains)),
	}
	states, err := repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't load chain states: %w", err)
	}
	stored := make(map[string]bool, len(states))
	for _, state := range states {
		stored[state.ChainID] = state.Healthy
	}
	for _, chain := range chains {
		healthy, ok := stored[chain.ChainID]
		if !ok {
			healthy = true
		}
		m.healthy[chain.ChainID] = healthy
		ChainHealthy.WithLabelValues(chain.ChainID).Set(boolToFloat(healthy))
	}
	return m, nil
}

// IsHealthy reports true for chains the monitor does not know about.
func (m *HealthMonitor) IsHealthy(chainID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	healthy, ok := m.healthy[chainID]
	return !ok || healthy
}

func (m *HealthMonitor) Start(ctx context.Context) {
	m.logger.Info("starting chain health monitor")
	for {
		m.Check(ctx)

		if utils.ContextSleep(ctx, m.interval) == nil {
			return
		}
	}
}

// Check performs a single round of height requests to every chain.
func (m *HealthMonitor) Check(ctx context.Context) {
	for _, chain := range m.chains {
		_, err := chain.Client.BlockNumber(ctx)
		if ctx.Err() != nil {
			return
		}
		m.Observe(ctx, chain.ChainID, err)
	}
}

// Observe feeds the result of a single liveness probe into the hysteresis.
func (m *HealthMonitor) Observe(ctx context.Context, chainID string, probeErr error) {
	logger := m.logger.WithField("chain_id", chainID)

	m.mu.Lock()
	wasHealthy, ok := m.healthy[chainID]
	if !ok {
		wasHealthy = true
	}
	healthy := wasHealthy
	if probeErr == nil {
		m.failures[chainID] = 0
		healthy = true
	} else {
		m.failures[chainID]++
		logger.WithError(probeErr).WithField("failures", m.failures[chainID]).Warn("chain height request failed")
		if m.failures[chainID] >= m.threshold {
			healthy = false
		}
	}
	m.healthy[chainID] = healthy
	m.mu.Unlock()

	if healthy == wasHealthy {
		return
	}
	ChainHealthy.WithLabelValues(chainID).Set(boolToFloat(healthy))
	logger = logger.WithField("healthy", healthy)
	if healthy {
		logger.Info("chain became healthy")
	} else {
		logger.Error("chain became unhealthy")
	}
	if err := m.repo.SetHealth(ctx, chainID, healthy); err != nil {
		logger.WithError(err).Error("can't persist chain health")
	}
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

var _ HealthChecker = (*HealthMonitor)(nil)
