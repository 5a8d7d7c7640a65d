package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/omni/bridge-relayer/config"
	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/logging"
)

var ErrUnknownAlert = errors.New("unknown alert type")

const defaultStuckThreshold = time.Hour

type AlertManager struct {
	logger logging.Logger
	jobs   map[string]*Job
}

func NewAlertManager(logger logging.Logger, db *db.DB, cfg *config.Config) (*AlertManager, error) {
	provider := NewDBAlertsProvider(db)
	jobs := make(map[string]*Job, len(cfg.Alerts))

	chainIDs := make([]string, 0, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		chainIDs = append(chainIDs, chain.ChainID)
	}
	sort.Strings(chainIDs)

	for name, alertCfg := range cfg.Alerts {
		params := &AlertJobParams{ChainIDs: chainIDs}
		if alertCfg != nil {
			params.Threshold = alertCfg.Threshold
		}
		switch name {
		case "stuck_confirmation":
			if params.Threshold == 0 {
				params.Threshold = defaultStuckThreshold
			}
			jobs[name] = &Job{
				Interval: time.Minute * 5,
				Timeout:  time.Second * 20,
				Func:     provider.FindStuckConfirmations,
				Metric:   AlertStuckConfirmation,
			}
		case "failed_relay":
			jobs[name] = &Job{
				Interval: time.Minute,
				Timeout:  time.Second * 10,
				Func:     provider.FindFailedRelays,
				Metric:   AlertFailedRelay,
			}
		case "retrying_relay":
			jobs[name] = &Job{
				Interval: time.Minute,
				Timeout:  time.Second * 10,
				Func:     provider.FindRetryingRelays,
				Metric:   AlertRetryingRelay,
			}
		default:
			return nil, fmt.Errorf("alert %q: %w", name, ErrUnknownAlert)
		}
		jobs[name].Params = params
		jobs[name].logger = logger.WithField("alert_job", name)
	}

	return &AlertManager{
		logger: logger,
		jobs:   jobs,
	}, nil
}

func (m *AlertManager) Start(ctx context.Context, isSynced func() bool) {
	t := time.NewTicker(10 * time.Second)
	for !isSynced() {
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			m.logger.Debug("waiting for relayer to be synchronized on all chains")
		}
	}
	t.Stop()
	m.logger.Info("all chains are synced, starting alert manager jobs")

	for _, job := range m.jobs {
		go job.Start(ctx, isSynced)
	}
}
