package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/bridge-relayer/config"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/ethclient"
	"github.com/omni/bridge-relayer/logging"
	"github.com/omni/bridge-relayer/repository"
	"github.com/omni/bridge-relayer/utils"
)

const (
	outcomeExecuted   = "executed"
	outcomeReconciled = "reconciled"
	outcomeRetry      = "retry"
	outcomeFailed     = "failed"
)

type ExecutorOptions struct {
	Interval    time.Duration
	MaxRetries  uint
	Backoff     Backoff
	Concurrency uint
	Now         func() time.Time
}

func ExecutorOptionsFromConfig(cfg *config.RelayerConfig) ExecutorOptions {
	return ExecutorOptions{
		Interval:    cfg.RelayInterval,
		MaxRetries:  cfg.MaxRetries,
		Backoff:     NewBackoff(cfg.BaseRetryDelay, cfg.MaxRetryDelay),
		Concurrency: cfg.Concurrency,
	}
}

// Destination is a chain the relayer delivers records to.
type Destination struct {
	Chain     *Chain
	Submitter Submitter
}

// Executor delivers CONFIRMED records to their destination chains.
type Executor struct {
	logger       logging.Logger
	repo         *repository.Repo
	health       HealthChecker
	locker       Locker
	destinations []*Destination
	opts         ExecutorOptions
}

func NewExecutor(logger logging.Logger, repo *repository.Repo, health HealthChecker, locker Locker, destinations []*Destination, opts ExecutorOptions) *Executor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 1
	}
	if locker == nil {
		locker = NewNoopLocker()
	}
	return &Executor{
		logger:       logger.WithField("component", "executor"),
		repo:         repo,
		health:       health,
		locker:       locker,
		destinations: destinations,
		opts:         opts,
	}
}

func (e *Executor) Start(ctx context.Context) {
	e.logger.WithField("destinations", len(e.destinations)).Info("starting relay executor")
	for {
		e.Sweep(ctx)
		if utils.ContextSleep(ctx, e.opts.Interval) == nil {
			return
		}
	}
}

// Sweep relays due records to every healthy destination chain. Chains are
// processed in parallel and never block each other.
func (e *Executor) Sweep(ctx context.Context) {
	var g errgroup.Group
	for _, dest := range e.destinations {
		dest := dest
		logger := e.logger.WithFields(chainFields(dest.Chain))
		if !e.health.IsHealthy(dest.Chain.ChainID) {
			logger.Warn("destination chain is unhealthy, skipping relay")
			continue
		}
		g.Go(func() error {
			if err := e.sweepDestination(ctx, dest); err != nil {
				logger.WithError(err).Error("failed to relay records")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Executor) sweepDestination(ctx context.Context, dest *Destination) error {
	now := e.opts.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(int(e.opts.Concurrency))
	for _, repo := range e.repo.Records() {
		records, err := repo.ListDue(ctx, dest.Chain.ChainID, now)
		if err != nil {
			_ = g.Wait()
			return fmt.Errorf("can't list due %s records: %w", repo.Kind(), err)
		}
		for _, rec := range records {
			repo, rec := repo, rec
			g.Go(func() error {
				if err := e.Relay(ctx, dest, repo, rec); err != nil {
					e.recordLogger(dest, rec).WithError(err).Error("failed to relay record")
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func (e *Executor) recordLogger(dest *Destination, rec entity.Record) logging.Logger {
	h := rec.Header()
	return e.logger.WithFields(chainFields(dest.Chain)).WithFields(logrus.Fields{
		"kind":            rec.Kind(),
		"record_id":       h.ID,
		"external_id":     h.ExternalID,
		"source_chain_id": h.SourceChainID,
		"retry_count":     h.RetryCount,
	})
}

// Relay makes a single delivery attempt of a CONFIRMED record.
func (e *Executor) Relay(ctx context.Context, dest *Destination, repo entity.RecordsRepo, rec entity.Record) error {
	h := rec.Header()
	logger := e.recordLogger(dest, rec)

	release, ok, err := e.locker.Acquire(ctx, fmt.Sprintf("%s:%s", rec.Kind(), h.ID))
	if err != nil {
		return fmt.Errorf("can't acquire record lease: %w", err)
	}
	if !ok {
		logger.Debug("record is leased by another relayer, skipping")
		return nil
	}
	defer release()

	processed, err := dest.Chain.Bridge.IsProcessed(ctx, h.ExternalID)
	if err != nil {
		return fmt.Errorf("can't reconcile record with destination: %w", err)
	}
	if processed {
		logger.Info("record is already processed on destination chain")
		return e.markExecuted(ctx, dest, repo, rec, common.Hash{}, outcomeReconciled)
	}

	data, err := dest.Chain.Bridge.ExecutionData(rec, h.Proof)
	if err != nil {
		return e.markFailed(ctx, dest, repo, rec, fmt.Errorf("can't encode destination call: %w", err), nil)
	}

	txHash, err := dest.Submitter.Submit(ctx, dest.Chain.Bridge.Address(), data)
	if err == nil {
		logger.WithField("tx_hash", txHash).Info("record delivered to destination chain")
		return e.markExecuted(ctx, dest, repo, rec, txHash, outcomeExecuted)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	err = ClassifySubmitError(err)
	logger = logger.WithError(err).WithField("tx_hash", txHash)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("destination reports record as already processed")
		return e.markExecuted(ctx, dest, repo, rec, common.Hash{}, outcomeReconciled)
	case errors.Is(err, ErrPermanentRevert):
		return e.reconcileOrFail(ctx, dest, repo, rec, err)
	case errors.Is(err, ErrTransientRevert), errors.Is(err, ethclient.ErrTransientNetwork):
		if txHash != (common.Hash{}) {
			processed, cerr := dest.Chain.Bridge.IsProcessed(ctx, h.ExternalID)
			if cerr != nil {
				return fmt.Errorf("can't reconcile record after failed submission: %w", cerr)
			}
			if processed {
				// A reverted tx of ours did not deliver the record, someone else did.
				if errors.Is(err, ErrTxReverted) {
					txHash = common.Hash{}
				}
				logger.Info("record is processed on destination chain despite failed submission")
				return e.markExecuted(ctx, dest, repo, rec, txHash, outcomeReconciled)
			}
		}
		return e.scheduleRetry(ctx, dest, repo, rec, err)
	default:
		// protocol errors without a revert reason are not retried
		return e.reconcileOrFail(ctx, dest, repo, rec, err)
	}
}

// reconcileOrFail marks a record that can not be delivered as FAILED unless
// the destination already processed it.
func (e *Executor) reconcileOrFail(ctx context.Context, dest *Destination, repo entity.RecordsRepo, rec entity.Record, cause error) error {
	logger := e.recordLogger(dest, rec).WithError(cause)
	processed, err := dest.Chain.Bridge.IsProcessed(ctx, rec.Header().ExternalID)
	if err != nil {
		return fmt.Errorf("can't reconcile rejected record: %w", err)
	}
	if processed {
		logger.Info("rejected record is processed on destination chain")
		return e.markExecuted(ctx, dest, repo, rec, common.Hash{}, outcomeReconciled)
	}
	logger.Warn("destination permanently rejected record")
	return e.markFailed(ctx, dest, repo, rec, cause, nil)
}

func (e *Executor) scheduleRetry(ctx context.Context, dest *Destination, repo entity.RecordsRepo, rec entity.Record, cause error) error {
	logger := e.recordLogger(dest, rec).WithError(cause)
	n := rec.Header().RetryCount + 1
	if n >= e.opts.MaxRetries {
		logger.WithField("attempts", n).Warn("retry budget exhausted, marking record as failed")
		return e.markFailed(ctx, dest, repo, rec, fmt.Errorf("%w: %w", ErrRetryBudgetExhausted, cause), &n)
	}

	next := e.opts.Now().Add(e.opts.Backoff.Delay(n))
	lastError := cause.Error()
	logger.WithFields(logrus.Fields{
		"attempts":        n,
		"next_attempt_at": next,
	}).Warn("relay attempt failed, scheduling retry")
	return e.transition(ctx, dest, repo, rec, &entity.Mutation{
		State:         entity.StateConfirmed,
		RetryCount:    &n,
		NextAttemptAt: &next,
		LastError:     &lastError,
	}, outcomeRetry)
}

func (e *Executor) markExecuted(ctx context.Context, dest *Destination, repo entity.RecordsRepo, rec entity.Record, txHash common.Hash, outcome string) error {
	now := e.opts.Now()
	return e.transition(ctx, dest, repo, rec, &entity.Mutation{
		State:      entity.StateExecuted,
		DestTxHash: &txHash,
		ExecutedAt: &now,
	}, outcome)
}

func (e *Executor) markFailed(ctx context.Context, dest *Destination, repo entity.RecordsRepo, rec entity.Record, cause error, retryCount *uint) error {
	lastError := cause.Error()
	return e.transition(ctx, dest, repo, rec, &entity.Mutation{
		State:      entity.StateFailed,
		RetryCount: retryCount,
		LastError:  &lastError,
	}, outcomeFailed)
}

func (e *Executor) transition(ctx context.Context, dest *Destination, repo entity.RecordsRepo, rec entity.Record, mutation *entity.Mutation, outcome string) error {
	RelayAttempts.WithLabelValues(dest.Chain.ChainID, string(rec.Kind()), outcome).Inc()
	err := repo.CompareAndSet(ctx, rec.Header().ID, entity.StateConfirmed, mutation)
	if errors.Is(err, entity.ErrStateConflict) {
		e.recordLogger(dest, rec).Debug("record was changed concurrently")
		return nil
	}
	if err != nil {
		return fmt.Errorf("can't update record state: %w", err)
	}
	RecordTransitions.WithLabelValues(dest.Chain.ChainID, string(rec.Kind()), string(mutation.State)).Inc()
	return nil
}
