package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/logging"
	"github.com/omni/bridge-relayer/repository"
	"github.com/omni/bridge-relayer/utils"
)

type TrackerOptions struct {
	Interval     time.Duration
	ReorgTimeout time.Duration
	Now          func() time.Time
}

// Tracker promotes SENT records of a single source chain to CONFIRMED once
// their source transaction is deep enough.
type Tracker struct {
	logger logging.Logger
	chain  *Chain
	repo   *repository.Repo
	prover Prover
	opts   TrackerOptions
}

func NewTracker(logger logging.Logger, repo *repository.Repo, chain *Chain, prover Prover, opts TrackerOptions) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		logger: logger.WithFields(chainFields(chain)).WithField("component", "tracker"),
		chain:  chain,
		repo:   repo,
		prover: prover,
		opts:   opts,
	}
}

func (t *Tracker) Start(ctx context.Context) {
	t.logger.WithField("required_confirmations", t.chain.BlockConfirmations).Info("starting confirmation tracker")
	for {
		if err := t.Sweep(ctx); err != nil {
			t.logger.WithError(err).Error("failed to sweep sent records")
		}
		if utils.ContextSleep(ctx, t.opts.Interval) == nil {
			return
		}
	}
}

// Sweep checks every SENT record of the chain once. Per-record failures are
// logged and left for the next sweep.
func (t *Tracker) Sweep(ctx context.Context) error {
	height, err := t.chain.Client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("can't fetch latest block number: %w", err)
	}
	for _, repo := range t.repo.Records() {
		records, err := repo.ListByState(ctx, entity.StateSent, t.chain.ChainID)
		if err != nil {
			return fmt.Errorf("can't list sent %s records: %w", repo.Kind(), err)
		}
		for _, rec := range records {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err = t.track(ctx, repo, rec, height); err != nil {
				t.recordLogger(rec).WithError(err).Error("failed to track record")
			}
		}
	}
	return nil
}

func (t *Tracker) recordLogger(rec entity.Record) logging.Logger {
	h := rec.Header()
	return t.logger.WithFields(logrus.Fields{
		"kind":        rec.Kind(),
		"record_id":   h.ID,
		"external_id": h.ExternalID,
		"tx_hash":     h.SourceTxHash,
	})
}

func (t *Tracker) track(ctx context.Context, repo entity.RecordsRepo, rec entity.Record, height uint) error {
	h := rec.Header()
	logger := t.recordLogger(rec)
	now := t.opts.Now()

	receipt, err := t.chain.Client.TransactionReceiptByHash(ctx, h.SourceTxHash)
	if errors.Is(err, ethereum.NotFound) {
		if h.Age(now) <= t.opts.ReorgTimeout {
			logger.Debug("source receipt is not found yet")
			return nil
		}
		lastError := ErrSourceDropped.Error()
		logger.WithField("age", h.Age(now)).Warn("source tx disappeared, marking record as failed")
		return t.transition(ctx, repo, rec, &entity.Mutation{
			State:     entity.StateFailed,
			LastError: &lastError,
		})
	}
	if err != nil {
		return fmt.Errorf("can't get source receipt: %w", err)
	}

	confirmations := Confirmations(height, receipt)
	if confirmations < t.chain.BlockConfirmations {
		logger.WithFields(logrus.Fields{
			"confirmations": confirmations,
			"required":      t.chain.BlockConfirmations,
		}).Debug("awaiting finality")
		return nil
	}

	proof, err := t.prover.Prove(ctx, rec, receipt)
	if err != nil {
		return fmt.Errorf("can't build proof: %w", err)
	}
	logger.WithField("confirmations", confirmations).Info("source tx is final, confirming record")
	return t.transition(ctx, repo, rec, &entity.Mutation{
		State:       entity.StateConfirmed,
		Proof:       proof,
		ConfirmedAt: &now,
	})
}

func (t *Tracker) transition(ctx context.Context, repo entity.RecordsRepo, rec entity.Record, mutation *entity.Mutation) error {
	err := repo.CompareAndSet(ctx, rec.Header().ID, entity.StateSent, mutation)
	if errors.Is(err, entity.ErrStateConflict) {
		t.recordLogger(rec).Debug("record was changed concurrently")
		return nil
	}
	if err != nil {
		return err
	}
	RecordTransitions.WithLabelValues(t.chain.ChainID, string(rec.Kind()), string(mutation.State)).Inc()
	return nil
}

// Confirmations is the depth of the receipt block below the given height.
func Confirmations(height uint, receipt *types.Receipt) uint {
	if receipt.BlockNumber == nil {
		return 0
	}
	block := uint(receipt.BlockNumber.Uint64())
	if height < block {
		return 0
	}
	return height - block
}
