package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-relayer/contract/bridgeabi"
	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/logging"
	"github.com/omni/bridge-relayer/repository"
	"github.com/omni/bridge-relayer/utils"
)

const defaultSyncedThreshold = 10

// Ingestor turns bridge events of a single source chain into SENT records.
type Ingestor struct {
	logger       logging.Logger
	chain        *Chain
	repo         *repository.Repo
	health       HealthChecker
	destinations map[string]bool
	cursor       uint
	synced       atomic.Bool

	syncedMetric         prometheus.Gauge
	headBlockMetric      prometheus.Gauge
	processedBlockMetric prometheus.Gauge
}

func NewIngestor(ctx context.Context, logger logging.Logger, repo *repository.Repo, chain *Chain, health HealthChecker, destinations []string) (*Ingestor, error) {
	logger = logger.WithFields(chainFields(chain))
	cursor := chain.initialCursor()
	state, err := repo.ChainStates.GetByChainID(ctx, chain.ChainID)
	switch {
	case db.IsNotFound(err):
		logger.WithField("start_block", chain.StartBlock).Warn("chain cursor is not present, staring indexing from scratch")
	case err != nil:
		return nil, fmt.Errorf("failed to read chain cursor: %w", err)
	default:
		cursor = state.LastProcessedBlock
	}

	dests := make(map[string]bool, len(destinations))
	for _, chainID := range destinations {
		if chainID != chain.ChainID {
			dests[chainID] = true
		}
	}
	return &Ingestor{
		logger:               logger,
		chain:                chain,
		repo:                 repo,
		health:               health,
		destinations:         dests,
		cursor:               cursor,
		syncedMetric:         SyncedChain.WithLabelValues(chain.ChainID),
		headBlockMetric:      LatestHeadBlock.WithLabelValues(chain.ChainID),
		processedBlockMetric: LatestProcessedBlock.WithLabelValues(chain.ChainID),
	}, nil
}

func (i *Ingestor) Cursor() uint {
	return i.cursor
}

// IsSynced reports whether the cursor is close enough to the chain head.
func (i *Ingestor) IsSynced() bool {
	return i.synced.Load()
}

func (i *Ingestor) recordIsSynced(head uint) {
	synced := i.cursor+defaultSyncedThreshold > head
	i.synced.Store(synced)
	i.syncedMetric.Set(boolToFloat(synced))
}

func (i *Ingestor) Start(ctx context.Context) {
	i.logger.WithField("cursor", i.cursor).Info("starting event ingestor")
	for {
		if !i.health.IsHealthy(i.chain.ChainID) {
			i.logger.Warn("source chain is unhealthy, skipping logs polling")
		} else if err := i.Poll(ctx); err != nil {
			i.logger.WithError(err).Error("failed to ingest new logs")
		}

		if utils.ContextSleep(ctx, i.chain.BlockIndexInterval) == nil {
			return
		}
	}
}

// Poll ingests every block between the cursor and the current head.
// The cursor moves only after all logs of a range are stored.
func (i *Ingestor) Poll(ctx context.Context) error {
	head, err := i.chain.Client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("can't fetch latest block number: %w", err)
	}
	i.headBlockMetric.Set(float64(head))
	defer i.recordIsSynced(head)
	if head <= i.cursor {
		return nil
	}

	for _, blocksRange := range SplitBlockRange(i.cursor+1, head, i.chain.MaxBlockRangeSize) {
		if err = i.processRange(ctx, blocksRange); err != nil {
			return err
		}
		if err = i.repo.ChainStates.UpdateCursor(ctx, i.chain.ChainID, blocksRange.To); err != nil {
			return fmt.Errorf("can't update chain cursor: %w", err)
		}
		i.cursor = blocksRange.To
		i.processedBlockMetric.Set(float64(blocksRange.To))
	}
	return nil
}

// ProcessBlockRange re-ingests an explicit block range without touching the cursor.
func (i *Ingestor) ProcessBlockRange(ctx context.Context, fromBlock, toBlock uint) error {
	for _, blocksRange := range SplitBlockRange(fromBlock, toBlock, i.chain.MaxBlockRangeSize) {
		if err := i.processRange(ctx, blocksRange); err != nil {
			return err
		}
	}
	return nil
}

func (i *Ingestor) fetchLogs(ctx context.Context, blocksRange *BlocksRange) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(uint64(blocksRange.From)),
		ToBlock:   new(big.Int).SetUint64(uint64(blocksRange.To)),
		Addresses: []common.Address{i.chain.Bridge.Address()},
		Topics:    [][]common.Hash{bridgeabi.RelayEventSignatures()},
	}
	var logs []types.Log
	var err error
	if i.chain.SafeLogsRequest {
		logs, err = i.chain.Client.FilterLogsSafe(ctx, q)
	} else {
		logs, err = i.chain.Client.FilterLogs(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(a, b int) bool {
		return logs[a].BlockNumber < logs[b].BlockNumber ||
			(logs[a].BlockNumber == logs[b].BlockNumber && logs[a].Index < logs[b].Index)
	})
	return logs, nil
}

func (i *Ingestor) processRange(ctx context.Context, blocksRange *BlocksRange) error {
	logger := i.logger.WithFields(logrus.Fields{
		"from_block": blocksRange.From,
		"to_block":   blocksRange.To,
	})
	logs, err := i.fetchLogs(ctx, blocksRange)
	if err != nil {
		return fmt.Errorf("can't fetch logs in range %d-%d: %w", blocksRange.From, blocksRange.To, err)
	}
	logger.WithField("count", len(logs)).Debug("fetched logs in range")

	for idx := range logs {
		log := &logs[idx]
		if log.Removed {
			continue
		}
		if err = i.ingestLog(ctx, log); err != nil {
			return err
		}
	}
	return nil
}

func (i *Ingestor) ingestLog(ctx context.Context, log *types.Log) error {
	logger := i.logger.WithFields(logrus.Fields{
		"block_number": log.BlockNumber,
		"tx_hash":      log.TxHash,
		"log_index":    log.Index,
	})
	rec, err := i.chain.Bridge.ParseRecord(log, i.chain.ChainID)
	if err != nil {
		logger.WithError(err).Error("can't parse bridge event, skipping")
		return nil
	}
	if rec == nil {
		logger.Warn("received unknown event")
		return nil
	}
	if err = i.validate(rec); err != nil {
		logger.WithError(err).Warn("bridge event can't be relayed, skipping")
		return nil
	}

	repo := i.repo.RecordsByKind(rec.Kind())
	if repo == nil {
		return fmt.Errorf("no repo for %s records: %w", rec.Kind(), entity.ErrUnexpectedKind)
	}
	stored, created, err := repo.UpsertByDedupKey(ctx, rec)
	if err != nil {
		return fmt.Errorf("can't store %s record: %w", rec.Kind(), err)
	}
	logger = logger.WithFields(logrus.Fields{
		"kind":        rec.Kind(),
		"record_id":   stored.Header().ID,
		"external_id": stored.Header().ExternalID,
	})
	if !created {
		logger.Debug("record already exists, skipping")
		return nil
	}
	IngestedRecords.WithLabelValues(i.chain.ChainID, string(rec.Kind())).Inc()
	logger.WithField("dest_chain_id", stored.Header().DestChainID).Info("ingested new record")
	return nil
}

var (
	errUnknownDestination = errors.New("unknown destination chain")
	errNonPositiveAmount  = errors.New("non-positive transfer amount")
)

func (i *Ingestor) validate(rec entity.Record) error {
	destChainID := rec.Header().DestChainID
	if !i.destinations[destChainID] {
		return fmt.Errorf("chain %s: %w", destChainID, errUnknownDestination)
	}
	if transfer, ok := rec.(*entity.TokenTransfer); ok {
		if _, ok = transfer.AmountInt(); !ok {
			return fmt.Errorf("amount %s: %w", transfer.Amount, errNonPositiveAmount)
		}
	}
	return nil
}
