package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-relayer/config"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/ethclient"
	"github.com/omni/bridge-relayer/logging"
	"github.com/omni/bridge-relayer/repository"
	"github.com/omni/bridge-relayer/utils"
)

var ErrMissingClient = errors.New("no rpc client for configured chain")

// Relayer wires every worker of the relay pipeline together.
type Relayer struct {
	logger    logging.Logger
	repo      *repository.Repo
	chains    []*Chain
	health    *HealthMonitor
	ingestors map[string]*Ingestor
	trackers  []*Tracker
	executor  *Executor
}

// NewChains builds chain descriptors for every configured chain, ordered by chain id.
func NewChains(cfg *config.Config, clients map[string]ethclient.Client) ([]*Chain, error) {
	chains := make([]*Chain, 0, len(cfg.Chains))
	for _, chainCfg := range cfg.Chains {
		client, ok := clients[chainCfg.ChainID]
		if !ok {
			return nil, fmt.Errorf("chain %q: %w", chainCfg.Name, ErrMissingClient)
		}
		chains = append(chains, NewChain(chainCfg, client))
	}
	sort.Slice(chains, func(i, j int) bool {
		return chains[i].ChainID < chains[j].ChainID
	})
	return chains, nil
}

func NewRelayer(ctx context.Context, logger logging.Logger, repo *repository.Repo, cfg *config.Config, clients map[string]ethclient.Client, locker Locker) (*Relayer, error) {
	logger.Info("initializing relayer")
	chains, err := NewChains(cfg, clients)
	if err != nil {
		return nil, err
	}
	for _, chain := range chains {
		err = repo.ChainStates.Ensure(ctx, &entity.ChainState{
			ChainID:            chain.ChainID,
			LastProcessedBlock: chain.initialCursor(),
			Healthy:            true,
		})
		if err != nil {
			return nil, fmt.Errorf("can't ensure chain state for %s: %w", chain.Name, err)
		}
	}

	relayerCfg := cfg.Relayer
	health, err := NewHealthMonitor(ctx, logger.WithField("component", "health"), repo.ChainStates, chains, relayerCfg.HealthCheckInterval, relayerCfg.FailureThreshold)
	if err != nil {
		return nil, err
	}

	key, err := utils.ParsePrivateKey(relayerCfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("can't parse relayer private key: %w", err)
	}
	prover, err := NewProver(relayerCfg.Prover, key)
	if err != nil {
		return nil, err
	}

	chainIDs := make([]string, len(chains))
	for i, chain := range chains {
		chainIDs[i] = chain.ChainID
	}

	r := &Relayer{
		logger:    logger,
		repo:      repo,
		chains:    chains,
		health:    health,
		ingestors: make(map[string]*Ingestor, len(chains)),
	}
	destinations := make([]*Destination, 0, len(chains))
	for _, chain := range chains {
		chainLogger := logger.WithFields(chainFields(chain))
		ingestor, err2 := NewIngestor(ctx, chainLogger.WithField("component", "ingestor"), repo, chain, health, chainIDs)
		if err2 != nil {
			return nil, fmt.Errorf("failed to initialize ingestor for %s: %w", chain.Name, err2)
		}
		r.ingestors[chain.ChainID] = ingestor

		r.trackers = append(r.trackers, NewTracker(logger, repo, chain, prover, TrackerOptions{
			Interval:     relayerCfg.ConfirmationInterval,
			ReorgTimeout: relayerCfg.ReorgTimeout,
		}))

		submitter, err2 := NewNonceSubmitter(chainLogger.WithField("component", "submitter"), chain.Client, key, SubmitterOptionsFromConfig(relayerCfg))
		if err2 != nil {
			return nil, fmt.Errorf("failed to initialize submitter for %s: %w", chain.Name, err2)
		}
		destinations = append(destinations, &Destination{Chain: chain, Submitter: submitter})
	}
	r.executor = NewExecutor(logger, repo, health, locker, destinations, ExecutorOptionsFromConfig(relayerCfg))

	logger.WithFields(logrus.Fields{
		"chains":  len(chains),
		"relayer": crypto.PubkeyToAddress(key.PublicKey),
	}).Info("relayer initialized")
	return r, nil
}

func (r *Relayer) Start(ctx context.Context) {
	r.logger.Info("starting relayer")
	go r.health.Start(ctx)
	for _, chain := range r.chains {
		go r.ingestors[chain.ChainID].Start(ctx)
	}
	for _, tracker := range r.trackers {
		go tracker.Start(ctx)
	}
	go r.executor.Start(ctx)
}

func (r *Relayer) Chains() []*Chain {
	return r.chains
}

func (r *Relayer) Health() HealthChecker {
	return r.health
}

// IsSynced reports whether every ingestor has caught up with its chain head.
func (r *Relayer) IsSynced() bool {
	for _, ingestor := range r.ingestors {
		if !ingestor.IsSynced() {
			return false
		}
	}
	return true
}

func (r *Relayer) ProcessBlockRange(ctx context.Context, chainID string, fromBlock, toBlock uint) error {
	ingestor, ok := r.ingestors[chainID]
	if !ok {
		return fmt.Errorf("chain %s: %w", chainID, config.ErrUnknownChain)
	}
	return ingestor.ProcessBlockRange(ctx, fromBlock, toBlock)
}
