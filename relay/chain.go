package relay

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-relayer/config"
	"github.com/omni/bridge-relayer/contract"
	"github.com/omni/bridge-relayer/ethclient"
)

// Chain describes a configured chain together with its connector. Only the
// health of a chain changes at runtime and it is owned by the HealthMonitor.
type Chain struct {
	Name               string
	ChainID            string
	Client             ethclient.Client
	Bridge             *contract.BridgeContract
	BlockConfirmations uint
	StartBlock         uint
	MaxBlockRangeSize  uint
	BlockIndexInterval time.Duration
	SafeLogsRequest    bool
}

func NewChain(cfg *config.ChainConfig, client ethclient.Client) *Chain {
	return &Chain{
		Name:               cfg.Name,
		ChainID:            cfg.ChainID,
		Client:             client,
		Bridge:             contract.NewBridgeContract(client, cfg.BridgeAddress),
		BlockConfirmations: cfg.BlockConfirmations,
		StartBlock:         cfg.StartBlock,
		MaxBlockRangeSize:  cfg.MaxBlockRangeSize,
		BlockIndexInterval: cfg.BlockIndexInterval,
		SafeLogsRequest:    cfg.SafeLogsRequest,
	}
}

// initialCursor is the last processed block assumed for a chain without stored state.
func (c *Chain) initialCursor() uint {
	if c.StartBlock == 0 {
		return 0
	}
	return c.StartBlock - 1
}

func chainFields(chain *Chain) logrus.Fields {
	return logrus.Fields{
		"chain_id":   chain.ChainID,
		"chain_name": chain.Name,
	}
}
