package relay

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-relayer/config"
	"github.com/omni/bridge-relayer/ethclient"
	"github.com/omni/bridge-relayer/logging"
	"github.com/omni/bridge-relayer/utils"
)

// Submitter is the single logical writer of the relayer account on a destination chain.
type Submitter interface {
	From() common.Address
	Submit(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}

type SubmitterOptions struct {
	GasLimit            uint64
	GasPriceMultiplier  uint64
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
}

func SubmitterOptionsFromConfig(cfg *config.RelayerConfig) SubmitterOptions {
	return SubmitterOptions{
		GasLimit:            cfg.GasLimit,
		GasPriceMultiplier:  cfg.GasPriceMultiplier,
		ReceiptTimeout:      cfg.ReceiptTimeout,
		ReceiptPollInterval: cfg.ReceiptPollInterval,
	}
}

// NonceSubmitter assigns nonces under a mutex, so concurrent relays to the
// same chain never race for the same nonce.
type NonceSubmitter struct {
	logger  logging.Logger
	client  ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	opts    SubmitterOptions

	mu        sync.Mutex
	nextNonce *uint64
}

func NewNonceSubmitter(logger logging.Logger, client ethclient.Client, key *ecdsa.PrivateKey, opts SubmitterOptions) (*NonceSubmitter, error) {
	chainID, ok := new(big.Int).SetString(client.ChainID(), 10)
	if !ok {
		return nil, fmt.Errorf("can't parse chain id %q: %w", client.ChainID(), ethclient.ErrIncompatibleChainID)
	}
	if opts.GasPriceMultiplier == 0 {
		opts.GasPriceMultiplier = 100
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	return &NonceSubmitter{
		logger: logger.WithFields(logrus.Fields{
			"chain_id": client.ChainID(),
			"from":     from,
		}),
		client:  client,
		key:     key,
		from:    from,
		chainID: chainID,
		opts:    opts,
	}, nil
}

func (s *NonceSubmitter) From() common.Address {
	return s.from
}

// Submit broadcasts a call of the destination bridge and waits for its receipt.
// Returned errors are already classified with ClassifySubmitError.
func (s *NonceSubmitter) Submit(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	tx, err := s.send(ctx, to, data)
	if err != nil {
		return common.Hash{}, ClassifySubmitError(err)
	}
	logger := s.logger.WithFields(logrus.Fields{
		"tx_hash": tx.Hash(),
		"nonce":   tx.Nonce(),
	})
	logger.Info("sent destination transaction")

	receipt, err := s.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return tx.Hash(), err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		logger.WithField("block_number", receipt.BlockNumber).Warn("destination transaction failed")
		return tx.Hash(), fmt.Errorf("tx %s: %w: %w", tx.Hash(), ErrTxReverted, ErrTransientRevert)
	}
	return tx.Hash(), nil
}

func (s *NonceSubmitter) send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	gas, err := s.estimateGas(ctx, to, data)
	if err != nil {
		return nil, err
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get gas price: %w", err)
	}
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(s.opts.GasPriceMultiplier)), big.NewInt(100))

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.nonce(ctx)
	if err != nil {
		return nil, err
	}
	tx := types.NewTransaction(nonce, to, new(big.Int), gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("can't sign transaction: %w", err)
	}
	if err = s.client.SendTransaction(ctx, signed); err != nil {
		if !isAlreadyKnown(err) {
			if isNonceError(err) {
				s.logger.WithError(err).WithField("nonce", nonce).Warn("nonce mismatch, resetting local nonce")
				s.nextNonce = nil
			}
			return nil, fmt.Errorf("can't send transaction: %w", err)
		}
		s.logger.WithField("tx_hash", signed.Hash()).Info("transaction is already in the node pool")
	}
	next := nonce + 1
	s.nextNonce = &next
	return signed, nil
}

// nonce must be called with s.mu held.
func (s *NonceSubmitter) nonce(ctx context.Context) (uint64, error) {
	pending, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return 0, fmt.Errorf("can't get pending nonce: %w", err)
	}
	if s.nextNonce != nil && *s.nextNonce > pending {
		return *s.nextNonce, nil
	}
	return pending, nil
}

func (s *NonceSubmitter) estimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	gas, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From: s.from,
		To:   &to,
		Data: data,
	})
	if err == nil {
		return gas, nil
	}
	classified := ClassifySubmitError(err)
	if errors.Is(classified, ErrPermanentRevert) || errors.Is(classified, ErrAlreadyProcessed) {
		return 0, fmt.Errorf("gas estimation failed: %w", classified)
	}
	s.logger.WithError(err).WithField("gas_limit", s.opts.GasLimit).Warn("can't estimate gas, using configured gas limit")
	return s.opts.GasLimit, nil
}

func (s *NonceSubmitter) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ReceiptTimeout)
	defer cancel()
	for {
		receipt, err := s.client.TransactionReceiptByHash(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			s.logger.WithError(err).WithField("tx_hash", hash).Warn("can't get destination receipt")
		}
		if utils.ContextSleep(ctx, s.opts.ReceiptPollInterval) == nil {
			return nil, fmt.Errorf("receipt of %s not received in %s: %w", hash, s.opts.ReceiptTimeout, ethclient.ErrTransientNetwork)
		}
	}
}

var _ Submitter = (*NonceSubmitter)(nil)
