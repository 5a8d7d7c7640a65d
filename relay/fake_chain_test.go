package relay_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-relayer/contract"
	"github.com/omni/bridge-relayer/contract/bridgeabi"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/ethclient"
	"github.com/omni/bridge-relayer/relay"
	"github.com/omni/bridge-relayer/repository"
)

var bridgeAddr = common.HexToAddress("0xb1d9e")

// fakeChain plays both the source and the destination role of a bridge chain.
type fakeChain struct {
	mu sync.Mutex

	chainID      string
	height       uint
	heightErr    error
	logs         []types.Log
	logsErr      error
	receipts     map[common.Hash]*types.Receipt
	processed    map[common.Hash]bool
	sends        map[common.Hash]int
	sendErrs     []error
	alwaysFail   error
	estimateErr  error
	pendingNonce uint64
	attempts     []*types.Transaction
}

func newFakeChain(chainID string) *fakeChain {
	return &fakeChain{
		chainID:   chainID,
		receipts:  make(map[common.Hash]*types.Receipt),
		processed: make(map[common.Hash]bool),
		sends:     make(map[common.Hash]int),
	}
}

func (c *fakeChain) ChainID() string {
	return c.chainID
}

func (c *fakeChain) BlockNumber(context.Context) (uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heightErr != nil {
		return 0, c.heightErr
	}
	return c.height, nil
}

func (c *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logsErr != nil {
		return nil, c.logsErr
	}
	var res []types.Log
	for _, log := range c.logs {
		if log.BlockNumber >= q.FromBlock.Uint64() && log.BlockNumber <= q.ToBlock.Uint64() {
			res = append(res, log)
		}
	}
	return res, nil
}

func (c *fakeChain) FilterLogsSafe(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return c.FilterLogs(ctx, q)
}

func (c *fakeChain) TransactionReceiptByHash(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case bytes.Equal(msg.Data[:4], bridgeabi.BridgeABI.Methods[bridgeabi.IsProcessedMethod].ID):
		if c.processed[common.BytesToHash(msg.Data[4:36])] {
			return common.LeftPadBytes([]byte{1}, 32), nil
		}
		return make([]byte, 32), nil
	case bytes.Equal(msg.Data[:4], bridgeabi.BridgeABI.Methods[bridgeabi.PendingCountMethod].ID):
		return common.BigToHash(big.NewInt(int64(len(c.processed)))).Bytes(), nil
	default:
		return nil, errors.New("execution reverted")
	}
}

func (c *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.estimateErr != nil {
		return 0, c.estimateErr
	}
	return 100000, nil
}

func (c *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (c *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingNonce, nil
}

// errAlreadyKnown is accepted by the fake chain like a regular broadcast.
var errAlreadyKnown = errors.New("already known")

// SendTransaction executes the bridge call right away, so the record
// becomes processed and the receipt is available on the next poll.
func (c *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, tx)
	if c.alwaysFail != nil {
		return c.alwaysFail
	}
	var err error
	if len(c.sendErrs) > 0 {
		err = c.sendErrs[0]
		c.sendErrs = c.sendErrs[1:]
		if err != errAlreadyKnown {
			return err
		}
	}
	id := common.BytesToHash(tx.Data()[4:36])
	c.sends[id]++
	c.processed[id] = true
	c.pendingNonce = tx.Nonce() + 1
	c.receipts[tx.Hash()] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(uint64(c.height)),
	}
	return err
}

func (c *fakeChain) setHeight(height uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = height
}

func (c *fakeChain) addSourceReceipt(txHash common.Hash, block uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[txHash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      txHash,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)),
		BlockNumber: new(big.Int).SetUint64(block),
	}
}

func (c *fakeChain) sendCount(id common.Hash) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends[id]
}

func (c *fakeChain) attemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.attempts)
}

var _ ethclient.Client = (*fakeChain)(nil)

// testClock is a manually advanced time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newTestChain(fake *fakeChain, confirmations uint) *relay.Chain {
	return &relay.Chain{
		Name:               "chain-" + fake.chainID,
		ChainID:            fake.chainID,
		Client:             fake,
		Bridge:             contract.NewBridgeContract(fake, bridgeAddr),
		BlockConfirmations: confirmations,
		StartBlock:         90,
		MaxBlockRangeSize:  50,
		BlockIndexInterval: time.Millisecond,
	}
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func newTestSubmitter(t *testing.T, fake *fakeChain, key *ecdsa.PrivateKey) *relay.NonceSubmitter {
	t.Helper()
	submitter, err := relay.NewNonceSubmitter(newTestLogger(), fake, key, relay.SubmitterOptions{
		GasLimit:            200000,
		GasPriceMultiplier:  110,
		ReceiptTimeout:      time.Second,
		ReceiptPollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return submitter
}

// alwaysHealthy reports every chain as healthy.
type alwaysHealthy struct{}

func (alwaysHealthy) IsHealthy(string) bool {
	return true
}

func messageSentLog(t *testing.T, id common.Hash, destChainID int64, block uint64, txHash common.Hash, index uint) types.Log {
	t.Helper()
	data, err := bridgeabi.BridgeABI.Events["MessageSent"].Inputs.NonIndexed().Pack(common.HexToAddress("0x7a"), []byte("payload"))
	require.NoError(t, err)
	return types.Log{
		Address:     bridgeAddr,
		Topics:      []common.Hash{bridgeabi.MessageSentEventSignature, id, common.BigToHash(big.NewInt(destChainID)), common.HexToAddress("0x5e").Hash()},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
		Index:       index,
	}
}

func tokensBridgedLog(t *testing.T, id common.Hash, destChainID int64, amount int64, block uint64, txHash common.Hash, index uint) types.Log {
	t.Helper()
	data, err := bridgeabi.BridgeABI.Events["TokensBridged"].Inputs.NonIndexed().Pack(common.HexToAddress("0x5e"), common.HexToAddress("0x7e"), big.NewInt(amount))
	require.NoError(t, err)
	return types.Log{
		Address:     bridgeAddr,
		Topics:      []common.Hash{bridgeabi.TokensBridgedEventSignature, id, common.BigToHash(big.NewInt(destChainID)), common.HexToAddress("0x70").Hash()},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
		Index:       index,
	}
}

// confirmedTransfer stores a token transfer that is ready to be relayed from chain 1 to chain 2.
func confirmedTransfer(t *testing.T, repo *repository.Repo, id common.Hash) entity.Record {
	t.Helper()
	ctx := context.Background()
	rec, created, err := repo.TokenTransfers.UpsertByDedupKey(ctx, &entity.TokenTransfer{
		Relay: entity.Relay{
			ExternalID:    id,
			SourceChainID: "1",
			DestChainID:   "2",
			SourceTxHash:  crypto.Keccak256Hash(id.Bytes()),
			BlockNumber:   100,
			State:         entity.StateSent,
		},
		Token:     common.HexToAddress("0x70"),
		Sender:    common.HexToAddress("0x5e"),
		Recipient: common.HexToAddress("0x7e"),
		Amount:    "500",
	})
	require.NoError(t, err)
	require.True(t, created)
	err = repo.TokenTransfers.CompareAndSet(ctx, rec.Header().ID, entity.StateSent, &entity.Mutation{
		State: entity.StateConfirmed,
		Proof: []byte{0x01},
	})
	require.NoError(t, err)
	return rec
}

func getRecord(t *testing.T, repo entity.RecordsRepo, rec entity.Record) *entity.Relay {
	t.Helper()
	stored, err := repo.GetByID(context.Background(), rec.Header().ID)
	require.NoError(t, err)
	return stored.Header()
}
