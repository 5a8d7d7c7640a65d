package relay_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/relay"
	"github.com/omni/bridge-relayer/repository"
)

func sentMessage(t *testing.T, repo *repository.Repo, txHash common.Hash) entity.Record {
	t.Helper()
	rec, _, err := repo.Messages.UpsertByDedupKey(context.Background(), &entity.Message{
		Relay: entity.Relay{
			ExternalID:    common.HexToHash("0xa1"),
			SourceChainID: "1",
			DestChainID:   "2",
			SourceTxHash:  txHash,
			BlockNumber:   100,
			State:         entity.StateSent,
		},
		Sender:  common.HexToAddress("0x5e"),
		Target:  common.HexToAddress("0x7a"),
		Payload: []byte("payload"),
	})
	require.NoError(t, err)
	return rec
}

func TestTracker_ConfirmationBoundary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	src := newFakeChain("1")
	txHash := common.HexToHash("0xaa")
	src.addSourceReceipt(txHash, 100)
	rec := sentMessage(t, repo, txHash)

	tracker := relay.NewTracker(newTestLogger(), repo, newTestChain(src, 12), relay.ReceiptHashProver{}, relay.TrackerOptions{ReorgTimeout: time.Hour})

	src.setHeight(111)
	require.NoError(t, tracker.Sweep(ctx))
	stored := getRecord(t, repo.Messages, rec)
	require.Equal(t, entity.StateSent, stored.State)
	require.Empty(t, stored.Proof)

	src.setHeight(112)
	require.NoError(t, tracker.Sweep(ctx))
	stored = getRecord(t, repo.Messages, rec)
	require.Equal(t, entity.StateConfirmed, stored.State)
	require.NotEmpty(t, stored.Proof)
	require.NotNil(t, stored.ConfirmedAt)
}

func TestTracker_SourceDropped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	src := newFakeChain("1")
	src.setHeight(200)
	rec := sentMessage(t, repo, common.HexToHash("0xaa"))
	clock := newTestClock()

	tracker := relay.NewTracker(newTestLogger(), repo, newTestChain(src, 12), relay.ReceiptHashProver{}, relay.TrackerOptions{
		ReorgTimeout: time.Minute,
		Now:          clock.Now,
	})

	require.NoError(t, tracker.Sweep(ctx))
	require.Equal(t, entity.StateSent, getRecord(t, repo.Messages, rec).State)

	clock.Advance(2 * time.Minute)
	require.NoError(t, tracker.Sweep(ctx))
	stored := getRecord(t, repo.Messages, rec)
	require.Equal(t, entity.StateFailed, stored.State)
	require.NotNil(t, stored.LastError)
	require.Equal(t, relay.ErrSourceDropped.Error(), *stored.LastError)
}

func TestConfirmations(t *testing.T) {
	t.Parallel()

	receipt := &types.Receipt{BlockNumber: big.NewInt(100)}
	require.Equal(t, uint(0), relay.Confirmations(99, receipt))
	require.Equal(t, uint(0), relay.Confirmations(100, receipt))
	require.Equal(t, uint(12), relay.Confirmations(112, receipt))
	require.Equal(t, uint(0), relay.Confirmations(112, &types.Receipt{}))
}
