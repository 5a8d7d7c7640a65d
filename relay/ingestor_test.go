package relay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/relay"
	"github.com/omni/bridge-relayer/repository"
)

func TestIngestor_Poll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	src := newFakeChain("1")
	src.setHeight(150)
	msgID := common.HexToHash("0xa1")
	txA := common.HexToHash("0xaa")
	src.logs = []types.Log{
		tokensBridgedLog(t, common.HexToHash("0xa2"), 2, 500, 120, common.HexToHash("0xbb"), 0),
		messageSentLog(t, msgID, 2, 100, txA, 3),
		messageSentLog(t, common.HexToHash("0xa3"), 56, 101, common.HexToHash("0xcc"), 0),
		tokensBridgedLog(t, common.HexToHash("0xa4"), 2, 0, 102, common.HexToHash("0xdd"), 0),
	}

	ingestor, err := relay.NewIngestor(ctx, newTestLogger(), repo, newTestChain(src, 12), alwaysHealthy{}, []string{"1", "2"})
	require.NoError(t, err)
	require.Equal(t, uint(89), ingestor.Cursor())

	require.NoError(t, ingestor.Poll(ctx))
	require.Equal(t, uint(150), ingestor.Cursor())
	require.True(t, ingestor.IsSynced())
	state, err := repo.ChainStates.GetByChainID(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, uint(150), state.LastProcessedBlock)

	messages, err := repo.Messages.ListByState(ctx, entity.StateSent, "1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	msg := messages[0].Header()
	require.Equal(t, msgID, msg.ExternalID)
	require.Equal(t, "2", msg.DestChainID)
	require.Equal(t, txA, msg.SourceTxHash)
	require.Equal(t, uint(3), msg.LogIndex)
	require.Equal(t, uint(100), msg.BlockNumber)

	transfers, err := repo.TokenTransfers.ListByState(ctx, entity.StateSent, "1")
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	require.Equal(t, "500", transfers[0].(*entity.TokenTransfer).Amount)
}

func TestIngestor_ReplayIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	src := newFakeChain("1")
	src.setHeight(100)
	log := messageSentLog(t, common.HexToHash("0xa1"), 2, 95, common.HexToHash("0xaa"), 0)
	src.logs = []types.Log{log, log}

	ingestor, err := relay.NewIngestor(ctx, newTestLogger(), repo, newTestChain(src, 12), alwaysHealthy{}, []string{"1", "2"})
	require.NoError(t, err)
	require.NoError(t, ingestor.Poll(ctx))
	require.NoError(t, ingestor.ProcessBlockRange(ctx, 90, 100))
	require.NoError(t, ingestor.ProcessBlockRange(ctx, 95, 95))

	messages, err := repo.Messages.ListByState(ctx, entity.StateSent, "1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, uint(100), ingestor.Cursor())
}

func TestIngestor_CursorKeptOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	src := newFakeChain("1")
	src.setHeight(150)
	src.logsErr = errors.New("query returned more than 10000 results")

	ingestor, err := relay.NewIngestor(ctx, newTestLogger(), repo, newTestChain(src, 12), alwaysHealthy{}, []string{"1", "2"})
	require.NoError(t, err)
	require.Error(t, ingestor.Poll(ctx))
	require.Equal(t, uint(89), ingestor.Cursor())
	require.False(t, ingestor.IsSynced())
	_, err = repo.ChainStates.GetByChainID(ctx, "1")
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestIngestor_ResumesFromStoredCursor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	require.NoError(t, repo.ChainStates.UpdateCursor(ctx, "1", 120))
	src := newFakeChain("1")
	src.setHeight(130)
	src.logs = []types.Log{
		messageSentLog(t, common.HexToHash("0xa1"), 2, 110, common.HexToHash("0xaa"), 0),
		messageSentLog(t, common.HexToHash("0xa2"), 2, 125, common.HexToHash("0xbb"), 0),
	}

	ingestor, err := relay.NewIngestor(ctx, newTestLogger(), repo, newTestChain(src, 12), alwaysHealthy{}, []string{"1", "2"})
	require.NoError(t, err)
	require.Equal(t, uint(120), ingestor.Cursor())
	require.NoError(t, ingestor.Poll(ctx))

	messages, err := repo.Messages.ListByState(ctx, entity.StateSent, "1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, common.HexToHash("0xa2"), messages[0].Header().ExternalID)
}
