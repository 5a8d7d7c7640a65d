package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/repository/postgres"
)

func TestChainStatesRepo_UpdateCursor(t *testing.T) {
	t.Parallel()

	conn, mock := newMockDB(t)
	repo := postgres.NewChainStatesRepo("chain_state", conn)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chain_state (chain_id,last_processed_block) VALUES ($1,$2) " +
		"ON CONFLICT (chain_id) DO UPDATE SET updated_at = NOW(), " +
		"last_processed_block = GREATEST(chain_state.last_processed_block, EXCLUDED.last_processed_block)")).
		WithArgs("1", int64(150)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateCursor(context.Background(), "1", 150))
}

func TestChainStatesRepo_SetHealth(t *testing.T) {
	t.Parallel()

	conn, mock := newMockDB(t)
	repo := postgres.NewChainStatesRepo("chain_state", conn)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE chain_state SET healthy = $1, updated_at = NOW() WHERE chain_id = $2")).
		WithArgs(false, "100").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetHealth(context.Background(), "100", false))
}

func TestChainStatesRepo_GetByChainID(t *testing.T) {
	t.Parallel()

	conn, mock := newMockDB(t)
	repo := postgres.NewChainStatesRepo("chain_state", conn)
	columns := []string{"chain_id", "last_processed_block", "healthy", "created_at", "updated_at"}
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM chain_state WHERE chain_id = $1")).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("1", int64(99), true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM chain_state WHERE chain_id = $1")).
		WithArgs("2").
		WillReturnRows(sqlmock.NewRows(columns))

	state, err := repo.GetByChainID(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, &entity.ChainState{
		ChainID:            "1",
		LastProcessedBlock: 99,
		Healthy:            true,
		CreatedAt:          &now,
		UpdatedAt:          &now,
	}, state)

	_, err = repo.GetByChainID(context.Background(), "2")
	require.ErrorIs(t, err, db.ErrNotFound)
}
