package alerts

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"

	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
)

const alertsLimit = 100

type recordsTable struct {
	Kind  entity.Kind
	Table string
}

var defaultRecordsTables = []recordsTable{
	{entity.KindMessage, "messages"},
	{entity.KindTokenTransfer, "token_transfers"},
}

type DBAlertsProvider struct {
	db     *db.DB
	tables []recordsTable
}

func NewDBAlertsProvider(db *db.DB) *DBAlertsProvider {
	return &DBAlertsProvider{
		db:     db,
		tables: defaultRecordsTables,
	}
}

func chainsFilter(column string, chainIDs []string) sq.Sqlizer {
	return sq.Expr(column+" = ANY(?)", pq.Array(chainIDs))
}

// selectAll runs the same query against every records table and concatenates the results.
func selectAll[T any](ctx context.Context, p *DBAlertsProvider, build func(t recordsTable) sq.SelectBuilder) ([]T, error) {
	res := make([]T, 0, 5)
	for _, t := range p.tables {
		q, args, err := build(t).PlaceholderFormat(sq.Dollar).ToSql()
		if err != nil {
			return nil, fmt.Errorf("can't build query: %w", err)
		}
		rows := make([]T, 0, 5)
		err = p.db.SelectContext(ctx, &rows, q, args...)
		if err != nil {
			return nil, fmt.Errorf("can't select alerts: %w", err)
		}
		res = append(res, rows...)
	}
	return res, nil
}

func kindColumn(t recordsTable) string {
	return fmt.Sprintf("'%s' AS kind", t.Kind)
}

type StuckConfirmation struct {
	Kind          string        `db:"kind" json:"kind"`
	SourceChainID string        `db:"source_chain_id" json:"source_chain_id"`
	DestChainID   string        `db:"dest_chain_id" json:"dest_chain_id"`
	ExternalID    common.Hash   `db:"external_id" json:"external_id"`
	TxHash        common.Hash   `db:"source_tx_hash" json:"tx_hash"`
	Age           time.Duration `db:"age" json:"_value,string"`
}

func (p *DBAlertsProvider) FindStuckConfirmations(ctx context.Context, params *AlertJobParams) (interface{}, error) {
	return selectAll[StuckConfirmation](ctx, p, func(t recordsTable) sq.SelectBuilder {
		return sq.Select(kindColumn(t), "source_chain_id", "dest_chain_id", "external_id", "source_tx_hash", "EXTRACT(EPOCH FROM now() - created_at)::int AS age").
			From(t.Table).
			Where(sq.Eq{"state": entity.StateSent}).
			Where(chainsFilter("source_chain_id", params.ChainIDs)).
			Where(sq.Expr("created_at < now() - make_interval(secs => ?)", params.Threshold.Seconds())).
			OrderBy("created_at").
			Limit(alertsLimit)
	})
}

type FailedRelay struct {
	Kind          string        `db:"kind" json:"kind"`
	SourceChainID string        `db:"source_chain_id" json:"source_chain_id"`
	DestChainID   string        `db:"dest_chain_id" json:"dest_chain_id"`
	ExternalID    common.Hash   `db:"external_id" json:"external_id"`
	RetryCount    uint          `db:"retry_count" json:"retry_count,string"`
	Age           time.Duration `db:"age" json:"_value,string"`
}

func (p *DBAlertsProvider) FindFailedRelays(ctx context.Context, params *AlertJobParams) (interface{}, error) {
	return selectAll[FailedRelay](ctx, p, func(t recordsTable) sq.SelectBuilder {
		return sq.Select(kindColumn(t), "source_chain_id", "dest_chain_id", "external_id", "retry_count", "EXTRACT(EPOCH FROM now() - updated_at)::int AS age").
			From(t.Table).
			Where(sq.Eq{"state": entity.StateFailed}).
			Where(chainsFilter("dest_chain_id", params.ChainIDs)).
			OrderBy("updated_at DESC").
			Limit(alertsLimit)
	})
}

type RetryingRelay struct {
	Kind          string      `db:"kind" json:"kind"`
	SourceChainID string      `db:"source_chain_id" json:"source_chain_id"`
	DestChainID   string      `db:"dest_chain_id" json:"dest_chain_id"`
	ExternalID    common.Hash `db:"external_id" json:"external_id"`
	RetryCount    uint        `db:"retry_count" json:"_value,string"`
}

func (p *DBAlertsProvider) FindRetryingRelays(ctx context.Context, params *AlertJobParams) (interface{}, error) {
	return selectAll[RetryingRelay](ctx, p, func(t recordsTable) sq.SelectBuilder {
		return sq.Select(kindColumn(t), "source_chain_id", "dest_chain_id", "external_id", "retry_count").
			From(t.Table).
			Where(sq.Eq{"state": entity.StateConfirmed}).
			Where(sq.Gt{"retry_count": 0}).
			Where(chainsFilter("dest_chain_id", params.ChainIDs)).
			OrderBy("retry_count DESC").
			Limit(alertsLimit)
	})
}
