package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
)

const defaultListLimit = 1000

var relayColumns = []string{"id", "external_id", "source_chain_id", "dest_chain_id", "source_tx_hash", "log_index", "block_number", "state"}

type basePostgresRepo struct {
	table string
	db    *db.DB
}

func newBasePostgresRepo(table string, db *db.DB) *basePostgresRepo {
	return &basePostgresRepo{
		table: table,
		db:    db,
	}
}

func relayValues(r *entity.Relay) []interface{} {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.State == "" {
		r.State = entity.StateSent
	}
	return []interface{}{r.ID, r.ExternalID, r.SourceChainID, r.DestChainID, r.SourceTxHash, r.LogIndex, r.BlockNumber, r.State}
}

func (r *basePostgresRepo) upsertQuery(columns []string, values []interface{}) (string, []interface{}, error) {
	return sq.Insert(r.table).
		Columns(append(relayColumns, columns...)...).
		Values(values...).
		Suffix("ON CONFLICT (source_chain_id, source_tx_hash, log_index) DO NOTHING RETURNING *").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (r *basePostgresRepo) getByDedupKeyQuery(key entity.DedupKey) (string, []interface{}, error) {
	return sq.Select("*").
		From(r.table).
		Where(sq.Eq{"source_chain_id": key.ChainID, "source_tx_hash": key.TxHash, "log_index": key.LogIndex}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (r *basePostgresRepo) getByIDQuery(id uuid.UUID) (string, []interface{}, error) {
	return sq.Select("*").
		From(r.table).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (r *basePostgresRepo) findByExternalIDQuery(externalID common.Hash) (string, []interface{}, error) {
	return sq.Select("*").
		From(r.table).
		Where(sq.Eq{"external_id": externalID}).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// listByStateQuery matches records awaiting confirmation by their source chain,
// and every later state by the destination chain.
func (r *basePostgresRepo) listByStateQuery(state entity.State, chainID string) (string, []interface{}, error) {
	chainColumn := "dest_chain_id"
	if state == entity.StateSent {
		chainColumn = "source_chain_id"
	}
	return sq.Select("*").
		From(r.table).
		Where(sq.Eq{"state": state, chainColumn: chainID}).
		OrderBy("created_at").
		Limit(defaultListLimit).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (r *basePostgresRepo) listDueQuery(destChainID string, now time.Time) (string, []interface{}, error) {
	return sq.Select("*").
		From(r.table).
		Where(sq.Eq{"state": entity.StateConfirmed, "dest_chain_id": destChainID}).
		Where(sq.Or{sq.Eq{"next_attempt_at": nil}, sq.LtOrEq{"next_attempt_at": now}}).
		OrderBy("next_attempt_at NULLS FIRST", "created_at").
		Limit(defaultListLimit).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (r *basePostgresRepo) findByParticipantQuery(columns []string, addr common.Address, limit, offset uint) (string, []interface{}, error) {
	cond := make(sq.Or, 0, len(columns))
	for _, column := range columns {
		cond = append(cond, sq.Eq{column: addr})
	}
	return sq.Select("*").
		From(r.table).
		Where(cond).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func mutationSetMap(m *entity.Mutation) map[string]interface{} {
	set := map[string]interface{}{
		"state": m.State,
	}
	if m.DestTxHash != nil {
		set["dest_tx_hash"] = *m.DestTxHash
	}
	if m.Proof != nil {
		set["proof"] = m.Proof
	}
	if m.RetryCount != nil {
		set["retry_count"] = *m.RetryCount
	}
	if m.NextAttemptAt != nil {
		set["next_attempt_at"] = *m.NextAttemptAt
	}
	if m.LastError != nil {
		set["last_error"] = *m.LastError
	}
	if m.ConfirmedAt != nil {
		set["confirmed_at"] = *m.ConfirmedAt
	}
	if m.ExecutedAt != nil {
		set["executed_at"] = *m.ExecutedAt
	}
	return set
}

func (r *basePostgresRepo) compareAndSet(ctx context.Context, id uuid.UUID, expected entity.State, m *entity.Mutation) error {
	if err := m.Validate(expected); err != nil {
		return err
	}
	builder := sq.Update(r.table).
		SetMap(mutationSetMap(m)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "state": expected})
	if m.RetryCount != nil {
		builder = builder.Where(sq.Lt{"retry_count": *m.RetryCount})
	}
	q, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't update record state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("can't get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s is no longer %s: %w", id, expected, entity.ErrStateConflict)
	}
	return nil
}

func (r *basePostgresRepo) countByState(ctx context.Context) ([]*entity.StateCount, error) {
	q, args, err := sq.Select("dest_chain_id", "state", "COUNT(*) AS count").
		From(r.table).
		GroupBy("dest_chain_id", "state").
		OrderBy("dest_chain_id", "state").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	counts := make([]*entity.StateCount, 0, 8)
	err = r.db.SelectContext(ctx, &counts, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't count records by state: %w", err)
	}
	return counts, nil
}

func (r *basePostgresRepo) requeue(ctx context.Context, id uuid.UUID) error {
	q, args, err := sq.Update(r.table).
		Set("state", sq.Expr("CASE WHEN proof IS NULL THEN ? ELSE ? END", entity.StateSent, entity.StateConfirmed)).
		Set("retry_count", 0).
		Set("next_attempt_at", nil).
		Set("last_error", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "state": entity.StateFailed}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't requeue record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("can't get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, entity.ErrNotRequeueable)
	}
	return nil
}
