package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
)

type chainStatesRepo basePostgresRepo

func NewChainStatesRepo(table string, db *db.DB) entity.ChainStatesRepo {
	return (*chainStatesRepo)(newBasePostgresRepo(table, db))
}

// Ensure creates the chain state row if it is missing, an existing cursor is never moved.
func (r *chainStatesRepo) Ensure(ctx context.Context, state *entity.ChainState) error {
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "last_processed_block", "healthy").
		Values(state.ChainID, state.LastProcessedBlock, state.Healthy).
		Suffix("ON CONFLICT (chain_id) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert chain state: %w", err)
	}
	return nil
}

func (r *chainStatesRepo) GetByChainID(ctx context.Context, chainID string) (*entity.ChainState, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	state := new(entity.ChainState)
	err = r.db.GetContext(ctx, state, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get chain state: %w", err)
	}
	return state, nil
}

func (r *chainStatesRepo) FindAll(ctx context.Context) ([]*entity.ChainState, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		OrderBy("chain_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	states := make([]*entity.ChainState, 0, 4)
	err = r.db.SelectContext(ctx, &states, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get chain states: %w", err)
	}
	return states, nil
}

// UpdateCursor only moves the ingestion cursor forward.
func (r *chainStatesRepo) UpdateCursor(ctx context.Context, chainID string, lastProcessedBlock uint) error {
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "last_processed_block").
		Values(chainID, lastProcessedBlock).
		Suffix(fmt.Sprintf("ON CONFLICT (chain_id) DO UPDATE SET updated_at = NOW(), "+
			"last_processed_block = GREATEST(%s.last_processed_block, EXCLUDED.last_processed_block)", r.table)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't update chain cursor: %w", err)
	}
	return nil
}

func (r *chainStatesRepo) SetHealth(ctx context.Context, chainID string, healthy bool) error {
	q, args, err := sq.Update(r.table).
		Set("healthy", healthy).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"chain_id": chainID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't update chain health: %w", err)
	}
	return nil
}
