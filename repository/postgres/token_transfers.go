package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
)

var transferParticipantColumns = []string{"sender", "recipient"}

type tokenTransfersRepo basePostgresRepo

func NewTokenTransfersRepo(table string, db *db.DB) entity.RecordsRepo {
	return (*tokenTransfersRepo)(newBasePostgresRepo(table, db))
}

func (r *tokenTransfersRepo) base() *basePostgresRepo {
	return (*basePostgresRepo)(r)
}

func (r *tokenTransfersRepo) Kind() entity.Kind {
	return entity.KindTokenTransfer
}

func (r *tokenTransfersRepo) UpsertByDedupKey(ctx context.Context, rec entity.Record) (entity.Record, bool, error) {
	transfer, ok := rec.(*entity.TokenTransfer)
	if !ok {
		return nil, false, fmt.Errorf("token transfers repo got %s: %w", rec.Kind(), entity.ErrUnexpectedKind)
	}
	values := append(relayValues(&transfer.Relay), transfer.Token, transfer.Sender, transfer.Recipient, transfer.Amount)
	q, args, err := r.base().upsertQuery([]string{"token", "sender", "recipient", "amount"}, values)
	if err != nil {
		return nil, false, fmt.Errorf("can't build query: %w", err)
	}
	stored := new(entity.TokenTransfer)
	err = r.db.GetContext(ctx, stored, q, args...)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, fmt.Errorf("can't insert token transfer: %w", err)
	}

	q, args, err = r.base().getByDedupKeyQuery(transfer.DedupKey())
	if err != nil {
		return nil, false, fmt.Errorf("can't build query: %w", err)
	}
	err = r.db.GetContext(ctx, stored, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("can't get existing token transfer by dedup key: %w", err)
	}
	return stored, false, nil
}

func (r *tokenTransfersRepo) GetByID(ctx context.Context, id uuid.UUID) (entity.Record, error) {
	q, args, err := r.base().getByIDQuery(id)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	transfer := new(entity.TokenTransfer)
	err = r.db.GetContext(ctx, transfer, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get token transfer by id: %w", err)
	}
	return transfer, nil
}

func (r *tokenTransfersRepo) FindByExternalID(ctx context.Context, externalID common.Hash) ([]entity.Record, error) {
	q, args, err := r.base().findByExternalIDQuery(externalID)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	return r.selectTransfers(ctx, "can't find token transfers by external id", q, args)
}

func (r *tokenTransfersRepo) ListByState(ctx context.Context, state entity.State, chainID string) ([]entity.Record, error) {
	q, args, err := r.base().listByStateQuery(state, chainID)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	return r.selectTransfers(ctx, "can't list token transfers by state", q, args)
}

func (r *tokenTransfersRepo) ListDue(ctx context.Context, destChainID string, now time.Time) ([]entity.Record, error) {
	q, args, err := r.base().listDueQuery(destChainID, now)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	return r.selectTransfers(ctx, "can't list due token transfers", q, args)
}

func (r *tokenTransfersRepo) CompareAndSet(ctx context.Context, id uuid.UUID, expected entity.State, mutation *entity.Mutation) error {
	return r.base().compareAndSet(ctx, id, expected, mutation)
}

func (r *tokenTransfersRepo) FindByParticipant(ctx context.Context, addr common.Address, limit, offset uint) ([]entity.Record, error) {
	q, args, err := r.base().findByParticipantQuery(transferParticipantColumns, addr, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	return r.selectTransfers(ctx, "can't find token transfers by participant", q, args)
}

func (r *tokenTransfersRepo) CountByState(ctx context.Context) ([]*entity.StateCount, error) {
	return r.base().countByState(ctx)
}

func (r *tokenTransfersRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	return r.base().requeue(ctx, id)
}

func (r *tokenTransfersRepo) selectTransfers(ctx context.Context, errMsg string, q string, args []interface{}) ([]entity.Record, error) {
	transfers := make([]*entity.TokenTransfer, 0, 10)
	err := r.db.SelectContext(ctx, &transfers, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}
	res := make([]entity.Record, len(transfers))
	for i, transfer := range transfers {
		res[i] = transfer
	}
	return res, nil
}
