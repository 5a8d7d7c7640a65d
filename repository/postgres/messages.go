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

var messageParticipantColumns = []string{"sender", "target"}

type messagesRepo basePostgresRepo

func NewMessagesRepo(table string, db *db.DB) entity.RecordsRepo {
	return (*messagesRepo)(newBasePostgresRepo(table, db))
}

func (r *messagesRepo) base() *basePostgresRepo {
	return (*basePostgresRepo)(r)
}

func (r *messagesRepo) Kind() entity.Kind {
	return entity.KindMessage
}

func (r *messagesRepo) UpsertByDedupKey(ctx context.Context, rec entity.Record) (entity.Record, bool, error) {
	msg, ok := rec.(*entity.Message)
	if !ok {
		return nil, false, fmt.Errorf("messages repo got %s: %w", rec.Kind(), entity.ErrUnexpectedKind)
	}
	values := append(relayValues(&msg.Relay), msg.Sender, msg.Target, msg.Payload)
	q, args, err := r.base().upsertQuery([]string{"sender", "target", "payload"}, values)
	if err != nil {
		return nil, false, fmt.Errorf("can't build query: %w", err)
	}
	stored := new(entity.Message)
	err = r.db.GetContext(ctx, stored, q, args...)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, fmt.Errorf("can't insert message: %w", err)
	}

	q, args, err = r.base().getByDedupKeyQuery(msg.DedupKey())
	if err != nil {
		return nil, false, fmt.Errorf("can't build query: %w", err)
	}
	err = r.db.GetContext(ctx, stored, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("can't get existing message by dedup key: %w", err)
	}
	return stored, false, nil
}

func (r *messagesRepo) GetByID(ctx context.Context, id uuid.UUID) (entity.Record, error) {
	q, args, err := r.base().getByIDQuery(id)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	msg := new(entity.Message)
	err = r.db.GetContext(ctx, msg, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get message by id: %w", err)
	}
	return msg, nil
}

func (r *messagesRepo) FindByExternalID(ctx context.Context, externalID common.Hash) ([]entity.Record, error) {
	q, args, err := r.base().findByExternalIDQuery(externalID)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	return r.selectMessages(ctx, "can't find messages by external id", q, args)
}

func (r *messagesRepo) ListByState(ctx context.Context, state entity.State, chainID string) ([]entity.Record, error) {
	q, args, err := r.base().listByStateQuery(state, chainID)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	return r.selectMessages(ctx, "can't list messages by state", q, args)
}

func (r *messagesRepo) ListDue(ctx context.Context, destChainID string, now time.Time) ([]entity.Record, error) {
	q, args, err := r.base().listDueQuery(destChainID, now)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	return r.selectMessages(ctx, "can't list due messages", q, args)
}

func (r *messagesRepo) CompareAndSet(ctx context.Context, id uuid.UUID, expected entity.State, mutation *entity.Mutation) error {
	return r.base().compareAndSet(ctx, id, expected, mutation)
}

func (r *messagesRepo) FindByParticipant(ctx context.Context, addr common.Address, limit, offset uint) ([]entity.Record, error) {
	q, args, err := r.base().findByParticipantQuery(messageParticipantColumns, addr, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	return r.selectMessages(ctx, "can't find messages by participant", q, args)
}

func (r *messagesRepo) CountByState(ctx context.Context) ([]*entity.StateCount, error) {
	return r.base().countByState(ctx)
}

func (r *messagesRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	return r.base().requeue(ctx, id)
}

func (r *messagesRepo) selectMessages(ctx context.Context, errMsg string, q string, args []interface{}) ([]entity.Record, error) {
	msgs := make([]*entity.Message, 0, 10)
	err := r.db.SelectContext(ctx, &msgs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}
	res := make([]entity.Record, len(msgs))
	for i, msg := range msgs {
		res[i] = msg
	}
	return res, nil
}
