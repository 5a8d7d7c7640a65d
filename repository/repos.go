package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/repository/memory"
	"github.com/omni/bridge-relayer/repository/postgres"
)

type Repo struct {
	Messages       entity.RecordsRepo
	TokenTransfers entity.RecordsRepo
	ChainStates    entity.ChainStatesRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		Messages:       postgres.NewMessagesRepo("messages", db),
		TokenTransfers: postgres.NewTokenTransfersRepo("token_transfers", db),
		ChainStates:    postgres.NewChainStatesRepo("chain_state", db),
	}
}

// NewMemoryRepo is not durable, records are lost on restart.
func NewMemoryRepo() *Repo {
	return &Repo{
		Messages:       memory.NewMessagesRepo(),
		TokenTransfers: memory.NewTokenTransfersRepo(),
		ChainStates:    memory.NewChainStatesRepo(),
	}
}

func (r *Repo) Records() []entity.RecordsRepo {
	return []entity.RecordsRepo{r.Messages, r.TokenTransfers}
}

// RecordsByKind returns nil for an unknown kind.
func (r *Repo) RecordsByKind(kind entity.Kind) entity.RecordsRepo {
	for _, repo := range r.Records() {
		if repo.Kind() == kind {
			return repo
		}
	}
	return nil
}

// GetByID looks the id up in every records repo, messages first.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (entity.Record, error) {
	for _, repo := range r.Records() {
		rec, err := repo.GetByID(ctx, id)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("record %s: %w", id, db.ErrNotFound)
}

func (r *Repo) FindByExternalID(ctx context.Context, externalID common.Hash) ([]entity.Record, error) {
	var res []entity.Record
	for _, repo := range r.Records() {
		records, err := repo.FindByExternalID(ctx, externalID)
		if err != nil {
			return nil, err
		}
		res = append(res, records...)
	}
	return res, nil
}
