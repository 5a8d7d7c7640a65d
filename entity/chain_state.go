package entity

import (
	"context"
	"time"
)

type ChainState struct {
	ChainID            string     `db:"chain_id"`
	LastProcessedBlock uint       `db:"last_processed_block"`
	Healthy            bool       `db:"healthy"`
	CreatedAt          *time.Time `db:"created_at"`
	UpdatedAt          *time.Time `db:"updated_at"`
}

type ChainStatesRepo interface {
	Ensure(ctx context.Context, state *ChainState) error
	GetByChainID(ctx context.Context, chainID string) (*ChainState, error)
	FindAll(ctx context.Context) ([]*ChainState, error)
	UpdateCursor(ctx context.Context, chainID string, lastProcessedBlock uint) error
	SetHealth(ctx context.Context, chainID string, healthy bool) error
}
