package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
)

type chainStatesRepo struct {
	mu     sync.Mutex
	states map[string]*entity.ChainState
}

func NewChainStatesRepo() entity.ChainStatesRepo {
	return &chainStatesRepo{
		states: make(map[string]*entity.ChainState),
	}
}

func (r *chainStatesRepo) Ensure(_ context.Context, state *entity.ChainState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.states[state.ChainID]; ok {
		return nil
	}
	now := time.Now()
	r.states[state.ChainID] = &entity.ChainState{
		ChainID:            state.ChainID,
		LastProcessedBlock: state.LastProcessedBlock,
		Healthy:            state.Healthy,
		CreatedAt:          &now,
		UpdatedAt:          &now,
	}
	return nil
}

func (r *chainStatesRepo) GetByChainID(_ context.Context, chainID string) (*entity.ChainState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[chainID]
	if !ok {
		return nil, fmt.Errorf("can't get chain state: %w", db.ErrNotFound)
	}
	c := *state
	return &c, nil
}

func (r *chainStatesRepo) FindAll(_ context.Context) ([]*entity.ChainState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]*entity.ChainState, 0, len(r.states))
	for _, state := range r.states {
		c := *state
		res = append(res, &c)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ChainID < res[j].ChainID
	})
	return res, nil
}

func (r *chainStatesRepo) UpdateCursor(_ context.Context, chainID string, lastProcessedBlock uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	state, ok := r.states[chainID]
	if !ok {
		r.states[chainID] = &entity.ChainState{
			ChainID:            chainID,
			LastProcessedBlock: lastProcessedBlock,
			Healthy:            true,
			CreatedAt:          &now,
			UpdatedAt:          &now,
		}
		return nil
	}
	if lastProcessedBlock > state.LastProcessedBlock {
		state.LastProcessedBlock = lastProcessedBlock
	}
	state.UpdatedAt = &now
	return nil
}

func (r *chainStatesRepo) SetHealth(_ context.Context, chainID string, healthy bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.states[chainID]; ok {
		now := time.Now()
		state.Healthy = healthy
		state.UpdatedAt = &now
	}
	return nil
}
