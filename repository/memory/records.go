package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
)

const defaultListLimit = 1000

// recordsRepo keeps records of a single kind in memory. It mirrors the
// postgres repos closely enough to run the relayer without a database.
type recordsRepo struct {
	kind    entity.Kind
	mu      sync.Mutex
	records map[uuid.UUID]entity.Record
	dedup   map[entity.DedupKey]uuid.UUID
	order   []uuid.UUID
	now     func() time.Time
}

func NewMessagesRepo() entity.RecordsRepo {
	return newRecordsRepo(entity.KindMessage)
}

func NewTokenTransfersRepo() entity.RecordsRepo {
	return newRecordsRepo(entity.KindTokenTransfer)
}

func newRecordsRepo(kind entity.Kind) *recordsRepo {
	return &recordsRepo{
		kind:    kind,
		records: make(map[uuid.UUID]entity.Record),
		dedup:   make(map[entity.DedupKey]uuid.UUID),
		now:     time.Now,
	}
}

func (r *recordsRepo) Kind() entity.Kind {
	return r.kind
}

func (r *recordsRepo) UpsertByDedupKey(_ context.Context, rec entity.Record) (entity.Record, bool, error) {
	if rec.Kind() != r.kind {
		return nil, false, fmt.Errorf("%s repo got %s: %w", r.kind, rec.Kind(), entity.ErrUnexpectedKind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rec.Header().DedupKey()
	if id, ok := r.dedup[key]; ok {
		return clone(r.records[id]), false, nil
	}
	stored := clone(rec)
	h := stored.Header()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.State == "" {
		h.State = entity.StateSent
	}
	now := r.now()
	h.CreatedAt = &now
	h.UpdatedAt = &now
	r.records[h.ID] = stored
	r.dedup[key] = h.ID
	r.order = append(r.order, h.ID)
	return clone(stored), true, nil
}

func (r *recordsRepo) GetByID(_ context.Context, id uuid.UUID) (entity.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("can't get %s by id: %w", r.kind, db.ErrNotFound)
	}
	return clone(rec), nil
}

func (r *recordsRepo) FindByExternalID(_ context.Context, externalID common.Hash) ([]entity.Record, error) {
	return r.filter(0, 0, func(h *entity.Relay) bool {
		return h.ExternalID == externalID
	}), nil
}

func (r *recordsRepo) ListByState(_ context.Context, state entity.State, chainID string) ([]entity.Record, error) {
	return r.filter(defaultListLimit, 0, func(h *entity.Relay) bool {
		if h.State != state {
			return false
		}
		if state == entity.StateSent {
			return h.SourceChainID == chainID
		}
		return h.DestChainID == chainID
	}), nil
}

func (r *recordsRepo) ListDue(_ context.Context, destChainID string, now time.Time) ([]entity.Record, error) {
	due := r.filter(0, 0, func(h *entity.Relay) bool {
		return h.State == entity.StateConfirmed && h.DestChainID == destChainID && h.IsDue(now)
	})
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].Header().NextAttemptAt, due[j].Header().NextAttemptAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	return page(due, defaultListLimit, 0), nil
}

func (r *recordsRepo) CompareAndSet(_ context.Context, id uuid.UUID, expected entity.State, m *entity.Mutation) error {
	if err := m.Validate(expected); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.Header().State != expected {
		return fmt.Errorf("record %s is no longer %s: %w", id, expected, entity.ErrStateConflict)
	}
	h := rec.Header()
	if m.RetryCount != nil && *m.RetryCount <= h.RetryCount {
		return fmt.Errorf("record %s retry count %d is not below %d: %w", id, h.RetryCount, *m.RetryCount, entity.ErrStateConflict)
	}
	m.Apply(h, r.now())
	return nil
}

func (r *recordsRepo) FindByParticipant(_ context.Context, addr common.Address, limit, offset uint) ([]entity.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]entity.Record, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.records[r.order[i]]
		for _, p := range rec.Participants() {
			if p == addr {
				matched = append(matched, rec)
				break
			}
		}
	}
	return page(matched, limit, offset), nil
}

func (r *recordsRepo) CountByState(_ context.Context) ([]*entity.StateCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type key struct {
		chainID string
		state   entity.State
	}
	counts := make(map[key]uint)
	for _, rec := range r.records {
		h := rec.Header()
		counts[key{h.DestChainID, h.State}]++
	}
	res := make([]*entity.StateCount, 0, len(counts))
	for k, n := range counts {
		res = append(res, &entity.StateCount{DestChainID: k.chainID, State: k.state, Count: n})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].DestChainID != res[j].DestChainID {
			return res[i].DestChainID < res[j].DestChainID
		}
		return res[i].State < res[j].State
	})
	return res, nil
}

func (r *recordsRepo) Requeue(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.Header().State != entity.StateFailed {
		return fmt.Errorf("record %s: %w", id, entity.ErrNotRequeueable)
	}
	h := rec.Header()
	now := r.now()
	h.State = entity.RequeueState(h)
	h.RetryCount = 0
	h.NextAttemptAt = nil
	h.LastError = nil
	h.UpdatedAt = &now
	return nil
}

// filter returns copies of the matching records in ingestion order.
func (r *recordsRepo) filter(limit, offset uint, match func(h *entity.Relay) bool) []entity.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]entity.Record, 0)
	for _, id := range r.order {
		if rec := r.records[id]; match(rec.Header()) {
			matched = append(matched, rec)
		}
	}
	return page(matched, limit, offset)
}

func page(records []entity.Record, limit, offset uint) []entity.Record {
	if offset >= uint(len(records)) {
		return []entity.Record{}
	}
	records = records[offset:]
	if limit > 0 && limit < uint(len(records)) {
		records = records[:limit]
	}
	res := make([]entity.Record, len(records))
	for i, rec := range records {
		res[i] = clone(rec)
	}
	return res
}

func clone(rec entity.Record) entity.Record {
	switch v := rec.(type) {
	case *entity.Message:
		c := *v
		c.Payload = append([]byte(nil), v.Payload...)
		cloneRelay(&c.Relay)
		return &c
	case *entity.TokenTransfer:
		c := *v
		cloneRelay(&c.Relay)
		return &c
	default:
		return rec
	}
}

func cloneRelay(h *entity.Relay) {
	if h.Proof != nil {
		h.Proof = append([]byte(nil), h.Proof...)
	}
	h.DestTxHash = clonePtr(h.DestTxHash)
	h.NextAttemptAt = clonePtr(h.NextAttemptAt)
	h.LastError = clonePtr(h.LastError)
	h.CreatedAt = clonePtr(h.CreatedAt)
	h.UpdatedAt = clonePtr(h.UpdatedAt)
	h.ConfirmedAt = clonePtr(h.ConfirmedAt)
	h.ExecutedAt = clonePtr(h.ExecutedAt)
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
