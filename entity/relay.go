package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type Kind string

const (
	KindMessage       Kind = "message"
	KindTokenTransfer Kind = "token_transfer"
)

// Relay holds the lifecycle fields shared by every relayed record.
type Relay struct {
	ID            uuid.UUID    `db:"id"`
	ExternalID    common.Hash  `db:"external_id"`
	SourceChainID string       `db:"source_chain_id"`
	DestChainID   string       `db:"dest_chain_id"`
	SourceTxHash  common.Hash  `db:"source_tx_hash"`
	LogIndex      uint         `db:"log_index"`
	BlockNumber   uint         `db:"block_number"`
	State         State        `db:"state"`
	DestTxHash    *common.Hash `db:"dest_tx_hash"`
	Proof         []byte       `db:"proof"`
	RetryCount    uint         `db:"retry_count"`
	NextAttemptAt *time.Time   `db:"next_attempt_at"`
	LastError     *string      `db:"last_error"`
	CreatedAt     *time.Time   `db:"created_at"`
	UpdatedAt     *time.Time   `db:"updated_at"`
	ConfirmedAt   *time.Time   `db:"confirmed_at"`
	ExecutedAt    *time.Time   `db:"executed_at"`
}

type DedupKey struct {
	ChainID  string
	TxHash   common.Hash
	LogIndex uint
}

func (r *Relay) DedupKey() DedupKey {
	return DedupKey{
		ChainID:  r.SourceChainID,
		TxHash:   r.SourceTxHash,
		LogIndex: r.LogIndex,
	}
}

// IsDue reports whether the persisted backoff schedule allows another attempt at now.
func (r *Relay) IsDue(now time.Time) bool {
	return r.NextAttemptAt == nil || !r.NextAttemptAt.After(now)
}

// Age is measured from the moment the record was first ingested.
func (r *Relay) Age(now time.Time) time.Duration {
	if r.CreatedAt == nil {
		return 0
	}
	return now.Sub(*r.CreatedAt)
}

type Record interface {
	Kind() Kind
	Header() *Relay
	Participants() []common.Address
}

// Mutation describes a single compare-and-set update of a record.
// Nil fields are left untouched.
type Mutation struct {
	State         State
	DestTxHash    *common.Hash
	Proof         []byte
	RetryCount    *uint
	NextAttemptAt *time.Time
	LastError     *string
	ConfirmedAt   *time.Time
	ExecutedAt    *time.Time
}

func (m *Mutation) Validate(expected State) error {
	if !expected.CanTransitionTo(m.State) {
		return fmt.Errorf("%s -> %s: %w", expected, m.State, ErrInvalidTransition)
	}
	if (m.State == StateExecuted) != (m.DestTxHash != nil) {
		return fmt.Errorf("destination tx hash must be set only for %s records: %w", StateExecuted, ErrInvalidMutation)
	}
	if expected == StateSent && m.State == StateConfirmed && len(m.Proof) == 0 {
		return fmt.Errorf("confirmed record requires a proof: %w", ErrInvalidMutation)
	}
	if m.RetryCount != nil && expected != StateConfirmed {
		return fmt.Errorf("retry count can be changed only for %s records: %w", StateConfirmed, ErrInvalidMutation)
	}
	return nil
}

// Apply copies the mutation onto r. The caller is responsible for validation.
func (m *Mutation) Apply(r *Relay, now time.Time) {
	r.State = m.State
	if m.DestTxHash != nil {
		hash := *m.DestTxHash
		r.DestTxHash = &hash
	}
	if m.Proof != nil {
		r.Proof = append([]byte(nil), m.Proof...)
	}
	if m.RetryCount != nil {
		r.RetryCount = *m.RetryCount
	}
	if m.NextAttemptAt != nil {
		ts := *m.NextAttemptAt
		r.NextAttemptAt = &ts
	}
	if m.LastError != nil {
		lastError := *m.LastError
		r.LastError = &lastError
	}
	if m.ConfirmedAt != nil {
		ts := *m.ConfirmedAt
		r.ConfirmedAt = &ts
	}
	if m.ExecutedAt != nil {
		ts := *m.ExecutedAt
		r.ExecutedAt = &ts
	}
	r.UpdatedAt = &now
}

// RequeueState is the state a failed record returns to after a manual re-queue.
func RequeueState(r *Relay) State {
	if len(r.Proof) > 0 {
		return StateConfirmed
	}
	return StateSent
}

type StateCount struct {
	DestChainID string `db:"dest_chain_id"`
	State       State  `db:"state"`
	Count       uint   `db:"count"`
}

type RecordsRepo interface {
	Kind() Kind
	UpsertByDedupKey(ctx context.Context, rec Record) (Record, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (Record, error)
	FindByExternalID(ctx context.Context, externalID common.Hash) ([]Record, error)
	ListByState(ctx context.Context, state State, chainID string) ([]Record, error)
	// ListDue returns CONFIRMED records of the destination chain whose backoff
	// allows another attempt at now, oldest schedule first.
	ListDue(ctx context.Context, destChainID string, now time.Time) ([]Record, error)
	CompareAndSet(ctx context.Context, id uuid.UUID, expected State, mutation *Mutation) error
	FindByParticipant(ctx context.Context, addr common.Address, limit, offset uint) ([]Record, error)
	CountByState(ctx context.Context) ([]*StateCount, error)
	Requeue(ctx context.Context, id uuid.UUID) error
}
