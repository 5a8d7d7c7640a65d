package presenter

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/omni/bridge-relayer/entity"
)

type MessageInfo struct {
	Sender  common.Address
	Target  common.Address
	Payload hexutil.Bytes
}

type TokenTransferInfo struct {
	Token     common.Address
	Sender    common.Address
	Recipient common.Address
	Amount    string
}

type RecordInfo struct {
	Kind          entity.Kind
	ID            uuid.UUID
	ExternalID    common.Hash
	SourceChainID string
	DestChainID   string
	SourceTxHash  common.Hash
	SourceTxLink  string
	LogIndex      uint
	BlockNumber   uint
	State         entity.State
	DestTxHash    *common.Hash  `json:",omitempty"`
	DestTxLink    string        `json:",omitempty"`
	Proof         hexutil.Bytes `json:",omitempty"`
	RetryCount    uint
	NextAttemptAt *time.Time         `json:",omitempty"`
	LastError     *string            `json:",omitempty"`
	CreatedAt     *time.Time         `json:",omitempty"`
	UpdatedAt     *time.Time         `json:",omitempty"`
	ConfirmedAt   *time.Time         `json:",omitempty"`
	ExecutedAt    *time.Time         `json:",omitempty"`
	Message       *MessageInfo       `json:",omitempty"`
	TokenTransfer *TokenTransferInfo `json:",omitempty"`
}

type RecordsResult struct {
	Records []*RecordInfo
	Limit   uint `json:",omitempty"`
	Offset  uint `json:",omitempty"`
}

type ChainInfo struct {
	Name                  string
	ChainID               string
	Healthy               bool
	RequiredConfirmations uint
	LastProcessedBlock    uint
}

type StatsResult struct {
	Ingested   uint
	Executed   uint
	Failed     uint
	QueueDepth map[string]uint
	ByState    map[entity.State]uint
}
