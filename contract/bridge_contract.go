package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/bridge-relayer/contract/bridgeabi"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/ethclient"
)

var (
	ErrUnexpectedResult = errors.New("unexpected contract call result")
	ErrMalformedEvent   = errors.New("malformed bridge event")
	ErrInvalidChainID   = errors.New("invalid chain id")
)

type BridgeContract struct {
	*Contract
}

func NewBridgeContract(client ethclient.Client, addr common.Address) *BridgeContract {
	return &BridgeContract{NewContract(client, addr, bridgeabi.BridgeABI)}
}

func (c *BridgeContract) IsProcessed(ctx context.Context, id common.Hash) (bool, error) {
	res, err := c.Call(ctx, bridgeabi.IsProcessedMethod, id)
	if err != nil {
		return false, fmt.Errorf("can't check processed status: %w", err)
	}
	if len(res) != 1 {
		return false, ErrUnexpectedResult
	}
	processed, ok := res[0].(bool)
	if !ok {
		return false, fmt.Errorf("isProcessed returned %T: %w", res[0], ErrUnexpectedResult)
	}
	return processed, nil
}

func (c *BridgeContract) PendingCount(ctx context.Context) (*big.Int, error) {
	res, err := c.Call(ctx, bridgeabi.PendingCountMethod)
	if err != nil {
		return nil, fmt.Errorf("can't obtain pending count: %w", err)
	}
	if len(res) != 1 {
		return nil, ErrUnexpectedResult
	}
	count, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("pendingCount returned %T: %w", res[0], ErrUnexpectedResult)
	}
	return count, nil
}

// ExecutionData encodes the destination call that delivers rec with the given proof.
func (c *BridgeContract) ExecutionData(rec entity.Record, proof []byte) ([]byte, error) {
	switch r := rec.(type) {
	case *entity.Message:
		sourceChainID, ok := new(big.Int).SetString(r.SourceChainID, 10)
		if !ok {
			return nil, fmt.Errorf("source chain %q: %w", r.SourceChainID, ErrInvalidChainID)
		}
		return c.Pack(bridgeabi.ReceiveMessageMethod, r.ExternalID, sourceChainID, r.Sender, r.Payload, proof)
	case *entity.TokenTransfer:
		amount, ok := r.AmountInt()
		if !ok {
			return nil, fmt.Errorf("amount %q: %w", r.Amount, ErrMalformedEvent)
		}
		return c.Pack(bridgeabi.ReleaseTokensMethod, r.ExternalID, r.Token, r.Recipient, amount, proof)
	default:
		return nil, fmt.Errorf("record kind %s: %w", rec.Kind(), entity.ErrUnexpectedKind)
	}
}

// ParseRecord maps a bridge log to a new SENT record. Logs of other events yield nil.
func (c *BridgeContract) ParseRecord(log *types.Log, sourceChainID string) (entity.Record, error) {
	event, data, err := c.ParseLog(log)
	if err != nil {
		return nil, err
	}
	if event == "" {
		return nil, nil
	}
	destChainID, ok := data["destChainId"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("destChainId is %T: %w", data["destChainId"], ErrMalformedEvent)
	}
	header := entity.Relay{
		SourceChainID: sourceChainID,
		DestChainID:   destChainID.String(),
		SourceTxHash:  log.TxHash,
		LogIndex:      log.Index,
		BlockNumber:   uint(log.BlockNumber),
		State:         entity.StateSent,
	}

	switch event {
	case bridgeabi.MessageSent:
		messageID, ok1 := data["messageId"].([32]byte)
		sender, ok2 := data["sender"].(common.Address)
		target, ok3 := data["target"].(common.Address)
		payload, ok4 := data["payload"].([]byte)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, fmt.Errorf("can't map %s fields: %w", event, ErrMalformedEvent)
		}
		header.ExternalID = messageID
		return &entity.Message{
			Relay:   header,
			Sender:  sender,
			Target:  target,
			Payload: payload,
		}, nil
	case bridgeabi.TokensBridged:
		transferID, ok1 := data["transferId"].([32]byte)
		token, ok2 := data["token"].(common.Address)
		sender, ok3 := data["sender"].(common.Address)
		recipient, ok4 := data["recipient"].(common.Address)
		amount, ok5 := data["amount"].(*big.Int)
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
			return nil, fmt.Errorf("can't map %s fields: %w", event, ErrMalformedEvent)
		}
		header.ExternalID = transferID
		return &entity.TokenTransfer{
			Relay:     header,
			Token:     token,
			Sender:    sender,
			Recipient: recipient,
			Amount:    amount.String(),
		}, nil
	default:
		return nil, nil
	}
}
