package presenter

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-relayer/entity"
)

var formats = map[string]string{
	"1":        "https://etherscan.io/tx/%s",
	"5":        "https://goerli.etherscan.io/tx/%s",
	"56":       "https://bscscan.com/tx/%s",
	"77":       "https://blockscout.com/poa/sokol/tx/%s",
	"100":      "https://gnosisscan.io/tx/%s",
	"137":      "https://polygonscan.com/tx/%s",
	"11155111": "https://sepolia.etherscan.io/tx/%s",
}

func txLink(chainID string, txHash common.Hash) string {
	if format, ok := formats[chainID]; ok {
		return fmt.Sprintf(format, txHash)
	}
	return txHash.String()
}

func recordToInfo(rec entity.Record) *RecordInfo {
	h := rec.Header()
	info := &RecordInfo{
		Kind:          rec.Kind(),
		ID:            h.ID,
		ExternalID:    h.ExternalID,
		SourceChainID: h.SourceChainID,
		DestChainID:   h.DestChainID,
		SourceTxHash:  h.SourceTxHash,
		SourceTxLink:  txLink(h.SourceChainID, h.SourceTxHash),
		LogIndex:      h.LogIndex,
		BlockNumber:   h.BlockNumber,
		State:         h.State,
		DestTxHash:    h.DestTxHash,
		Proof:         h.Proof,
		RetryCount:    h.RetryCount,
		NextAttemptAt: h.NextAttemptAt,
		LastError:     h.LastError,
		CreatedAt:     h.CreatedAt,
		UpdatedAt:     h.UpdatedAt,
		ConfirmedAt:   h.ConfirmedAt,
		ExecutedAt:    h.ExecutedAt,
	}
	// zero hash marks a record delivered by someone else
	if h.DestTxHash != nil && *h.DestTxHash != (common.Hash{}) {
		info.DestTxLink = txLink(h.DestChainID, *h.DestTxHash)
	}
	switch v := rec.(type) {
	case *entity.Message:
		info.Message = &MessageInfo{
			Sender:  v.Sender,
			Target:  v.Target,
			Payload: v.Payload,
		}
	case *entity.TokenTransfer:
		info.TokenTransfer = &TokenTransferInfo{
			Token:     v.Token,
			Sender:    v.Sender,
			Recipient: v.Recipient,
			Amount:    v.Amount,
		}
	}
	return info
}

func recordsToInfo(records []entity.Record) []*RecordInfo {
	res := make([]*RecordInfo, len(records))
	for i, rec := range records {
		res[i] = recordToInfo(rec)
	}
	return res
}
