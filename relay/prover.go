package relay

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/omni/bridge-relayer/config"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/utils"
)

var ErrMissingReceipt = errors.New("source receipt is required to build a proof")

// Prover produces the opaque artifact that convinces the destination bridge
// that the source event happened.
type Prover interface {
	Prove(ctx context.Context, rec entity.Record, receipt *types.Receipt) ([]byte, error)
}

func NewProver(proverType config.ProverType, key *ecdsa.PrivateKey) (Prover, error) {
	switch proverType {
	case config.ProverTypeReceiptHash, "":
		return ReceiptHashProver{}, nil
	case config.ProverTypeSignedReceipt:
		if key == nil {
			return nil, fmt.Errorf("signed receipt prover requires a private key: %w", config.ErrUnknownProverType)
		}
		return &SignedReceiptProver{key: key}, nil
	default:
		return nil, fmt.Errorf("prover %q: %w", proverType, config.ErrUnknownProverType)
	}
}

// ReceiptHashProver binds the proof to the record identity and the source receipt location.
type ReceiptHashProver struct{}

func (ReceiptHashProver) Prove(_ context.Context, rec entity.Record, receipt *types.Receipt) ([]byte, error) {
	if receipt == nil {
		return nil, ErrMissingReceipt
	}
	return receiptDigest(rec.Header(), receipt), nil
}

// SignedReceiptProver signs the receipt digest with the relayer key,
// the destination recovers the signer with ecrecover.
type SignedReceiptProver struct {
	key *ecdsa.PrivateKey
}

func NewSignedReceiptProver(key *ecdsa.PrivateKey) *SignedReceiptProver {
	return &SignedReceiptProver{key: key}
}

func (p *SignedReceiptProver) Prove(_ context.Context, rec entity.Record, receipt *types.Receipt) ([]byte, error) {
	if receipt == nil {
		return nil, ErrMissingReceipt
	}
	sig, err := utils.SignText(p.key, receiptDigest(rec.Header(), receipt))
	if err != nil {
		return nil, fmt.Errorf("can't sign receipt digest: %w", err)
	}
	return sig, nil
}

func receiptDigest(r *entity.Relay, receipt *types.Receipt) []byte {
	var blockNumber, logIndex [8]byte
	if receipt.BlockNumber != nil {
		binary.BigEndian.PutUint64(blockNumber[:], receipt.BlockNumber.Uint64())
	}
	binary.BigEndian.PutUint64(logIndex[:], uint64(r.LogIndex))
	return crypto.Keccak256(
		r.ExternalID.Bytes(),
		r.SourceTxHash.Bytes(),
		receipt.BlockHash.Bytes(),
		blockNumber[:],
		logIndex[:],
	)
}
