package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type TokenTransfer struct {
	Relay
	Token     common.Address `db:"token"`
	Sender    common.Address `db:"sender"`
	Recipient common.Address `db:"recipient"`
	Amount    string         `db:"amount"`
}

func (t *TokenTransfer) Kind() Kind {
	return KindTokenTransfer
}

func (t *TokenTransfer) Header() *Relay {
	return &t.Relay
}

func (t *TokenTransfer) Participants() []common.Address {
	return []common.Address{t.Sender, t.Recipient}
}

// AmountInt parses the stored decimal amount, ok is false for malformed or non-positive values.
func (t *TokenTransfer) AmountInt() (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(t.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}
