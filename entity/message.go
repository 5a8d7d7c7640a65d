package entity

import (
	"github.com/ethereum/go-ethereum/common"
)

type Message struct {
	Relay
	Sender  common.Address `db:"sender"`
	Target  common.Address `db:"target"`
	Payload []byte         `db:"payload"`
}

func (m *Message) Kind() Kind {
	return KindMessage
}

func (m *Message) Header() *Relay {
	return &m.Relay
}

func (m *Message) Participants() []common.Address {
	return []common.Address{m.Sender, m.Target}
}
