package msgpath

import (
	crand "crypto/rand"
	"fmt"
	"slices"

	"github.com/HondouKoSuke/ZeroTierOne/types/key"
)

type TxID [12]byte

func NewTxID() TxID {
	var tx TxID
	if _, err := crand.Read(tx[:]); err != nil {
		panic(err)
	}
	return tx
}

type Ping struct {
	TxID TxID

	// Allegedly the sender's node key
	NodeKey key.NodePublic
}

func (p *Ping) MarshalPathMessage() []byte {
	return slices.Concat(MagicBytes, []byte{byte(v1), byte(PingMessage)}, p.TxID[:], p.NodeKey[:])
}

func (p *Ping) Debug() string {
	return fmt.Sprintf("ping tx=%x node=%s", p.TxID, p.NodeKey.Debug())
}
