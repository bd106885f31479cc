package msgpath

import (
	"fmt"
	"net/netip"
	"slices"

	"github.com/HondouKoSuke/ZeroTierOne/types/bin"
)

type Pong struct {
	TxID TxID

	Src netip.AddrPort // 18 bytes (16+2) on the wire; v4-mapped ipv6 for IPv4
}

func (p *Pong) MarshalPathMessage() []byte {
	return slices.Concat(MagicBytes, []byte{byte(v1), byte(PongMessage)}, p.TxID[:], bin.PutAddrPort(p.Src))
}

func (p *Pong) Debug() string {
	return fmt.Sprintf("pong tx=%x src=%s", p.TxID, p.Src)
}
