package msgpath

import (
	"fmt"
	"net/netip"
	"slices"

	"github.com/HondouKoSuke/ZeroTierOne/types/bin"
)

// Rendezvous carries the addresses of one peer to another, relayed by a
// third party that knows both, so the receiver can attempt a direct
// connection.
type Rendezvous struct {
	Addresses []netip.AddrPort
}

func (r *Rendezvous) MarshalPathMessage() []byte {
	b := make([]byte, 0)

	for _, ap := range r.Addresses {
		b = append(b, bin.PutAddrPort(ap)...)
	}

	return slices.Concat(MagicBytes, []byte{byte(v1), byte(RendezvousMessage)}, b)
}

func (r *Rendezvous) Debug() string {
	return fmt.Sprintf("rendezvous addresses=%#v", r.Addresses)
}
