package node

import (
	"net/netip"
	"time"
)

// AddressType selects one of the two WanPath slots of a record. The
// values double as the address tag bytes of the binary layout.
type AddressType byte

const (
	// AddressNone is "no address"; as an argument to ClearFixedFlag it
	// means "all families".
	AddressNone AddressType = 0
	AddressIPv4 AddressType = 4
	AddressIPv6 AddressType = 6
)

// WanPath is one candidate direct IP path to a peer, one per address
// family.
//
// A WanPath with an invalid Addr is undefined. Peer only ever hands
// out copies; the authoritative paths live inside the record, guarded
// by its lock.
type WanPath struct {
	Addr netip.AddrPort // invalid if path is undefined

	LastSend           time.Time
	LastReceive        time.Time
	LastFirewallOpener time.Time

	LocalPort Port // AnyPort if there is no local sending hint

	Fixed bool // do not learn address from received packets
}

func (w *WanPath) Defined() bool {
	return w.Addr.IsValid()
}

// IsActive reports whether this path is usable right now: it has an
// address, and either it is fixed, or something was received on it
// within PathActivityTimeout.
func (w *WanPath) IsActive(now time.Time) bool {
	return w.Defined() && (w.Fixed || now.Sub(w.LastReceive) < PathActivityTimeout)
}

// learn applies the address-learning rule for an inbound packet on
// this family. A fixed path keeps its address but still counts the
// receive.
func (w *WanPath) learn(from netip.AddrPort, local Port, now time.Time) {
	w.LastReceive = now

	if w.Fixed {
		return
	}

	w.Addr = from
	w.LocalPort = local
}
