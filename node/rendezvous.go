package node

import (
	"net/netip"
	"time"
)

// FindCommonGround decides what addresses a relay should exchange
// between two peers so they can attempt a direct connection: forA is
// the address handed to a to reach b, forB the reverse.
//
// Strict priority, first match wins: both IPv6 paths active, both IPv4
// active, both IPv6 defined, both IPv4 defined, nothing. IPv6 wins
// because it is less likely to sit behind an address-translating
// middlebox; active addresses win over merely-known ones because a
// recently validated mapping gives the hole punch better odds.
//
// Pure over two snapshots and a timestamp; no registry involved.
func FindCommonGround(a, b *Peer, now time.Time) (forA, forB netip.AddrPort, ok bool) {
	a4, a6 := a.IPv4Path(), a.IPv6Path()
	b4, b6 := b.IPv4Path(), b.IPv6Path()

	switch {
	case a6.IsActive(now) && b6.IsActive(now):
		return b6.Addr, a6.Addr, true
	case a4.IsActive(now) && b4.IsActive(now):
		return b4.Addr, a4.Addr, true
	case a6.Defined() && b6.Defined():
		return b6.Addr, a6.Addr, true
	case a4.Defined() && b4.Defined():
		return b4.Addr, a4.Addr, true
	default:
		return netip.AddrPort{}, netip.AddrPort{}, false
	}
}
