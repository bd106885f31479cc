// Package intro implements the relay-side introduction primitive: given
// two peer records it knows, a relay resolves their common ground and
// hands each peer the other's address as a rendezvous message, so the
// two can attempt a direct hole-punched connection.
package intro

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/node"
	"github.com/HondouKoSuke/ZeroTierOne/types/msgpath"
)

type Service struct {
	tr node.Transport
}

func NewService(tr node.Transport) *Service {
	return &Service{tr: tr}
}

// Introduce exchanges addresses between a and b. It returns false when
// the two share no common ground, or when either rendezvous message
// could not be sent; there is no partial-failure detail, the caller's
// schedule simply tries again later.
func (s *Service) Introduce(a, b *node.Peer, now time.Time) bool {
	forA, forB, ok := node.FindCommonGround(a, b, now)
	if !ok {
		slog.Debug("no common ground", "a", a.Identity().Debug(), "b", b.Identity().Debug())
		return false
	}

	sentA := s.sendRendezvous(a, forA, now)
	sentB := s.sendRendezvous(b, forB, now)

	slog.Debug("introduced peers",
		"a", a.Identity().Debug(), "forA", forA,
		"b", b.Identity().Debug(), "forB", forB,
		"sentA", sentA, "sentB", sentB)

	return sentA && sentB
}

func (s *Service) sendRendezvous(to *node.Peer, addr netip.AddrPort, now time.Time) bool {
	msg := &msgpath.Rendezvous{Addresses: []netip.AddrPort{addr}}

	return !to.Send(s.tr, msg.MarshalPathMessage(), now).IsNull()
}
