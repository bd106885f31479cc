package node

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/types"
	"github.com/HondouKoSuke/ZeroTierOne/types/key"
)

// Peer is the record of one remote peer: its identity, the shared
// secret protecting traffic with it, one candidate direct path per
// address family, and liveness/version/latency bookkeeping.
//
// Records are created by NewPeer or DecodePeer only, and shared as
// *Peer between the table, maintenance, and packet dispatch. All
// mutable state sits behind one RWMutex; paths are only ever exposed
// as copies taken under it, so a reader can never see a fresh address
// paired with a stale receive stamp.
type Peer struct {
	mu sync.RWMutex

	id     key.NodePublic
	secret key.SharedSecret

	v4 WanPath
	v6 WanPath

	lastUsed           time.Time
	lastUnicastFrame   time.Time
	lastMulticastFrame time.Time
	lastAnnouncedTo    time.Time

	vMajor, vMinor, vRevision uint16

	latency uint32 // smoothed, clamped to [0, 65535]; 0 is "unknown"
}

// firewallOpenerPayload is two NOP bytes; remote dispatch drops them,
// the point is the outbound NAT mapping they refresh.
var firewallOpenerPayload = []byte{0x00, 0x00}

// NewPeer constructs the record for a newly discovered peer, deriving
// the shared secret from local and remote. It fails, without a usable
// record, when key agreement fails.
func NewPeer(local key.NodePrivate, remote key.NodePublic) (*Peer, error) {
	secret, err := local.SharedSecret(remote)
	if err != nil {
		return nil, fmt.Errorf("new peer: %w", err)
	}

	return &Peer{
		id:     remote,
		secret: secret,
	}, nil
}

// Identity returns the peer's public identity.
func (p *Peer) Identity() key.NodePublic {
	return p.id
}

// Key returns the shared secret derived at construction.
func (p *Peer) Key() key.SharedSecret {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.secret
}

// pathFor selects the WanPath slot matching addr's family. Call with
// p.mu held.
func (p *Peer) pathFor(addr netip.AddrPort) *WanPath {
	if types.NormaliseAddr(addr.Addr()).Is4() {
		return &p.v4
	}
	return &p.v6
}

// OnReceive must be called for every authenticated packet received
// from this peer.
//
// hops is the overlay hop count, not the IP TTL: zero means the packet
// arrived directly, and only then does the matching path learn from it.
// packetID, inRePacketID and inReVerb are accepted from the dispatch
// boundary but carry no bookkeeping yet.
func (p *Peer) OnReceive(localPort Port, remote netip.AddrPort, hops uint, packetID uint64, verb Verb, inRePacketID uint64, inReVerb Verb, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastUsed = now

	if hops == 0 {
		p.pathFor(remote).learn(types.NormaliseAddrPort(remote), localPort, now)
	}

	if verb.IsUnicastFrame() {
		p.lastUnicastFrame = now
	} else if verb.IsMulticastFrame() {
		p.lastMulticastFrame = now
	}
}

// bestPath picks the path Send should use: the best active one, IPv6
// preferred, falling back to any defined one.
func (p *Peer) bestPath(now time.Time) (AddressType, WanPath, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch {
	case p.v6.IsActive(now):
		return AddressIPv6, p.v6, true
	case p.v4.IsActive(now):
		return AddressIPv4, p.v4, true
	case p.v6.Defined():
		return AddressIPv6, p.v6, true
	case p.v4.Defined():
		return AddressIPv4, p.v4, true
	default:
		return AddressNone, WanPath{}, false
	}
}

// Send transmits data to this peer over its best direct path, and
// returns the local port the transport used, or NullPort when no path
// is defined or the send failed. One attempt, no retries.
func (p *Peer) Send(tr Transport, data []byte, now time.Time) Port {
	af, path, ok := p.bestPath(now)
	if !ok {
		return NullPort
	}

	used := tr.SendVia(path.LocalPort, path.Addr, data, now)
	if !used.IsNull() {
		p.stampSend(af, now)
	}

	return used
}

func (p *Peer) stampSend(af AddressType, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if af == AddressIPv4 {
		p.v4.LastSend = now
	} else {
		p.v6.LastSend = now
	}
}

// sendAll attempts one send over every defined path, fixed or not, and
// stamps the given field on each path whose attempt succeeded. Returns
// true iff at least one family's attempt reported success; per-family
// failures stay silent.
func (p *Peer) sendAll(tr Transport, data []byte, now time.Time, stamp func(*WanPath, time.Time)) bool {
	p.mu.RLock()
	paths := [...]WanPath{p.v4, p.v6}
	p.mu.RUnlock()

	var sent [len(paths)]bool
	for i := range paths {
		if paths[i].Defined() {
			sent[i] = !tr.SendVia(paths[i].LocalPort, paths[i].Addr, data, now).IsNull()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if sent[0] {
		stamp(&p.v4, now)
	}
	if sent[1] {
		stamp(&p.v6, now)
	}

	return sent[0] || sent[1]
}

// SendFirewallOpener pokes a hole for inbound traffic on every defined
// path.
func (p *Peer) SendFirewallOpener(tr Transport, now time.Time) bool {
	return p.sendAll(tr, firewallOpenerPayload, now, func(w *WanPath, t time.Time) {
		w.LastFirewallOpener = t
	})
}

// SendPing sends the given hello packet over every defined path.
func (p *Peer) SendPing(tr Transport, hello []byte, now time.Time) bool {
	return p.sendAll(tr, hello, now, func(w *WanPath, t time.Time) {
		w.LastSend = t
	})
}

// SetPathAddress pins or overrides the path for addr's family. An
// explicit set always wins over inbound learning; with fixed true the
// address also stops being learnable until the flag is cleared.
func (p *Peer) SetPathAddress(addr netip.AddrPort, fixed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wp := p.pathFor(addr)
	wp.Addr = types.NormaliseAddrPort(addr)
	wp.Fixed = fixed
}

// ClearFixedFlag clears the fixed flag on the given family's path, or
// on both for AddressNone. The address itself stays.
func (p *Peer) ClearFixedFlag(t AddressType) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch t {
	case AddressIPv4:
		p.v4.Fixed = false
	case AddressIPv6:
		p.v6.Fixed = false
	default:
		p.v4.Fixed = false
		p.v6.Fixed = false
	}
}

// ForgetDirectPaths clears the learned addresses, keeping fixed paths
// unless fixedToo is set.
func (p *Peer) ForgetDirectPaths(fixedToo bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fixedToo || !p.v4.Fixed {
		p.v4.Addr = netip.AddrPort{}
	}
	if fixedToo || !p.v6.Fixed {
		p.v6.Addr = netip.AddrPort{}
	}
}

// AddDirectLatencyMeasurement folds one direct round-trip measurement,
// in milliseconds, into the smoothed latency. A plausible existing
// value is averaged two-point; an unknown or suspiciously high one is
// simply replaced, so we never average against stale garbage.
func (p *Peer) AddDirectLatencyMeasurement(l uint32) {
	if l > 65535 {
		l = 65535
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if old := p.latency; old > 0 && old < 10000 {
		p.latency = (old + l) / 2
	} else {
		p.latency = l
	}
}

// Latency returns the smoothed direct latency in milliseconds, 0 if
// unknown.
func (p *Peer) Latency() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.latency
}

// SetRemoteVersion records the remote client's version as last seen in
// its hello.
func (p *Peer) SetRemoteVersion(major, minor, revision uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.vMajor, p.vMinor, p.vRevision = major, minor, revision
}

// RemoteVersion returns "major.minor.revision", or "?" if no version
// was ever seen.
func (p *Peer) RemoteVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.remoteVersionLocked()
}

func (p *Peer) LastUsed() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.lastUsed
}

func (p *Peer) SetLastUsed(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastUsed = now
}

func (p *Peer) LastUnicastFrame() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.lastUnicastFrame
}

func (p *Peer) LastMulticastFrame() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.lastMulticastFrame
}

// LastFrame returns the time of the most recent frame of any kind.
func (p *Peer) LastFrame() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return laterOf(p.lastUnicastFrame, p.lastMulticastFrame)
}

func (p *Peer) LastAnnouncedTo() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.lastAnnouncedTo
}

func (p *Peer) SetLastAnnouncedTo(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastAnnouncedTo = now
}

// LastDirectReceive returns the most recent direct receive over either
// path.
func (p *Peer) LastDirectReceive() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return laterOf(p.v4.LastReceive, p.v6.LastReceive)
}

// LastDirectSend returns the most recent direct send over either path.
func (p *Peer) LastDirectSend() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return laterOf(p.v4.LastSend, p.v6.LastSend)
}

// LastFirewallOpener returns the most recent successful firewall
// opener over either path.
func (p *Peer) LastFirewallOpener() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return laterOf(p.v4.LastFirewallOpener, p.v6.LastFirewallOpener)
}

// HasDirectPath reports whether at least one family has an address.
func (p *Peer) HasDirectPath() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.v4.Defined() || p.v6.Defined()
}

// HasActiveDirectPath reports whether at least one path is active or
// fixed.
func (p *Peer) HasActiveDirectPath(now time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.v4.IsActive(now) || p.v6.IsActive(now)
}

// IPv4Path returns a snapshot of the IPv4 path.
func (p *Peer) IPv4Path() WanPath {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.v4
}

// IPv6Path returns a snapshot of the IPv6 path.
func (p *Peer) IPv6Path() WanPath {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.v6
}

// IPv4ActivePath returns the IPv4 address if that path is currently
// active, else the invalid AddrPort.
func (p *Peer) IPv4ActivePath(now time.Time) netip.AddrPort {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.v4.IsActive(now) {
		return p.v4.Addr
	}
	return netip.AddrPort{}
}

// IPv6ActivePath returns the IPv6 address if that path is currently
// active, else the invalid AddrPort.
func (p *Peer) IPv6ActivePath(now time.Time) netip.AddrPort {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.v6.IsActive(now) {
		return p.v6.Addr
	}
	return netip.AddrPort{}
}

func (p *Peer) Debug() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return fmt.Sprintf("peer %s v4=%s v6=%s latency=%d version=%s",
		p.id.Debug(), debugPath(p.v4), debugPath(p.v6), p.latency, p.remoteVersionLocked())
}

func (p *Peer) remoteVersionLocked() string {
	if p.vMajor == 0 && p.vMinor == 0 && p.vRevision == 0 {
		return "?"
	}
	return fmt.Sprintf("%d.%d.%d", p.vMajor, p.vMinor, p.vRevision)
}

func debugPath(w WanPath) string {
	if !w.Defined() {
		return "<none>"
	}
	if w.Fixed {
		return w.Addr.String() + "(fixed)"
	}
	return w.Addr.String()
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
