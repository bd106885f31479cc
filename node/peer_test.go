package node

import (
	"net/netip"
	"testing"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/types/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentPacket struct {
	local Port
	dst   netip.AddrPort
	data  []byte
}

// fakeTransport records sends, failing those whose destination address
// is in fail.
type fakeTransport struct {
	sends []sentPacket
	fail  map[netip.Addr]bool
}

func (f *fakeTransport) SendVia(local Port, dst netip.AddrPort, data []byte, now time.Time) Port {
	if f.fail[dst.Addr()] {
		return NullPort
	}

	f.sends = append(f.sends, sentPacket{local: local, dst: dst, data: data})

	if local == AnyPort {
		return Port(40000)
	}
	return local
}

func newTestPeer(t *testing.T) *Peer {
	t.Helper()

	p, err := NewPeer(key.NewNode(), key.NewNode().Public())
	require.NoError(t, err)
	return p
}

func TestNewPeerAgreementFailure(t *testing.T) {
	_, err := NewPeer(key.NewNode(), key.NodePublic{})
	assert.Error(t, err)
}

func TestNewPeerFreshState(t *testing.T) {
	p := newTestPeer(t)

	assert.False(t, p.HasDirectPath())
	assert.False(t, p.HasActiveDirectPath(time.Now()))
	assert.True(t, p.LastUsed().IsZero())
	assert.Zero(t, p.Latency())
	assert.False(t, p.Key().IsZero())
}

func TestOnReceiveLearnsAddress(t *testing.T) {
	p := newTestPeer(t)
	t0 := time.UnixMilli(1_000_000)

	p.OnReceive(Port(9993), pub4Addr, 0, 1, VerbHello, 0, VerbNop, t0)

	v4 := p.IPv4Path()
	assert.Equal(t, pub4Addr, v4.Addr)
	assert.Equal(t, Port(9993), v4.LocalPort)
	assert.Equal(t, t0, v4.LastReceive)
	assert.Equal(t, t0, p.LastUsed())

	// a different source of the same family overwrites
	other := netip.MustParseAddrPort("9.9.9.9:9993")
	t1 := t0.Add(time.Second)
	p.OnReceive(Port(9993), other, 0, 2, VerbHello, 0, VerbNop, t1)

	assert.Equal(t, other, p.IPv4Path().Addr)

	// the IPv6 slot is untouched by IPv4 traffic
	v6 := p.IPv6Path()
	assert.False(t, v6.Defined())
}

func TestOnReceiveFixedPathKeepsAddress(t *testing.T) {
	p := newTestPeer(t)
	t0 := time.UnixMilli(1_000_000)

	p.SetPathAddress(pub4Addr, true)

	other := netip.MustParseAddrPort("9.9.9.9:9993")
	p.OnReceive(Port(9993), other, 0, 1, VerbHello, 0, VerbNop, t0)

	v4 := p.IPv4Path()
	assert.Equal(t, pub4Addr, v4.Addr)
	// the receive still counts
	assert.Equal(t, t0, v4.LastReceive)
}

func TestOnReceiveRelayedPacketLearnsNothing(t *testing.T) {
	p := newTestPeer(t)
	t0 := time.UnixMilli(1_000_000)

	p.OnReceive(Port(9993), pub4Addr, 2, 1, VerbFrame, 0, VerbNop, t0)

	assert.False(t, p.HasDirectPath())
	assert.Equal(t, t0, p.LastUsed())
	// frame stamps are kept regardless of hops
	assert.Equal(t, t0, p.LastUnicastFrame())
}

func TestOnReceiveFrameStamps(t *testing.T) {
	p := newTestPeer(t)
	t0 := time.UnixMilli(1_000_000)
	t1 := t0.Add(time.Second)

	p.OnReceive(Port(9993), pub4Addr, 0, 1, VerbFrame, 0, VerbNop, t0)
	p.OnReceive(Port(9993), pub4Addr, 0, 2, VerbMulticastFrame, 0, VerbNop, t1)

	assert.Equal(t, t0, p.LastUnicastFrame())
	assert.Equal(t, t1, p.LastMulticastFrame())
	assert.Equal(t, t1, p.LastFrame())
}

func TestSetPathAddressFixedStaysActiveForever(t *testing.T) {
	p := newTestPeer(t)
	now := time.UnixMilli(1_000_000)

	for _, ap := range []netip.AddrPort{pub4Addr, pub6Addr} {
		p.SetPathAddress(ap, true)
	}

	assert.True(t, p.HasActiveDirectPath(now))
	assert.True(t, p.HasActiveDirectPath(now.Add(1000*time.Hour)))
	assert.Equal(t, pub6Addr, p.IPv6ActivePath(now.Add(1000*time.Hour)))
	assert.Equal(t, pub4Addr, p.IPv4ActivePath(now.Add(1000*time.Hour)))
}

func TestClearFixedFlag(t *testing.T) {
	p := newTestPeer(t)

	p.SetPathAddress(pub4Addr, true)
	p.SetPathAddress(pub6Addr, true)

	p.ClearFixedFlag(AddressIPv4)
	assert.False(t, p.IPv4Path().Fixed)
	assert.True(t, p.IPv6Path().Fixed)
	// address is kept
	assert.Equal(t, pub4Addr, p.IPv4Path().Addr)

	p.SetPathAddress(pub4Addr, true)
	p.ClearFixedFlag(AddressNone)
	assert.False(t, p.IPv4Path().Fixed)
	assert.False(t, p.IPv6Path().Fixed)
}

func TestForgetDirectPaths(t *testing.T) {
	p := newTestPeer(t)

	p.SetPathAddress(pub4Addr, false)
	p.SetPathAddress(pub6Addr, true)

	p.ForgetDirectPaths(false)
	v4 := p.IPv4Path()
	v6 := p.IPv6Path()
	assert.False(t, v4.Defined())
	assert.True(t, v6.Defined())

	p.ForgetDirectPaths(true)
	v6 = p.IPv6Path()
	assert.False(t, v6.Defined())
}

func TestSendPrefersActiveIPv6(t *testing.T) {
	p := newTestPeer(t)
	now := time.UnixMilli(1_000_000)
	tr := &fakeTransport{}

	p.OnReceive(Port(1), pub4Addr, 0, 1, VerbHello, 0, VerbNop, now)
	p.OnReceive(Port(2), pub6Addr, 0, 2, VerbHello, 0, VerbNop, now)

	used := p.Send(tr, []byte("hi"), now)
	require.False(t, used.IsNull())
	require.Len(t, tr.sends, 1)
	assert.Equal(t, pub6Addr, tr.sends[0].dst)
	assert.Equal(t, now, p.IPv6Path().LastSend)
	assert.True(t, p.IPv4Path().LastSend.IsZero())
}

func TestSendFallsBackToActiveIPv4(t *testing.T) {
	p := newTestPeer(t)
	t0 := time.UnixMilli(1_000_000)
	tr := &fakeTransport{}

	p.OnReceive(Port(1), pub6Addr, 0, 1, VerbHello, 0, VerbNop, t0)

	// v6 went stale, v4 is fresh
	t1 := t0.Add(PathActivityTimeout)
	p.OnReceive(Port(1), pub4Addr, 0, 2, VerbHello, 0, VerbNop, t1)

	p.Send(tr, []byte("hi"), t1)
	require.Len(t, tr.sends, 1)
	assert.Equal(t, pub4Addr, tr.sends[0].dst)
}

func TestSendFallsBackToStalePath(t *testing.T) {
	p := newTestPeer(t)
	t0 := time.UnixMilli(1_000_000)
	tr := &fakeTransport{}

	p.OnReceive(Port(1), pub6Addr, 0, 1, VerbHello, 0, VerbNop, t0)

	// both long stale; a defined path is still better than nothing
	later := t0.Add(10 * PathActivityTimeout)
	p.Send(tr, []byte("hi"), later)

	require.Len(t, tr.sends, 1)
	assert.Equal(t, pub6Addr, tr.sends[0].dst)
}

func TestSendNoPath(t *testing.T) {
	p := newTestPeer(t)
	tr := &fakeTransport{}

	assert.True(t, p.Send(tr, []byte("hi"), time.Now()).IsNull())
	assert.Empty(t, tr.sends)
}

func TestSendPingAllPaths(t *testing.T) {
	p := newTestPeer(t)
	now := time.UnixMilli(1_000_000)
	tr := &fakeTransport{}

	p.SetPathAddress(pub4Addr, false)
	p.SetPathAddress(pub6Addr, false)

	assert.True(t, p.SendPing(tr, []byte("hello"), now))
	assert.Len(t, tr.sends, 2)
	assert.Equal(t, now, p.IPv4Path().LastSend)
	assert.Equal(t, now, p.IPv6Path().LastSend)
}

func TestSendFirewallOpenerAggregates(t *testing.T) {
	p := newTestPeer(t)
	now := time.UnixMilli(1_000_000)

	p.SetPathAddress(pub4Addr, false)
	p.SetPathAddress(pub6Addr, false)

	// one family failing is still an aggregate success
	tr := &fakeTransport{fail: map[netip.Addr]bool{pub6Addr.Addr(): true}}
	assert.True(t, p.SendFirewallOpener(tr, now))
	assert.Equal(t, now, p.IPv4Path().LastFirewallOpener)
	assert.True(t, p.IPv6Path().LastFirewallOpener.IsZero())
	assert.Equal(t, now, p.LastFirewallOpener())

	// both failing is not
	trDead := &fakeTransport{fail: map[netip.Addr]bool{
		pub4Addr.Addr(): true,
		pub6Addr.Addr(): true,
	}}
	assert.False(t, p.SendFirewallOpener(trDead, now.Add(time.Second)))
}

func TestAddDirectLatencyMeasurement(t *testing.T) {
	p := newTestPeer(t)

	p.AddDirectLatencyMeasurement(100)
	assert.Equal(t, uint32(100), p.Latency())

	p.AddDirectLatencyMeasurement(200)
	assert.Equal(t, uint32(150), p.Latency())

	// input clamps to 65535 before averaging
	p.AddDirectLatencyMeasurement(70000)
	assert.Equal(t, uint32((150+65535)/2), p.Latency())

	// a suspiciously high existing value is replaced, not averaged
	p.AddDirectLatencyMeasurement(80)
	assert.Equal(t, uint32(80), p.Latency())
}

func TestRemoteVersion(t *testing.T) {
	p := newTestPeer(t)

	assert.Equal(t, "?", p.RemoteVersion())

	p.SetRemoteVersion(1, 2, 3)
	assert.Equal(t, "1.2.3", p.RemoteVersion())
}
