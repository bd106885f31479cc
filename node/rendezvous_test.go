package node

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	a4 = netip.MustParseAddrPort("8.0.0.1:1001")
	a6 = netip.MustParseAddrPort("[2000::1]:1001")
	b4 = netip.MustParseAddrPort("8.0.0.2:2002")
	b6 = netip.MustParseAddrPort("[2000::2]:2002")
)

// receiveOn marks a path active by feeding it a direct packet.
func receiveOn(p *Peer, ap netip.AddrPort, now time.Time) {
	p.OnReceive(AnyPort, ap, 0, 1, VerbHello, 0, VerbNop, now)
}

func TestFindCommonGroundPrefersActiveIPv6(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	pa, pb := newTestPeer(t), newTestPeer(t)

	receiveOn(pa, a4, now)
	receiveOn(pa, a6, now)
	receiveOn(pb, b4, now)
	receiveOn(pb, b6, now)

	forA, forB, ok := FindCommonGround(pa, pb, now)
	require.True(t, ok)
	assert.Equal(t, b6, forA)
	assert.Equal(t, a6, forB)
}

func TestFindCommonGroundActiveIPv4BeatsStaleIPv6(t *testing.T) {
	t0 := time.UnixMilli(1_000_000)
	pa, pb := newTestPeer(t), newTestPeer(t)

	receiveOn(pa, a4, t0)
	receiveOn(pa, a6, t0)
	receiveOn(pb, b4, t0)
	receiveOn(pb, b6, t0)

	// only the IPv4 paths stay fresh
	t1 := t0.Add(PathActivityTimeout)
	receiveOn(pa, a4, t1)
	receiveOn(pb, b4, t1)

	forA, forB, ok := FindCommonGround(pa, pb, t1)
	require.True(t, ok)
	assert.Equal(t, b4, forA)
	assert.Equal(t, a4, forB)
}

func TestFindCommonGroundStaleIPv4OverActiveIPv6Mismatch(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	pa, pb := newTestPeer(t), newTestPeer(t)

	// A has both families active; B only ever had a (now stale) IPv4
	receiveOn(pa, a4, now)
	receiveOn(pa, a6, now)

	t0 := now.Add(-2 * PathActivityTimeout)
	receiveOn(pb, b4, t0)

	forA, forB, ok := FindCommonGround(pa, pb, now)
	require.True(t, ok)
	assert.Equal(t, b4, forA)
	assert.Equal(t, a4, forB)
}

func TestFindCommonGroundStaleFallback(t *testing.T) {
	t0 := time.UnixMilli(1_000_000)
	pa, pb := newTestPeer(t), newTestPeer(t)

	receiveOn(pa, a6, t0)
	receiveOn(pb, b6, t0)

	later := t0.Add(10 * PathActivityTimeout)
	forA, forB, ok := FindCommonGround(pa, pb, later)
	require.True(t, ok)
	assert.Equal(t, b6, forA)
	assert.Equal(t, a6, forB)
}

func TestFindCommonGroundNone(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	pa, pb := newTestPeer(t), newTestPeer(t)

	_, _, ok := FindCommonGround(pa, pb, now)
	assert.False(t, ok)

	// disjoint families are no common ground either
	receiveOn(pa, a4, now)
	receiveOn(pb, b6, now)

	_, _, ok = FindCommonGround(pa, pb, now)
	assert.False(t, ok)
}

func TestFindCommonGroundFixedCountsAsActive(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	pa, pb := newTestPeer(t), newTestPeer(t)

	pa.SetPathAddress(a6, true)
	pb.SetPathAddress(b6, true)

	forA, forB, ok := FindCommonGround(pa, pb, now.Add(1000*time.Hour))
	require.True(t, ok)
	assert.Equal(t, b6, forA)
	assert.Equal(t, a6, forB)
}
