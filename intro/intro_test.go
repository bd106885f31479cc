package intro

import (
	"net/netip"
	"testing"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/node"
	"github.com/HondouKoSuke/ZeroTierOne/types/key"
	"github.com/HondouKoSuke/ZeroTierOne/types/msgpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	a6 = netip.MustParseAddrPort("[2000::1]:1001")
	b6 = netip.MustParseAddrPort("[2000::2]:2002")
)

type sentPacket struct {
	dst  netip.AddrPort
	data []byte
}

type fakeTransport struct {
	sends []sentPacket
}

func (f *fakeTransport) SendVia(local node.Port, dst netip.AddrPort, data []byte, now time.Time) node.Port {
	f.sends = append(f.sends, sentPacket{dst: dst, data: data})
	return node.Port(40000)
}

func newPeer(t *testing.T) *node.Peer {
	t.Helper()

	p, err := node.NewPeer(key.NewNode(), key.NewNode().Public())
	require.NoError(t, err)
	return p
}

func TestIntroduce(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	tr := &fakeTransport{}
	svc := NewService(tr)

	pa, pb := newPeer(t), newPeer(t)
	pa.OnReceive(node.AnyPort, a6, 0, 1, node.VerbHello, 0, node.VerbNop, now)
	pb.OnReceive(node.AnyPort, b6, 0, 2, node.VerbHello, 0, node.VerbNop, now)

	require.True(t, svc.Introduce(pa, pb, now))
	require.Len(t, tr.sends, 2)

	// A gets told B's address, at A's address; and vice versa
	assert.Equal(t, a6, tr.sends[0].dst)
	msgA, err := msgpath.ParsePathMessage(tr.sends[0].data)
	require.NoError(t, err)
	assert.Equal(t, []netip.AddrPort{b6}, msgA.(*msgpath.Rendezvous).Addresses)

	assert.Equal(t, b6, tr.sends[1].dst)
	msgB, err := msgpath.ParsePathMessage(tr.sends[1].data)
	require.NoError(t, err)
	assert.Equal(t, []netip.AddrPort{a6}, msgB.(*msgpath.Rendezvous).Addresses)
}

func TestIntroduceNoCommonGround(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	tr := &fakeTransport{}
	svc := NewService(tr)

	require.False(t, svc.Introduce(newPeer(t), newPeer(t), now))
	assert.Empty(t, tr.sends)
}
