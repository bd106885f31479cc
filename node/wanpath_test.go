package node

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	pub4Addr = netip.MustParseAddrPort("8.0.0.1:1337")
	pub6Addr = netip.MustParseAddrPort("[2000::1]:1337")
)

func TestWanPathUndefined(t *testing.T) {
	var w WanPath

	assert.False(t, w.Defined())
	assert.False(t, w.IsActive(time.Now()))
}

func TestWanPathActivityEdge(t *testing.T) {
	t0 := time.UnixMilli(1_000_000)

	w := WanPath{Addr: pub4Addr, LastReceive: t0}

	assert.True(t, w.IsActive(t0))
	assert.True(t, w.IsActive(t0.Add(PathActivityTimeout-time.Millisecond)))

	// the transition is exactly at the timeout
	assert.False(t, w.IsActive(t0.Add(PathActivityTimeout)))
	assert.False(t, w.IsActive(t0.Add(PathActivityTimeout+time.Hour)))
}

func TestWanPathFixedNeverGoesStale(t *testing.T) {
	t0 := time.UnixMilli(1_000_000)

	w := WanPath{Addr: pub6Addr, Fixed: true}

	assert.True(t, w.IsActive(t0))
	assert.True(t, w.IsActive(t0.Add(365*24*time.Hour)))
}

func TestWanPathLearn(t *testing.T) {
	t0 := time.UnixMilli(1_000_000)
	other := netip.MustParseAddrPort("9.9.9.9:9993")

	w := WanPath{Addr: pub4Addr, LocalPort: Port(1)}
	w.learn(other, Port(2), t0)

	assert.Equal(t, other, w.Addr)
	assert.Equal(t, Port(2), w.LocalPort)
	assert.Equal(t, t0, w.LastReceive)

	// fixed keeps the address but still counts the receive
	t1 := t0.Add(time.Second)
	w.Fixed = true
	w.learn(pub4Addr, Port(3), t1)

	assert.Equal(t, other, w.Addr)
	assert.Equal(t, Port(2), w.LocalPort)
	assert.Equal(t, t1, w.LastReceive)
}
