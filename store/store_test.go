package store

import (
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/node"
	"github.com/HondouKoSuke/ZeroTierOne/types/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "peers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func newPeer(t *testing.T) *node.Peer {
	t.Helper()

	p, err := node.NewPeer(key.NewNode(), key.NewNode().Public())
	require.NoError(t, err)
	return p
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	p := newPeer(t)
	p.SetPathAddress(netip.MustParseAddrPort("8.0.0.1:1337"), true)
	p.SetRemoteVersion(1, 2, 3)
	p.AddDirectLatencyMeasurement(42)

	now := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, s.SavePeer(p, now))

	got, err := s.LoadPeer(p.Identity())
	require.NoError(t, err)

	assert.Equal(t, p.Identity(), got.Identity())
	assert.True(t, p.Key().Equal(got.Key()))
	assert.Equal(t, p.IPv4Path(), got.IPv4Path())
	assert.Equal(t, "1.2.3", got.RemoteVersion())
	assert.Equal(t, uint32(42), got.Latency())
}

func TestSavePeerUpserts(t *testing.T) {
	s := openTestStore(t)
	now := time.UnixMilli(1_700_000_000_000)

	p := newPeer(t)
	require.NoError(t, s.SavePeer(p, now))

	p.AddDirectLatencyMeasurement(99)
	require.NoError(t, s.SavePeer(p, now.Add(time.Minute)))

	got, err := s.LoadPeer(p.Identity())
	require.NoError(t, err)
	assert.Equal(t, uint32(99), got.Latency())
}

func TestLoadPeerNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadPeer(key.NewNode().Public())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadAll(t *testing.T) {
	s := openTestStore(t)
	now := time.UnixMilli(1_700_000_000_000)

	p1, p2 := newPeer(t), newPeer(t)
	require.NoError(t, s.SavePeer(p1, now))
	require.NoError(t, s.SavePeer(p2, now))

	tbl := node.NewTable()
	loaded, skipped, err := s.LoadAll(tbl)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Zero(t, skipped)
	assert.NotNil(t, tbl.Get(p1.Identity()))
	assert.NotNil(t, tbl.Get(p2.Identity()))
}

func TestLoadAllSkipsStaleBlobs(t *testing.T) {
	s := openTestStore(t)
	now := time.UnixMilli(1_700_000_000_000)

	p := newPeer(t)
	require.NoError(t, s.SavePeer(p, now))

	// a blob from a different layout version must be skipped, never
	// half-applied
	_, err := s.db.Exec(`INSERT INTO peers (identity, record, updated_at) VALUES (?, ?, ?);`,
		"deadbeef", []byte{node.SerializationVersion + 1, 0x01}, 0)
	require.NoError(t, err)

	tbl := node.NewTable()
	loaded, skipped, err := s.LoadAll(tbl)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, skipped)
}

func TestDeletePeer(t *testing.T) {
	s := openTestStore(t)
	now := time.UnixMilli(1_700_000_000_000)

	p := newPeer(t)
	require.NoError(t, s.SavePeer(p, now))
	require.NoError(t, s.DeletePeer(p.Identity()))

	_, err := s.LoadPeer(p.Identity())
	assert.ErrorIs(t, err, ErrNotFound)
}
