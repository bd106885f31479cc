package node

import (
	"errors"
	"sync"

	"github.com/HondouKoSuke/ZeroTierOne/types/key"
	"golang.org/x/exp/maps"
)

var ErrPeerExists = errors.New("peer already in table")

// Table is the shared peer registry. The *Peer values it hands out are
// the live records themselves, shared with every other holder.
type Table struct {
	mu    sync.RWMutex
	peers map[key.NodePublic]*Peer
}

func NewTable() *Table {
	return &Table{
		peers: make(map[key.NodePublic]*Peer),
	}
}

func (t *Table) Add(p *Peer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.peers[p.Identity()]; ok {
		return ErrPeerExists
	}

	t.peers[p.Identity()] = p
	return nil
}

// Get returns the record for id, or nil.
func (t *Table) Get(id key.NodePublic) *Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.peers[id]
}

func (t *Table) Remove(id key.NodePublic) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.peers, id)
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.peers)
}

// All returns the current records, in no particular order.
func (t *Table) All() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return maps.Values(t.peers)
}
