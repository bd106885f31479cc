package node

import (
	"sync"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/types/msgpath"
)

// PingTracker remembers outstanding direct pings by transaction ID, so
// a returning pong can be matched to the peer it measures.
type PingTracker struct {
	mu   sync.RWMutex
	sent map[msgpath.TxID]sentPing
}

type sentPing struct {
	peer *Peer
	at   time.Time
}

func NewPingTracker() *PingTracker {
	return &PingTracker{
		sent: make(map[msgpath.TxID]sentPing),
	}
}

func (pt *PingTracker) Register(tx msgpath.TxID, p *Peer, at time.Time) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.sent[tx] = sentPing{peer: p, at: at}
}

// Ack matches a pong to its ping, removes it, and returns the
// round-trip time and the peer it belongs to. ok is false for unknown
// (or already expired) transaction IDs.
func (pt *PingTracker) Ack(tx msgpath.TxID, now time.Time) (rtt time.Duration, p *Peer, ok bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	sp, ok := pt.sent[tx]
	if !ok {
		return 0, nil, false
	}
	delete(pt.sent, tx)

	return now.Sub(sp.at), sp.peer, true
}

// Expire drops every outstanding ping sent before the given cutoff,
// returning how many were dropped.
func (pt *PingTracker) Expire(before time.Time) int {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	n := 0
	for tx, sp := range pt.sent {
		if sp.at.Before(before) {
			delete(pt.sent, tx)
			n++
		}
	}
	return n
}

func (pt *PingTracker) Outstanding() int {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	return len(pt.sent)
}
