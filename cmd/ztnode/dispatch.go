package main

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/node"
	"github.com/HondouKoSuke/ZeroTierOne/types"
	"github.com/HondouKoSuke/ZeroTierOne/types/msgpath"
)

// handleFrame is the dispatch boundary: every inbound datagram lands
// here with its local port and source, gets parsed, and feeds the
// matching peer record's bookkeeping.
func handleFrame(local node.Port, src netip.AddrPort, pkt []byte) {
	if !msgpath.LooksLikePathMessage(pkt) {
		slog.Log(context.Background(), types.LevelTrace, "dropping non-path frame", "src", src, "len", len(pkt))
		return
	}

	msg, err := msgpath.ParsePathMessage(pkt)
	if err != nil {
		slog.Debug("dropping malformed path message", "src", src, "err", err)
		return
	}

	now := time.Now()

	switch m := msg.(type) {
	case *msgpath.Ping:
		handlePing(local, src, m, now)
	case *msgpath.Pong:
		handlePong(local, src, m, now)
	case *msgpath.Rendezvous:
		handleRendezvous(local, src, m, now)
	}
}

func handlePing(local node.Port, src netip.AddrPort, ping *msgpath.Ping, now time.Time) {
	p := tbl.Get(ping.NodeKey)
	if p == nil {
		slog.Debug("ping from unknown peer", "src", src, "node", ping.NodeKey.Debug())
		return
	}

	p.OnReceive(local, src, 0, 0, node.VerbHello, 0, node.VerbNop, now)

	pong := &msgpath.Pong{TxID: ping.TxID, Src: src}
	if dm.SendVia(local, src, pong.MarshalPathMessage(), now).IsNull() {
		slog.Debug("pong send failed", "dst", src)
	}
}

func handlePong(local node.Port, src netip.AddrPort, pong *msgpath.Pong, now time.Time) {
	rtt, p, ok := tracker.Ack(pong.TxID, now)
	if !ok {
		slog.Debug("pong without matching ping", "src", src, "tx", pong.TxID)
		return
	}

	p.OnReceive(local, src, 0, 0, node.VerbOK, 0, node.VerbHello, now)
	p.AddDirectLatencyMeasurement(uint32(rtt.Milliseconds()))

	slog.Debug("pong", "peer", p.Identity().Debug(), "rtt", rtt, "reflexive", pong.Src)
}

// handleRendezvous reacts to a relay's introduction by immediately
// pinging the handed-over addresses, punching our side of the hole.
func handleRendezvous(local node.Port, src netip.AddrPort, rz *msgpath.Rendezvous, now time.Time) {
	slog.Info("got rendezvous", "src", src, "addresses", rz.Addresses)

	ping := &msgpath.Ping{TxID: msgpath.NewTxID(), NodeKey: cfg.PrivateKey.Public()}

	for _, ap := range rz.Addresses {
		if dm.SendVia(local, ap, ping.MarshalPathMessage(), now).IsNull() {
			slog.Debug("punch attempt failed", "dst", ap)
		}
	}
}
