package node

import (
	"context"
	"log/slog"

	"github.com/HondouKoSuke/ZeroTierOne/types/key"
	"github.com/HondouKoSuke/ZeroTierOne/types/msgpath"
	"github.com/benbjohnson/clock"
)

// Maintainer periodically walks the table and keeps every peer's
// direct paths warm: hello pings on DirectPingInterval, firewall
// openers on FirewallOpenerInterval. It is the only retry schedule
// the record layer has; individual send failures are left to the next
// tick.
type Maintainer struct {
	clk     clock.Clock
	table   *Table
	tr      Transport
	tracker *PingTracker

	// nodeKey goes into outgoing hello pings, so the remote knows who
	// is knocking.
	nodeKey key.NodePublic
}

func NewMaintainer(clk clock.Clock, table *Table, tr Transport, tracker *PingTracker, nodeKey key.NodePublic) *Maintainer {
	return &Maintainer{
		clk:     clk,
		table:   table,
		tr:      tr,
		tracker: tracker,
		nodeKey: nodeKey,
	}
}

// Run ticks until ctx is cancelled.
func (m *Maintainer) Run(ctx context.Context) {
	ticker := m.clk.Ticker(PathMaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick runs one maintenance pass. Exposed so operators (and tests)
// can force a pass outside the schedule.
func (m *Maintainer) Tick() {
	now := m.clk.Now()

	for _, p := range m.table.All() {
		if !p.HasDirectPath() {
			continue
		}

		if now.Sub(p.LastDirectSend()) >= DirectPingInterval {
			ping := &msgpath.Ping{TxID: msgpath.NewTxID(), NodeKey: m.nodeKey}

			if p.SendPing(m.tr, ping.MarshalPathMessage(), now) {
				m.tracker.Register(ping.TxID, p, now)
				slog.Debug("sent direct ping", "peer", p.Identity().Debug(), "tx", ping.TxID)
			}
		}

		if now.Sub(p.LastFirewallOpener()) >= FirewallOpenerInterval {
			p.SendFirewallOpener(m.tr, now)
		}
	}

	if n := m.tracker.Expire(now.Add(-PingExpiry)); n > 0 {
		slog.Debug("expired outstanding pings", "count", n)
	}
}
