package node

import "time"

const (
	// DirectPingInterval is how often the maintainer pings a peer over
	// its defined direct paths.
	DirectPingInterval = 120 * time.Second

	// FirewallOpenerInterval is how often the maintainer pokes a hole
	// for inbound traffic on every defined path.
	FirewallOpenerInterval = 50 * time.Second

	// PathActivityTimeout is the maximum silence on a non-fixed path
	// before it no longer counts as active: two missed ping rounds,
	// plus grace.
	PathActivityTimeout = DirectPingInterval*2 + 10*time.Second

	// PathMaintenanceInterval is the maintainer's tick.
	PathMaintenanceInterval = 5 * time.Second

	// PingExpiry is how long an outstanding ping may wait for its pong
	// before the tracker forgets it.
	PingExpiry = 30 * time.Second
)
