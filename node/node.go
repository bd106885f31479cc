// Package node holds the per-peer state core of the overlay: the peer
// record with its two candidate direct paths, the rendezvous resolver a
// relay uses to introduce two peers, the versioned binary layout that
// persists a record across restarts, and the periodic path maintenance
// that keeps NAT mappings warm.
//
// Everything here is driven by caller-supplied timestamps; the only
// component that owns a goroutine is the Maintainer.
package node
