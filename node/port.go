package node

import (
	"net/netip"
	"time"
)

// Port identifies one local sending point of the transport, normally
// the local UDP port a socket is bound to.
type Port uint64

const (
	// AnyPort lets the transport pick whatever sending point it likes.
	AnyPort Port = 0

	// NullPort is the "no port" sentinel: as a send result it means the
	// send failed or no path existed.
	NullPort Port = ^Port(0)
)

func (p Port) IsNull() bool {
	return p == NullPort
}

// Transport is the external send primitive. Sends are best-effort:
// failure is reported as NullPort, never as an error.
type Transport interface {
	// SendVia sends data to dst from the local sending point local
	// (AnyPort to let the transport choose), returning the Port
	// actually used, or NullPort.
	SendVia(local Port, dst netip.AddrPort, data []byte, now time.Time) Port
}
