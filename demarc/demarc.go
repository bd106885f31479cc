// Package demarc is the demarcation point between the node core and
// the network: a set of bound UDP sockets keyed by local port,
// implementing the node.Transport send primitive and delivering
// inbound frames to a dispatch callback.
package demarc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/node"
	"github.com/HondouKoSuke/ZeroTierOne/types"
)

// Handler receives one inbound frame: the local port it arrived on,
// its source, and the raw bytes. pkt is only valid for the duration of
// the call.
type Handler func(local node.Port, src netip.AddrPort, pkt []byte)

type Demarc struct {
	mu      sync.RWMutex
	socks   map[node.Port]*net.UDPConn
	closed  bool
	running bool
	handler Handler

	wg sync.WaitGroup
}

func New() *Demarc {
	return &Demarc{
		socks: make(map[node.Port]*net.UDPConn),
	}
}

// Bind opens a UDP socket on ap (port 0 for an ephemeral one) and
// returns the Port it can be sent from. The socket is opened with
// address reuse enabled where the platform supports it, so a
// hole-punching peer can bind beside an existing flow.
func (d *Demarc) Bind(ap netip.AddrPort) (node.Port, error) {
	lc := net.ListenConfig{
		Control: setSocketOptions,
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", ap.String())
	if err != nil {
		return node.NullPort, fmt.Errorf("demarc: bind %s: %w", ap, err)
	}

	conn := pc.(*net.UDPConn)
	port := node.Port(conn.LocalAddr().(*net.UDPAddr).Port)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		conn.Close()
		return node.NullPort, errors.New("demarc: closed")
	}
	if _, ok := d.socks[port]; ok {
		conn.Close()
		return node.NullPort, fmt.Errorf("demarc: port %d already bound", port)
	}

	d.socks[port] = conn

	if d.running {
		d.wg.Add(1)
		go d.readLoop(port, conn, d.handler)
	}

	slog.Debug("demarc bound", "port", uint64(port), "addr", conn.LocalAddr())

	return port, nil
}

// SendVia implements node.Transport. With local == AnyPort any bound
// socket will do; otherwise the send goes out the named one. Failures
// are absorbed into NullPort.
func (d *Demarc) SendVia(local node.Port, dst netip.AddrPort, data []byte, now time.Time) node.Port {
	port, conn := d.pick(local)
	if conn == nil {
		return node.NullPort
	}

	if _, err := conn.WriteToUDPAddrPort(data, dst); err != nil {
		slog.Debug("demarc send failed", "port", uint64(port), "dst", dst, "err", err)
		return node.NullPort
	}

	return port
}

func (d *Demarc) pick(local node.Port) (node.Port, *net.UDPConn) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if local != node.AnyPort {
		return local, d.socks[local]
	}

	for port, conn := range d.socks {
		return port, conn
	}

	return node.NullPort, nil
}

// Ports returns the currently bound local ports.
func (d *Demarc) Ports() []node.Port {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ports := make([]node.Port, 0, len(d.socks))
	for port := range d.socks {
		ports = append(ports, port)
	}
	return ports
}

// Run starts a read loop on every bound socket, including ones bound
// after the fact, delivering frames to h. It blocks until all sockets
// are closed. Calling Run twice is a no-op for the second caller.
func (d *Demarc) Run(h Handler) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.handler = h

	for port, conn := range d.socks {
		d.wg.Add(1)
		go d.readLoop(port, conn, h)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Demarc) readLoop(port node.Port, conn *net.UDPConn, h Handler) {
	defer d.wg.Done()

	var buf [64 << 10]byte
	for {
		n, src, err := conn.ReadFromUDPAddrPort(buf[:])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Debug("demarc read failed", "port", uint64(port), "err", err)
			continue
		}

		h(port, types.NormaliseAddrPort(src), buf[:n])
	}
}

// Close closes every socket, which also breaks Run out of its read
// loops.
func (d *Demarc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	var errs []error
	for port, conn := range d.socks {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(d.socks, port)
	}

	return errors.Join(errs...)
}

var _ node.Transport = (*Demarc)(nil)
