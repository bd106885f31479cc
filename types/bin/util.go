// Package bin holds append/consume helpers for the hand-rolled big-endian
// wire and storage layouts used elsewhere in this tree.
//
// The consume functions take a byte slice and return the remainder after the
// consumed field, erroring on underrun instead of panicking, so parsers can
// thread one buffer through a fixed field order.
package bin

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"slices"
	"time"
)

var ErrShortBuffer = errors.New("bin: short buffer")

func AppendUint16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

func AppendUint64(b []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(b, v)
}

func ConsumeByte(b []byte) (byte, []byte, error) {
	if len(b) < 1 {
		return 0, b, ErrShortBuffer
	}
	return b[0], b[1:], nil
}

func ConsumeUint16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, b, ErrShortBuffer
	}
	return binary.BigEndian.Uint16(b), b[2:], nil
}

func ConsumeUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, b, ErrShortBuffer
	}
	return binary.BigEndian.Uint64(b), b[8:], nil
}

func ConsumeBytes(b []byte, n int) ([]byte, []byte, error) {
	if len(b) < n {
		return nil, b, ErrShortBuffer
	}
	return b[:n], b[n:], nil
}

func ParseAddrPort(b [18]byte) netip.AddrPort {
	addr := netip.AddrFrom16([16]byte(b[:16])).Unmap()

	port := binary.BigEndian.Uint16(b[16:])

	return netip.AddrPortFrom(addr, port)
}

func PutAddrPort(ap netip.AddrPort) []byte {
	port := make([]byte, 2)

	as16 := ap.Addr().As16()
	binary.BigEndian.PutUint16(port, ap.Port())

	return slices.Concat(as16[:], port[:])
}

// TimeToMillis maps the zero time to 0, so "never happened" survives
// a round-trip through the storage layout.
func TimeToMillis(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixMilli())
}

func MillisToTime(ms uint64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms))
}
