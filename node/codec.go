package node

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/types"
	"github.com/HondouKoSuke/ZeroTierOne/types/bin"
	"github.com/HondouKoSuke/ZeroTierOne/types/key"
)

// SerializationVersion tags the binary layout of a peer record.
// Increment on any layout change; decode rejects anything else.
const SerializationVersion byte = 6

var (
	ErrCodecVersion  = errors.New("peer record: serialization version mismatch")
	ErrCodecTrailing = errors.New("peer record: trailing bytes after record")
)

// Record layout, big-endian, no padding:
//
//	version(u8) | secret(32) | identity(32) | v4 path | v6 path |
//	lastUsed(u64 ms) | lastUnicastFrame(u64) | lastMulticastFrame(u64) |
//	lastAnnouncedTo(u64) | vMajor(u16) | vMinor(u16) | vRevision(u16) |
//	latency(u16)
//
// Path layout:
//
//	lastSend(u64 ms) | lastReceive(u64) | lastFirewallOpener(u64) |
//	localPortHint(u64) | tag(u8: 0 none, 4 IPv4, 6 IPv6) |
//	address payload (0 / 4+2 / 16+2) | fixed(u8)

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *Peer) MarshalBinary() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	b := []byte{SerializationVersion}

	secret := p.secret.Raw()
	b = append(b, secret[:]...)
	b = append(b, p.id[:]...)

	b = appendWanPath(b, p.v4)
	b = appendWanPath(b, p.v6)

	b = bin.AppendUint64(b, bin.TimeToMillis(p.lastUsed))
	b = bin.AppendUint64(b, bin.TimeToMillis(p.lastUnicastFrame))
	b = bin.AppendUint64(b, bin.TimeToMillis(p.lastMulticastFrame))
	b = bin.AppendUint64(b, bin.TimeToMillis(p.lastAnnouncedTo))

	b = bin.AppendUint16(b, p.vMajor)
	b = bin.AppendUint16(b, p.vMinor)
	b = bin.AppendUint16(b, p.vRevision)
	b = bin.AppendUint16(b, uint16(min(p.latency, 65535)))

	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. It is
// all-or-nothing: on any error the record is left exactly as it was.
func (p *Peer) UnmarshalBinary(b []byte) error {
	d, err := decodeRecord(b)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.applyLocked(d)
	return nil
}

// DecodePeer restores a fresh record from its binary form.
func DecodePeer(b []byte) (*Peer, error) {
	d, err := decodeRecord(b)
	if err != nil {
		return nil, err
	}

	p := &Peer{}
	p.applyLocked(d)
	return p, nil
}

// record is the scratch form a decode fully populates before any live
// Peer is touched.
type record struct {
	secret key.NakedKey
	id     key.NodePublic

	v4, v6 WanPath

	lastUsed, lastUnicastFrame, lastMulticastFrame, lastAnnouncedTo time.Time

	vMajor, vMinor, vRevision uint16
	latency                   uint16
}

func (p *Peer) applyLocked(d *record) {
	p.secret = key.SharedSecretFrom(d.secret)
	p.id = d.id
	p.v4 = d.v4
	p.v6 = d.v6
	p.lastUsed = d.lastUsed
	p.lastUnicastFrame = d.lastUnicastFrame
	p.lastMulticastFrame = d.lastMulticastFrame
	p.lastAnnouncedTo = d.lastAnnouncedTo
	p.vMajor, p.vMinor, p.vRevision = d.vMajor, d.vMinor, d.vRevision
	p.latency = uint32(d.latency)
}

func decodeRecord(b []byte) (*record, error) {
	version, b, err := bin.ConsumeByte(b)
	if err != nil {
		return nil, fmt.Errorf("peer record: %w", err)
	}
	if version != SerializationVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCodecVersion, version, SerializationVersion)
	}

	d := &record{}

	raw, b, err := bin.ConsumeBytes(b, key.Len)
	if err != nil {
		return nil, fmt.Errorf("peer record: secret: %w", err)
	}
	d.secret = key.NakedKey(raw)

	raw, b, err = bin.ConsumeBytes(b, key.Len)
	if err != nil {
		return nil, fmt.Errorf("peer record: identity: %w", err)
	}
	d.id = key.MakeNodePublic([32]byte(raw))

	if d.v4, b, err = consumeWanPath(b); err != nil {
		return nil, fmt.Errorf("peer record: ipv4 path: %w", err)
	}
	if d.v6, b, err = consumeWanPath(b); err != nil {
		return nil, fmt.Errorf("peer record: ipv6 path: %w", err)
	}

	var stamps [4]time.Time
	for i := range stamps {
		var ms uint64
		if ms, b, err = bin.ConsumeUint64(b); err != nil {
			return nil, fmt.Errorf("peer record: timestamps: %w", err)
		}
		stamps[i] = bin.MillisToTime(ms)
	}
	d.lastUsed, d.lastUnicastFrame, d.lastMulticastFrame, d.lastAnnouncedTo = stamps[0], stamps[1], stamps[2], stamps[3]

	var words [4]uint16
	for i := range words {
		if words[i], b, err = bin.ConsumeUint16(b); err != nil {
			return nil, fmt.Errorf("peer record: version/latency: %w", err)
		}
	}
	d.vMajor, d.vMinor, d.vRevision, d.latency = words[0], words[1], words[2], words[3]

	if len(b) != 0 {
		return nil, ErrCodecTrailing
	}

	return d, nil
}

func appendWanPath(b []byte, w WanPath) []byte {
	b = bin.AppendUint64(b, bin.TimeToMillis(w.LastSend))
	b = bin.AppendUint64(b, bin.TimeToMillis(w.LastReceive))
	b = bin.AppendUint64(b, bin.TimeToMillis(w.LastFirewallOpener))
	b = bin.AppendUint64(b, uint64(w.LocalPort))

	switch {
	case !w.Defined():
		b = append(b, byte(AddressNone))
	case types.NormaliseAddr(w.Addr.Addr()).Is4():
		b = append(b, byte(AddressIPv4))
		a4 := types.NormaliseAddr(w.Addr.Addr()).As4()
		b = append(b, a4[:]...)
		b = bin.AppendUint16(b, w.Addr.Port())
	default:
		b = append(b, byte(AddressIPv6))
		a16 := w.Addr.Addr().As16()
		b = append(b, a16[:]...)
		b = bin.AppendUint16(b, w.Addr.Port())
	}

	if w.Fixed {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}

	return b
}

func consumeWanPath(b []byte) (WanPath, []byte, error) {
	var w WanPath
	var err error

	var stamps [3]time.Time
	for i := range stamps {
		var ms uint64
		if ms, b, err = bin.ConsumeUint64(b); err != nil {
			return w, b, err
		}
		stamps[i] = bin.MillisToTime(ms)
	}
	w.LastSend, w.LastReceive, w.LastFirewallOpener = stamps[0], stamps[1], stamps[2]

	var port uint64
	if port, b, err = bin.ConsumeUint64(b); err != nil {
		return w, b, err
	}
	w.LocalPort = Port(port)

	var tag byte
	if tag, b, err = bin.ConsumeByte(b); err != nil {
		return w, b, err
	}

	switch AddressType(tag) {
	case AddressNone:
		// path undefined
	case AddressIPv4:
		var raw []byte
		if raw, b, err = bin.ConsumeBytes(b, 4); err != nil {
			return w, b, err
		}
		var port uint16
		if port, b, err = bin.ConsumeUint16(b); err != nil {
			return w, b, err
		}
		w.Addr = netip.AddrPortFrom(netip.AddrFrom4([4]byte(raw)), port)
	case AddressIPv6:
		var raw []byte
		if raw, b, err = bin.ConsumeBytes(b, 16); err != nil {
			return w, b, err
		}
		var port uint16
		if port, b, err = bin.ConsumeUint16(b); err != nil {
			return w, b, err
		}
		w.Addr = netip.AddrPortFrom(netip.AddrFrom16([16]byte(raw)), port)
	default:
		return w, b, fmt.Errorf("unknown address tag %d", tag)
	}

	var fixed byte
	if fixed, b, err = bin.ConsumeByte(b); err != nil {
		return w, b, err
	}
	w.Fixed = fixed != 0

	return w, b, nil
}
