package msgpath

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/HondouKoSuke/ZeroTierOne/types/bin"
	"github.com/HondouKoSuke/ZeroTierOne/types/key"
)

// Path wire messages:
//   Magic (8) + Version (1) + Type (1) + Data

var wireHeaderLen = len(Magic) + 2

func LooksLikePathMessage(pkt []byte) bool {
	if len(pkt) < wireHeaderLen {
		// too short, cant possibly be a wire message
		return false
	}

	return string(pkt[:len(Magic)]) == Magic
}

func ParsePathMessage(pkt []byte) (PathMessage, error) {
	if !LooksLikePathMessage(pkt) {
		return nil, errors.New("no path message magic")
	}

	version := pkt[len(Magic)]
	msgType := pkt[len(Magic)+1]

	specificMsg := pkt[wireHeaderLen:]

	if VersionMarker(version) != v1 {
		return nil, fmt.Errorf("invalid version: %x", version)
	}

	switch MessageType(msgType) {
	case PingMessage:
		return parsePing(specificMsg)
	case PongMessage:
		return parsePong(specificMsg)
	case RendezvousMessage:
		return parseRendezvous(specificMsg)
	default:
		return nil, fmt.Errorf("invalid message type: %x", msgType)
	}
}

var errTooSmall = errors.New("path message too small")

func parsePing(b []byte) (*Ping, error) {
	if len(b) < 12+key.Len {
		return nil, errTooSmall
	}

	txid := TxID(b[:12])
	b = b[12:]
	nKey := key.NodePublic(b[:key.Len])

	return &Ping{
		TxID:    txid,
		NodeKey: nKey,
	}, nil
}

func parsePong(b []byte) (*Pong, error) {
	if len(b) < 12+16+2 {
		return nil, errTooSmall
	}

	txid := TxID(b[:12])
	b = b[12:]

	ap := bin.ParseAddrPort([18]byte(b[:18]))

	return &Pong{TxID: txid, Src: ap}, nil
}

func parseRendezvous(b []byte) (*Rendezvous, error) {
	if len(b) == 0 || len(b)%18 != 0 {
		return nil, errors.New("malformed rendezvous addresses")
	}

	aps := make([]netip.AddrPort, 0)

	for {
		ap := bin.ParseAddrPort([18]byte(b[:18]))
		aps = append(aps, ap)
		b = b[18:]

		if len(b) == 0 {
			break
		}
	}

	return &Rendezvous{Addresses: aps}, nil
}
