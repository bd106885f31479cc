package node

import "fmt"

// Verb is the overlay packet verb, as handed to OnReceive by the
// protocol dispatch layer. The record only cares whether a verb is a
// unicast or multicast data frame; everything else is bookkeeping-free.
type Verb byte

const (
	VerbNop Verb = iota
	VerbHello
	VerbError
	VerbOK
	VerbWhois
	VerbRendezvous
	VerbFrame
	VerbMulticastFrame
	VerbMulticastLike
)

func (v Verb) IsUnicastFrame() bool {
	return v == VerbFrame
}

func (v Verb) IsMulticastFrame() bool {
	return v == VerbMulticastFrame
}

func (v Verb) String() string {
	switch v {
	case VerbNop:
		return "NOP"
	case VerbHello:
		return "HELLO"
	case VerbError:
		return "ERROR"
	case VerbOK:
		return "OK"
	case VerbWhois:
		return "WHOIS"
	case VerbRendezvous:
		return "RENDEZVOUS"
	case VerbFrame:
		return "FRAME"
	case VerbMulticastFrame:
		return "MULTICAST_FRAME"
	case VerbMulticastLike:
		return "MULTICAST_LIKE"
	default:
		return fmt.Sprintf("VERB(%d)", byte(v))
	}
}
