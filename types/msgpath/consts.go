package msgpath

// Magic is the 8 byte header of all path messages
// "🕳🥊"
// F0 9F 95 B3
// F0 9F A5 8A
var Magic = string(MagicBytes)

var MagicBytes = []byte{0xF0, 0x9F, 0x95, 0xB3, 0xF0, 0x9F, 0xA5, 0x8A}

type VersionMarker byte

const v1 = VersionMarker(0x1)

type MessageType byte

const (
	PingMessage       = MessageType(0x00)
	PongMessage       = MessageType(0x01)
	RendezvousMessage = MessageType(0xFF)
)
