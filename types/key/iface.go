package key

import (
	"encoding"
)

type key interface {
	IsZero() bool
}

type canTextMarshal interface {
	// We need text encoding for JSON and BSON (currently)

	encoding.TextMarshaler
	encoding.TextUnmarshaler
}

type publicKey interface {
	key

	Debug() string
	HexString() string
}

type privateKey[Pub key] interface {
	key

	Public() Pub
}

type agreesWith[Pub publicKey, Shared key] interface {
	SharedSecret(Pub) (Shared, error)
}

type sharedKey interface {
	key

	Seal(cleartext []byte) (ciphertext []byte)

	Open(ciphertext []byte) (cleartext []byte, ok bool)
}
