package key

import (
	"crypto/subtle"

	"github.com/HondouKoSuke/ZeroTierOne/types"
	"golang.org/x/crypto/nacl/box"
)

// SharedSecret is the symmetric key protecting all traffic with one
// peer. It is derived exactly once, by NodePrivate.SharedSecret, and
// immutable afterwards.
type SharedSecret struct {
	_   types.Incomparable
	key NakedKey
}

func makeSharedSecret(priv, pub NakedKey) SharedSecret {
	var ret SharedSecret
	box.Precompute((*[32]byte)(&ret.key), (*[32]byte)(&pub), (*[32]byte)(&priv))
	return ret
}

// SharedSecretFrom restores a SharedSecret from its 32 raw bytes.
//
// This should be used only when deserializing a peer record from a
// binary layout; it performs no agreement.
func SharedSecretFrom(raw NakedKey) SharedSecret {
	return SharedSecret{key: raw}
}

// Raw returns the underlying 32 bytes, for binary serialization.
func (k SharedSecret) Raw() NakedKey {
	return k.key
}

// Equal reports whether k and other are the same key.
func (k SharedSecret) Equal(other SharedSecret) bool {
	return subtle.ConstantTimeCompare(k.key[:], other.key[:]) == 1
}

func (k SharedSecret) IsZero() bool {
	return k.Equal(SharedSecret{})
}

// Seal wraps cleartext into a NaCl box (see
// golang.org/x/crypto/nacl), using k as the shared secret and a
// random nonce.
func (k SharedSecret) Seal(cleartext []byte) (ciphertext []byte) {
	if k.IsZero() {
		panic("can't seal with zero key")
	}
	var nonce [24]byte
	rand(nonce[:])
	return box.SealAfterPrecomputation(nonce[:], cleartext, &nonce, (*[32]byte)(&k.key))
}

// Open opens the NaCl box ciphertext, which must be a value created
// by Seal, and returns the inner cleartext if ciphertext is a valid
// box using shared secret k.
func (k SharedSecret) Open(ciphertext []byte) (cleartext []byte, ok bool) {
	if k.IsZero() {
		panic("can't open with zero key")
	}
	if len(ciphertext) < 24 {
		return nil, false
	}
	nonce := (*[24]byte)(ciphertext)
	return box.OpenAfterPrecomputation(nil, ciphertext[24:], nonce, (*[32]byte)(&k.key))
}
