package key

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HondouKoSuke/ZeroTierOne/types"
	"go4.org/mem"
	"golang.org/x/crypto/curve25519"
)

type NodePrivate struct {
	_   types.Incomparable
	key NakedKey
}

// NewNode creates and returns a new node private key.
func NewNode() NodePrivate {
	var ret NodePrivate
	rand(ret.key[:])
	clamp25519Private(ret.key[:])
	return ret
}

func NodePrivateFrom(key NakedKey) NodePrivate {
	return NodePrivate{key: key}
}

// Equal reports whether k and other are the same key.
func (n NodePrivate) Equal(other NodePrivate) bool {
	return subtle.ConstantTimeCompare(n.key[:], other.key[:]) == 1
}

// IsZero reports whether k is the zero value.
func (n NodePrivate) IsZero() bool {
	return n.Equal(NodePrivate{})
}

func (n NodePrivate) Public() NodePublic {
	if n.IsZero() {
		panic("can't take the public key of a zero NodePrivate")
	}

	var ret NodePublic
	curve25519.ScalarBaseMult((*[32]byte)(&ret), (*[32]byte)(&n.key))
	return ret
}

// SharedSecret performs key agreement between n and the remote public
// key p, and returns the resulting 32-byte symmetric secret.
//
// Agreement fails, with an error, when either key is zero, or when p
// is a low-order point whose shared product is all zeros. Callers
// must not retain any partial result on error.
func (n NodePrivate) SharedSecret(p NodePublic) (SharedSecret, error) {
	if n.IsZero() || p.IsZero() {
		return SharedSecret{}, fmt.Errorf("key agreement with zero key")
	}

	// X25519 rejects the degenerate all-zero product that Precompute
	// would silently accept.
	if _, err := curve25519.X25519(n.key[:], p[:]); err != nil {
		return SharedSecret{}, fmt.Errorf("key agreement with %s: %w", p.Debug(), err)
	}

	return makeSharedSecret(n.key, NakedKey(p)), nil
}

// AppendText implements encoding.TextAppender.
func (n NodePrivate) AppendText(b []byte) ([]byte, error) {
	return appendHexKey(b, nodePrivateHexPrefix, n.key[:]), nil
}

// MarshalText implements encoding.TextMarshaler.
func (n NodePrivate) MarshalText() ([]byte, error) {
	return n.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NodePrivate) UnmarshalText(b []byte) error {
	return parseHex(n.key[:], mem.B(b), mem.S(nodePrivateHexPrefix))
}

func UnmarshalPrivate(s string) (*NodePrivate, error) {
	if !strings.HasSuffix(s, "\"") && !strings.HasPrefix(s, "\"") {
		s = fmt.Sprintf("\"%s\"", s)
	}

	priv := new(NodePrivate)

	if err := json.Unmarshal([]byte(s), priv); err != nil {
		return nil, err
	}

	return priv, nil
}

func (n NodePrivate) Marshal() string {
	b, _ := json.Marshal(n)
	return string(b)
}
