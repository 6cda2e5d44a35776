// Package pockeys defines the ephemeral PoC keypair (spec.md §3) and its
// stable identifier, the onion-key-hash.
package pockeys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Hash is a SHA-256 digest, used both as the onion-key-hash and as the
// per-hop packet hash recorded in a LocalPoC's packet_hashes list.
type Hash [32]byte

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("pockeys: hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// KeyPair is the ephemeral PoC keypair: a secp256k1 private scalar and its
// public point, serialized in compressed form wherever a wire/storage
// representation is needed.
type KeyPair struct {
	Private *secp256k1.PrivateKey
	Public  *secp256k1.PublicKey
}

// Generate creates a fresh ephemeral keypair. Upstream key generation (which
// batch of keys gets proposed on-chain) is out of scope for this module; this
// exists so tests and the key cache's producer side have a concrete source.
func Generate() (KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate secp256k1 keypair: %w", err)
	}
	return KeyPair{Private: priv, Public: priv.PubKey()}, nil
}

// PublicKeyBytes returns the canonical (compressed, 33-byte) encoding of the
// public point, the "canonical binary encoding" spec.md §3 requires for
// hashing.
func (kp KeyPair) PublicKeyBytes() []byte {
	return kp.Public.SerializeCompressed()
}

// PrivateKeyBytes returns the raw 32-byte scalar.
func (kp KeyPair) PrivateKeyBytes() []byte {
	return kp.Private.Serialize()
}

// OnionKeyHash is SHA-256 of the canonical public key encoding — the
// challenge's primary identifier everywhere in the system.
func (kp KeyPair) OnionKeyHash() Hash {
	return sha256.Sum256(kp.PublicKeyBytes())
}

// KeyPairFromPrivateBytes reconstructs a KeyPair from a serialized private
// scalar, used when loading a cached or stored keypair back off disk.
func KeyPairFromPrivateBytes(b []byte) (KeyPair, error) {
	priv := secp256k1.PrivKeyFromBytes(b)
	return KeyPair{Private: priv, Public: priv.PubKey()}, nil
}

// GatewayPubKey identifies a gateway (or any other PoC participant) by its
// compressed secp256k1 public key encoding, hex-ish comparable and sortable
// the way derivation's lexicographic ordering requires.
type GatewayPubKey []byte

func (g GatewayPubKey) String() string { return hex.EncodeToString(g) }

// SHA256 is the single hash primitive this module uses; named as a function
// so call sites read like the spec ("SHA-256 of the canonical encoding")
// rather than reaching for crypto/sha256 ad hoc at every call site.
func SHA256(b []byte) Hash {
	return sha256.Sum256(b)
}
