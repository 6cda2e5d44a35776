// Package onion is the onion-packet builder (spec.md §6's "Onion builder"
// external collaborator): given the ephemeral keypair, an IV, and an
// ordered path of (hop pubkey, layer-data byte), it produces the
// ciphertext delivered to the target plus each hop's cleartext layer.
// Grounded on box-style layered authenticated encryption, the same
// per-hop sealing primitive used by onion-routing implementations in the
// retrieval pack.
package onion

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"poc-challenge-manager/pockeys"
)

// HopSpec is one (gateway, layer-data byte) pair in path order.
type HopSpec struct {
	Gateway   pockeys.GatewayPubKey
	LayerData byte
}

// Result is the onion builder's output.
type Result struct {
	Ciphertext []byte
	// Layers holds N+1 cleartext layers: Layers[0] is the IV followed by
	// the block hash, and Layers[i+1] is Layers[i] with hop i's layer-data
	// byte appended. Derivation records SHA-256(Layers[i+1]) as hop i's
	// packet hash.
	Layers [][]byte
}

// Builder builds onion packets. BoxBuilder, the implementation in this
// package, uses a single nacl/box seal; tests may substitute a fake.
type Builder interface {
	Build(keys pockeys.KeyPair, iv uint16, hops []HopSpec, blockHash []byte) (Result, error)
}

// BoxBuilder is the nacl/box-backed reference implementation. Its seal
// uses the challenge's own ephemeral key as both sender and recipient,
// since the real per-hop gateway keys are managed by the libp2p identity
// layer out of scope for this module.
type BoxBuilder struct{}

func NewBoxBuilder() *BoxBuilder { return &BoxBuilder{} }

// Build derives the layers front-to-back, each one appending the next
// hop's layer-data byte to the previous layer, and seals only the last
// layer (which carries every hop's byte) once, under a nonce derived from
// the IV and block hash. The intermediate layers are not sealed: there is
// no per-hop nesting of ciphertexts.
func (BoxBuilder) Build(keys pockeys.KeyPair, iv uint16, hops []HopSpec, blockHash []byte) (Result, error) {
	if len(hops) == 0 {
		return Result{}, fmt.Errorf("onion: empty hop list")
	}

	var recipientPub [32]byte
	copy(recipientPub[:], keys.PublicKeyBytes())
	var senderPriv [32]byte
	copy(senderPriv[:], keys.PrivateKeyBytes())

	ivBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(ivBytes, iv)

	layers := make([][]byte, len(hops)+1)
	layers[0] = append(append([]byte{}, ivBytes...), blockHash...)

	payload := layers[0]
	for i, hop := range hops {
		payload = append(append([]byte{}, payload...), hop.LayerData)
		layers[i+1] = append([]byte{}, payload...)
	}

	var nonce [24]byte
	copy(nonce[:], pockeys.SHA256(append(ivBytes, blockHash...)).Bytes()[:24])

	sealed := box.Seal(nil, layers[len(layers)-1], &nonce, &recipientPub, &senderPriv)

	return Result{Ciphertext: sealed, Layers: layers}, nil
}

// NewNonce is exposed for tests that need a fresh random nonce outside
// the deterministic path above.
func NewNonce() ([24]byte, error) {
	var n [24]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("onion: nonce: %w", err)
	}
	return n, nil
}
