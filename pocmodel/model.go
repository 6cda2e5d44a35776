// Package pocmodel defines the durable challenge record (spec.md §3's
// LocalPoC) and its satellite types, shared by derivation, pocstore, and
// manager so none of them need to import each other for the data shape.
package pocmodel

import (
	"encoding/json"
	"fmt"

	"poc-challenge-manager/pockeys"
)

// Challengee is one hop along the challenge path: index i in a LocalPoC's
// Challengees is hop i, with LayerData the cleartext byte this hop's
// receipt must echo back.
type Challengee struct {
	Gateway   pockeys.GatewayPubKey `json:"gateway"`
	LayerData []byte                `json:"layer_data"`
}

// PacketHashEntry records, for hop i, the downstream witness hash that hop
// is expected to report.
type PacketHashEntry struct {
	Gateway    pockeys.GatewayPubKey `json:"gateway"`
	PacketHash pockeys.Hash          `json:"packet_hash"`
}

// Receipt is a challengee's self-report that it received and forwarded its
// layer of the onion.
type Receipt struct {
	PeerID      string `json:"peer_id"`
	LayerData   []byte `json:"layer_data"`
	HasAddrHash bool   `json:"has_addr_hash"`
	AddrHash    []byte `json:"addr_hash,omitempty"`
}

// Witness is a third party's report that it observed a given hop's packet
// pass through the network.
type Witness struct {
	PeerID   string                `json:"peer_id"`
	Gateway  pockeys.GatewayPubKey `json:"gateway"`
	PeerAddr string                `json:"peer_addr"`
	AddrHash []byte                `json:"addr_hash,omitempty"`
}

// LocalPoC is the durable, single-writer challenge record (spec.md §3).
type LocalPoC struct {
	OnionKeyHash pockeys.Hash          `json:"onion_key_hash"`
	BlockHash    []byte                `json:"block_hash"`
	StartHeight  int64                 `json:"start_height"`
	Keys         pockeys.KeyPair       `json:"-"`
	SecretBytes  []byte                `json:"secret"`
	Target       pockeys.GatewayPubKey `json:"target"`
	Onion        []byte                `json:"onion"`

	Challengees  []Challengee      `json:"challengees"`
	PacketHashes []PacketHashEntry `json:"packet_hashes"`

	// Receipts is responses keyed by challengee pubkey (hex), one per hop.
	Receipts map[string]Receipt `json:"receipts"`
	// Witnesses is responses keyed by packet-hash-of-hop (hex), a bounded
	// list per hop.
	Witnesses map[string][]Witness `json:"witnesses"`
}

// NewLocalPoC builds an empty-responses LocalPoC satisfying the
// len(challengees) == len(packet_hashes) invariant at construction time.
func NewLocalPoC(onionKeyHash pockeys.Hash, blockHash []byte, startHeight int64, keys pockeys.KeyPair, secret []byte, target pockeys.GatewayPubKey, onion []byte, challengees []Challengee, packetHashes []PacketHashEntry) (*LocalPoC, error) {
	if len(challengees) != len(packetHashes) {
		return nil, fmt.Errorf("pocmodel: len(challengees)=%d != len(packet_hashes)=%d", len(challengees), len(packetHashes))
	}
	if len(challengees) == 0 {
		return nil, fmt.Errorf("pocmodel: challengees must not be empty")
	}
	if string(target) != string(challengees[0].Gateway) {
		return nil, fmt.Errorf("pocmodel: target must equal challengees[0].gateway")
	}
	return &LocalPoC{
		OnionKeyHash: onionKeyHash,
		BlockHash:    blockHash,
		StartHeight:  startHeight,
		Keys:         keys,
		SecretBytes:  secret,
		Target:       target,
		Onion:        onion,
		Challengees:  challengees,
		PacketHashes: packetHashes,
		Receipts:     make(map[string]Receipt),
		Witnesses:    make(map[string][]Witness),
	}, nil
}

// PacketHashFor returns the expected witness hash for gateway's hop, if
// gateway is on the path.
func (p *LocalPoC) PacketHashFor(gateway pockeys.GatewayPubKey) (pockeys.Hash, bool) {
	for _, e := range p.PacketHashes {
		if string(e.Gateway) == string(gateway) {
			return e.PacketHash, true
		}
	}
	return pockeys.Hash{}, false
}

// IsFirstHop reports whether gateway is the path's first hop (the target).
func (p *LocalPoC) IsFirstHop(gateway pockeys.GatewayPubKey) bool {
	return len(p.Challengees) > 0 && string(p.Challengees[0].Gateway) == string(gateway)
}

// currentEncodingVersion is bumped whenever the wire shape of wireLocalPoC
// changes incompatibly; see Encode/Decode below.
const currentEncodingVersion byte = 1

type wireLocalPoC struct {
	OnionKeyHash    []byte               `json:"onion_key_hash"`
	BlockHash       []byte               `json:"block_hash"`
	StartHeight     int64                `json:"start_height"`
	PrivateKeyBytes []byte               `json:"private_key_bytes"`
	SecretBytes     []byte               `json:"secret"`
	Target          []byte               `json:"target"`
	Onion           []byte               `json:"onion"`
	Challengees     []Challengee         `json:"challengees"`
	PacketHashes    []PacketHashEntry    `json:"packet_hashes"`
	Receipts        map[string]Receipt   `json:"receipts"`
	Witnesses       map[string][]Witness `json:"witnesses"`
}

// Encode serializes p as a version byte followed by a JSON payload. The
// version byte lets the schema evolve without breaking records already on
// disk (spec.md §4.2).
func Encode(p *LocalPoC) ([]byte, error) {
	w := wireLocalPoC{
		OnionKeyHash:    p.OnionKeyHash.Bytes(),
		BlockHash:       p.BlockHash,
		StartHeight:     p.StartHeight,
		PrivateKeyBytes: p.Keys.PrivateKeyBytes(),
		SecretBytes:     p.SecretBytes,
		Target:          p.Target,
		Onion:           p.Onion,
		Challengees:     p.Challengees,
		PacketHashes:    p.PacketHashes,
		Receipts:        p.Receipts,
		Witnesses:       p.Witnesses,
	}
	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("pocmodel: encode: %w", err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, currentEncodingVersion)
	out = append(out, body...)
	return out, nil
}

// Decode is Encode's inverse.
func Decode(b []byte) (*LocalPoC, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("pocmodel: decode: empty record")
	}
	version, body := b[0], b[1:]
	if version != currentEncodingVersion {
		return nil, fmt.Errorf("pocmodel: decode: unsupported version %d", version)
	}

	var w wireLocalPoC
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("pocmodel: decode: %w", err)
	}

	onionKeyHash, err := pockeys.HashFromBytes(w.OnionKeyHash)
	if err != nil {
		return nil, fmt.Errorf("pocmodel: decode: %w", err)
	}
	keys, err := pockeys.KeyPairFromPrivateBytes(w.PrivateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("pocmodel: decode: %w", err)
	}

	receipts := w.Receipts
	if receipts == nil {
		receipts = make(map[string]Receipt)
	}
	witnesses := w.Witnesses
	if witnesses == nil {
		witnesses = make(map[string][]Witness)
	}

	return &LocalPoC{
		OnionKeyHash: onionKeyHash,
		BlockHash:    w.BlockHash,
		StartHeight:  w.StartHeight,
		Keys:         keys,
		SecretBytes:  w.SecretBytes,
		Target:       w.Target,
		Onion:        w.Onion,
		Challengees:  w.Challengees,
		PacketHashes: w.PacketHashes,
		Receipts:     receipts,
		Witnesses:    witnesses,
	}, nil
}

// PublicPoC is the public PoC record kept in the ledger (spec.md §3),
// written unconditionally for every ephemeral key seen in a block.
type PublicPoC struct {
	OnionKeyHash   pockeys.Hash `json:"onion_key_hash"`
	ChallengerAddr string       `json:"challenger_addr"`
	BlockHash      []byte       `json:"block_hash"`
	StartHeight    int64        `json:"start_height"`
}
