// Package ledger defines the read/write surface the Challenge Manager
// needs from the chain's state machine (spec.md §6's "Ledger" external
// collaborator). The blockchain module that actually owns gateway/h3
// indexing lives outside this repo; this package is the narrow boundary
// the Manager and Derivation code against, plus an in-memory reference
// implementation for tests.
package ledger

import (
	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocmodel"
)

// GatewayMode distinguishes a gateway's capability set.
type GatewayMode int

const (
	ModeUnknown GatewayMode = iota
	ModeFull
)

// GatewayInfo is the subset of on-chain gateway state derivation needs.
type GatewayInfo struct {
	Pubkey           pockeys.GatewayPubKey
	Mode             GatewayMode
	HasLocation      bool
	HasChallengeeCap bool
	LastPocChallenge int64 // block height; 0 means "never"
}

// HexEntry pairs an H3 cell with how many gateways it contains, the unit
// of work zone selection operates over (spec.md §4.4 step 4).
type HexEntry struct {
	HexID         uint64
	GatewayCount  uint64
}

// ChainVars is the snapshot of governance variables derivation and the
// filter need (spec.md §6's "Chain variables consumed").
type ChainVars struct {
	PocAddrHashByteCount        int
	PocChallengeInterval        int64
	PocTargetPoolSize           int
	PocTargetHexParentRes       int
	PocTargetProbRandomnessWt   uint64
	PocWitnessConsiderationLim  int
	Hip17InteractivityBlocks    int64
	PocActivityFilterEnabled    bool
	PocPerHopMaxWitnesses       int
	PocVersion                  int
}

// Snapshot is a read-only, versioned view of ledger state, immutable for
// the duration of a single derivation call (spec.md §4.4, §5's
// "off-actor work").
type Snapshot interface {
	// CurrentHeight is the height this snapshot was taken at.
	CurrentHeight() int64

	// Hexes returns every populated H3 cell (derivation v4).
	Hexes() ([]HexEntry, error)
	// Hex returns a single cell's gateway count.
	Hex(hexID uint64) (HexEntry, error)
	// RandomTargetingHexes returns a bounded, possibly-duplicated random
	// sample of cells, for derivation v6.
	RandomTargetingHexes(poolSize int, seed int64) ([]HexEntry, error)
	// LookupGatewaysFromHex lists gateway pubkeys registered in hexID.
	LookupGatewaysFromHex(hexID uint64) ([]pockeys.GatewayPubKey, error)

	// FindGatewayInfo looks up a gateway's current on-chain state.
	FindGatewayInfo(pubkey pockeys.GatewayPubKey) (GatewayInfo, bool, error)

	// Vars returns the chain-var snapshot in effect.
	Vars() ChainVars

	// GatewayCount is the total registered gateway population, used to
	// size the Address-Hash Filter's Bloom set.
	GatewayCount() (uint64, error)
}

// WriteContext is a scratch+commit write surface (spec.md §6): mutations
// accumulate against a ledger snapshot and are committed atomically.
type WriteContext interface {
	SavePublicPoC(p pocmodel.PublicPoC) error
	DeletePublicPoC(hash pockeys.Hash) error
	// RemoveGatewayFromHexIndex removes gateway from hexID's index, used
	// by derivation v6 to persist filtering decisions (spec.md §4.4 step
	// 6).
	RemoveGatewayFromHexIndex(hexID uint64, gateway pockeys.GatewayPubKey) error
	// ActivePublicPoCs lists every public PoC record, for GC scans.
	ActivePublicPoCs() ([]pocmodel.PublicPoC, error)
	// Commit finalizes all accumulated writes.
	Commit() error
}

// Ledger is the full read/write handle the Manager is constructed with.
type Ledger interface {
	CurrentHeight() (int64, error)
	Snapshot() (Snapshot, error)
	NewWriteContext() (WriteContext, error)

	// BlockHash returns the hash of the block at height, used to look up
	// the Address-Hash Filter's salt at the epoch start.
	BlockHash(height int64) ([]byte, bool, error)

	// AddrHashesSince returns every address hash recorded on-chain by a
	// PoC-receipts transaction at a height >= since, for folding into a
	// freshly rebuilt Address-Hash Filter (spec.md §4.3 step 4: "fold the
	// chain from the latest block back to the block at start").
	AddrHashesSince(since int64) ([][]byte, error)
}
