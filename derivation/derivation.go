package derivation

import (
	"fmt"

	"poc-challenge-manager/ledger"
	"poc-challenge-manager/onion"
	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocerrors"
	"poc-challenge-manager/pocmodel"
)

// Strategy is the common trait the two chain-var-gated derivation
// variants implement (spec.md §9: "model as a tagged variant with a
// common trait derive(challenger, keys, ledger, vars)").
type Strategy interface {
	Derive(req Request) (*pocmodel.LocalPoC, error)
}

// Request bundles derivation's inputs, all immutable for the call's
// duration (spec.md §5: "the ledger snapshot and the chain-vars map it
// receives are immutable").
type Request struct {
	Challenger  pockeys.GatewayPubKey
	Keys        pockeys.KeyPair
	BlockHash   []byte
	StartHeight int64
	Snapshot    ledger.Snapshot
	WriteCtx    ledger.WriteContext
	Builder     onion.Builder
}

// Select returns the strategy chain var poc_version dispatches to
// (spec.md §9). v6 and later use the random-sampled hex pool with
// hex-index GC; everything before uses the exhaustive v4 enumeration.
func Select(vars ledger.ChainVars) Strategy {
	if vars.PocVersion >= 6 {
		return v6Strategy{}
	}
	return v4Strategy{}
}

// buildPath stands in for the path builder (an external collaborator per
// spec.md §6) and returns the ordered hop list starting at target.
func buildPath(snap ledger.Snapshot, target pockeys.GatewayPubKey, tr *Rand, vars ledger.ChainVars) ([]pockeys.GatewayPubKey, error) {
	// A single-hop path: the target is hop 0 and no further hops are
	// added; snap, tr and vars are not consulted.
	return []pockeys.GatewayPubKey{target}, nil
}

// finish runs the shared tail of both strategies: layer-data derivation,
// onion build, and LocalPoC assembly (spec.md §4.4 steps 9-12).
func finish(req Request, target pockeys.GatewayPubKey, onionKeyHash pockeys.Hash, tr *Rand) (*pocmodel.LocalPoC, error) {
	path, err := buildPath(req.Snapshot, target, tr, req.Snapshot.Vars())
	if err != nil {
		return nil, fmt.Errorf("derivation: build path: %w", err)
	}
	if len(path) == 0 {
		return nil, pocerrors.ErrNoGatewaysFound
	}

	iv, layerBytes, err := layerData(onionKeyHash, req.BlockHash, len(path))
	if err != nil {
		return nil, fmt.Errorf("derivation: layer data: %w", err)
	}

	hops := make([]onion.HopSpec, len(path))
	challengees := make([]pocmodel.Challengee, len(path))
	for i, gw := range path {
		hops[i] = onion.HopSpec{Gateway: gw, LayerData: layerBytes[i]}
		challengees[i] = pocmodel.Challengee{Gateway: gw, LayerData: []byte{layerBytes[i]}}
	}

	built, err := req.Builder.Build(req.Keys, iv, hops, req.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("derivation: onion build: %w", err)
	}
	if len(built.Layers) != len(path)+1 {
		return nil, fmt.Errorf("derivation: onion builder returned %d layers, want %d", len(built.Layers), len(path)+1)
	}

	packetHashes := make([]pocmodel.PacketHashEntry, len(path))
	for i, gw := range path {
		packetHashes[i] = pocmodel.PacketHashEntry{
			Gateway:    gw,
			PacketHash: pockeys.SHA256(built.Layers[i+1]),
		}
	}

	secret := req.Keys.PrivateKeyBytes()

	return pocmodel.NewLocalPoC(
		onionKeyHash,
		req.BlockHash,
		req.StartHeight,
		req.Keys,
		secret,
		target,
		built.Ciphertext,
		challengees,
		packetHashes,
	)
}
