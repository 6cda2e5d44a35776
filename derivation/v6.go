package derivation

import (
	"sort"

	"poc-challenge-manager/ledger"
	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocerrors"
	"poc-challenge-manager/pocmodel"
)

// v6Strategy samples a bounded random hex pool instead of enumerating
// every cell (spec.md §4.4 step 4, "a bounded random sample of size
// poc_target_pool_size (v6, with duplicates removed by sort)"), and
// persists filtering decisions back into the hex index (step 6).
type v6Strategy struct{}

func (v6Strategy) Derive(req Request) (*pocmodel.LocalPoC, error) {
	onionKeyHash := req.Keys.OnionKeyHash()
	zr := NewZoneRand(onionKeyHash, req.BlockHash)
	tr := NewTargetRand(req.Keys.PrivateKeyBytes())

	vars := req.Snapshot.Vars()
	maxRetries := vars.PocTargetPoolSize
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		pool, err := req.Snapshot.RandomTargetingHexes(vars.PocTargetPoolSize, int64(seedFromHash(onionKeyHash))+int64(attempt))
		if err != nil {
			return nil, err
		}
		pool = dedupeHexes(pool)

		hex, err := inverseCDFPickHex(pool, zr)
		if err != nil {
			if err == pocerrors.ErrZoneWeightZero {
				lastErr = err
				continue
			}
			return nil, err
		}

		gateways, err := req.Snapshot.LookupGatewaysFromHex(hex.HexID)
		if err != nil {
			return nil, err
		}
		if vars.PocWitnessConsiderationLim > 0 {
			gateways = deterministicSubset(vars.PocWitnessConsiderationLim, zr, gateways)
		}

		candidates := filterCandidates(req.Snapshot, gateways, req.Challenger, vars, req.Snapshot.CurrentHeight())

		removed := diffGateways(gateways, candidates)
		if len(removed) > 0 && req.WriteCtx != nil {
			for _, g := range removed {
				_ = req.WriteCtx.RemoveGatewayFromHexIndex(hex.HexID, g)
			}
			_ = req.WriteCtx.Commit()
		}

		if len(candidates) == 0 {
			lastErr = pocerrors.ErrNoGatewaysFound
			continue
		}

		target, err := pickTarget(candidates, tr)
		if err != nil {
			lastErr = err
			continue
		}
		return finish(req, target, onionKeyHash, tr)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, pocerrors.ErrNoGatewaysFound
}

func dedupeHexes(hexes []ledger.HexEntry) []ledger.HexEntry {
	sort.Slice(hexes, func(i, j int) bool { return hexes[i].HexID < hexes[j].HexID })
	out := hexes[:0]
	var lastID uint64
	haveLast := false
	for _, h := range hexes {
		if haveLast && h.HexID == lastID {
			continue
		}
		out = append(out, h)
		lastID = h.HexID
		haveLast = true
	}
	return out
}

func diffGateways(all, kept []pockeys.GatewayPubKey) []pockeys.GatewayPubKey {
	keptSet := make(map[string]bool, len(kept))
	for _, g := range kept {
		keptSet[string(g)] = true
	}
	var removed []pockeys.GatewayPubKey
	for _, g := range all {
		if !keptSet[string(g)] {
			removed = append(removed, g)
		}
	}
	return removed
}
