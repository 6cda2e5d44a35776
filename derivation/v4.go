package derivation

import (
	"poc-challenge-manager/pocerrors"
	"poc-challenge-manager/pocmodel"
)

// v4Strategy enumerates all populated hex cells (spec.md §4.4 step 4,
// "all populated hex cells (v4)").
type v4Strategy struct{}

func (v4Strategy) Derive(req Request) (*pocmodel.LocalPoC, error) {
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
		hexes, err := req.Snapshot.Hexes()
		if err != nil {
			return nil, err
		}
		hex, err := inverseCDFPickHex(hexes, zr)
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
