// Package derivation implements Target/Path Derivation (spec.md §4.4):
// the deterministic function mapping a challenger's ephemeral keypair,
// the block that confirmed it, and a ledger snapshot to a target gateway,
// path, and onion packet. Two chain-var-gated variants exist (v4, v6);
// common.go holds the shared PRNG-seeding and sampling machinery both
// delegate to, grounded on the teacher's sampleLeafIndices — a SHA-256
// seeded math/rand generator driving deterministic, reproducible
// selection from a weighted population.
package derivation

import (
	"fmt"
	"math/rand"
	"sort"

	"poc-challenge-manager/ledger"
	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocerrors"
)

// Rand is a seeded, reproducible PRNG source. Wrapping *rand.Rand keeps
// every derivation call's randomness traceable to one of the two
// documented seeds (spec.md §4.4 steps 2-3).
type Rand struct {
	r *rand.Rand
}

// seedFromHash turns a SHA-256 digest into math/rand's int64 seed the
// same way the teacher's sampleLeafIndices does: take the first 8 bytes
// big-endian.
func seedFromHash(h pockeys.Hash) int64 {
	var seed int64
	for _, b := range h.Bytes()[:8] {
		seed = (seed << 8) | int64(b)
	}
	if seed < 0 {
		seed = -seed
	}
	return seed
}

// NewZoneRand seeds from E = onion_key_hash ‖ block_hash (spec.md §4.4
// step 2), public-reproducible by any observer.
func NewZoneRand(onionKeyHash pockeys.Hash, blockHash []byte) *Rand {
	e := append(append([]byte{}, onionKeyHash.Bytes()...), blockHash...)
	h := pockeys.SHA256(e)
	return &Rand{r: rand.New(rand.NewSource(seedFromHash(h)))}
}

// NewTargetRand seeds from SHA-256(private_key_bytes) (spec.md §4.4 step
// 3), requiring the secret and thus unreproducible by non-owners.
func NewTargetRand(privateKeyBytes []byte) *Rand {
	h := pockeys.SHA256(privateKeyBytes)
	return &Rand{r: rand.New(rand.NewSource(seedFromHash(h)))}
}

// Float64 draws a uniform value in [0, 1).
func (z *Rand) Float64() float64 { return z.r.Float64() }

// Intn draws a uniform value in [0, n).
func (z *Rand) Intn(n int) int { return z.r.Intn(n) }

// inverseCDFPickHex implements spec.md §4.4 step 4's weighted draw:
// sort by hex ID for determinism, then walk the cumulative-weight CDF
// against a uniform draw.
func inverseCDFPickHex(hexes []ledger.HexEntry, zr *Rand) (ledger.HexEntry, error) {
	if len(hexes) == 0 {
		return ledger.HexEntry{}, pocerrors.ErrEmptyHexList
	}
	sorted := make([]ledger.HexEntry, len(hexes))
	copy(sorted, hexes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].HexID < sorted[j].HexID })

	var total uint64
	for _, h := range sorted {
		total += h.GatewayCount
	}
	if total == 0 {
		return ledger.HexEntry{}, pocerrors.ErrZoneWeightZero
	}

	draw := zr.Float64() * float64(total)
	var cum uint64
	for _, h := range sorted {
		cum += h.GatewayCount
		if draw < float64(cum) {
			if h.GatewayCount == 0 {
				return ledger.HexEntry{}, pocerrors.ErrZoneWeightZero
			}
			return h, nil
		}
	}
	return sorted[len(sorted)-1], nil
}

// filterCandidates removes the challenger, non-challengee-capable
// gateways, and (if enabled) gateways inactive past hip17InteractivityBlocks
// (spec.md §4.4 step 6).
func filterCandidates(snap ledger.Snapshot, candidates []pockeys.GatewayPubKey, challenger pockeys.GatewayPubKey, vars ledger.ChainVars, currentHeight int64) []pockeys.GatewayPubKey {
	out := make([]pockeys.GatewayPubKey, 0, len(candidates))
	for _, c := range candidates {
		if string(c) == string(challenger) {
			continue
		}
		info, ok, err := snap.FindGatewayInfo(c)
		if err != nil || !ok || !info.HasChallengeeCap {
			continue
		}
		if vars.PocActivityFilterEnabled {
			if info.LastPocChallenge == 0 || currentHeight-info.LastPocChallenge > vars.Hip17InteractivityBlocks {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i]) < string(out[j]) })
	return out
}

// deterministicSubset bounds candidates to at most limit entries, drawn
// via tr without replacement, preserving determinism by sorting first.
func deterministicSubset(limit int, tr *Rand, candidates []pockeys.GatewayPubKey) []pockeys.GatewayPubKey {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	sorted := make([]pockeys.GatewayPubKey, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return string(sorted[i]) < string(sorted[j]) })

	picked := make([]pockeys.GatewayPubKey, 0, limit)
	remaining := append([]pockeys.GatewayPubKey{}, sorted...)
	for len(picked) < limit && len(remaining) > 0 {
		idx := tr.Intn(len(remaining))
		picked = append(picked, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	sort.Slice(picked, func(i, j int) bool { return string(picked[i]) < string(picked[j]) })
	return picked
}

// pickTarget assigns every survivor identical weight (spec.md §4.4 step
// 8: prob_randomness_wt is uniform across candidates) and inverse-CDF
// selects one, sorted by pubkey for determinism.
func pickTarget(candidates []pockeys.GatewayPubKey, tr *Rand) (pockeys.GatewayPubKey, error) {
	if len(candidates) == 0 {
		return nil, pocerrors.ErrNoGatewaysFound
	}
	sorted := make([]pockeys.GatewayPubKey, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return string(sorted[i]) < string(sorted[j]) })
	idx := tr.Intn(len(sorted))
	return sorted[idx], nil
}

// layerData derives N+1 hash fragments from E via a receipts-v1-style
// secret-hash construction (spec.md §4.4 step 10): the first 16 bits
// little-endian are the onion IV, the remaining N bytes are per-hop
// layer data.
func layerData(onionKeyHash pockeys.Hash, blockHash []byte, n int) (iv uint16, layers []byte, err error) {
	if n <= 0 {
		return 0, nil, fmt.Errorf("derivation: path length must be positive, got %d", n)
	}
	e := append(append([]byte{}, onionKeyHash.Bytes()...), blockHash...)

	need := 2 + n
	out := make([]byte, 0, need)
	counter := byte(0)
	for len(out) < need {
		digest := pockeys.SHA256(append(append([]byte{}, e...), counter))
		out = append(out, digest.Bytes()...)
		counter++
	}
	out = out[:need]

	iv = uint16(out[0]) | uint16(out[1])<<8
	return iv, out[2:], nil
}
