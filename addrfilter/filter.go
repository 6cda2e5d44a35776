// Package addrfilter is the Address-Hash Filter (spec.md §4.3): an
// epoch-keyed Bloom filter over hashed peer addresses, used to detect
// receipt replay/collocation. Grounded on the teacher's dependency stack
// (golang.org/x/crypto for the password-hash primitive) plus
// bits-and-blooms/bloom/v3, the ecosystem's standard optimal-sized Bloom
// filter, for the set itself.
package addrfilter

import (
	"net"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"golang.org/x/crypto/argon2"

	"poc-challenge-manager/logging"
)

// FPRate is the target false-positive rate for the Bloom set (spec.md
// §4.3: FP_RATE = 1e-9).
const FPRate = 1e-9

// SaltBytes is the salt length fed to the password-hash primitive.
const SaltBytes = 16

// CheckResult is check()'s three-way outcome.
type CheckResult int

const (
	// Unknown means the filter could not answer: it is uninitialized, or
	// the address did not parse as IPv4+port.
	Unknown CheckResult = iota
	// Seen means the computed hash was already present (likely replay).
	Seen
	// NotSeen means the hash was absent and has now been recorded; Hash
	// carries the value the caller should stamp onto the receipt.
	NotSeen
)

// Filter is the epoch-keyed Address-Hash Filter. The zero value is
// "disabled" (every check returns Unknown) until Reinit is called.
type Filter struct {
	start         int64
	referenceHigh int64
	byteSize      int
	salt          [SaltBytes]byte
	bloom         *bloom.BloomFilter
}

// New returns a disabled filter; call Reinit once chain vars are known.
func New() *Filter {
	return &Filter{}
}

// Enabled reports whether the filter has been initialized for the current
// epoch.
func (f *Filter) Enabled() bool {
	return f.bloom != nil
}

// EpochStart returns the height the current epoch began at.
func (f *Filter) EpochStart() int64 {
	return f.start
}

// NeedsRebuild reports whether height's epoch start differs from the
// filter's current start (spec.md §4.3 step 3).
func (f *Filter) NeedsRebuild(height int64, interval int64) bool {
	if interval <= 0 {
		return false
	}
	want := epochStart(height, interval)
	return f.start != want
}

func epochStart(height, interval int64) int64 {
	start := height - (height % interval)
	if start < 1 {
		start = 1
	}
	return start
}

// Reinit discards the current Bloom set and starts a fresh one for the
// epoch beginning at height, salted with saltBlockHash (the hash of the
// block at that height). gatewayCount sizes the set per optimal(n, p).
func (f *Filter) Reinit(height int64, interval int64, gatewayCount uint, saltBlockHash []byte) {
	f.start = epochStart(height, interval)
	f.referenceHigh = height
	copy(f.salt[:], saltBlockHash)
	if gatewayCount == 0 {
		gatewayCount = 1
	}
	f.bloom = bloom.NewWithEstimates(gatewayCount, FPRate)
	logging.Info("address-hash filter reinitialized", logging.ModuleFilter,
		"epoch_start", f.start, "gateway_count", gatewayCount)
}

// SetByteSize records poc_addr_hash_byte_count, the truncation width for
// computed hashes.
func (f *Filter) SetByteSize(n int) {
	f.byteSize = n
}

// Set folds a single already-computed address hash into the Bloom set,
// used while replaying historical PoC-receipts transactions during a
// rebuild (spec.md §4.3 step 4).
func (f *Filter) Set(hash []byte) {
	if f.bloom == nil {
		return
	}
	f.bloom.Add(hash)
}

// Check implements spec.md §4.3's three-way query, used only by Receipt
// ingestion (spec.md §4.5 step 5): it both tests and inserts, since a
// receipt's address hash is the thing replay detection guards. peerAddr
// is expected in "ip:port" form; anything else yields Unknown.
func (f *Filter) Check(peerAddr string) (CheckResult, []byte) {
	if f.bloom == nil || f.byteSize <= 0 {
		return Unknown, nil
	}

	octets, ok := ipv4Octets(peerAddr)
	if !ok {
		return Unknown, nil
	}

	h := f.hash(octets)
	if f.bloom.TestAndAdd(h) {
		return Seen, h
	}
	return NotSeen, h
}

// HashOnly computes the address hash Check would, without testing or
// inserting into the Bloom set. Witness ingestion (spec.md §4.5) stamps a
// Witness with its address hash for bookkeeping but, unlike a Receipt,
// never consults or mutates the replay-detection set.
func (f *Filter) HashOnly(peerAddr string) ([]byte, bool) {
	if f.bloom == nil || f.byteSize <= 0 {
		return nil, false
	}
	octets, ok := ipv4Octets(peerAddr)
	if !ok {
		return nil, false
	}
	return f.hash(octets), true
}

// hash computes first(byte_size, pwhash(ipv4_octets, salt)) using Argon2id
// as the password-hash primitive.
func (f *Filter) hash(ipv4Octets []byte) []byte {
	full := argon2.IDKey(ipv4Octets, f.salt[:], 1, 64*1024, 1, uint32(f.byteSize))
	if len(full) > f.byteSize {
		full = full[:f.byteSize]
	}
	return full
}

func ipv4Octets(peerAddr string) ([]byte, bool) {
	host, _, err := net.SplitHostPort(peerAddr)
	if err != nil {
		return nil, false
	}
	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return nil, false
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, false
	}
	return []byte(v4), true
}

