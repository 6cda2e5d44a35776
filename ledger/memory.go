package ledger

import (
	"math/rand"
	"sort"
	"sync"

	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocmodel"
)

// MemLedger is an in-memory Ledger, used by tests and by standalone
// operation (e.g. devnets) where no real chain client is wired up.
type MemLedger struct {
	mu sync.RWMutex

	height     int64
	blockHashes map[int64][]byte
	vars       ChainVars

	gateways map[string]GatewayInfo
	hexes    map[uint64][]pockeys.GatewayPubKey

	publicPoCs map[pockeys.Hash]pocmodel.PublicPoC

	receiptAddrHashes []receiptAddrHashAt
}

type receiptAddrHashAt struct {
	height int64
	hash   []byte
}

// NewMemLedger returns an empty in-memory ledger with vars set.
func NewMemLedger(vars ChainVars) *MemLedger {
	return &MemLedger{
		blockHashes: make(map[int64][]byte),
		vars:        vars,
		gateways:    make(map[string]GatewayInfo),
		hexes:       make(map[uint64][]pockeys.GatewayPubKey),
		publicPoCs:  make(map[pockeys.Hash]pocmodel.PublicPoC),
	}
}

// SetBlock records height's hash and advances CurrentHeight if higher.
func (m *MemLedger) SetBlock(height int64, hash []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockHashes[height] = hash
	if height > m.height {
		m.height = height
	}
}

// PutGateway registers or updates a gateway and its hex membership.
func (m *MemLedger) PutGateway(info GatewayInfo, hexID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateways[string(info.Pubkey)] = info

	list := m.hexes[hexID]
	for _, g := range list {
		if string(g) == string(info.Pubkey) {
			return
		}
	}
	m.hexes[hexID] = append(list, info.Pubkey)
}

func (m *MemLedger) CurrentHeight() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.height, nil
}

func (m *MemLedger) BlockHash(height int64) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.blockHashes[height]
	return h, ok, nil
}

// RecordReceiptAddrHash seeds a PoC-receipts transaction's address hash at
// height, standing in for the real chain's tx index (out of scope for
// this repo) so AddrHashesSince has something to fold.
func (m *MemLedger) RecordReceiptAddrHash(height int64, hash []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiptAddrHashes = append(m.receiptAddrHashes, receiptAddrHashAt{height: height, hash: hash})
}

// AddrHashesSince implements Ledger.AddrHashesSince by scanning the
// seeded receipt history; a real implementation would read the chain's
// PoC-receipts transaction index instead.
func (m *MemLedger) AddrHashesSince(since int64) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, 0, len(m.receiptAddrHashes))
	for _, r := range m.receiptAddrHashes {
		if r.height >= since {
			out = append(out, r.hash)
		}
	}
	return out, nil
}

func (m *MemLedger) Snapshot() (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hexes := make(map[uint64][]pockeys.GatewayPubKey, len(m.hexes))
	for k, v := range m.hexes {
		cp := make([]pockeys.GatewayPubKey, len(v))
		copy(cp, v)
		hexes[k] = cp
	}
	gateways := make(map[string]GatewayInfo, len(m.gateways))
	for k, v := range m.gateways {
		gateways[k] = v
	}

	return &memSnapshot{
		height:   m.height,
		vars:     m.vars,
		hexes:    hexes,
		gateways: gateways,
	}, nil
}

func (m *MemLedger) NewWriteContext() (WriteContext, error) {
	return &memWriteCtx{ledger: m}, nil
}

type memSnapshot struct {
	height   int64
	vars     ChainVars
	hexes    map[uint64][]pockeys.GatewayPubKey
	gateways map[string]GatewayInfo
}

func (s *memSnapshot) CurrentHeight() int64 { return s.height }

func (s *memSnapshot) Vars() ChainVars { return s.vars }

func (s *memSnapshot) Hexes() ([]HexEntry, error) {
	out := make([]HexEntry, 0, len(s.hexes))
	for id, gws := range s.hexes {
		out = append(out, HexEntry{HexID: id, GatewayCount: uint64(len(gws))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HexID < out[j].HexID })
	return out, nil
}

func (s *memSnapshot) Hex(hexID uint64) (HexEntry, error) {
	gws, ok := s.hexes[hexID]
	if !ok {
		return HexEntry{HexID: hexID}, nil
	}
	return HexEntry{HexID: hexID, GatewayCount: uint64(len(gws))}, nil
}

func (s *memSnapshot) RandomTargetingHexes(poolSize int, seed int64) ([]HexEntry, error) {
	all, _ := s.Hexes()
	if len(all) == 0 || poolSize <= 0 {
		return nil, nil
	}
	r := rand.New(rand.NewSource(seed))
	seen := make(map[uint64]bool, poolSize)
	out := make([]HexEntry, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		pick := all[r.Intn(len(all))]
		if seen[pick.HexID] {
			continue
		}
		seen[pick.HexID] = true
		out = append(out, pick)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HexID < out[j].HexID })
	return out, nil
}

func (s *memSnapshot) LookupGatewaysFromHex(hexID uint64) ([]pockeys.GatewayPubKey, error) {
	gws := s.hexes[hexID]
	out := make([]pockeys.GatewayPubKey, len(gws))
	copy(out, gws)
	sort.Slice(out, func(i, j int) bool { return string(out[i]) < string(out[j]) })
	return out, nil
}

func (s *memSnapshot) FindGatewayInfo(pubkey pockeys.GatewayPubKey) (GatewayInfo, bool, error) {
	info, ok := s.gateways[string(pubkey)]
	return info, ok, nil
}

func (s *memSnapshot) GatewayCount() (uint64, error) {
	return uint64(len(s.gateways)), nil
}

type memWriteCtx struct {
	ledger *MemLedger

	saves     []pocmodel.PublicPoC
	deletes   []pockeys.Hash
	hexRemove []struct {
		hexID   uint64
		gateway pockeys.GatewayPubKey
	}
}

func (w *memWriteCtx) SavePublicPoC(p pocmodel.PublicPoC) error {
	w.saves = append(w.saves, p)
	return nil
}

func (w *memWriteCtx) DeletePublicPoC(hash pockeys.Hash) error {
	w.deletes = append(w.deletes, hash)
	return nil
}

func (w *memWriteCtx) RemoveGatewayFromHexIndex(hexID uint64, gateway pockeys.GatewayPubKey) error {
	w.hexRemove = append(w.hexRemove, struct {
		hexID   uint64
		gateway pockeys.GatewayPubKey
	}{hexID, gateway})
	return nil
}

func (w *memWriteCtx) ActivePublicPoCs() ([]pocmodel.PublicPoC, error) {
	w.ledger.mu.RLock()
	defer w.ledger.mu.RUnlock()
	out := make([]pocmodel.PublicPoC, 0, len(w.ledger.publicPoCs))
	for _, p := range w.ledger.publicPoCs {
		out = append(out, p)
	}
	return out, nil
}

func (w *memWriteCtx) Commit() error {
	w.ledger.mu.Lock()
	defer w.ledger.mu.Unlock()

	for _, p := range w.saves {
		w.ledger.publicPoCs[p.OnionKeyHash] = p
	}
	for _, h := range w.deletes {
		delete(w.ledger.publicPoCs, h)
	}
	for _, rm := range w.hexRemove {
		list := w.ledger.hexes[rm.hexID]
		for i, g := range list {
			if string(g) == string(rm.gateway) {
				w.ledger.hexes[rm.hexID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return nil
}
