// Package manager implements the Challenge Manager (spec.md §4.5): the
// single-writer actor that turns block events into live PoC challenges,
// collects receipts and witnesses, enforces TTLs, and submits the final
// transaction. Grounded on the teacher's commit_worker.go: a single
// goroutine draining a command channel, serializing every state mutation
// without explicit locking around the Store or Filter.
package manager

import (
	"context"
	"fmt"
	"time"

	"poc-challenge-manager/addrfilter"
	"poc-challenge-manager/blockevents"
	"poc-challenge-manager/derivation"
	"poc-challenge-manager/keycache"
	"poc-challenge-manager/ledger"
	"poc-challenge-manager/logging"
	"poc-challenge-manager/onion"
	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocerrors"
	"poc-challenge-manager/pocmodel"
	"poc-challenge-manager/pocstore"
	"poc-challenge-manager/txsubmit"
)

// PocTimeout is the challenge TTL in blocks (spec.md §6's constants).
const PocTimeout = 4

// PerHopMaxWitnessesDefault is used when a ledger snapshot's chain vars
// don't set poc_per_hop_max_witnesses.
const PerHopMaxWitnessesDefault = 5

// Config holds the GC cadences and bootstrap backoff spec.md §6 names as
// constants, overridable via config.GCConfig.
type Config struct {
	KeyCacheGCEveryBlocks  int64
	PublicPocGCEveryBlocks int64
	BootstrapRetryBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		KeyCacheGCEveryBlocks:  50,
		PublicPocGCEveryBlocks: 100,
		BootstrapRetryBackoff:  500 * time.Millisecond,
	}
}

// Manager is the single logical actor owning PoC challenge lifecycle for
// this validator.
type Manager struct {
	cfg Config

	keyCache *keycache.Cache
	store    *pocstore.Store
	filter   *addrfilter.Filter
	chain    ledger.Ledger
	builder  onion.Builder
	submit   txsubmit.Submitter

	selfAddr string

	cmds chan func()
	done chan struct{}
}

// New wires the five components into one actor.
func New(cfg Config, keyCache *keycache.Cache, store *pocstore.Store, chain ledger.Ledger, builder onion.Builder, submit txsubmit.Submitter, selfAddr string) *Manager {
	return &Manager{
		cfg:      cfg,
		keyCache: keyCache,
		store:    store,
		filter:   addrfilter.New(),
		chain:    chain,
		builder:  builder,
		submit:   submit,
		selfAddr: selfAddr,
		cmds:     make(chan func(), 256),
		done:     make(chan struct{}),
	}
}

// Run is the actor loop: every closure enqueued via do() executes here,
// one at a time, so Store and Filter mutation never races (spec.md §5).
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-m.cmds:
			fn()
		}
	}
}

// Wait blocks until Run has returned.
func (m *Manager) Wait() { <-m.done }

// do enqueues fn on the actor loop and blocks until it has run, giving
// callers synchronous request/response semantics (check_target,
// active_pocs) while async reports (receipt, witness) use doAsync.
func (m *Manager) do(fn func()) {
	done := make(chan struct{})
	m.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

// doAsync enqueues fn without waiting, for fire-and-forget ingestion.
func (m *Manager) doAsync(fn func()) {
	select {
	case m.cmds <- fn:
	default:
		logging.Warn("manager command queue full, dropping", logging.ModulePoC)
	}
}

// Bootstrap attaches to the block event source, retrying every
// BootstrapRetryBackoff until the chain is available (spec.md §4.5
// "init").
func (m *Manager) Bootstrap(ctx context.Context, source *blockevents.Source) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := source.Subscribe(ctx, m.handleBlock)
		if err == nil || ctx.Err() != nil {
			return
		}
		logging.Warn("bootstrap: chain unavailable, retrying", logging.ModulePoC, "err", err, "backoff", m.cfg.BootstrapRetryBackoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.BootstrapRetryBackoff):
		}
	}
}

func (m *Manager) handleBlock(ctx context.Context, b blockevents.Block) error {
	if b.Sync {
		return nil
	}
	var resultErr error
	m.do(func() {
		resultErr = m.processBlock(b)
	})
	return resultErr
}

func (m *Manager) processBlock(b blockevents.Block) error {
	snap, err := m.chain.Snapshot()
	if err != nil {
		return fmt.Errorf("manager: snapshot: %w", err)
	}
	vars := snap.Vars()

	m.maybeRebuildFilter(snap, b.Height, vars)

	wc, err := m.chain.NewWriteContext()
	if err != nil {
		return fmt.Errorf("manager: write context: %w", err)
	}

	for _, k := range b.Keys {
		pub := pocmodel.PublicPoC{
			OnionKeyHash:   k.OnionKeyHash,
			ChallengerAddr: k.ChallengerAddr,
			BlockHash:      b.Hash,
			StartHeight:    b.Height,
		}
		if err := wc.SavePublicPoC(pub); err != nil {
			logging.Error("failed to save public poc record", logging.ModuleChain, "err", err)
			continue
		}

		entry, ok := m.keyCache.Lookup(k.OnionKeyHash)
		if !ok {
			continue
		}
		go m.initializeChallenge(snap, entry, k, b)
	}
	if err := wc.Commit(); err != nil {
		logging.Error("failed to commit block-pocs writes", logging.ModuleChain, "err", err)
	}

	m.expireAndSubmit(b.Height)

	if vars.PocVersion >= 0 && b.Height%m.gcCadence(m.cfg.KeyCacheGCEveryBlocks) == 0 {
		m.keyCache.GCOlderThan(b.Height, PocTimeout)
	}
	if b.Height%m.gcCadence(m.cfg.PublicPocGCEveryBlocks) == 0 {
		m.gcPublicPoCs(wc, b.Height)
	}

	return nil
}

func (m *Manager) gcCadence(n int64) int64 {
	if n <= 0 {
		return 1
	}
	return n
}

func (m *Manager) gcPublicPoCs(wc ledger.WriteContext, height int64) {
	records, err := wc.ActivePublicPoCs()
	if err != nil {
		logging.Error("failed to list public pocs for gc", logging.ModuleChain, "err", err)
		return
	}
	removed := 0
	for _, r := range records {
		if height-r.StartHeight > PocTimeout {
			if err := wc.DeletePublicPoC(r.OnionKeyHash); err != nil {
				logging.Error("failed to delete public poc", logging.ModuleChain, "err", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		if err := wc.Commit(); err != nil {
			logging.Error("failed to commit public poc gc", logging.ModuleChain, "err", err)
			return
		}
		logging.Debug("public poc gc removed entries", logging.ModuleChain, "removed", removed, "height", height)
	}
}

func (m *Manager) maybeRebuildFilter(snap ledger.Snapshot, height int64, vars ledger.ChainVars) {
	if vars.PocAddrHashByteCount == 0 || vars.PocChallengeInterval == 0 {
		return
	}
	m.filter.SetByteSize(vars.PocAddrHashByteCount)
	if !m.filter.NeedsRebuild(height, vars.PocChallengeInterval) {
		return
	}

	start := height - (height % vars.PocChallengeInterval)
	if start < 1 {
		start = 1
	}
	saltHash, ok, err := m.chain.BlockHash(start)
	if err != nil || !ok {
		logging.Warn("filter rebuild: could not resolve epoch-start block hash", logging.ModuleFilter, "start", start)
		return
	}

	gwCount, _ := snap.GatewayCount()
	m.filter.Reinit(height, vars.PocChallengeInterval, uint(gwCount), saltHash)

	hashes, err := m.chain.AddrHashesSince(start)
	if err != nil {
		logging.Warn("filter rebuild: failed to fold historical receipts", logging.ModuleFilter, "start", start, "err", err)
		return
	}
	for _, h := range hashes {
		m.filter.Set(h)
	}
	logging.Debug("filter rebuild folded historical receipts", logging.ModuleFilter, "start", start, "count", len(hashes))
}

// initializeChallenge spawns off-actor derivation (spec.md §5: "off-actor
// work... derivation is dispatched to short-lived worker tasks"). The
// resulting LocalPoC is written directly to the Store, which is safe
// because each challenge has a unique onion-key-hash. Each call opens its
// own WriteContext rather than sharing processBlock's: a WriteContext's
// buffered writes aren't safe for concurrent use, and this goroutine runs
// off the actor loop that owns the block-level one.
func (m *Manager) initializeChallenge(snap ledger.Snapshot, entry keycache.Entry, k blockevents.KeyEntry, b blockevents.Block) {
	wc, err := m.chain.NewWriteContext()
	if err != nil {
		logging.Error("derivation: failed to open write context", logging.ModuleChain,
			"onion_key_hash", k.OnionKeyHash.String(), "err", err)
		return
	}

	strategy := derivation.Select(snap.Vars())
	poc, err := strategy.Derive(derivation.Request{
		Challenger:  pockeys.GatewayPubKey(k.ChallengerAddr),
		Keys:        entry.KeyPair,
		BlockHash:   b.Hash,
		StartHeight: b.Height,
		Snapshot:    snap,
		WriteCtx:    wc,
		Builder:     m.builder,
	})
	if err != nil {
		logging.Warn("derivation failed, abandoning challenge", logging.ModulePoC,
			"onion_key_hash", k.OnionKeyHash.String(), "err", err)
		return
	}
	if err := m.store.Put(poc); err != nil {
		logging.Error("failed to persist local poc", logging.ModuleStore,
			"onion_key_hash", k.OnionKeyHash.String(), "err", err)
	}
}

// CheckTargetResult is check_target's synchronous response.
type CheckTargetResult struct {
	IsTarget bool
	Onion    []byte
}

// CheckTarget answers whether challengee is the intended first-hop
// target for onionKeyHash's challenge (spec.md §4.5).
func (m *Manager) CheckTarget(ctx context.Context, challengee pockeys.GatewayPubKey, blockHash []byte, onionKeyHash pockeys.Hash) (CheckTargetResult, error) {
	var result CheckTargetResult
	var resultErr error
	m.do(func() {
		if len(blockHash) == 0 {
			resultErr = pocerrors.ErrBlockNotFound
			return
		}

		poc, err := m.store.Get(onionKeyHash)
		if err != nil {
			if err == pocerrors.ErrNotFound {
				resultErr = pocerrors.ErrInvalidOrExpiredPoc
				return
			}
			resultErr = err
			return
		}
		if string(poc.BlockHash) != string(blockHash) {
			resultErr = pocerrors.ErrMismatchedBlockHash
			return
		}
		if string(poc.Target) == string(challengee) {
			result = CheckTargetResult{IsTarget: true, Onion: poc.Onion}
			return
		}
		result = CheckTargetResult{IsTarget: false}
	})
	return result, resultErr
}

// ActivePoCs returns a snapshot of every LocalPoC currently tracked.
func (m *Manager) ActivePoCs(ctx context.Context) ([]*pocmodel.LocalPoC, error) {
	var out []*pocmodel.LocalPoC
	var resultErr error
	m.do(func() {
		out, resultErr = m.store.Iter()
	})
	return out, resultErr
}

// ReportReceipt asynchronously ingests a receipt (spec.md §4.5 "Receipt
// ingestion").
func (m *Manager) ReportReceipt(gateway pockeys.GatewayPubKey, onionKeyHash pockeys.Hash, layerData []byte, peerID, peerAddr string) {
	m.doAsync(func() {
		m.ingestReceipt(gateway, onionKeyHash, layerData, peerID, peerAddr)
	})
}

// ReportWitness asynchronously ingests a witness (spec.md §4.5 "Witness
// ingestion"), capped at the governance-controlled
// poc_per_hop_max_witnesses chain var (falling back to
// PerHopMaxWitnessesDefault if the snapshot doesn't set one).
func (m *Manager) ReportWitness(gateway pockeys.GatewayPubKey, onionKeyHash pockeys.Hash, packetHash pockeys.Hash, peerID, peerAddr string) {
	m.doAsync(func() {
		maxWitnesses := PerHopMaxWitnessesDefault
		if snap, err := m.chain.Snapshot(); err == nil {
			if v := snap.Vars().PocPerHopMaxWitnesses; v > 0 {
				maxWitnesses = v
			}
		}
		m.ingestWitness(gateway, onionKeyHash, packetHash, peerID, peerAddr, maxWitnesses)
	})
}
