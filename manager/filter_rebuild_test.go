package manager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"poc-challenge-manager/addrfilter"
	"poc-challenge-manager/keycache"
	"poc-challenge-manager/ledger"
	"poc-challenge-manager/onion"
	"poc-challenge-manager/pocstore"
)

func TestMaybeRebuildFilter_FoldsHistoricalReceiptHashes(t *testing.T) {
	vars := ledger.ChainVars{
		PocAddrHashByteCount: 8,
		PocChallengeInterval: 10,
	}
	saltBlockHash := []byte("block-at-epoch-start-aaaaaaaaaa")

	chain := ledger.NewMemLedger(vars)
	chain.SetBlock(100, saltBlockHash)

	// Precompute the hash a genuine PoC-receipts transaction at the
	// epoch-start salt would have produced for this address, the same
	// way maybeRebuildFilter's own Reinit will.
	reference := addrfilter.New()
	reference.SetByteSize(vars.PocAddrHashByteCount)
	reference.Reinit(100, vars.PocChallengeInterval, 1, saltBlockHash)
	wantHash, ok := reference.HashOnly("1.2.3.4:9999")
	require.True(t, ok)

	chain.RecordReceiptAddrHash(100, wantHash)

	store, err := pocstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr := New(DefaultConfig(), keycache.New(), store, chain, onion.NewBoxBuilder(), &recordingSubmitter{}, "challenger-addr")

	snap, err := chain.Snapshot()
	require.NoError(t, err)
	mgr.maybeRebuildFilter(snap, 100, vars)

	result, _ := mgr.filter.Check("1.2.3.4:1234")
	require.Equal(t, addrfilter.Seen, result, "a freshly rebuilt filter must already recognize addresses folded in from historical PoC-receipts transactions")
}

func TestMaybeRebuildFilter_NoopWhenAddrHashDisabled(t *testing.T) {
	vars := ledger.ChainVars{}
	chain := ledger.NewMemLedger(vars)

	store, err := pocstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr := New(DefaultConfig(), keycache.New(), store, chain, onion.NewBoxBuilder(), &recordingSubmitter{}, "challenger-addr")

	snap, err := chain.Snapshot()
	require.NoError(t, err)
	mgr.maybeRebuildFilter(snap, 100, vars)

	require.False(t, mgr.filter.Enabled(), "an unset poc_addr_hash_byte_count/poc_challenge_interval must leave the filter disabled")
}
