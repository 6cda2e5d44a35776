package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"poc-challenge-manager/blockevents"
	"poc-challenge-manager/keycache"
	"poc-challenge-manager/ledger"
	"poc-challenge-manager/onion"
	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocstore"
	"poc-challenge-manager/txsubmit"
)

func newTestManager(t *testing.T) (*Manager, *ledger.MemLedger, pockeys.KeyPair, context.CancelFunc) {
	t.Helper()

	vars := ledger.ChainVars{
		PocTargetPoolSize:          5,
		PocActivityFilterEnabled:   false,
		PocVersion:                 4,
		PocPerHopMaxWitnesses:      2,
	}
	chain := ledger.NewMemLedger(vars)

	challenger := pockeys.GatewayPubKey("challenger-addr")
	chain.PutGateway(ledger.GatewayInfo{Pubkey: pockeys.GatewayPubKey("gw-target"), HasChallengeeCap: true}, 1)
	chain.SetBlock(100, []byte("block-100"))

	store, err := pocstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	keyCache := keycache.New()
	submitter := &recordingSubmitter{}

	mgr := New(DefaultConfig(), keyCache, store, chain, onion.NewBoxBuilder(), submitter, string(challenger))

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)

	kp, err := pockeys.Generate()
	require.NoError(t, err)

	return mgr, chain, kp, cancel
}

func TestManager_NotOurKey_NoLocalPoCCreated(t *testing.T) {
	mgr, _, kp, cancel := newTestManager(t)
	defer cancel()

	b := blockevents.Block{
		Height: 101,
		Hash:   []byte("block-101"),
		Keys: []blockevents.KeyEntry{
			{ChallengerAddr: "someone-else", OnionKeyHash: kp.OnionKeyHash()},
		},
	}
	require.NoError(t, mgr.handleBlock(context.Background(), b))

	time.Sleep(10 * time.Millisecond)

	pocs, err := mgr.ActivePoCs(context.Background())
	require.NoError(t, err)
	require.Empty(t, pocs)
}

func TestManager_SyncBlock_Ignored(t *testing.T) {
	mgr, _, kp, cancel := newTestManager(t)
	defer cancel()

	mgr.keyCache.Cache(kp.OnionKeyHash(), 100, kp)

	b := blockevents.Block{
		Height: 101,
		Hash:   []byte("block-101"),
		Sync:   true,
		Keys: []blockevents.KeyEntry{
			{ChallengerAddr: "challenger-addr", OnionKeyHash: kp.OnionKeyHash()},
		},
	}
	require.NoError(t, mgr.handleBlock(context.Background(), b))

	pocs, err := mgr.ActivePoCs(context.Background())
	require.NoError(t, err)
	require.Empty(t, pocs, "sync blocks must not drive challenges")
}

func TestManager_CheckTarget_UnknownPoc(t *testing.T) {
	mgr, _, kp, cancel := newTestManager(t)
	defer cancel()

	_, err := mgr.CheckTarget(context.Background(), pockeys.GatewayPubKey("gw-target"), []byte("block-101"), kp.OnionKeyHash())
	require.Error(t, err)
}

type recordingSubmitter struct {
	calls int
}

func (r *recordingSubmitter) Submit(ctx context.Context, req txsubmit.Receipts) error {
	r.calls++
	return nil
}
