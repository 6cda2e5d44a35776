package derivation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"poc-challenge-manager/ledger"
	"poc-challenge-manager/onion"
	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocerrors"
)

func baseVars() ledger.ChainVars {
	return ledger.ChainVars{
		PocTargetPoolSize:          10,
		PocWitnessConsiderationLim: 0,
		PocActivityFilterEnabled:   false,
		PocVersion:                 4,
	}
}

func buildLedger(t *testing.T, vars ledger.ChainVars, challenger pockeys.GatewayPubKey, gatewayCount int, hexID uint64) *ledger.MemLedger {
	t.Helper()
	ml := ledger.NewMemLedger(vars)
	for i := 0; i < gatewayCount; i++ {
		name := pockeys.GatewayPubKey([]byte{byte('a' + i)})
		ml.PutGateway(ledger.GatewayInfo{
			Pubkey:           name,
			HasChallengeeCap: true,
			Mode:             ledger.ModeFull,
		}, hexID)
	}
	ml.SetBlock(100, []byte("block-hash-100"))
	return ml
}

func TestDeriveV4_Deterministic(t *testing.T) {
	vars := baseVars()
	challenger := pockeys.GatewayPubKey("challenger")
	ml := buildLedger(t, vars, challenger, 5, 42)

	kp, err := pockeys.Generate()
	require.NoError(t, err)

	snap, err := ml.Snapshot()
	require.NoError(t, err)
	wc, err := ml.NewWriteContext()
	require.NoError(t, err)

	req := Request{
		Challenger:  challenger,
		Keys:        kp,
		BlockHash:   []byte("block-hash-100"),
		StartHeight: 100,
		Snapshot:    snap,
		WriteCtx:    wc,
		Builder:     onion.NewBoxBuilder(),
	}

	strategy := Select(vars)
	poc1, err := strategy.Derive(req)
	require.NoError(t, err)

	poc2, err := strategy.Derive(req)
	require.NoError(t, err)

	require.Equal(t, poc1.Target, poc2.Target)
	require.Equal(t, poc1.Onion, poc2.Onion)
	require.Equal(t, poc1.Challengees, poc2.Challengees)
	require.Equal(t, poc1.PacketHashes, poc2.PacketHashes)
	require.Equal(t, poc1.Target, poc1.Challengees[0].Gateway)
	require.Len(t, poc1.Challengees, len(poc1.PacketHashes))
}

func TestDeriveV4_EmptyHexList(t *testing.T) {
	vars := baseVars()
	challenger := pockeys.GatewayPubKey("challenger")
	ml := ledger.NewMemLedger(vars)
	ml.SetBlock(100, []byte("block-hash-100"))

	kp, err := pockeys.Generate()
	require.NoError(t, err)

	snap, err := ml.Snapshot()
	require.NoError(t, err)
	wc, err := ml.NewWriteContext()
	require.NoError(t, err)

	req := Request{
		Challenger:  challenger,
		Keys:        kp,
		BlockHash:   []byte("block-hash-100"),
		StartHeight: 100,
		Snapshot:    snap,
		WriteCtx:    wc,
		Builder:     onion.NewBoxBuilder(),
	}

	_, err = Select(vars).Derive(req)
	require.ErrorIs(t, err, pocerrors.ErrEmptyHexList)
}

func TestDeriveV4_NoGatewaysFoundAfterFilteringChallenger(t *testing.T) {
	vars := baseVars()
	challenger := pockeys.GatewayPubKey([]byte{byte('a')})
	ml := buildLedger(t, vars, challenger, 1, 7)

	kp, err := pockeys.Generate()
	require.NoError(t, err)

	snap, err := ml.Snapshot()
	require.NoError(t, err)
	wc, err := ml.NewWriteContext()
	require.NoError(t, err)

	req := Request{
		Challenger:  challenger,
		Keys:        kp,
		BlockHash:   []byte("block-hash-100"),
		StartHeight: 100,
		Snapshot:    snap,
		WriteCtx:    wc,
		Builder:     onion.NewBoxBuilder(),
	}

	_, err = Select(vars).Derive(req)
	require.ErrorIs(t, err, pocerrors.ErrNoGatewaysFound)
}

func TestSelect_VersionDispatch(t *testing.T) {
	v4 := Select(ledger.ChainVars{PocVersion: 4})
	v6 := Select(ledger.ChainVars{PocVersion: 6})

	require.IsType(t, v4Strategy{}, v4)
	require.IsType(t, v6Strategy{}, v6)
}
