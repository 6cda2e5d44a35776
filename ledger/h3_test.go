package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexIDForLocation_Deterministic(t *testing.T) {
	loc := GatewayLocation{Lat: 37.775938728915946, Lng: -122.41795063018799}

	id1 := HexIDForLocation(loc, 9)
	id2 := HexIDForLocation(loc, 9)
	require.Equal(t, id1, id2)
	require.NotZero(t, id1)
}

func TestPutGatewayAtLocation(t *testing.T) {
	ml := NewMemLedger(ChainVars{})
	info := GatewayInfo{Pubkey: []byte("gw-1"), HasChallengeeCap: true}
	ml.PutGatewayAtLocation(info, GatewayLocation{Lat: 1, Lng: 1}, 7)

	snap, err := ml.Snapshot()
	require.NoError(t, err)
	got, ok, err := snap.FindGatewayInfo([]byte("gw-1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.HasLocation)
}
