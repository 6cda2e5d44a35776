package pocstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocerrors"
	"poc-challenge-manager/pocmodel"
)

func samplePoC(t *testing.T) *pocmodel.LocalPoC {
	t.Helper()
	kp, err := pockeys.Generate()
	require.NoError(t, err)

	challengees := []pocmodel.Challengee{{Gateway: pockeys.GatewayPubKey("gw-a"), LayerData: []byte{0x01}}}
	packetHashes := []pocmodel.PacketHashEntry{{Gateway: pockeys.GatewayPubKey("gw-a"), PacketHash: pockeys.SHA256([]byte("a"))}}

	poc, err := pocmodel.NewLocalPoC(kp.OnionKeyHash(), []byte("bh"), 10, kp, kp.PrivateKeyBytes(),
		pockeys.GatewayPubKey("gw-a"), []byte("onion"), challengees, packetHashes)
	require.NoError(t, err)
	return poc
}

func TestStore_GetMissing(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	var h pockeys.Hash
	_, err = s.Get(h)
	require.ErrorIs(t, err, pocerrors.ErrNotFound)
}

func TestStore_PutGetDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	poc := samplePoC(t)
	require.NoError(t, s.Put(poc))

	got, err := s.Get(poc.OnionKeyHash)
	require.NoError(t, err)
	require.Equal(t, poc.OnionKeyHash, got.OnionKeyHash)
	require.Equal(t, poc.Target, got.Target)

	require.NoError(t, s.Delete(poc.OnionKeyHash))
	_, err = s.Get(poc.OnionKeyHash)
	require.ErrorIs(t, err, pocerrors.ErrNotFound)
}

func TestStore_PutOverwrites(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	poc := samplePoC(t)
	require.NoError(t, s.Put(poc))

	poc.Receipts["x"] = pocmodel.Receipt{PeerID: "p1"}
	require.NoError(t, s.Put(poc))

	got, err := s.Get(poc.OnionKeyHash)
	require.NoError(t, err)
	require.Contains(t, got.Receipts, "x")
}

func TestStore_Iter(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	p1 := samplePoC(t)
	p2 := samplePoC(t)
	require.NoError(t, s.Put(p1))
	require.NoError(t, s.Put(p2))

	all, err := s.Iter()
	require.NoError(t, err)
	require.Len(t, all, 2)
}
