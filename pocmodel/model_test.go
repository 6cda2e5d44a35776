package pocmodel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"poc-challenge-manager/pockeys"
)

func samplePoC(t *testing.T) *LocalPoC {
	t.Helper()
	kp, err := pockeys.Generate()
	require.NoError(t, err)

	challengees := []Challengee{
		{Gateway: pockeys.GatewayPubKey("gw-a"), LayerData: []byte{0x01}},
		{Gateway: pockeys.GatewayPubKey("gw-b"), LayerData: []byte{0x02}},
	}
	packetHashes := []PacketHashEntry{
		{Gateway: pockeys.GatewayPubKey("gw-a"), PacketHash: pockeys.SHA256([]byte("a"))},
		{Gateway: pockeys.GatewayPubKey("gw-b"), PacketHash: pockeys.SHA256([]byte("b"))},
	}

	poc, err := NewLocalPoC(
		kp.OnionKeyHash(),
		[]byte("block-hash"),
		100,
		kp,
		kp.PrivateKeyBytes(),
		pockeys.GatewayPubKey("gw-a"),
		[]byte("onion-ciphertext"),
		challengees,
		packetHashes,
	)
	require.NoError(t, err)
	return poc
}

func TestNewLocalPoC_InvariantViolations(t *testing.T) {
	kp, err := pockeys.Generate()
	require.NoError(t, err)

	_, err = NewLocalPoC(kp.OnionKeyHash(), nil, 1, kp, nil, pockeys.GatewayPubKey("gw-a"),
		nil,
		[]Challengee{{Gateway: pockeys.GatewayPubKey("gw-a")}},
		nil,
	)
	require.Error(t, err, "mismatched challengees/packet_hashes length must fail")

	_, err = NewLocalPoC(kp.OnionKeyHash(), nil, 1, kp, nil, pockeys.GatewayPubKey("gw-b"),
		nil,
		[]Challengee{{Gateway: pockeys.GatewayPubKey("gw-a")}},
		[]PacketHashEntry{{Gateway: pockeys.GatewayPubKey("gw-a")}},
	)
	require.Error(t, err, "target must equal challengees[0].gateway")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	poc := samplePoC(t)
	poc.Receipts["deadbeef"] = Receipt{PeerID: "peer-1", LayerData: []byte{0x01}}
	poc.Witnesses["cafebabe"] = []Witness{{PeerID: "peer-2", Gateway: pockeys.GatewayPubKey("gw-b")}}

	raw, err := Encode(poc)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)

	require.Equal(t, poc.OnionKeyHash, decoded.OnionKeyHash)
	require.Equal(t, poc.BlockHash, decoded.BlockHash)
	require.Equal(t, poc.StartHeight, decoded.StartHeight)
	require.Equal(t, poc.Keys.PrivateKeyBytes(), decoded.Keys.PrivateKeyBytes())
	require.Equal(t, poc.Target, decoded.Target)
	require.Equal(t, poc.Challengees, decoded.Challengees)
	require.Equal(t, poc.PacketHashes, decoded.PacketHashes)
	require.Equal(t, poc.Receipts, decoded.Receipts)
	require.Equal(t, poc.Witnesses, decoded.Witnesses)
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte{0x7f, '{', '}'})
	require.Error(t, err)
}

func TestIsFirstHop(t *testing.T) {
	poc := samplePoC(t)
	require.True(t, poc.IsFirstHop(pockeys.GatewayPubKey("gw-a")))
	require.False(t, poc.IsFirstHop(pockeys.GatewayPubKey("gw-b")))
}

func TestPacketHashFor(t *testing.T) {
	poc := samplePoC(t)
	h, ok := poc.PacketHashFor(pockeys.GatewayPubKey("gw-b"))
	require.True(t, ok)
	require.Equal(t, pockeys.SHA256([]byte("b")), h)

	_, ok = poc.PacketHashFor(pockeys.GatewayPubKey("gw-z"))
	require.False(t, ok)
}
