package blockevents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// startEmbeddedNats boots an in-process JetStream-enabled server for
// integration-testing Source without a real cluster, the way the
// teacher's own NATS plumbing is exercised in tests.
func startEmbeddedNats(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded nats server did not become ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestSource_SubscribeDecodesBlock(t *testing.T) {
	srv := startEmbeddedNats(t)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	js, err := nc.JetStream()
	require.NoError(t, err)
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "BLOCKS",
		Subjects: []string{"chain.blocks"},
	})
	require.NoError(t, err)

	wire := wireBlock{
		Height:    101,
		Timestamp: 1000,
		Hash:      []byte("block-hash-101"),
		Sync:      false,
		Keys: []wireKey{
			{ChallengerAddr: "challenger-1", OnionKeyHash: make([]byte, 32)},
		},
	}
	data, err := json.Marshal(wire)
	require.NoError(t, err)
	_, err = js.Publish("chain.blocks", data)
	require.NoError(t, err)

	source, err := NewSource(Config{
		URL:         srv.ClientURL(),
		Subject:     "chain.blocks",
		DurableName: "test-consumer",
	})
	require.NoError(t, err)
	defer source.Close()

	received := make(chan Block, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go source.Subscribe(ctx, func(ctx context.Context, b Block) error {
		select {
		case received <- b:
		default:
		}
		return nil
	})

	select {
	case b := <-received:
		require.Equal(t, int64(101), b.Height)
		require.Equal(t, []byte("block-hash-101"), b.Hash)
		require.Len(t, b.Keys, 1)
		require.Equal(t, "challenger-1", b.Keys[0].ChallengerAddr)
	case <-ctx.Done():
		t.Fatal("timed out waiting for decoded block")
	}
}

func TestDecodeBlock_RejectsBadHashLength(t *testing.T) {
	wire := wireBlock{Keys: []wireKey{{OnionKeyHash: []byte("too-short")}}}
	data, err := json.Marshal(wire)
	require.NoError(t, err)

	_, err = decodeBlock(data)
	require.Error(t, err)
}
