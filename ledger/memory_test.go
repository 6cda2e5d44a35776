package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddrHashesSince_FiltersByHeight(t *testing.T) {
	ml := NewMemLedger(ChainVars{})
	ml.RecordReceiptAddrHash(50, []byte("hash-at-50"))
	ml.RecordReceiptAddrHash(99, []byte("hash-at-99"))
	ml.RecordReceiptAddrHash(100, []byte("hash-at-100"))

	got, err := ml.AddrHashesSince(100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []byte("hash-at-100"), got[0])

	got, err = ml.AddrHashesSince(99)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestAddrHashesSince_EmptyWhenNoneRecorded(t *testing.T) {
	ml := NewMemLedger(ChainVars{})
	got, err := ml.AddrHashesSince(0)
	require.NoError(t, err)
	require.Empty(t, got)
}
