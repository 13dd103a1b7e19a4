package chainhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTxNoRoundTrip(t *testing.T) {
	cases := []TxNo{0, 1, 255, 1 << 20, MaxTxNo}
	for _, n := range cases {
		b := n.Bytes()
		got, err := TxNoFromBytes(b[:])
		require.NoError(t, err)
		require.Equal(t, n, got)
	}
}

func TestTxNoFromBytesRejectsWrongLength(t *testing.T) {
	_, err := TxNoFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestTxNoValid(t *testing.T) {
	require.False(t, TxNo(0).Valid())
	require.True(t, TxNo(1).Valid())
	require.True(t, TxNo(MaxTxNo).Valid())
}

func TestBlockHashFromBytes(t *testing.T) {
	raw := make([]byte, HashSize)
	for i := range raw {
		raw[i] = byte(i)
	}
	h, err := BlockHashFromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, raw, h.Bytes())

	_, err = BlockHashFromBytes(raw[:10])
	require.Error(t, err)
}

func TestBlockHashIsZero(t *testing.T) {
	var h BlockHash
	require.True(t, h.IsZero())
	h[0] = 1
	require.False(t, h.IsZero())
}
