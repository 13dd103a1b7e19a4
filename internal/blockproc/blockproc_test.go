package blockproc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bp-node/bpd/internal/bloom"
	"github.com/bp-node/bpd/internal/chainhash"
	"github.com/bp-node/bpd/internal/dbkv"
	"github.com/bp-node/bpd/internal/wire"
)

func newTestProcessor(t *testing.T) (*BlockProcessor, chan MinedEvent) {
	t.Helper()
	store, err := dbkv.OpenBadger(t.TempDir(), true)
	require.NoError(t, err)
	db := dbkv.NewIndexDb(store)
	t.Cleanup(func() { _ = db.Close() })

	minedCh := make(chan MinedEvent, 16)
	bp, err := New(db, 4, minedCh)
	require.NoError(t, err)
	return bp, minedCh
}

func coinbaseBlock(prev chainhash.BlockHash, nonce uint32, value int64) *wire.Block {
	return &wire.Block{
		Header: wire.BlockHeader{Version: 1, PrevBlockHash: prev, Time: 1000, Bits: 0x1d00ffff, Nonce: nonce},
		Txs: []*wire.Tx{{
			Version: 1,
			TxIn: []*wire.TxIn{{
				PreviousOutPoint: wire.OutPoint{Hash: chainhash.Txid{}, Index: 0xffffffff},
				SignatureScript:  []byte{0x01},
				Sequence:         0xffffffff,
			}},
			TxOut:    []*wire.TxOut{{Value: value, PkScript: []byte{0xa9}}},
			LockTime: 0,
		}},
	}
}

func TestProcessInOrderCoinbaseBlock(t *testing.T) {
	bp, minedCh := newTestProcessor(t)

	b0 := coinbaseBlock(chainhash.BlockHash{}, 1, 5000000000)
	added, err := bp.ProcessBlockAndOrphans(b0)
	require.NoError(t, err)
	require.Equal(t, 1, added)

	tip, known := bp.Tip()
	require.True(t, known)
	require.Equal(t, b0.Header.Hash(), tip.Hash)
	require.Equal(t, uint64(0), tip.Height)

	select {
	case <-minedCh:
		t.Fatal("no Mined event expected without a tracked filter")
	default:
	}
}

func TestProcessOutOfOrderThenDrain(t *testing.T) {
	bp, _ := newTestProcessor(t)

	b0 := coinbaseBlock(chainhash.BlockHash{}, 1, 1)
	_, err := bp.ProcessBlockAndOrphans(b0)
	require.NoError(t, err)

	b1 := coinbaseBlock(b0.Header.Hash(), 2, 2)
	b2 := coinbaseBlock(b1.Header.Hash(), 3, 3)

	// b2 arrives first: it must be cached, not committed.
	added, err := bp.ProcessBlockAndOrphans(b2)
	require.NoError(t, err)
	require.Equal(t, 0, added)
	require.Equal(t, 1, bp.OrphanCount())

	tip, _ := bp.Tip()
	require.Equal(t, b0.Header.Hash(), tip.Hash)

	// b1 arrives, unblocking b2 in the same call.
	added, err = bp.ProcessBlockAndOrphans(b1)
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.Equal(t, 0, bp.OrphanCount())

	tip, _ = bp.Tip()
	require.Equal(t, b2.Header.Hash(), tip.Hash)
	require.Equal(t, uint64(2), tip.Height)
}

func TestProcessDuplicateBlockIsIdempotent(t *testing.T) {
	bp, _ := newTestProcessor(t)

	b0 := coinbaseBlock(chainhash.BlockHash{}, 1, 1)
	added, err := bp.ProcessBlockAndOrphans(b0)
	require.NoError(t, err)
	require.Equal(t, 1, added)

	added, err = bp.ProcessBlockAndOrphans(b0)
	require.NoError(t, err)
	require.Equal(t, 0, added)
}

func TestProcessUnknownSpendAborts(t *testing.T) {
	bp, _ := newTestProcessor(t)

	bad := &wire.Block{
		Header: wire.BlockHeader{Version: 1, Time: 1, Bits: 1, Nonce: 1},
		Txs: []*wire.Tx{{
			Version: 1,
			TxIn: []*wire.TxIn{{
				PreviousOutPoint: wire.OutPoint{Hash: chainhash.Txid{0xAA}, Index: 0},
				SignatureScript:  []byte{},
				Sequence:         0,
			}},
			TxOut:    []*wire.TxOut{{Value: 1, PkScript: []byte{}}},
			LockTime: 0,
		}},
	}

	_, err := bp.ProcessBlockAndOrphans(bad)
	require.ErrorIs(t, err, ErrUnknownSpend)

	_, known := bp.Tip()
	require.False(t, known)
}

func TestTrackAndNotify(t *testing.T) {
	bp, minedCh := newTestProcessor(t)

	b0 := coinbaseBlock(chainhash.BlockHash{}, 1, 1)
	txid := b0.Txs[0].Txid()

	f := bloom.NewDefault()
	f.Insert(txid[:])
	bp.Track([]*bloom.Filter{f})

	_, err := bp.ProcessBlockAndOrphans(b0)
	require.NoError(t, err)

	select {
	case ev := <-minedCh:
		require.Equal(t, txid, ev.Txid)
	default:
		t.Fatal("expected a Mined event")
	}

	bp.Untrack([]*bloom.Filter{f})

	b1 := coinbaseBlock(b0.Header.Hash(), 2, 2)
	_, err = bp.ProcessBlockAndOrphans(b1)
	require.NoError(t, err)

	select {
	case <-minedCh:
		t.Fatal("no Mined event expected after Untrack")
	default:
	}
}
