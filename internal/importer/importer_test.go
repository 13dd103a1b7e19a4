package importer

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/bp-node/bpd/internal/blockproc"
	"github.com/bp-node/bpd/internal/chainhash"
	"github.com/bp-node/bpd/internal/dbkv"
	"github.com/bp-node/bpd/internal/reactor"
	"github.com/bp-node/bpd/internal/wire"
)

func newTestImporter(t *testing.T) (*reactor.Service, *blockproc.BlockProcessor, net.Conn) {
	t.Helper()
	store, err := dbkv.OpenBadger(t.TempDir(), true)
	require.NoError(t, err)
	db := dbkv.NewIndexDb(store)
	t.Cleanup(func() { _ = db.Close() })

	bp, err := blockproc.New(db, 4, make(chan blockproc.MinedEvent, 16))
	require.NoError(t, err)

	ctl := New("regtest", 1, bp)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	svc := reactor.NewService("importer", ln, ctl, 1<<20)
	ctl.Attach(svc)
	svc.Run()
	t.Cleanup(svc.Stop)

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return svc, bp, conn
}

func sendExporterFrame(t *testing.T, conn net.Conn, msg wire.ExporterPub) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, wire.EncodeExporterPub(&buf, msg))
	require.NoError(t, wire.WriteFrame(conn, buf.Bytes()))
}

func TestImporterRejectsNetworkMismatch(t *testing.T) {
	svc, _, conn := newTestImporter(t)

	sendExporterFrame(t, conn, &wire.Hello{Agent: wire.AgentInfo{Agent: "test", Network: "mainnet"}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	payload, err := wire.ReadFrame(conn, 1<<20)
	require.NoError(t, err)

	reply, err := wire.DecodeImporterReply(bytes.NewReader(payload))
	require.NoError(t, err)
	errReply, ok := reply.(*wire.ErrorReply)
	require.True(t, ok)
	require.Equal(t, wire.CodeNetworkMismatch, errReply.Failure.Code)

	require.Eventually(t, func() bool { return svc.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestImporterIndexesBlockAfterHello(t *testing.T) {
	_, bp, conn := newTestImporter(t)

	sendExporterFrame(t, conn, &wire.Hello{Agent: wire.AgentInfo{Agent: "test", Network: "regtest"}})

	block := wire.Block{
		Header: wire.BlockHeader{Version: 1, PrevBlockHash: chainhash.BlockHash{}, Time: 1, Bits: 1, Nonce: 1},
		Txs: []*wire.Tx{{
			Version: 1,
			TxIn: []*wire.TxIn{{
				PreviousOutPoint: wire.OutPoint{Hash: chainhash.Txid{}, Index: 0xffffffff},
				SignatureScript:  []byte{0x01},
				Sequence:         0xffffffff,
			}},
			TxOut:    []*wire.TxOut{{Value: 5000000000, PkScript: []byte{}}},
			LockTime: 0,
		}},
	}
	sendExporterFrame(t, conn, &wire.BlockMsg{Block: block})

	require.Eventually(t, func() bool {
		_, known := bp.Tip()
		return known
	}, time.Second, 10*time.Millisecond)
}

func TestImporterDropsBlockBeforeHello(t *testing.T) {
	_, bp, conn := newTestImporter(t)

	block := wire.Block{
		Header: wire.BlockHeader{Version: 1, Time: 1, Bits: 1, Nonce: 1},
		Txs: []*wire.Tx{{
			Version: 1,
			TxIn: []*wire.TxIn{{
				PreviousOutPoint: wire.OutPoint{Hash: chainhash.Txid{}, Index: 0xffffffff},
				SignatureScript:  []byte{0x01},
				Sequence:         0xffffffff,
			}},
			TxOut:    []*wire.TxOut{{Value: 1, PkScript: []byte{}}},
			LockTime: 0,
		}},
	}
	sendExporterFrame(t, conn, &wire.BlockMsg{Block: block})

	time.Sleep(50 * time.Millisecond)
	_, known := bp.Tip()
	require.False(t, known, "block sent before Hello must be dropped")
}

func TestShouldAcceptRejectsAtCapacityWithUnwrappableCause(t *testing.T) {
	store, err := dbkv.OpenBadger(t.TempDir(), true)
	require.NoError(t, err)
	db := dbkv.NewIndexDb(store)
	t.Cleanup(func() { _ = db.Close() })

	bp, err := blockproc.New(db, 4, make(chan blockproc.MinedEvent, 1))
	require.NoError(t, err)

	ctl := New("regtest", 0, bp)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	svc := reactor.NewService("importer", ln, ctl, 1<<20)
	ctl.Attach(svc)
	svc.Run()
	t.Cleanup(svc.Stop)

	require.False(t, ctl.ShouldAccept(ln.Addr()))

	wrapped := errors.Wrap(ErrTooManyProviders, "rejected")
	require.Equal(t, ErrTooManyProviders, errors.Cause(wrapped))
}
