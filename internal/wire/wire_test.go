package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bp-node/bpd/internal/bloom"
	"github.com/bp-node/bpd/internal/chainhash"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello frame")
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf, MaxFrameSize)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, 100)
	require.NoError(t, WriteFrame(&buf, payload))

	_, err := ReadFrame(&buf, 10)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestVarIntRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, WriteVarInt(&buf, v))
		got, err := ReadVarInt(&buf)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestExporterPubHelloRoundTrip(t *testing.T) {
	msg := &Hello{Agent: AgentInfo{
		Agent:    "tester",
		Version:  Version{Major: 0, Minor: 1, Patch: 0},
		Network:  "regtest",
		Features: 7,
	}}
	var buf bytes.Buffer
	require.NoError(t, EncodeExporterPub(&buf, msg))

	decoded, err := DecodeExporterPub(&buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestExporterPubBlockRoundTrip(t *testing.T) {
	tx := &Tx{
		Version: 1,
		TxIn: []*TxIn{{
			PreviousOutPoint: OutPoint{Hash: chainhash.Txid{}, Index: 0xffffffff},
			SignatureScript:  []byte{0x01, 0x02},
			Sequence:         0xffffffff,
		}},
		TxOut: []*TxOut{{
			Value:    5000000000,
			PkScript: []byte{0xa9, 0x14},
		}},
		LockTime: 0,
	}
	require.True(t, tx.IsCoinbase())

	block := &BlockMsg{Block: Block{
		Header: BlockHeader{Version: 2, Time: 1234, Bits: 0x1d00ffff, Nonce: 99},
		Txs:    []*Tx{tx},
	}}

	var buf bytes.Buffer
	require.NoError(t, EncodeExporterPub(&buf, block))

	decoded, err := DecodeExporterPub(&buf)
	require.NoError(t, err)
	got, ok := decoded.(*BlockMsg)
	require.True(t, ok)
	require.Equal(t, block.Block.Header, got.Block.Header)
	require.Len(t, got.Block.Txs, 1)
	require.Equal(t, tx.TxOut[0].Value, got.Block.Txs[0].TxOut[0].Value)
	require.True(t, got.Block.Txs[0].IsCoinbase())
}

func TestImporterReplyRoundTrip(t *testing.T) {
	msg := &ErrorReply{Failure: Failure{
		Code:    CodeNetworkMismatch,
		Message: "network mismatch",
		Details: map[string]string{"expected": "testnet4", "got": "mainnet"},
	}}
	var buf bytes.Buffer
	require.NoError(t, EncodeImporterReply(&buf, msg))

	decoded, err := DecodeImporterReply(&buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestRequestRoundTrip(t *testing.T) {
	cases := []Request{
		&Ping{Noise: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		&Noop{},
		&Status{},
		&UntrackAll{},
	}
	for _, req := range cases {
		var buf bytes.Buffer
		require.NoError(t, EncodeRequest(&buf, req))
		decoded, err := DecodeRequest(&buf)
		require.NoError(t, err)
		require.Equal(t, req, decoded)
	}
}

func TestTrackRequestRoundTrip(t *testing.T) {
	f1 := bloom.NewDefault()
	f1.Insert([]byte{0x01})
	f2 := bloom.NewDefault()
	f2.Insert([]byte{0x02})

	req := &Track{Filters: []*bloom.Filter{f1, f2}}
	var buf bytes.Buffer
	require.NoError(t, EncodeRequest(&buf, req))

	decoded, err := DecodeRequest(&buf)
	require.NoError(t, err)
	got, ok := decoded.(*Track)
	require.True(t, ok)
	require.Len(t, got.Filters, 2)
	require.True(t, got.Filters[0].Equal(f1))
	require.True(t, got.Filters[1].Equal(f2))
}

func TestTrackRequestRejectsTooManyFilters(t *testing.T) {
	filters := make([]*bloom.Filter, MaxTrackFilters+1)
	for i := range filters {
		filters[i] = bloom.NewDefault()
	}
	var buf bytes.Buffer
	err := EncodeRequest(&buf, &Track{Filters: filters})
	require.Error(t, err)
}

func TestResponseRoundTrip(t *testing.T) {
	txid := chainhash.Txid{1, 2, 3}
	cases := []Response{
		&PongResp{Noise: []byte{1, 2, 3}},
		&MinedResp{Txid: txid},
		&FailureResp{Failure: Failure{Code: CodeInternal, Message: "boom", Details: map[string]string{}}},
	}
	for _, resp := range cases {
		var buf bytes.Buffer
		require.NoError(t, EncodeResponse(&buf, resp))
		decoded, err := DecodeResponse(&buf)
		require.NoError(t, err)
		require.Equal(t, resp, decoded)
	}
}

func TestStatusResponseRoundTrip(t *testing.T) {
	resp := &StatusResp{Clients: []ClientInfo{
		{Addr: "127.0.0.1:1", SessionID: "s1", ConnectedMs: 1000, LastSeenMs: 2000},
		{Addr: "127.0.0.1:2", SessionID: "s2", Agent: &AgentInfo{Agent: "a", Network: "regtest"}, ConnectedMs: 3000, LastSeenMs: 4000},
	}}
	var buf bytes.Buffer
	require.NoError(t, EncodeResponse(&buf, resp))

	decoded, err := DecodeResponse(&buf)
	require.NoError(t, err)
	got, ok := decoded.(*StatusResp)
	require.True(t, ok)
	require.Equal(t, resp.Clients, got.Clients)
}

func TestBlockHeaderHashDeterministic(t *testing.T) {
	h := BlockHeader{Version: 1, Time: 42, Bits: 1, Nonce: 2}
	require.Equal(t, h.Hash(), h.Hash())

	h2 := h
	h2.Nonce = 3
	require.NotEqual(t, h.Hash(), h2.Hash())
}
