package rpcsvc

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/bp-node/bpd/internal/bloom"
	"github.com/bp-node/bpd/internal/reactor"
	"github.com/bp-node/bpd/internal/wire"
)

func newTestRpc(t *testing.T) (*reactor.Service, chan interface{}, net.Conn) {
	t.Helper()
	rpcTx := make(chan interface{}, 8)
	ctl := New(65535, rpcTx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	svc := reactor.NewService("rpc", ln, ctl, 1<<20)
	ctl.Attach(svc)
	svc.Run()
	t.Cleanup(svc.Stop)

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return svc, rpcTx, conn
}

func sendRequest(t *testing.T, conn net.Conn, req wire.Request) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, wire.EncodeRequest(&buf, req))
	require.NoError(t, wire.WriteFrame(conn, buf.Bytes()))
}

func readResponse(t *testing.T, conn net.Conn) wire.Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	payload, err := wire.ReadFrame(conn, 1<<20)
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func TestRpcPingPong(t *testing.T) {
	_, _, conn := newTestRpc(t)

	sendRequest(t, conn, &wire.Ping{Noise: []byte{9, 8, 7}})
	resp := readResponse(t, conn)

	pong, ok := resp.(*wire.PongResp)
	require.True(t, ok)
	require.Equal(t, []byte{9, 8, 7}, pong.Noise)
}

func TestRpcNoopElicitsNoReply(t *testing.T) {
	_, _, conn := newTestRpc(t)

	sendRequest(t, conn, &wire.Noop{})
	sendRequest(t, conn, &wire.Ping{Noise: []byte{1}})

	resp := readResponse(t, conn)
	_, ok := resp.(*wire.PongResp)
	require.True(t, ok, "Noop must not have produced its own response ahead of the Ping")
}

func TestRpcTrackForwardsToBroker(t *testing.T) {
	_, rpcTx, conn := newTestRpc(t)

	f := bloom.NewDefault()
	f.Insert([]byte{0x01})
	sendRequest(t, conn, &wire.Track{Filters: []*bloom.Filter{f}})

	select {
	case msg := <-rpcTx:
		req, ok := msg.(TrackReq)
		require.True(t, ok)
		require.Len(t, req.Filters, 1)
	case <-time.After(time.Second):
		t.Fatal("expected a TrackReq on rpcTx")
	}
}

func TestRpcUntrackAllForwardsToBroker(t *testing.T) {
	_, rpcTx, conn := newTestRpc(t)

	sendRequest(t, conn, &wire.UntrackAll{})

	select {
	case msg := <-rpcTx:
		_, ok := msg.(UntrackAllReq)
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected an UntrackAllReq on rpcTx")
	}
}

func TestRpcStatusListsConnectedClients(t *testing.T) {
	_, _, conn := newTestRpc(t)

	sendRequest(t, conn, &wire.Status{})
	resp := readResponse(t, conn)

	status, ok := resp.(*wire.StatusResp)
	require.True(t, ok)
	require.Len(t, status.Clients, 1)
}

func TestSendCmdPushesResponseToClient(t *testing.T) {
	svc, _, conn := newTestRpc(t)

	var remote string
	require.Eventually(t, func() bool {
		infos := svc.ClientInfos(func(*reactor.Session) *wire.AgentInfo { return nil })
		if len(infos) != 1 {
			return false
		}
		remote = infos[0].SessionID
		return true
	}, time.Second, 10*time.Millisecond)

	svc.Enqueue(SendCmd{Remote: remote, Response: &wire.PongResp{Noise: []byte{0x42}}})

	resp := readResponse(t, conn)
	pong, ok := resp.(*wire.PongResp)
	require.True(t, ok)
	require.Equal(t, []byte{0x42}, pong.Noise)
}

func TestShouldAcceptRejectsAtCapacityWithUnwrappableCause(t *testing.T) {
	rpcTx := make(chan interface{}, 1)
	ctl := New(0, rpcTx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	svc := reactor.NewService("rpc", ln, ctl, 1<<20)
	ctl.Attach(svc)
	svc.Run()
	t.Cleanup(svc.Stop)

	require.False(t, ctl.ShouldAccept(ln.Addr()))

	wrapped := errors.Wrap(ErrTooManyClients, "rejected")
	require.Equal(t, ErrTooManyClients, errors.Cause(wrapped))
}
