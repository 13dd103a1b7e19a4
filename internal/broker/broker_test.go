package broker

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bp-node/bpd/internal/blockproc"
	"github.com/bp-node/bpd/internal/bloom"
	"github.com/bp-node/bpd/internal/chainhash"
	"github.com/bp-node/bpd/internal/dbkv"
	"github.com/bp-node/bpd/internal/reactor"
	"github.com/bp-node/bpd/internal/rpcsvc"
)

type captureController struct {
	mu       sync.Mutex
	commands []reactor.Command
}

func (c *captureController) ShouldAccept(net.Addr) bool           { return true }
func (c *captureController) OnEstablished(*reactor.Session)       {}
func (c *captureController) OnDisconnected(*reactor.Session, error) {}
func (c *captureController) OnFrame(*reactor.Session, []byte) error { return nil }
func (c *captureController) OnFrameUnparsable(*reactor.Session, error) {}

func (c *captureController) OnCommand(cmd reactor.Command) {
	c.mu.Lock()
	c.commands = append(c.commands, cmd)
	c.mu.Unlock()
}

func (c *captureController) all() []reactor.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]reactor.Command, len(c.commands))
	copy(out, c.commands)
	return out
}

func newTestService(t *testing.T) (*reactor.Service, *captureController) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctrl := &captureController{}
	svc := reactor.NewService("test", ln, ctrl, 1<<20)
	svc.Run()
	t.Cleanup(svc.Stop)
	return svc, ctrl
}

func newTestBroker(t *testing.T) (*Broker, chan interface{}, chan blockproc.MinedEvent, *captureController, *captureController) {
	t.Helper()
	rpcRx := make(chan interface{}, 8)
	minedRx := make(chan blockproc.MinedEvent, 8)

	importerSvc, importerCtrl := newTestService(t)
	rpcSvc, rpcCtrl := newTestService(t)

	store, err := dbkv.OpenBadger(t.TempDir(), true)
	require.NoError(t, err)
	db := dbkv.NewIndexDb(store)

	b := New(rpcRx, minedRx, importerSvc, rpcSvc, db)
	return b, rpcRx, minedRx, importerCtrl, rpcCtrl
}

func TestBrokerForwardsTrack(t *testing.T) {
	b, rpcRx, _, importerCtrl, _ := newTestBroker(t)
	go b.Run()
	defer close(rpcRx)

	f := bloom.NewDefault()
	f.Insert([]byte{0x01})
	rpcRx <- rpcsvc.TrackReq{Remote: "c1", Filters: []*bloom.Filter{f}}

	require.Eventually(t, func() bool { return len(importerCtrl.all()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestBrokerUntrackAllOnlyForwardsUnwatchedFilters(t *testing.T) {
	b, rpcRx, _, importerCtrl, _ := newTestBroker(t)
	go b.Run()
	defer close(rpcRx)

	f := bloom.NewDefault()
	f.Insert([]byte{0x02})

	rpcRx <- rpcsvc.TrackReq{Remote: "c1", Filters: []*bloom.Filter{f}}
	rpcRx <- rpcsvc.TrackReq{Remote: "c2", Filters: []*bloom.Filter{f}}
	require.Eventually(t, func() bool { return len(importerCtrl.all()) == 2 }, time.Second, 10*time.Millisecond)

	rpcRx <- rpcsvc.UntrackAllReq{Remote: "c1"}
	time.Sleep(50 * time.Millisecond)
	require.Len(t, importerCtrl.all(), 2, "c2 still watches f; no Untrack should be forwarded")

	rpcRx <- rpcsvc.UntrackAllReq{Remote: "c2"}
	require.Eventually(t, func() bool { return len(importerCtrl.all()) == 3 }, time.Second, 10*time.Millisecond)
}

func TestBrokerMinedSendsOncePerMatchingFilter(t *testing.T) {
	b, rpcRx, minedRx, _, rpcCtrl := newTestBroker(t)
	go b.Run()
	defer close(rpcRx)

	txid := chainhash.Txid{1, 2, 3}
	f1 := bloom.NewDefault()
	f1.Insert(txid[:])
	f2 := bloom.NewDefault()
	f2.Insert(txid[:])
	// An extra bit keeps f2 distinct from f1 in the tracking set while
	// still matching txid.
	f2.Insert([]byte{0x80})

	rpcRx <- rpcsvc.TrackReq{Remote: "c1", Filters: []*bloom.Filter{f1, f2}}
	require.Eventually(t, func() bool { return true }, 50*time.Millisecond, 10*time.Millisecond)

	minedRx <- blockproc.MinedEvent{Txid: txid}

	require.Eventually(t, func() bool { return len(rpcCtrl.all()) == 2 }, time.Second, 10*time.Millisecond)
	for _, cmd := range rpcCtrl.all() {
		sc, ok := cmd.(rpcsvc.SendCmd)
		require.True(t, ok)
		require.Equal(t, "c1", sc.Remote)
	}
}
