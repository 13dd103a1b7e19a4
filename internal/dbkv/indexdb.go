package dbkv

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/log"
)

// IdleTimeout is how long IndexDb waits without a single inbound
// transaction request before it compacts and shuts itself down
// (spec.md §5, the UThread idle-timeout behavior).
const IdleTimeout = 10 * time.Minute

// IndexDb is the sole owner of the underlying Store. It exposes a
// single inbox accepting transaction requests; nothing outside this
// package ever touches the Store directly (spec.md §4.1). Callers get
// back a Txn handle over a one-shot reply channel and drive it
// themselves — IndexDb's job ends at handing out the handle.
type IndexDb struct {
	store Store
	inbox chan *txnRequest

	idleTimeout time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
	stopped     chan struct{}

	log *log.Logger
}

type txnRequest struct {
	writable bool
	reply    chan txnReply
}

type txnReply struct {
	txn Txn
	err error
}

// NewIndexDb starts the owner goroutine over store and returns
// immediately.
func NewIndexDb(store Store) *IndexDb {
	d := &IndexDb{
		store:       store,
		inbox:       make(chan *txnRequest),
		idleTimeout: IdleTimeout,
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
		log:         log.NewModuleLogger(log.ModuleIndexDb),
	}
	go d.run()
	return d
}

// ReadTxn requests a read-only transaction from the owner goroutine.
func (d *IndexDb) ReadTxn() (Txn, error) {
	return d.request(false)
}

// WriteTxn requests a read-write transaction from the owner goroutine.
func (d *IndexDb) WriteTxn() (Txn, error) {
	return d.request(true)
}

func (d *IndexDb) request(writable bool) (Txn, error) {
	reply := make(chan txnReply, 1)
	select {
	case d.inbox <- &txnRequest{writable: writable, reply: reply}:
	case <-d.stopped:
		return nil, errors.New("dbkv: index db is shut down")
	}
	select {
	case r := <-reply:
		return r.txn, r.err
	case <-d.stopped:
		return nil, errors.New("dbkv: index db is shut down")
	}
}

func (d *IndexDb) run() {
	idle := time.NewTimer(d.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case req := <-d.inbox:
			if !idle.Stop() {
				<-idle.C
			}
			txn, err := d.store.NewTransaction(req.writable)
			req.reply <- txnReply{txn: txn, err: err}
			idle.Reset(d.idleTimeout)

		case <-idle.C:
			d.log.Info("idle timeout reached, compacting and shutting down")
			d.shutdown()
			return

		case <-d.stop:
			d.shutdown()
			return
		}
	}
}

func (d *IndexDb) shutdown() {
	if err := d.store.Close(); err != nil {
		d.log.Warn("close on shutdown failed", "err", err)
	}
	close(d.stopped)
}

// Close requests an orderly shutdown: the owner goroutine compacts and
// closes the underlying store before returning. Safe to call more than
// once.
func (d *IndexDb) Close() error {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.stopped
	return nil
}
