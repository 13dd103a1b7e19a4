// Package broker implements the Broker (spec.md §4.5): the central
// coordinator owning the tracking set and relaying Track/UntrackAll
// traffic from RpcService to ImporterService, and Mined events the
// other way.
package broker

import (
	"github.com/bp-node/bpd/internal/blockproc"
	"github.com/bp-node/bpd/internal/bloom"
	"github.com/bp-node/bpd/internal/dbkv"
	"github.com/bp-node/bpd/internal/importer"
	"github.com/bp-node/bpd/internal/log"
	"github.com/bp-node/bpd/internal/metrics"
	"github.com/bp-node/bpd/internal/reactor"
	"github.com/bp-node/bpd/internal/rpcsvc"
	"github.com/bp-node/bpd/internal/wire"
)

// Broker is the component described above. Its core loop
// non-deterministically drains whichever of rpcRx/minedRx is ready,
// handling exactly one message per iteration (spec.md §4.5).
type Broker struct {
	rpcRx   <-chan interface{}
	minedRx <-chan blockproc.MinedEvent

	importerSvc *reactor.Service
	rpcSvc      *reactor.Service
	db          *dbkv.IndexDb

	tracking map[string]map[string]*bloom.Filter
	log      *log.Logger
}

// New builds a Broker. rpcRx carries rpcsvc.TrackReq/UntrackAllReq;
// minedRx carries the blockproc.MinedEvent stream produced by the
// BlockProcessor living on the importer side.
func New(rpcRx <-chan interface{}, minedRx <-chan blockproc.MinedEvent, importerSvc, rpcSvc *reactor.Service, db *dbkv.IndexDb) *Broker {
	return &Broker{
		rpcRx:       rpcRx,
		minedRx:     minedRx,
		importerSvc: importerSvc,
		rpcSvc:      rpcSvc,
		db:          db,
		tracking:    make(map[string]map[string]*bloom.Filter),
		log:         log.NewModuleLogger(log.ModuleBroker),
	}
}

// Run executes the broker's core loop until either inbound channel
// closes, then tears the whole system down (spec.md §4.5 "Shutdown").
func (b *Broker) Run() {
	for {
		select {
		case msg, ok := <-b.rpcRx:
			if !ok {
				b.shutdown()
				return
			}
			b.handleRpcMsg(msg)

		case ev, ok := <-b.minedRx:
			if !ok {
				b.shutdown()
				return
			}
			b.handleMined(ev)
		}
	}
}

func (b *Broker) handleRpcMsg(msg interface{}) {
	switch m := msg.(type) {
	case rpcsvc.TrackReq:
		b.handleTrack(m.Remote, m.Filters)
	case rpcsvc.UntrackAllReq:
		b.handleUntrackAll(m.Remote)
	default:
		b.log.Warn("unknown broker rpc message")
	}
}

// handleTrack unions filters into tracking[remote] and forwards those
// same filters to the importer. An empty filter set is a no-op. No
// acknowledgement is sent to the client, here or in RpcService, which
// does not reply to Track.
func (b *Broker) handleTrack(remote string, filters []*bloom.Filter) {
	if len(filters) == 0 {
		return
	}
	set, ok := b.tracking[remote]
	if !ok {
		set = make(map[string]*bloom.Filter)
		b.tracking[remote] = set
	}
	for _, f := range filters {
		set[f.Key()] = f
	}
	b.importerSvc.Enqueue(importer.TrackTxidCmd{Filters: filters})
}

// handleUntrackAll forwards only the filters no other client still
// watches (spec.md §4.5, Scenario 6).
func (b *Broker) handleUntrackAll(remote string) {
	filters, ok := b.tracking[remote]
	if !ok {
		return
	}
	delete(b.tracking, remote)

	stillWatched := make(map[string]bool)
	for _, set := range b.tracking {
		for k := range set {
			stillWatched[k] = true
		}
	}

	var toUntrack []*bloom.Filter
	for k, f := range filters {
		if !stillWatched[k] {
			toUntrack = append(toUntrack, f)
		}
	}
	if len(toUntrack) > 0 {
		b.importerSvc.Enqueue(importer.UntrackCmd{Filters: toUntrack})
	}
}

// handleMined sends one Mined push per (client, matching filter),
// not one per client (spec.md §4.5: "if multiple filters of a client
// match, send once per matching filter — clients dedupe").
func (b *Broker) handleMined(ev blockproc.MinedEvent) {
	for remote, filters := range b.tracking {
		for _, f := range filters {
			if f.Contains(ev.Txid[:]) {
				b.rpcSvc.Enqueue(rpcsvc.SendCmd{Remote: remote, Response: &wire.MinedResp{Txid: ev.Txid}})
				metrics.MinedEventsSent.Inc(1)
			}
		}
	}
}

func (b *Broker) shutdown() {
	b.log.Info("shutting down")
	b.importerSvc.Stop()
	b.rpcSvc.Stop()
	if err := b.db.Close(); err != nil {
		b.log.Warn("database close failed", "err", err)
	}
}
