// Package service wires together the five components of spec.md §2
// (IndexDb, BlockProcessor, ImporterService, RpcService, Broker) plus
// the optional Kafka event sink and the Prometheus exporter, mirroring
// how cmd/kcn/main.go assembles klaytn's node before calling Start.
package service

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/blockproc"
	"github.com/bp-node/bpd/internal/broker"
	"github.com/bp-node/bpd/internal/config"
	"github.com/bp-node/bpd/internal/dbkv"
	"github.com/bp-node/bpd/internal/eventsink"
	"github.com/bp-node/bpd/internal/importer"
	"github.com/bp-node/bpd/internal/log"
	"github.com/bp-node/bpd/internal/metrics"
	"github.com/bp-node/bpd/internal/reactor"
	"github.com/bp-node/bpd/internal/rpcsvc"
)

// Node owns every long-lived component bpd runs. Start/Stop bracket
// its whole lifetime; the zero value is not usable, build one with
// New.
type Node struct {
	cfg *config.Config
	log *log.Logger

	store dbkv.Store
	db    *dbkv.IndexDb
	bp    *blockproc.BlockProcessor

	importerSvc *reactor.Service
	rpcSvc      *reactor.Service
	brk         *broker.Broker

	sink     *eventsink.Sink
	exporter *metrics.Exporter

	minedFanIn chan blockproc.MinedEvent
	rpcRx      chan interface{}

	cancelExporter context.CancelFunc
}

// New opens the embedded store, recovers BlockProcessor state, binds
// both listeners, and constructs every component. The store's own
// background goroutine and IndexDb's owner goroutine start here; the
// broker, the reactor services, the fan-out and the optional sink and
// exporter goroutines are started by Start.
func New(cfg *config.Config) (*Node, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	db := dbkv.NewIndexDb(store)

	minedFanIn := make(chan blockproc.MinedEvent, 256)
	bp, err := blockproc.New(db, cfg.OrphanCacheCap, minedFanIn)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "service: build block processor")
	}

	providerLn, err := net.Listen("tcp", cfg.ProviderListenAddr)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "service: listen provider addr")
	}
	clientLn, err := net.Listen("tcp", cfg.RpcListenAddr)
	if err != nil {
		providerLn.Close()
		db.Close()
		return nil, errors.Wrap(err, "service: listen rpc addr")
	}

	importerCtl := importer.New(cfg.Network, cfg.MaxProviders, bp)
	importerSvc := reactor.NewService("importer", providerLn, importerCtl, cfg.MaxFrameSize)
	importerCtl.Attach(importerSvc)

	rpcRx := make(chan interface{}, 256)
	rpcCtl := rpcsvc.New(cfg.MaxClients, rpcRx)
	rpcSvc := reactor.NewService("rpc", clientLn, rpcCtl, cfg.MaxFrameSize)
	rpcCtl.Attach(rpcSvc)

	n := &Node{
		cfg:         cfg,
		log:         log.NewModuleLogger(log.ModuleCLI),
		store:       store,
		db:          db,
		bp:          bp,
		importerSvc: importerSvc,
		rpcSvc:      rpcSvc,
		minedFanIn:  minedFanIn,
		rpcRx:       rpcRx,
	}

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := eventsink.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			n.closeListeners(providerLn, clientLn)
			db.Close()
			return nil, errors.Wrap(err, "service: build event sink")
		}
		n.sink = sink
	}

	if cfg.MetricsListenAddr != "" {
		n.exporter = metrics.NewExporter(cfg.MetricsListenAddr)
	}

	return n, nil
}

func (n *Node) closeListeners(lns ...net.Listener) {
	for _, ln := range lns {
		ln.Close()
	}
}

// Start launches every background goroutine: the broker's core loop,
// both reactor services, the mined-event fan-out, and (if configured)
// the event sink and metrics exporter. Start does not block.
func (n *Node) Start() {
	minedToBroker := make(chan blockproc.MinedEvent, 256)
	fanOuts := []chan<- blockproc.MinedEvent{minedToBroker}

	var minedToSink chan blockproc.MinedEvent
	if n.sink != nil {
		minedToSink = make(chan blockproc.MinedEvent, 256)
		fanOuts = append(fanOuts, minedToSink)
		go n.sink.Run(minedToSink)
	}

	go teeMinedEvents(n.minedFanIn, fanOuts)

	brk := broker.New(n.rpcRx, minedToBroker, n.importerSvc, n.rpcSvc, n.db)
	n.brk = brk
	go brk.Run()

	n.importerSvc.Run()
	n.rpcSvc.Run()

	if n.exporter != nil {
		ctx, cancel := context.WithCancel(context.Background())
		n.cancelExporter = cancel
		go func() {
			if err := n.exporter.Run(ctx); err != nil {
				n.log.Warn("metrics exporter stopped", "err", err)
			}
		}()
	}
}

// Stop tears the node down in dependency order: stop accepting block
// providers first so BlockProcessor sees no further input, then close
// the mined-event source so the fan-out and any event sink drain and
// exit, then close rpcRx so the broker's shutdown stops RpcService and
// the database (internal/broker's Run/shutdown; re-stopping
// importerSvc there is a harmless no-op, Stop is idempotent).
func (n *Node) Stop() {
	if n.cancelExporter != nil {
		n.cancelExporter()
	}
	n.importerSvc.Stop()
	close(n.minedFanIn)
	close(n.rpcRx)
}

// teeMinedEvents forwards every event from in to every channel in
// outs, closing them all once in closes. BlockProcessor has exactly
// one mined output channel, but both the broker and an optional
// external event sink need the stream, so this is the one place that
// duplicates it.
func teeMinedEvents(in <-chan blockproc.MinedEvent, outs []chan<- blockproc.MinedEvent) {
	for ev := range in {
		for _, out := range outs {
			out <- ev
		}
	}
	for _, out := range outs {
		close(out)
	}
}

func openStore(cfg *config.Config) (dbkv.Store, error) {
	dir := cfg.IndexDir()
	switch cfg.DbType {
	case config.DbTypeLevelDB:
		return dbkv.OpenLevelDB(dir, true)
	default:
		return dbkv.OpenBadger(dir, true)
	}
}
