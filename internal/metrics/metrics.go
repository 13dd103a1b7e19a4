// Package metrics tracks bpd's operational counters on the
// rcrowley/go-metrics registry, mirroring the teacher's
// metrics.DefaultRegistry convention, and exposes them over HTTP via
// prometheus/client_golang, mirroring cmd/kcn/main.go's prometheus
// exporter wiring (metrics.Enabled -> promhttp.Handler() on
// MetricsListenAddr).
package metrics

import (
	"context"
	"net/http"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bp-node/bpd/internal/log"
)

// Registry is the process-wide counter set, named after spec.md's
// operations so a dashboard reader can map one to the other directly.
var (
	BlocksProcessed     = gometrics.NewRegisteredCounter("bpd/blocks_processed", gometrics.DefaultRegistry)
	TransactionsIndexed = gometrics.NewRegisteredCounter("bpd/transactions_indexed", gometrics.DefaultRegistry)
	OrphansCached       = gometrics.NewRegisteredGauge("bpd/orphans_cached", gometrics.DefaultRegistry)
	MinedEventsSent     = gometrics.NewRegisteredCounter("bpd/mined_events_sent", gometrics.DefaultRegistry)
	ProvidersConnected  = gometrics.NewRegisteredGauge("bpd/providers_connected", gometrics.DefaultRegistry)
	ClientsConnected    = gometrics.NewRegisteredGauge("bpd/clients_connected", gometrics.DefaultRegistry)
)

// bridge periodically copies gometrics.DefaultRegistry into a
// prometheus registry. No ecosystem bridge package between
// rcrowley/go-metrics and client_golang appears in go.mod, so this
// translation is hand-written rather than hand-rolling the metrics
// themselves; the metrics above remain on the teacher's library.
type bridge struct {
	src       gometrics.Registry
	counters  map[string]prometheus.Counter
	gauges    map[string]prometheus.Gauge
	lastCount map[string]int64
	reg       *prometheus.Registry
}

func newBridge() *bridge { return newBridgeFor(gometrics.DefaultRegistry) }

// newBridgeFor builds a bridge over an arbitrary source registry,
// letting tests use a throwaway registry instead of the process-wide
// gometrics.DefaultRegistry the exported counters above register into.
func newBridgeFor(src gometrics.Registry) *bridge {
	reg := prometheus.NewRegistry()
	b := &bridge{
		src:       src,
		counters:  make(map[string]prometheus.Counter),
		gauges:    make(map[string]prometheus.Gauge),
		lastCount: make(map[string]int64),
		reg:       reg,
	}
	src.Each(func(name string, metric interface{}) {
		switch metric.(type) {
		case gometrics.Counter:
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: sanitize(name)})
			reg.MustRegister(c)
			b.counters[name] = c
		case gometrics.Gauge:
			g := prometheus.NewGauge(prometheus.GaugeOpts{Name: sanitize(name)})
			reg.MustRegister(g)
			b.gauges[name] = g
		}
	})
	return b
}

// sync copies every metric's current value into its prometheus
// counterpart. Counters track their own lastCount since
// prometheus.Counter exposes Add() but no Set().
func (b *bridge) sync() {
	b.src.Each(func(name string, metric interface{}) {
		switch m := metric.(type) {
		case gometrics.Counter:
			c, ok := b.counters[name]
			if !ok {
				return
			}
			current := m.Count()
			if delta := current - b.lastCount[name]; delta > 0 {
				c.Add(float64(delta))
			}
			b.lastCount[name] = current
		case gometrics.Gauge:
			if g, ok := b.gauges[name]; ok {
				g.Set(float64(m.Value()))
			}
		}
	})
}

// Exporter serves the bridged metrics over HTTP.
type Exporter struct {
	addr   string
	bridge *bridge
	srv    *http.Server
	log    *log.Logger
}

// NewExporter builds an Exporter bound to addr (spec.md's
// MetricsListenAddr, default 127.0.0.1:9333).
func NewExporter(addr string) *Exporter {
	return &Exporter{addr: addr, bridge: newBridge(), log: log.NewModuleLogger(log.ModuleMetrics)}
}

// Run starts the HTTP server and the periodic sync loop, and blocks
// until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.bridge.reg, promhttp.HandlerOpts{}))
	e.srv = &http.Server{Addr: e.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- e.srv.ListenAndServe() }()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return e.srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				e.log.Error("metrics server stopped", "err", err)
				return err
			}
		case <-ticker.C:
			e.bridge.sync()
		}
	}
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
