package metrics

import (
	"testing"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/require"
)

func TestBridgeSyncsCounterDeltas(t *testing.T) {
	reg := gometrics.NewRegistry()
	c := gometrics.NewRegisteredCounter("test_counter", reg)

	b := newBridgeFor(reg)
	c.Inc(3)
	b.sync()
	require.Equal(t, int64(3), b.lastCount["test_counter"])

	c.Inc(2)
	b.sync()
	require.Equal(t, int64(5), b.lastCount["test_counter"])
}

func TestBridgeSyncsGaugeValues(t *testing.T) {
	reg := gometrics.NewRegistry()
	g := gometrics.NewRegisteredGauge("test_gauge", reg)

	b := newBridgeFor(reg)
	g.Update(42)
	b.sync()

	families, err := b.reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
