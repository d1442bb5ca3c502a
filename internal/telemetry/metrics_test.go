package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// One registry per process: the metrics register against the default
// Prometheus registry, so build it once and exercise everything here.
func TestRegistry_CountersAndTimer(t *testing.T) {
	r := NewRegistry()

	r.BacktestsTotal.WithLabelValues("sma_crossover").Inc()
	r.BacktestsTotal.WithLabelValues("sma_crossover").Inc()
	r.BacktestErrors.WithLabelValues("alt_data_fusion").Inc()
	r.TradesRecorded.WithLabelValues("stop_loss").Add(3)
	r.GridEvaluations.WithLabelValues("ok").Add(5)
	r.CacheHits.Inc()
	r.CacheMisses.Add(2)
	r.ValidationRuns.WithLabelValues("NONE").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.BacktestsTotal.WithLabelValues("sma_crossover")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.BacktestErrors.WithLabelValues("alt_data_fusion")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.TradesRecorded.WithLabelValues("stop_loss")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.GridEvaluations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ValidationRuns.WithLabelValues("NONE")))

	timer := r.StartRun("backtest")
	timer.Stop()
	assert.Equal(t, 1, testutil.CollectAndCount(r.RunDuration))
}
