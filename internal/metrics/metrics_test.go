package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Checkout("ok")
	m.Checkout("ok")
	m.Checkout("PRODUCT_WITHOUT_STOCK_AVAILABLE")
	m.TxRetry("checkout")
	m.EventPublished("order.placed", false)
	m.ObserveOperation("checkout", "ok", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkouts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkouts.WithLabelValues("PRODUCT_WITHOUT_STOCK_AVAILABLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.txRetries.WithLabelValues("checkout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("order.placed", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.operations))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Checkout("ok")
		m.TxRetry("checkout")
		m.EventPublished("x", true)
		m.ObserveOperation("x", "ok", time.Now())
	})
}
