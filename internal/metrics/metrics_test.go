package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/netsimio/vnet/internal/metrics"
)

func TestHandshakesTotalIncrements(t *testing.T) {
	before := testutil.ToFloat64(metrics.HandshakesTotal)
	metrics.HandshakesTotal.Inc()
	after := testutil.ToFloat64(metrics.HandshakesTotal)
	assert.Equal(t, before+1, after)
}

func TestSocketsOpenLabeledByProto(t *testing.T) {
	metrics.SocketsOpen.WithLabelValues("stream").Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.SocketsOpen.WithLabelValues("stream")))
}
